package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v, err := identity.NewJWTVerifier("s3cret", "marketplace", "chat", 5*time.Second)
	require.NoError(t, err)

	token, err := v.Sign(identity.Identity{Type: domain.ParticipantDoctor, ID: "D1"}, time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, identity.Identity{Type: domain.ParticipantDoctor, ID: "D1"}, id)
	require.True(t, id.Allows(domain.DoctorSender("D1")))
	require.False(t, id.Allows(domain.ClinicSender("D1")))
	require.False(t, id.Allows(domain.DoctorSender("D2")))
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v, err := identity.NewJWTVerifier("s3cret", "marketplace", "", 0)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = v.Verify(ctx, "")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = v.Verify(ctx, "not.a.jwt")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	other, err := identity.NewJWTVerifier("another-secret", "marketplace", "", 0)
	require.NoError(t, err)
	forged, err := other.Sign(identity.Identity{Type: domain.ParticipantClinic, ID: "C1"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, forged)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	expired, err := v.Sign(identity.Identity{Type: domain.ParticipantClinic, ID: "C1"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, expired)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	// неизвестный ptype
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.Claims{
		ParticipantType: "nurse",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "N1",
			Issuer:    "marketplace",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Verify(ctx, raw)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestTrusted_AllowsAnySender(t *testing.T) {
	id, err := identity.Trusted{}.Verify(context.Background(), "")
	require.NoError(t, err)
	require.True(t, id.IsZero())

	ctx := identity.WithIdentity(context.Background(), id)
	require.NoError(t, identity.CheckSender(ctx, domain.ClinicSender("C1")))
	require.NoError(t, identity.CheckSender(context.Background(), domain.DoctorSender("D1")))
}

func TestCheckSender_Forbidden(t *testing.T) {
	ctx := identity.WithIdentity(context.Background(), identity.Identity{Type: domain.ParticipantClinic, ID: "C1"})
	require.NoError(t, identity.CheckSender(ctx, domain.ClinicSender("C1")))
	require.ErrorIs(t, identity.CheckSender(ctx, domain.DoctorSender("D1")), domain.ErrForbidden)
}
