package identity

import (
	"context"
	"errors"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims: sub: id участника, ptype: clinic|doctor.
type Claims struct {
	ParticipantType string `json:"ptype"`
	jwt.RegisteredClaims
}

// JWTVerifier проверяет HS256-токены, выпущенные маркетплейсом.
type JWTVerifier struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
	now       func() time.Time
}

func NewJWTVerifier(secret, issuer, audience string, clockSkew time.Duration) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTVerifier{
		secret:    []byte(secret),
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		now:       time.Now,
	}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, domain.Unauthenticatedf("missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return Identity{}, domain.Unauthenticatedf("invalid token: %v", err)
	}

	sender, err := domain.NewSender(claims.ParticipantType, claims.Subject)
	if err != nil {
		return Identity{}, domain.Unauthenticatedf("invalid token subject: %v", err)
	}
	return Identity{Type: sender.Type(), ID: sender.ID()}, nil
}

// Sign выпускает токен для участника; нужен для тестов и сервисных утилит.
func (v *JWTVerifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		ParticipantType: string(id.Type),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-v.clockSkew)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
