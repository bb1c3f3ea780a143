package postgres

import (
	"context"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory читает отображаемые атрибуты клиник и врачей из таблиц маркетплейса.
type Directory struct {
	q querier
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{q: pool}
}

func (d *Directory) Profile(ctx context.Context, s domain.Sender) (domain.SenderProfile, error) {
	var p domain.SenderProfile

	switch {
	case s.IsClinic():
		err := d.q.QueryRow(ctx, qClinicProfile, s.ID()).Scan(&p.Name)
		return p, mapPgError(err, domain.ErrNotFound)
	case s.IsDoctor():
		err := d.q.QueryRow(ctx, qDoctorProfile, s.ID()).Scan(&p.Name, &p.Specialization)
		return p, mapPgError(err, domain.ErrNotFound)
	default:
		return p, domain.Invalidf("unknown sender type %q", s.Type())
	}
}
