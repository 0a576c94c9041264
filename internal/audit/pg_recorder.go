package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PgRecorder appends audit entries to the audit_logs table. Insert-only; the
// table is never updated or pruned by this service.
type PgRecorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPgRecorder(pool *pgxpool.Pool, logger zerolog.Logger) *PgRecorder {
	return &PgRecorder{
		pool:   pool,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

func (r *PgRecorder) Record(ctx context.Context, e Entry) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (principal_id, role, action, details, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, e.PrincipalID, e.Role, e.Action, marshalDetails(e.Details))
	if err != nil {
		r.logger.Error().Err(err).
			Str("action", e.Action).
			Str("principal_id", e.PrincipalID.String()).
			Msg("audit insert failed")
	}
}
