// Package audit records who did what through the authorization overlay.
// Recording follows the same fire-and-forget contract as event publishing:
// failures are logged, never propagated.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Entry is one audit record. Details hold redacted operation arguments;
// secrets must never reach this type.
type Entry struct {
	PrincipalID uuid.UUID      `json:"principal_id"`
	Role        string         `json:"role"`
	Action      string         `json:"action"`
	Details     map[string]any `json:"details,omitempty"`
}

// Recorder persists audit entries. Tests can provide a RecorderFunc.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// RecorderFunc is a function adapter for Recorder.
type RecorderFunc func(ctx context.Context, e Entry)

func (f RecorderFunc) Record(ctx context.Context, e Entry) {
	f(ctx, e)
}

// LogRecorder writes audit entries as structured log lines.
type LogRecorder struct {
	logger zerolog.Logger
}

func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.With().Str("component", "audit").Logger()}
}

func (r *LogRecorder) Record(_ context.Context, e Entry) {
	r.logger.Info().
		Str("principal_id", e.PrincipalID.String()).
		Str("role", e.Role).
		Str("action", e.Action).
		Fields(e.Details).
		Msg("audit")
}

func marshalDetails(details map[string]any) []byte {
	if len(details) == 0 {
		return nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return data
}
