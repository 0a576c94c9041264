package overlay

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/pawbook/appointment-service/internal/appointment"
	"github.com/pawbook/appointment-service/internal/audit"
)

// Options selects which overlays wrap the service. The zero value composes
// nothing and returns the service unchanged.
type Options struct {
	// CacheBackend enables the cache overlay when non-nil.
	CacheBackend Backend
	CacheTTL     time.Duration

	// Principal enables the authorization overlay when non-nil. Resolver
	// and Auditor must be set alongside it.
	Principal *Principal
	Resolver  OwnershipResolver
	Auditor   audit.Recorder

	Logger zerolog.Logger
}

// Compose builds the overlay chain explicitly: Authorization -> Cache ->
// Service. Permissions are checked before any cache lookup, and cached data
// still passes through the projection on its way out.
func Compose(svc appointment.API, opts Options) appointment.API {
	composed := svc

	if opts.CacheBackend != nil {
		composed = NewCacheOverlay(composed, opts.CacheBackend, opts.CacheTTL, opts.Logger)
	}

	if opts.Principal != nil {
		composed = NewAuthOverlay(composed, *opts.Principal, opts.Resolver, opts.Auditor, opts.Logger)
	}

	return composed
}
