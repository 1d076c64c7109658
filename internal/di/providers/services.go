package providers

import (
	"github.com/samber/do/v2"

	"github.com/ceskapp/directory/internal/auth"
	"github.com/ceskapp/directory/internal/backend/local"
	"github.com/ceskapp/directory/internal/config"
	"github.com/ceskapp/directory/internal/content"
	"github.com/ceskapp/directory/internal/logger"
	"github.com/ceskapp/directory/internal/ratelimit"
	"github.com/ceskapp/directory/internal/service"
	"github.com/ceskapp/directory/internal/validation"
)

// ProvideValidator provides the request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideAuthService provides the account service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, tokenService, validator, log.Logger), nil
}

// ProvideDirectoryService provides trainer and post reads and writes.
func ProvideDirectoryService(i do.Injector) (*service.DirectoryService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewDirectoryService(storeHandle.Store, content.NewProcessor(), validator, log.Logger), nil
}

// EngagementLimiter throttles engagement writes per viewer.
type EngagementLimiter struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (l *EngagementLimiter) Shutdown() error {
	if l.KeyedRateLimiter != nil {
		l.Stop()
	}
	return nil
}

// ProvideEngagementLimiter provides the per-viewer limiter. A zero rate disables it.
func ProvideEngagementLimiter(i do.Injector) (*EngagementLimiter, error) {
	cfg := do.MustInvoke[*config.Config](i)

	if cfg.Engagement.RatePerSecond <= 0 {
		return &EngagementLimiter{}, nil
	}
	return &EngagementLimiter{
		KeyedRateLimiter: ratelimit.New(cfg.Engagement.RatePerSecond, cfg.Engagement.Burst),
	}, nil
}

// ProvideEngagementService provides view, like and bookmark recording.
func ProvideEngagementService(i do.Injector) (*service.EngagementService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	limiter := do.MustInvoke[*EngagementLimiter](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewEngagementService(storeHandle.Store, limiter.KeyedRateLimiter, log.Logger), nil
}

// ProvideLocalBackend serves the backend contract from the in-process services.
func ProvideLocalBackend(i do.Injector) (*local.Backend, error) {
	directory := do.MustInvoke[*service.DirectoryService](i)
	engagement := do.MustInvoke[*service.EngagementService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return local.New(directory, engagement, sseHandle.Manager, log.WithComponent("backend")), nil
}
