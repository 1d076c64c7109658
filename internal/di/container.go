// Package di provides dependency injection configuration for the directory server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/ceskapp/directory/internal/auth"
	"github.com/ceskapp/directory/internal/config"
	"github.com/ceskapp/directory/internal/di/providers"
	"github.com/ceskapp/directory/internal/logger"
	"github.com/ceskapp/directory/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Change delivery and database
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideChangeBus)
	do.Provide(injector, providers.ProvideStore)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideDirectoryService)
	do.Provide(injector, providers.ProvideEngagementLimiter)
	do.Provide(injector, providers.ProvideEngagementService)
	do.Provide(injector, providers.ProvideLocalBackend)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)

	// Workers
	do.Provide(injector, providers.ProvideTrainerImport)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services in dependency order.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*auth.TokenService](injector); err != nil {
		return err
	}

	_ = do.MustInvoke[*service.AuthService](injector)
	_ = do.MustInvoke[*service.DirectoryService](injector)
	_ = do.MustInvoke[*service.EngagementService](injector)

	// Import before the index loads so the first search sees imported trainers.
	if _, err := do.Invoke[*providers.TrainerImportHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SearchIndexHandle](injector); err != nil {
		return err
	}

	_, err := do.Invoke[*providers.HTTPServerHandle](injector)
	return err
}
