package providers

import (
	"context"
	"os"

	"github.com/samber/do/v2"

	"github.com/ceskapp/directory/internal/changebus"
	"github.com/ceskapp/directory/internal/config"
	"github.com/ceskapp/directory/internal/id"
	"github.com/ceskapp/directory/internal/logger"
	"github.com/ceskapp/directory/internal/sse"
	"github.com/ceskapp/directory/internal/store"
	"github.com/ceskapp/directory/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// ChangeBusHandle holds the Redis change bus. Bus is nil when Redis is not configured.
type ChangeBusHandle struct {
	Bus *changebus.RedisBus
}

// Emitter returns where the store should publish changes.
func (h *ChangeBusHandle) Emitter(local store.EventEmitter) store.EventEmitter {
	if h.Bus == nil {
		return local
	}
	return h.Bus
}

// Shutdown implements do.Shutdownable.
func (h *ChangeBusHandle) Shutdown() error {
	if h.Bus == nil {
		return nil
	}
	return h.Bus.Shutdown()
}

// ProvideChangeBus connects the Redis change bus when one is configured.
func ProvideChangeBus(i do.Injector) (*ChangeBusHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	if !cfg.Redis.Enabled() {
		log.Info("Redis change bus disabled, changes stay on this instance")
		return &ChangeBusHandle{}, nil
	}

	origin, _ := os.Hostname()
	origin += "-" + id.MustGenerate("inst")

	ctx := context.Background()
	bus, err := changebus.NewRedisBus(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Channel, origin, sseHandle.Manager, log.Logger)
	if err != nil {
		return nil, err
	}
	if err := bus.Start(ctx); err != nil {
		_ = bus.Shutdown()
		return nil, err
	}

	log.Info("Redis change bus connected", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	return &ChangeBusHandle{Bus: bus}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the database store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	busHandle := do.MustInvoke[*ChangeBusHandle](i)

	dbPath := cfg.Data.DatabasePath()
	db, err := sqlite.Open(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}
	db.SetEmitter(busHandle.Emitter(sseHandle.Manager))

	log.Info("Database initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}
