// Package region drives the region picker on the trainer map: hovering or tapping a
// region opens an overlay listing the trainers there.
package region

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
)

// Mode is how the user points at regions.
type Mode string

const (
	// ModeHover previews on pointer hover and locks when the pointer moves into the overlay.
	ModeHover Mode = "hover"
	// ModeTap locks on tap. There is no preview.
	ModeTap Mode = "tap"
)

// Phase is the overlay state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePreviewing Phase = "previewing"
	PhaseLocked     Phase = "locked"
)

// Querier runs directory queries. backend.Backend satisfies it.
type Querier interface {
	Query(ctx context.Context, q backend.Query) ([]domain.Item, error)
}

// Snapshot is the controller state as the UI renders it.
type Snapshot struct {
	Phase        Phase
	Region       string
	Mode         Mode
	OverlayItems []domain.Item
	Loading      bool
	Err          error
}

// Controller is safe for concurrent use. Fetches run in the background and a result is
// applied only if its region is still the current one.
type Controller struct {
	querier    Querier
	resource   domain.Resource
	hoverDelay time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	mode           Mode
	phase          Phase
	region         string
	overlaySourced bool
	overlayHovered bool
	hoverRegion    string
	hoverTimer     *time.Timer
	gen            uint64
	items          []domain.Item
	loading        bool
	err            error
	listeners      []func(Snapshot)
}

// Option configures a Controller.
type Option func(*Controller)

// WithHoverDelay waits d before previewing a hovered region. Taps are never delayed.
func WithHoverDelay(d time.Duration) Option {
	return func(c *Controller) { c.hoverDelay = d }
}

// WithResource sets the resource listed in the overlay. The default is trainers.
func WithResource(r domain.Resource) Option {
	return func(c *Controller) { c.resource = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// NewController creates an idle controller. Fetches run under ctx until Stop.
func NewController(ctx context.Context, q Querier, mode Mode, opts ...Option) *Controller {
	cctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		querier:  q,
		resource: domain.ResourceTrainers,
		logger:   slog.Default(),
		ctx:      cctx,
		cancel:   cancel,
		mode:     mode,
		phase:    PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PointerEnterRegion previews r in hover mode.
func (c *Controller) PointerEnterRegion(r string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeHover {
		return
	}
	c.hoverRegion = r
	c.stopHoverTimerLocked()
	if c.phase == PhaseLocked {
		return
	}

	if c.hoverDelay <= 0 {
		c.enterLocked(PhasePreviewing, r)
		return
	}
	c.hoverTimer = time.AfterFunc(c.hoverDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.mode == ModeHover && c.hoverRegion == r && c.phase != PhaseLocked {
			c.enterLocked(PhasePreviewing, r)
		}
	})
}

// PointerLeaveRegion ends a preview unless the pointer went into the overlay.
func (c *Controller) PointerLeaveRegion() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hoverRegion = ""
	c.stopHoverTimerLocked()
	if c.phase == PhasePreviewing && !c.overlayHovered {
		c.idleLocked()
	}
}

// PointerEnterOverlay locks the previewed region so the list can be browsed.
func (c *Controller) PointerEnterOverlay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overlayHovered = true
	if c.phase == PhasePreviewing {
		c.enterLocked(PhaseLocked, c.region)
		c.overlaySourced = true
	}
}

// PointerLeaveOverlay releases a lock that the overlay created. If the pointer is back
// over a region that region is previewed, otherwise the overlay closes. Tap locks stay.
func (c *Controller) PointerLeaveOverlay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overlayHovered = false
	if c.phase != PhaseLocked || !c.overlaySourced {
		return
	}
	if c.hoverRegion != "" {
		c.enterLocked(PhasePreviewing, c.hoverRegion)
		return
	}
	c.idleLocked()
}

// Tap locks r, replacing any other region. Taps work in both modes.
func (c *Controller) Tap(r string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopHoverTimerLocked()
	c.enterLocked(PhaseLocked, r)
}

// Close closes the overlay.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopHoverTimerLocked()
	c.idleLocked()
}

// SetMode switches the pointing mode. A different mode closes the overlay.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m == c.mode {
		return
	}
	c.mode = m
	c.hoverRegion = ""
	c.overlayHovered = false
	c.stopHoverTimerLocked()
	c.idleLocked()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnChange registers fn to receive every new state. fn must not call back into the
// controller.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Wait blocks until in-flight fetches have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Stop cancels in-flight fetches and waits for them.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopHoverTimerLocked()
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:        c.phase,
		Region:       c.region,
		Mode:         c.mode,
		OverlayItems: c.items,
		Loading:      c.loading,
		Err:          c.err,
	}
}

func (c *Controller) stopHoverTimerLocked() {
	if c.hoverTimer != nil {
		c.hoverTimer.Stop()
		c.hoverTimer = nil
	}
}

// enterLocked moves to a previewing or locked phase. A new region fetches, and so does
// the same region when its last fetch failed.
func (c *Controller) enterLocked(phase Phase, r string) {
	sameRegion := c.phase != PhaseIdle && c.region == r
	retry := sameRegion && c.err != nil && !c.loading
	c.phase = phase
	c.region = r
	c.overlaySourced = false

	if !sameRegion || retry {
		c.gen++
		c.items = nil
		c.err = nil
		c.loading = true
		c.fetchLocked(c.gen, r)
	}
	c.notifyLocked()
}

func (c *Controller) idleLocked() {
	if c.phase == PhaseIdle {
		return
	}
	c.phase = PhaseIdle
	c.region = ""
	c.overlaySourced = false
	c.gen++
	c.items = nil
	c.err = nil
	c.loading = false
	c.notifyLocked()
}

func (c *Controller) fetchLocked(gen uint64, r string) {
	q := backend.Query{Resource: c.resource, Region: r}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		items, err := c.querier.Query(c.ctx, q)
		if errors.Is(err, domainerrors.ErrNotFound) {
			items, err = nil, nil
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen {
			c.logger.Debug("discarding stale region result", slog.String("region", r))
			return
		}
		c.items = items
		c.err = err
		c.loading = false
		if err != nil {
			c.logger.Warn("region fetch failed", slog.String("region", r), slog.String("error", err.Error()))
		}
		c.notifyLocked()
	}()
}

func (c *Controller) notifyLocked() {
	snap := c.snapshotLocked()
	for _, fn := range c.listeners {
		fn(snap)
	}
}
