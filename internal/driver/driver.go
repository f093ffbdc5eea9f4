package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/schedule"
)

// Bounds applied by SetScale.
const (
	MinScale = 0.1
	MaxScale = 100.0
)

// Option configures a Driver.
type Option func(*Driver)

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// Driver advances an engine at scale times real time.
type Driver struct {
	mu     sync.Mutex
	eng    *engine.Engine
	scale  float64
	now    func() time.Time
	logger *slog.Logger

	trigger schedule.ProgramTrigger
	last    time.Time

	// waited is scaled time spent before an offset start.
	waited time.Duration
}

// New wraps eng. scale must be positive; 1 is real time, 60 runs a minute
// of program time per second. The clock origin is the moment New returns.
func New(eng *engine.Engine, scale float64, opts ...Option) (*Driver, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("driver: scale must be positive, got %g", scale)
	}
	d := &Driver{
		eng:     eng,
		scale:   scale,
		now:     time.Now,
		logger:  slog.Default(),
		trigger: eng.Program().StartTrigger,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.trigger.Mode == "" {
		d.trigger.Mode = schedule.StartAutomatic
	}
	d.last = d.now()
	return d, nil
}

// Engine returns the wrapped engine. Callers must not use it concurrently
// with the driver.
func (d *Driver) Engine() *engine.Engine { return d.eng }

// Tick advances the engine by the scaled real time since the previous tick.
// Before the run starts, an automatic program starts on the first tick and
// an offset program once the scaled offset has elapsed; the remainder of
// that tick is applied after the start. Manual programs wait for Start.
func (d *Driver) Tick() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tickLocked()
}

func (d *Driver) tickLocked() error {
	now := d.now()
	delta := time.Duration(float64(now.Sub(d.last)) * d.scale)
	d.last = now
	if delta < 0 {
		delta = 0
	}

	if !d.eng.Started() {
		switch d.trigger.Mode {
		case schedule.StartManual:
			return nil
		case schedule.StartOffset:
			d.waited += delta
			if d.waited < d.trigger.Offset {
				return nil
			}
			delta = d.waited - d.trigger.Offset
		}
		if err := d.startLocked("trigger"); err != nil {
			return err
		}
	}
	if d.eng.Done() || delta == 0 {
		return nil
	}
	return d.eng.Advance(delta)
}

// Start starts the run now, whatever the program's start trigger.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = d.now()
	return d.startLocked("manual")
}

func (d *Driver) startLocked(cause string) error {
	if err := d.eng.Start(); err != nil {
		return err
	}
	d.logger.Info("driver started run",
		"run_id", d.eng.RunID(),
		"cause", cause,
		"scale", d.scale,
	)
	return nil
}

// Signal forwards a step signal.
func (d *Driver) Signal(stepID string) engine.SignalOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eng.Signal(stepID)
}

// Abort forwards an abort of a running step.
func (d *Driver) Abort(stepID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eng.Abort(stepID)
}

// Complete forwards a forced completion of a running step.
func (d *Driver) Complete(stepID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eng.Complete(stepID)
}

// Scale returns the current time scale.
func (d *Driver) Scale() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scale
}

// SetScale changes the time scale, clamped to [MinScale, MaxScale], and
// returns the value applied. Time elapsed since the last tick is first
// applied at the old scale.
func (d *Driver) SetScale(scale float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.tickLocked(); err != nil {
		return d.scale, err
	}
	old := d.scale
	d.scale = min(max(scale, MinScale), MaxScale)
	d.logger.Info("time scale changed", "from", old, "to", d.scale)
	return d.scale, nil
}

// Stop forwards a stop request.
func (d *Driver) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eng.Stop()
}

// Done reports whether the run has finished.
func (d *Driver) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eng.Done()
}

// Snapshot returns the current virtual time and step states.
func (d *Driver) Snapshot() (time.Duration, map[string]schedule.StepState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eng.Now(), d.eng.States()
}

// Run ticks every interval until the run is done or ctx is cancelled.
// It returns nil when the run finished, ctx.Err() on cancellation.
func (d *Driver) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("driver: interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := d.Tick(); err != nil {
			return err
		}
		if d.Done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
