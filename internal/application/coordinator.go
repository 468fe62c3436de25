package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tuya-scale/internal/domain"
)

const publishTimeout = 15 * time.Second

// ErrRefreshInProgress is returned when a refresh is requested while a
// fetch cycle is still running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Status describes the outcome of the most recent fetch cycles.
type Status struct {
	Available           bool      `json:"available"`
	AuthFailed          bool      `json:"auth_failed"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

type CoordinatorConfig struct {
	DeviceID string
	Interval time.Duration
}

// Coordinator holds the last good snapshot of one device and runs fetch
// cycles one at a time.
type Coordinator struct {
	deviceID   string
	interval   time.Duration
	fetcher    SnapshotFetcher
	notifier   Notifier
	publishers []SnapshotPublisher
	logger     *slog.Logger
	now        func() time.Time

	cycle sync.Mutex

	mu       sync.RWMutex
	snapshot domain.DeviceSnapshot
	status   Status
	alerted  bool
}

func NewCoordinator(
	cfg CoordinatorConfig,
	fetcher SnapshotFetcher,
	notifier Notifier,
	logger *slog.Logger,
	publishers ...SnapshotPublisher,
) *Coordinator {
	if notifier == nil {
		notifier = &NoopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		deviceID:   cfg.DeviceID,
		interval:   cfg.Interval,
		fetcher:    fetcher,
		notifier:   notifier,
		publishers: publishers,
		logger:     logger.With("device_id", cfg.DeviceID),
		now:        time.Now,
	}
}

func (c *Coordinator) DeviceID() string {
	return c.deviceID
}

func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Refresh runs one fetch cycle. On success the held snapshot is replaced;
// on failure it is left untouched and the error is returned.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if !c.cycle.TryLock() {
		return ErrRefreshInProgress
	}
	defer c.cycle.Unlock()

	started := c.now()
	snapshot, err := c.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("refresh abandoned", "error", err)
			return err
		}
		c.recordFailure(ctx, started, err)
		return err
	}

	c.mu.Lock()
	wasAvailable := c.status.Available
	recovered := c.alerted
	c.snapshot = snapshot
	c.status = Status{
		Available:   true,
		LastAttempt: started,
		LastSuccess: c.now(),
	}
	c.alerted = false
	c.mu.Unlock()

	c.logger.Info("snapshot updated", "properties", len(snapshot), "duration", c.now().Sub(started))

	if recovered {
		c.notify(ctx, fmt.Sprintf("Tuya Scale %s: data available again", c.deviceID))
	}
	c.publish(ctx, snapshot, !wasAvailable)
	return nil
}

// CurrentSnapshot returns a copy of the held snapshot without any I/O.
// ok is false until the first successful cycle.
func (c *Coordinator) CurrentSnapshot() (snapshot domain.DeviceSnapshot, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, false
	}
	return c.snapshot.Clone(), true
}

func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// StartPeriodicRefresh refreshes on every interval tick until ctx is done.
func (c *Coordinator) StartPeriodicRefresh(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := c.Refresh(ctx)
				switch {
				case err == nil:
				case errors.Is(err, ErrRefreshInProgress):
					c.logger.Debug("skipping tick, refresh in flight")
				case ctx.Err() != nil:
					return
				default:
					c.logger.Error("periodic refresh failed", "error", err)
				}
			}
		}
	}()
}

func (c *Coordinator) recordFailure(ctx context.Context, started time.Time, err error) {
	authFailed := errors.Is(err, domain.ErrAuth)

	c.mu.Lock()
	wasAvailable := c.status.Available
	wasAuthFailed := c.status.AuthFailed
	c.status.Available = false
	c.status.AuthFailed = authFailed
	c.status.LastAttempt = started
	c.status.LastError = err.Error()
	c.status.ConsecutiveFailures++
	alert := (authFailed && !wasAuthFailed) || (!authFailed && wasAvailable && !c.alerted)
	if alert {
		c.alerted = true
	}
	c.mu.Unlock()

	if authFailed {
		c.logger.Error("credentials rejected, reconfiguration required", "error", err)
	} else {
		c.logger.Warn("refresh failed, keeping previous snapshot", "error", err)
	}

	if alert {
		msg := fmt.Sprintf("Tuya Scale %s: data unavailable: %v", c.deviceID, err)
		if authFailed {
			msg = fmt.Sprintf("Tuya Scale %s: authentication failed, check access id and key", c.deviceID)
		}
		c.notify(ctx, msg)
	}

	if wasAvailable {
		c.publishAvailability(ctx, false)
	}
}

func (c *Coordinator) publish(ctx context.Context, snapshot domain.DeviceSnapshot, becameAvailable bool) {
	if becameAvailable {
		c.publishAvailability(ctx, true)
	}
	for _, p := range c.publishers {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		if err := p.Publish(pctx, c.deviceID, snapshot); err != nil {
			c.logger.Warn("publishing snapshot", "publisher", p.Name(), "error", err)
		}
		cancel()
	}
}

func (c *Coordinator) publishAvailability(ctx context.Context, available bool) {
	for _, p := range c.publishers {
		ap, ok := p.(AvailabilityPublisher)
		if !ok {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		if err := ap.PublishAvailability(pctx, c.deviceID, available); err != nil {
			c.logger.Warn("publishing availability", "publisher", p.Name(), "error", err)
		}
		cancel()
	}
}

func (c *Coordinator) notify(ctx context.Context, message string) {
	if err := c.notifier.Notify(ctx, message); err != nil {
		c.logger.Error("notifying", "error", err)
	}
}
