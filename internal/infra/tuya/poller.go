package tuya

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tuya-scale/internal/domain"
	"tuya-scale/internal/infra"
)

// maxReauth bounds how often one attempt may re-authenticate after the
// data endpoint rejects its token.
const maxReauth = 1

// Tokens provides and invalidates the bearer token used by the poller.
type Tokens interface {
	EnsureToken(ctx context.Context) (string, error)
	Invalidate()
}

// PropertyFetcher issues the signed device data request.
type PropertyFetcher interface {
	ShadowProperties(ctx context.Context, token string) ([]domain.RawProperty, error)
}

// PollerConfig holds the retry policy of one fetch cycle.
type PollerConfig struct {
	MaxAttempts int           // total attempts per cycle (default: 3)
	RetryDelay  time.Duration // fixed wait between attempts (default: 2s)
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		MaxAttempts: 3,
		RetryDelay:  2 * time.Second,
	}
}

// Poller runs fetch cycles: authenticate, fetch, classify, retry, normalize.
type Poller struct {
	cfg        PollerConfig
	tokens     Tokens
	fetcher    PropertyFetcher
	normalizer *Normalizer
	logger     *slog.Logger
}

func NewPoller(cfg PollerConfig, tokens Tokens, fetcher PropertyFetcher, normalizer *Normalizer, logger *slog.Logger) *Poller {
	def := DefaultPollerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:        cfg,
		tokens:     tokens,
		fetcher:    fetcher,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Fetch runs one fetch cycle and returns the new snapshot. Connection and
// API failures are retried up to MaxAttempts in total. Authentication
// failures end the cycle at once.
func (p *Poller) Fetch(ctx context.Context) (domain.DeviceSnapshot, error) {
	var snapshot domain.DeviceSnapshot

	retry := infra.FixedRetryConfig(p.cfg.MaxAttempts, p.cfg.RetryDelay)
	retry.Retryable = IsRetryable
	retry.OnRetry = func(attempt int, err error) {
		pollRetries.Inc()
		p.logger.Warn("update failed",
			"attempt", attempt,
			"max_attempts", p.cfg.MaxAttempts,
			"error", err,
		)
	}

	err := infra.WithRetry(ctx, retry, func() error {
		props, err := p.attempt(ctx)
		if err != nil {
			return err
		}
		snapshot = p.normalizer.Normalize(props)
		return nil
	})

	pollCycles.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("fetch cycle: %w", err)
	}

	p.logger.Debug("fetch cycle complete", "properties", len(snapshot))
	return snapshot, nil
}

func (p *Poller) attempt(ctx context.Context) ([]domain.RawProperty, error) {
	for reauth := 0; ; reauth++ {
		token, err := p.tokens.EnsureToken(ctx)
		if err != nil {
			return nil, err
		}

		props, err := p.fetcher.ShadowProperties(ctx, token)
		fetchAttempts.WithLabelValues(resultLabel(err)).Inc()
		if err == nil {
			return props, nil
		}

		switch {
		case errors.Is(err, ErrTokenExpired):
			if reauth >= maxReauth {
				p.logger.Warn("token rejected again after re-authentication", "error", err)
				return nil, err
			}
			p.logger.Info("token expired, refreshing")
			p.tokens.Invalidate()
			continue
		case errors.Is(err, ErrConnection):
			p.tokens.Invalidate()
		default:
			p.logUnclassified(err)
		}
		return nil, err
	}
}

// logUnclassified reports responses that could not be parsed at all; they
// are retried like API errors.
func (p *Poller) logUnclassified(err error) {
	var terr *Error
	if errors.As(err, &terr) && terr.Err != nil {
		p.logger.Error("unexpected device data response",
			"op", terr.Op,
			"status", terr.StatusCode,
			"body", terr.Msg,
			"error", terr.Err,
		)
	}
}
