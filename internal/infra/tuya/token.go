package tuya

import (
	"context"
	"log/slog"
	"sync"
)

// TokenSource performs the network call that yields a new access token.
type TokenSource interface {
	RequestToken(ctx context.Context) (string, error)
}

// TokenManager owns the bearer token of one client. Validity is not tracked
// by time; the token is held until Invalidate is called.
type TokenManager struct {
	source TokenSource
	logger *slog.Logger

	mu    sync.Mutex
	token string
}

func NewTokenManager(source TokenSource, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{source: source, logger: logger}
}

// EnsureToken returns the held token, requesting one only when none is held.
func (m *TokenManager) EnsureToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		return m.token, nil
	}

	token, err := m.source.RequestToken(ctx)
	if err != nil {
		tokenRequests.WithLabelValues(resultLabel(err)).Inc()
		return "", err
	}
	tokenRequests.WithLabelValues(resultSuccess).Inc()

	m.logger.Debug("acquired access token", "token_len", len(token))
	m.token = token
	return token, nil
}

// Invalidate drops the held token. Calling it without a token is a no-op.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		m.logger.Debug("access token invalidated")
	}
	m.token = ""
}

// Valid reports whether a token is currently held.
func (m *TokenManager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != ""
}
