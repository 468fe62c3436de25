package tuya_test

import (
	"context"
	"errors"
	"testing"

	"tuya-scale/internal/infra/tuya"
)

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) RequestToken(_ context.Context) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "tok", nil
}

func TestTokenManager_EnsureTokenCallsOnce(t *testing.T) {
	source := &countingSource{}
	tm := tuya.NewTokenManager(source, discardLogger())

	for i := 0; i < 3; i++ {
		token, err := tm.EnsureToken(context.Background())
		if err != nil {
			t.Fatalf("EnsureToken error: %v", err)
		}
		if token != "tok" {
			t.Errorf("token: got %s, want tok", token)
		}
	}

	if source.calls != 1 {
		t.Errorf("network calls: got %d, want 1", source.calls)
	}
	if !tm.Valid() {
		t.Error("token should be held")
	}
}

func TestTokenManager_InvalidateForcesNewRequest(t *testing.T) {
	source := &countingSource{}
	tm := tuya.NewTokenManager(source, discardLogger())

	tm.Invalidate() // no token yet, no-op
	if _, err := tm.EnsureToken(context.Background()); err != nil {
		t.Fatalf("EnsureToken error: %v", err)
	}

	tm.Invalidate()
	tm.Invalidate()
	if tm.Valid() {
		t.Error("token should be cleared")
	}

	if _, err := tm.EnsureToken(context.Background()); err != nil {
		t.Fatalf("EnsureToken error: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("network calls: got %d, want 2", source.calls)
	}
}

func TestTokenManager_FailureKeepsNoToken(t *testing.T) {
	source := &countingSource{err: &tuya.Error{Kind: tuya.ErrAuth, Op: "token request", Msg: "sign invalid"}}
	tm := tuya.NewTokenManager(source, discardLogger())

	_, err := tm.EnsureToken(context.Background())
	if !errors.Is(err, tuya.ErrAuth) {
		t.Fatalf("error: got %v, want ErrAuth", err)
	}
	if tm.Valid() {
		t.Error("failed request must not store a token")
	}

	_, _ = tm.EnsureToken(context.Background())
	if source.calls != 2 {
		t.Errorf("network calls: got %d, want 2", source.calls)
	}
}
