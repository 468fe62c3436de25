package tuya_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"tuya-scale/internal/domain"
	"tuya-scale/internal/infra/tuya"
)

const (
	testDeviceID   = "dev-1"
	testShadowPath = "/v2.0/cloud/thing/dev-1/shadow/properties"
)

var testCreds = domain.Credentials{
	AccessID:     "client-id",
	AccessSecret: "secret",
	DeviceID:     testDeviceID,
	Region:       "EU",
}

type cannedResponse struct {
	status int
	body   any
}

// fakeCloud serves the token and shadow endpoints. Data responses are
// consumed in order and the last one repeats.
type fakeCloud struct {
	t *testing.T

	mu            sync.Mutex
	tokenCalls    int
	dataCalls     int
	tokenResponse cannedResponse
	dataResponses []cannedResponse
	issuedTokens  []string
}

func newFakeCloud(t *testing.T) (*fakeCloud, *httptest.Server) {
	f := &fakeCloud{
		t: t,
		tokenResponse: cannedResponse{status: http.StatusOK, body: map[string]any{
			"success": true,
			"result":  map[string]any{"access_token": "test-token", "expire_time": 7200},
		}},
		dataResponses: []cannedResponse{okProperties()},
	}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return f, server
}

func okProperties() cannedResponse {
	return cannedResponse{status: http.StatusOK, body: map[string]any{
		"success": true,
		"result": map[string]any{
			"properties": []map[string]any{
				{"code": "weight", "value": 75000, "type": "value", "time": 1700000000000},
				{"code": "battery", "value": 1, "type": "enum", "time": 1700000000000},
				{"code": "BR", "value": 500, "type": "value", "time": 1700000000000},
			},
		},
	}}
}

func (f *fakeCloud) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token := r.Header.Get("access_token")
	want := tuya.SignRequest(testCreds.AccessID, testCreds.AccessSecret, r.Method, r.URL.RequestURI(), token, r.Header.Get("t"))
	if r.Header.Get("sign") != want {
		f.t.Errorf("bad signature for %s: got %s, want %s", r.URL.RequestURI(), r.Header.Get("sign"), want)
	}
	if r.Header.Get("client_id") != testCreds.AccessID || r.Header.Get("sign_method") != "HMAC-SHA256" {
		f.t.Errorf("missing auth headers: %v", r.Header)
	}

	var resp cannedResponse
	switch r.URL.Path {
	case "/v1.0/token":
		if r.URL.Query().Get("grant_type") != "1" {
			f.t.Errorf("grant_type: got %q", r.URL.Query().Get("grant_type"))
		}
		if token != "" {
			f.t.Errorf("token request carried access_token %q", token)
		}
		f.tokenCalls++
		resp = f.tokenResponse
	case testShadowPath:
		f.issuedTokens = append(f.issuedTokens, token)
		idx := f.dataCalls
		if idx >= len(f.dataResponses) {
			idx = len(f.dataResponses) - 1
		}
		f.dataCalls++
		resp = f.dataResponses[idx]
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	if s, ok := resp.body.(string); ok {
		io.WriteString(w, s)
		return
	}
	json.NewEncoder(w).Encode(resp.body)
}

func (f *fakeCloud) counts() (tokenCalls, dataCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.dataCalls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
