package tuya_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"tuya-scale/internal/domain"
	"tuya-scale/internal/infra/tuya"
)

func TestClient_RequestToken(t *testing.T) {
	_, server := newFakeCloud(t)
	client := tuya.NewClientWithURL(testCreds, server.URL, tuya.WithLogger(discardLogger()))

	token, err := client.RequestToken(context.Background())
	if err != nil {
		t.Fatalf("RequestToken error: %v", err)
	}
	if token != "test-token" {
		t.Errorf("token: got %s, want test-token", token)
	}
}

func TestClient_RequestTokenRejected(t *testing.T) {
	tests := []struct {
		name     string
		response cannedResponse
		wantKind error
	}{
		{
			name:     "non-200 status",
			response: cannedResponse{status: http.StatusForbidden, body: `{"success":false}`},
			wantKind: tuya.ErrAuth,
		},
		{
			name:     "success false",
			response: cannedResponse{status: http.StatusOK, body: map[string]any{"success": false, "code": 1004, "msg": "sign invalid"}},
			wantKind: tuya.ErrAuth,
		},
		{
			name:     "unparseable body",
			response: cannedResponse{status: http.StatusOK, body: "<html>"},
			wantKind: tuya.ErrAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloud, server := newFakeCloud(t)
			cloud.tokenResponse = tt.response
			client := tuya.NewClientWithURL(testCreds, server.URL, tuya.WithLogger(discardLogger()))

			_, err := client.RequestToken(context.Background())
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("error: got %v, want kind %v", err, tt.wantKind)
			}
		})
	}
}

func TestClient_ShadowProperties(t *testing.T) {
	_, server := newFakeCloud(t)
	client := tuya.NewClientWithURL(testCreds, server.URL, tuya.WithLogger(discardLogger()))

	props, err := client.ShadowProperties(context.Background(), "test-token")
	if err != nil {
		t.Fatalf("ShadowProperties error: %v", err)
	}
	if len(props) != 3 {
		t.Fatalf("properties: got %d, want 3", len(props))
	}
	if props[0].Code != "weight" || props[0].Value != 75000.0 || props[0].Time != 1700000000000 {
		t.Errorf("first property: got %+v", props[0])
	}
}

func TestClient_ShadowPropertiesClassification(t *testing.T) {
	tests := []struct {
		name     string
		response cannedResponse
		wantKind error
	}{
		{
			name:     "401 is token expiry",
			response: cannedResponse{status: http.StatusUnauthorized, body: "{}"},
			wantKind: tuya.ErrTokenExpired,
		},
		{
			name:     "token message is token expiry",
			response: cannedResponse{status: http.StatusOK, body: map[string]any{"success": false, "code": 1010, "msg": "token invalid"}},
			wantKind: tuya.ErrTokenExpired,
		},
		{
			name:     "other failure is api error",
			response: cannedResponse{status: http.StatusOK, body: map[string]any{"success": false, "code": 2001, "msg": "device is offline"}},
			wantKind: tuya.ErrAPI,
		},
		{
			name:     "server error is api error",
			response: cannedResponse{status: http.StatusBadGateway, body: "bad gateway"},
			wantKind: tuya.ErrAPI,
		},
		{
			name:     "garbage is api error",
			response: cannedResponse{status: http.StatusOK, body: "not json"},
			wantKind: tuya.ErrAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloud, server := newFakeCloud(t)
			cloud.dataResponses = []cannedResponse{tt.response}
			client := tuya.NewClientWithURL(testCreds, server.URL, tuya.WithLogger(discardLogger()))

			_, err := client.ShadowProperties(context.Background(), "test-token")
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("error: got %v, want kind %v", err, tt.wantKind)
			}
		})
	}
}

func TestClient_ConnectionFailure(t *testing.T) {
	_, server := newFakeCloud(t)
	url := server.URL
	server.Close()

	client := tuya.NewClientWithURL(testCreds, url, tuya.WithLogger(discardLogger()))

	_, err := client.ShadowProperties(context.Background(), "test-token")
	if !errors.Is(err, tuya.ErrConnection) {
		t.Fatalf("error: got %v, want ErrConnection", err)
	}
	if !tuya.IsRetryable(err) {
		t.Error("connection failure should be retryable")
	}

	_, err = client.RequestToken(context.Background())
	if !errors.Is(err, tuya.ErrConnection) {
		t.Errorf("token error: got %v, want ErrConnection", err)
	}
}

func TestNewClient_Regions(t *testing.T) {
	for _, region := range []string{"EU", "us", " cn ", "In"} {
		if _, err := tuya.NewClient(credsWithRegion(region)); err != nil {
			t.Errorf("region %q: unexpected error %v", region, err)
		}
	}

	if _, err := tuya.NewClient(credsWithRegion("MARS")); err == nil {
		t.Error("expected error for unknown region")
	}

	url, err := tuya.RegionURL("eu")
	if err != nil || url != "https://openapi.tuyaeu.com" {
		t.Errorf("RegionURL(eu): got %q, %v", url, err)
	}
}

func credsWithRegion(region string) domain.Credentials {
	creds := testCreds
	creds.Region = region
	return creds
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: &tuya.Error{Kind: tuya.ErrAuth, Op: "token request"}, want: false},
		{err: &tuya.Error{Kind: tuya.ErrTokenExpired, Op: "device data request"}, want: false},
		{err: &tuya.Error{Kind: tuya.ErrAPI, Op: "device data request"}, want: true},
		{err: &tuya.Error{Kind: tuya.ErrConnection, Op: "device data request"}, want: true},
		{err: &tuya.Error{Kind: tuya.ErrConnection, Op: "device data request", Err: context.Canceled}, want: false},
		{err: errors.New("unclassified"), want: true},
		{err: nil, want: false},
	}

	for _, tt := range tests {
		if got := tuya.IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v): got %t, want %t", tt.err, got, tt.want)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := &tuya.Error{Kind: tuya.ErrAPI, Op: "device data request", StatusCode: 502, Msg: "bad gateway"}
	want := "device data request: api error (http 502): bad gateway"
	if err.Error() != want {
		t.Errorf("message: got %q, want %q", err.Error(), want)
	}
}
