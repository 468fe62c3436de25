package tuya

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"tuya-scale/internal/domain"
)

const (
	tokenPath          = "/v1.0/token?grant_type=1"
	shadowPathTemplate = "/v2.0/cloud/thing/%s/shadow/properties"

	defaultRequestTimeout = 10 * time.Second
	maxBodyExcerpt        = 256
)

// Regions maps region codes to OpenAPI base URLs.
var Regions = map[string]string{
	"EU": "https://openapi.tuyaeu.com",
	"US": "https://openapi.tuyaus.com",
	"CN": "https://openapi.tuyacn.com",
	"IN": "https://openapi.tuyain.com",
}

// RegionURL resolves a region code case-insensitively.
func RegionURL(region string) (string, error) {
	baseURL, ok := Regions[strings.ToUpper(strings.TrimSpace(region))]
	if !ok {
		return "", fmt.Errorf("unknown region %q (want one of %s)", region, strings.Join(RegionCodes(), ", "))
	}
	return baseURL, nil
}

func RegionCodes() []string {
	codes := make([]string, 0, len(Regions))
	for code := range Regions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Client issues signed requests against the token and shadow endpoints.
// It holds no token state; see TokenManager.
type Client struct {
	accessID   string
	secret     string
	deviceID   string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestTimeout bounds every individual call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(creds domain.Credentials, opts ...Option) (*Client, error) {
	baseURL, err := RegionURL(creds.Region)
	if err != nil {
		return nil, err
	}
	return NewClientWithURL(creds, baseURL, opts...), nil
}

func NewClientWithURL(creds domain.Credentials, baseURL string, opts ...Option) *Client {
	c := &Client{
		accessID:   creds.AccessID,
		secret:     creds.AccessSecret,
		deviceID:   creds.DeviceID,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		timeout:    defaultRequestTimeout,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) DeviceID() string {
	return c.deviceID
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

// RequestToken acquires a fresh access token. Rejections are reported as
// ErrAuth; transport failures as ErrConnection.
func (c *Client) RequestToken(ctx context.Context) (string, error) {
	const op = "token request"

	status, body, err := c.get(ctx, tokenPath, "")
	if err != nil {
		return "", &Error{Kind: ErrConnection, Op: op, Err: err}
	}

	if status != http.StatusOK {
		return "", &Error{Kind: ErrAuth, Op: op, StatusCode: status, Msg: excerpt(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", &Error{Kind: ErrAPI, Op: op, StatusCode: status, Msg: excerpt(body), Err: fmt.Errorf("parsing token response: %w", err)}
	}

	if !env.Success {
		return "", &Error{Kind: ErrAuth, Op: op, Code: env.Code, Msg: env.Msg}
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil || result.AccessToken == "" {
		return "", &Error{Kind: ErrAPI, Op: op, Msg: "response carried no access token", Err: err}
	}

	return result.AccessToken, nil
}

// ShadowProperties fetches the reported properties of the configured device.
func (c *Client) ShadowProperties(ctx context.Context, token string) ([]domain.RawProperty, error) {
	const op = "device data request"

	path := fmt.Sprintf(shadowPathTemplate, c.deviceID)
	status, body, err := c.get(ctx, path, token)
	if err != nil {
		return nil, &Error{Kind: ErrConnection, Op: op, Err: err}
	}

	switch {
	case status == http.StatusUnauthorized:
		return nil, &Error{Kind: ErrTokenExpired, Op: op, StatusCode: status}
	case status != http.StatusOK:
		return nil, &Error{Kind: ErrAPI, Op: op, StatusCode: status, Msg: excerpt(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Kind: ErrAPI, Op: op, StatusCode: status, Msg: excerpt(body), Err: fmt.Errorf("parsing device data: %w", err)}
	}

	if !env.Success {
		if isTokenMessage(env.Msg) {
			return nil, &Error{Kind: ErrTokenExpired, Op: op, Code: env.Code, Msg: env.Msg}
		}
		return nil, &Error{Kind: ErrAPI, Op: op, Code: env.Code, Msg: env.Msg}
	}

	var result struct {
		Properties []domain.RawProperty `json:"properties"`
	}
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return nil, &Error{Kind: ErrAPI, Op: op, Msg: excerpt(env.Result), Err: fmt.Errorf("parsing properties: %w", err)}
		}
	}

	return result.Properties, nil
}

func (c *Client) get(ctx context.Context, path, token string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	sign := SignRequest(c.accessID, c.secret, http.MethodGet, path, token, timestamp)

	req.Header.Set("client_id", c.accessID)
	if token != "" {
		req.Header.Set("access_token", token)
	}
	req.Header.Set("sign", sign)
	req.Header.Set("t", timestamp)
	req.Header.Set("sign_method", signMethod)

	c.logger.Debug("tuya request", "path", path, "with_token", token != "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("tuya response", "path", path, "status", resp.StatusCode, "bytes", len(body))

	return resp.StatusCode, body, nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyExcerpt {
		return s[:maxBodyExcerpt] + "..."
	}
	return s
}
