package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tuya-scale/internal/domain"
	"tuya-scale/internal/infra"
)

const defaultEntityPrefix = "tuya_scale"

var errUnauthorized = errors.New("unauthorized: check your Home Assistant token")

// Client pushes sensor states into Home Assistant through the REST API.
type Client struct {
	baseURL      string
	token        string
	entityPrefix string
	httpClient   *http.Client
	retry        infra.RetryConfig
	logger       *slog.Logger
}

func NewClient(baseURL, token, entityPrefix string, logger *slog.Logger) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if entityPrefix == "" {
		entityPrefix = defaultEntityPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	retry := infra.DefaultRetryConfig()
	retry.Retryable = func(err error) bool { return !errors.Is(err, errUnauthorized) }

	return &Client{
		baseURL:      baseURL,
		token:        token,
		entityPrefix: entityPrefix,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		retry:        retry,
		logger:       logger,
	}
}

// State is the body of POST /api/states/<entity_id>.
type State struct {
	State      any            `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

func (c *Client) Name() string {
	return "homeassistant"
}

// Publish writes one state per sensor present in the snapshot. Failures on
// individual entities are collected and returned together.
func (c *Client) Publish(ctx context.Context, deviceID string, snapshot domain.DeviceSnapshot) error {
	var errs []error
	for _, sensor := range domain.AvailableSensors(snapshot) {
		rec := snapshot[sensor.Key]
		entityID := c.EntityID(sensor)
		if err := c.postState(ctx, entityID, BuildState(deviceID, sensor, rec)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entityID, err))
		}
	}
	return errors.Join(errs...)
}

// EntityID returns the Home Assistant entity id for a sensor.
func (c *Client) EntityID(sensor domain.Sensor) string {
	entityDomain := "sensor"
	if sensor.Binary {
		entityDomain = "binary_sensor"
	}
	return fmt.Sprintf("%s.%s_%s", entityDomain, c.entityPrefix, strings.ToLower(sensor.Key))
}

// BuildState renders a record the way Home Assistant expects it.
func BuildState(deviceID string, sensor domain.Sensor, rec domain.PropertyRecord) State {
	attrs := map[string]any{
		"friendly_name": sensor.FriendlyName(),
		"unique_id":     sensor.UniqueID(deviceID),
		"icon":          sensor.Icon,
		"last_update":   rec.LastUpdate,
		"timestamp":     rec.Timestamp,
		"raw_value":     rec.Value,
	}
	if sensor.Unit != "" {
		attrs["unit_of_measurement"] = sensor.Unit
	}
	if sensor.DeviceClass != "" {
		attrs["device_class"] = sensor.DeviceClass
	}
	if sensor.StateClass != domain.StateClassNone {
		attrs["state_class"] = string(sensor.StateClass)
	}

	value := domain.SensorValue(sensor, rec)
	var state any = value
	switch {
	case value == nil:
		state = "unknown"
	case sensor.Binary:
		state = "off"
		if on, ok := domain.NumericValue(value); ok && on != 0 {
			state = "on"
		}
	}

	return State{State: state, Attributes: attrs}
}

func (c *Client) postState(ctx context.Context, entityID string, state State) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	_, err = c.doRequest(ctx, http.MethodPost, "/api/states/"+entityID, body)
	if err != nil {
		return fmt.Errorf("posting state: %w", err)
	}

	c.logger.Debug("home assistant state updated", "entity_id", entityID)
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return errUnauthorized
		}

		if infra.IsRetryableHTTPStatus(resp.StatusCode) {
			return fmt.Errorf("home assistant API error %d (retryable): %s", resp.StatusCode, string(respBody))
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("home assistant API error %d: %s", resp.StatusCode, string(respBody))
		}

		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return respBody, nil
}
