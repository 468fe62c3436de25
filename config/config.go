package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tuya-scale/internal/domain"
	"tuya-scale/internal/infra/tuya"
)

const (
	MinScanInterval = 1
	MaxScanInterval = 60
)

type Config struct {
	Tuya          TuyaConfig          `yaml:"tuya"`
	HTTP          HTTPConfig          `yaml:"http"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	Log           LogConfig           `yaml:"log"`
}

type TuyaConfig struct {
	AccessID       string `yaml:"access_id"`
	AccessKey      string `yaml:"access_key"`
	DeviceID       string `yaml:"device_id"`
	Region         string `yaml:"region"`
	ScanInterval   int    `yaml:"scan_interval"`
	RequestTimeout string `yaml:"request_timeout"`
	RetryDelay     string `yaml:"retry_delay"`
	BaseURL        string `yaml:"base_url"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	Retain      *bool  `yaml:"retain"`
}

type HomeAssistantConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url"`
	Token        string `yaml:"token"`
	EntityPrefix string `yaml:"entity_prefix"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Tuya.Region == "" {
		c.Tuya.Region = "EU"
	}
	if c.Tuya.ScanInterval == 0 {
		c.Tuya.ScanInterval = 1
	}
	if c.Tuya.RequestTimeout == "" {
		c.Tuya.RequestTimeout = "10s"
	}
	if c.Tuya.RetryDelay == "" {
		c.Tuya.RetryDelay = "2s"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "tuya_scale"
	}
	if c.MQTT.Retain == nil {
		retain := true
		c.MQTT.Retain = &retain
	}
	if c.HomeAssistant.EntityPrefix == "" {
		c.HomeAssistant.EntityPrefix = "tuya_scale"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Tuya.AccessID) == "" {
		errs = append(errs, errors.New("tuya.access_id is required"))
	}
	if strings.TrimSpace(c.Tuya.AccessKey) == "" {
		errs = append(errs, errors.New("tuya.access_key is required"))
	}
	if strings.TrimSpace(c.Tuya.DeviceID) == "" {
		errs = append(errs, errors.New("tuya.device_id is required"))
	}
	if c.Tuya.BaseURL == "" {
		if _, err := tuya.RegionURL(c.Tuya.Region); err != nil {
			errs = append(errs, fmt.Errorf("tuya.region: %w (valid: %s)", err, strings.Join(tuya.RegionCodes(), ", ")))
		}
	}
	if c.Tuya.ScanInterval < MinScanInterval || c.Tuya.ScanInterval > MaxScanInterval {
		errs = append(errs, fmt.Errorf("tuya.scan_interval must be between %d and %d minutes, got %d", MinScanInterval, MaxScanInterval, c.Tuya.ScanInterval))
	}
	if d, err := time.ParseDuration(c.Tuya.RequestTimeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("tuya.request_timeout: invalid duration %q", c.Tuya.RequestTimeout))
	}
	if d, err := time.ParseDuration(c.Tuya.RetryDelay); err != nil || d < 0 {
		errs = append(errs, fmt.Errorf("tuya.retry_delay: invalid duration %q", c.Tuya.RetryDelay))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.HomeAssistant.Enabled && (c.HomeAssistant.BaseURL == "" || c.HomeAssistant.Token == "") {
		errs = append(errs, errors.New("homeassistant.base_url and homeassistant.token are required when homeassistant is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Credentials() domain.Credentials {
	return domain.Credentials{
		AccessID:     strings.TrimSpace(c.Tuya.AccessID),
		AccessSecret: strings.TrimSpace(c.Tuya.AccessKey),
		DeviceID:     strings.TrimSpace(c.Tuya.DeviceID),
		Region:       c.Tuya.Region,
	}
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Tuya.ScanInterval) * time.Minute
}

// RequestTimeout and RetryDelay are only called after Validate succeeded.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Tuya.RequestTimeout)
	return d
}

func (c *Config) RetryDelay() time.Duration {
	d, _ := time.ParseDuration(c.Tuya.RetryDelay)
	return d
}
