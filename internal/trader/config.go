package trader

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/maeda-takumi/trade-kabu/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the immutable timing and reconciliation tunables the trader is
// constructed with. Intervals are seconds; the market-close clock is local
// wall time.
type Config struct {
	// ForceExitPollIntervalSec throttles status polls while force exiting.
	ForceExitPollIntervalSec float64 `yaml:"force_exit_poll_interval_sec" json:"force_exit_poll_interval_sec" jsonschema:"default=3" validate:"gt=0"`
	// ForceExitMaxDurationSec is the watchdog: a forced exit running longer
	// than this is abandoned as fatal.
	ForceExitMaxDurationSec float64 `yaml:"force_exit_max_duration_sec" json:"force_exit_max_duration_sec" jsonschema:"default=600" validate:"gt=0"`
	// ForceExitStartBeforeCloseMin is how many minutes before market close
	// the forced exit window opens.
	ForceExitStartBeforeCloseMin int `yaml:"force_exit_start_before_close_min" json:"force_exit_start_before_close_min" jsonschema:"default=30" validate:"gte=0"`
	// ForceExitDeadlineBeforeCloseMin is how many minutes before market close
	// a forced exit may still be started. Missing it is fatal.
	ForceExitDeadlineBeforeCloseMin int  `yaml:"force_exit_deadline_before_close_min" json:"force_exit_deadline_before_close_min" jsonschema:"default=10" validate:"gte=0"`
	MarketCloseHour                 int  `yaml:"market_close_hour" json:"market_close_hour" jsonschema:"default=15" validate:"gte=0,lte=23"`
	MarketCloseMinute               int  `yaml:"market_close_minute" json:"market_close_minute" jsonschema:"default=0" validate:"gte=0,lte=59"`
	// ForceExitUseMarketClose enables the market-close preemption rule.
	ForceExitUseMarketClose bool `yaml:"force_exit_use_market_close" json:"force_exit_use_market_close" jsonschema:"default=true"`
	// ReconcileOnSuccess gates the confirm-before-trust poll on fill signals.
	ReconcileOnSuccess bool `yaml:"reconcile_on_success" json:"reconcile_on_success" jsonschema:"default=true"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ForceExitPollIntervalSec:        3.0,
		ForceExitMaxDurationSec:         600.0,
		ForceExitStartBeforeCloseMin:    30,
		ForceExitDeadlineBeforeCloseMin: 10,
		MarketCloseHour:                 15,
		MarketCloseMinute:               0,
		ForceExitUseMarketClose:         true,
		ReconcileOnSuccess:              true,
	}
}

// ParseConfig unmarshals yaml content on top of the defaults and validates
// the result, so a partial file only overrides the keys it names.
func ParseConfig(content []byte) (Config, error) {
	config := DefaultConfig()

	if err := yaml.Unmarshal(content, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// LoadConfig reads and parses the yaml config file at path.
func LoadConfig(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to read config file", err)
	}

	return ParseConfig(content)
}

// Validate validates the Config struct.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if c.ForceExitDeadlineBeforeCloseMin > c.ForceExitStartBeforeCloseMin {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"force exit deadline (%d min before close) must not precede its start (%d min before close)",
			c.ForceExitDeadlineBeforeCloseMin, c.ForceExitStartBeforeCloseMin)
	}

	return nil
}

// ConfigSchema returns the JSON schema of Config for the console's settings form.
func ConfigSchema() (string, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}

	schema := reflector.Reflect(&Config{})

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to marshal config schema", err)
	}

	return string(schemaJSON), nil
}

func (c *Config) forceExitPollInterval() time.Duration {
	return time.Duration(c.ForceExitPollIntervalSec * float64(time.Second))
}

func (c *Config) forceExitMaxDuration() time.Duration {
	return time.Duration(c.ForceExitMaxDurationSec * float64(time.Second))
}
