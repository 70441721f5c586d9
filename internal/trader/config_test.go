package trader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestDefaultConfigIsValid() {
	config := DefaultConfig()

	s.Require().NoError(config.Validate())
	s.Equal(3.0, config.ForceExitPollIntervalSec)
	s.Equal(600.0, config.ForceExitMaxDurationSec)
	s.Equal(30, config.ForceExitStartBeforeCloseMin)
	s.Equal(10, config.ForceExitDeadlineBeforeCloseMin)
	s.Equal(15, config.MarketCloseHour)
	s.Equal(0, config.MarketCloseMinute)
	s.True(config.ForceExitUseMarketClose)
	s.True(config.ReconcileOnSuccess)
}

func (s *ConfigTestSuite) TestParseConfigOverridesOnlyNamedKeys() {
	content := `
force_exit_poll_interval_sec: 1.5
market_close_hour: 11
market_close_minute: 30
reconcile_on_success: false
`

	config, err := ParseConfig([]byte(content))
	s.Require().NoError(err)

	s.Equal(1.5, config.ForceExitPollIntervalSec)
	s.Equal(11, config.MarketCloseHour)
	s.Equal(30, config.MarketCloseMinute)
	s.False(config.ReconcileOnSuccess)
	// Untouched keys keep their defaults.
	s.Equal(600.0, config.ForceExitMaxDurationSec)
	s.True(config.ForceExitUseMarketClose)
}

func (s *ConfigTestSuite) TestParseConfigRejectsInvalidYaml() {
	_, err := ParseConfig([]byte("force_exit_poll_interval_sec: [not a number"))
	s.Error(err)
}

func (s *ConfigTestSuite) TestValidateRejectsOutOfRangeClock() {
	config := DefaultConfig()
	config.MarketCloseHour = 25

	s.Error(config.Validate())

	config = DefaultConfig()
	config.MarketCloseMinute = 75

	s.Error(config.Validate())
}

func (s *ConfigTestSuite) TestValidateRejectsDeadlineBeforeStart() {
	config := DefaultConfig()
	config.ForceExitStartBeforeCloseMin = 10
	config.ForceExitDeadlineBeforeCloseMin = 30

	s.Error(config.Validate())
}

func (s *ConfigTestSuite) TestValidateRejectsNonPositiveIntervals() {
	config := DefaultConfig()
	config.ForceExitPollIntervalSec = 0

	s.Error(config.Validate())

	config = DefaultConfig()
	config.ForceExitMaxDurationSec = -1

	s.Error(config.Validate())
}

func (s *ConfigTestSuite) TestLoadConfigFromFile() {
	path := filepath.Join(s.T().TempDir(), "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("force_exit_max_duration_sec: 120\n"), 0o644))

	config, err := LoadConfig(path)
	s.Require().NoError(err)
	s.Equal(120.0, config.ForceExitMaxDurationSec)
}

func (s *ConfigTestSuite) TestLoadConfigMissingFile() {
	_, err := LoadConfig(filepath.Join(s.T().TempDir(), "missing.yaml"))
	s.Error(err)
}

func (s *ConfigTestSuite) TestConfigSchemaListsAllKeys() {
	schema, err := ConfigSchema()
	s.Require().NoError(err)

	s.Contains(schema, "force_exit_poll_interval_sec")
	s.Contains(schema, "force_exit_max_duration_sec")
	s.Contains(schema, "market_close_hour")
	s.Contains(schema, "reconcile_on_success")
}
