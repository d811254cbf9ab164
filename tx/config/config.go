package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

type Config struct {
	LogLevel string

	// Address of the sequencer / ordering service. Empty means the in-process
	// sequencer, which is what tests and the demo binary use.
	SequencerAddr string

	// CoalesceDisabled turns off the pre-commit merging of pending updates.
	// Coalescing only reduces write amplification; disabling it never changes
	// committed state.
	CoalesceDisabled bool

	// TransactionLogging adds the reserved transaction stream to the affected
	// streams of every committed write-after-write transaction, making commits
	// discoverable by audit readers.
	TransactionLogging bool

	// AuditPollIntervalMs is how often an audit reader polls the log tail.
	AuditPollIntervalMs int
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "fatal", "error", "warn", "warning", "info", "debug", "":
	default:
		return fmt.Errorf("unrecognized log level %q", c.LogLevel)
	}

	if c.AuditPollIntervalMs <= 0 {
		return fmt.Errorf("audit poll interval must be greater than 0")
	}

	return nil
}

// AuditPollInterval returns the audit poll interval as a duration.
func (c *Config) AuditPollInterval() time.Duration {
	return time.Duration(c.AuditPollIntervalMs) * time.Millisecond
}

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:            getLogLevel(),
		SequencerAddr:       "",
		CoalesceDisabled:    false,
		TransactionLogging:  false,
		AuditPollIntervalMs: 200,
	}
}

func NewTestConfig() *Config {
	return &Config{
		LogLevel:            getLogLevel(),
		CoalesceDisabled:    false,
		TransactionLogging:  true,
		AuditPollIntervalMs: 10,
	}
}

// LoadFromFile overlays the TOML file at path onto c.
func (c *Config) LoadFromFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return errors.Annotatef(err, "load config %s", path)
	}
	return errors.Trace(c.Validate())
}
