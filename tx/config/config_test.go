package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate())
	require.NoError(t, NewTestConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	conf := NewDefaultConfig()
	conf.LogLevel = "chatty"
	require.Error(t, conf.Validate())

	conf = NewDefaultConfig()
	conf.AuditPollIntervalMs = 0
	require.Error(t, conf.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "tinylog-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "tinylog.toml")
	content := `
LogLevel = "debug"
CoalesceDisabled = true
TransactionLogging = true
AuditPollIntervalMs = 50
`
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))

	conf := NewDefaultConfig()
	require.NoError(t, conf.LoadFromFile(path))
	assert.Equal(t, "debug", conf.LogLevel)
	assert.True(t, conf.CoalesceDisabled)
	assert.True(t, conf.TransactionLogging)
	assert.Equal(t, 50*time.Millisecond, conf.AuditPollInterval())
}

func TestLoadFromMissingFile(t *testing.T) {
	conf := NewDefaultConfig()
	require.Error(t, conf.LoadFromFile("/nonexistent/tinylog.toml"))
}
