package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
max_listeners: 20
max_retries: 5
initial_delay_ms: 50
max_delay_ms: 2000
dead_letter_max_size: 100
`

const jsonConfig = `{
  "max_listeners": 20,
  "max_retries": 5,
  "initial_delay_ms": 50,
  "max_delay_ms": 2000,
  "dead_letter_max_size": 100
}`

func assertFullConfig(t *testing.T, f *File) {
	t.Helper()
	assert.Equal(t, 20, f.MaxListeners)
	require.NotNil(t, f.MaxRetries)
	assert.Equal(t, 5, *f.MaxRetries)
	assert.Equal(t, 50, f.InitialDelayMs)
	assert.Equal(t, 2000, f.MaxDelayMs)
	assert.Equal(t, 100, f.DeadLetterMaxSize)
	assert.Empty(t, f.DeadLetterPath)
}

func TestFromYAML(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		f, err := FromYAML([]byte(yamlConfig))
		require.NoError(t, err)
		assertFullConfig(t, f)
	})

	t.Run("absent max_retries stays nil", func(t *testing.T) {
		f, err := FromYAML([]byte("max_listeners: 3\n"))
		require.NoError(t, err)
		assert.Nil(t, f.MaxRetries)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := FromYAML([]byte("max_listeners: [unterminated"))
		assert.Error(t, err)
	})
}

func TestFromJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		f, err := FromJSON([]byte(jsonConfig))
		require.NoError(t, err)
		assertFullConfig(t, f)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := FromJSON([]byte("{not json"))
		assert.Error(t, err)
	})
}

func TestFromFile(t *testing.T) {
	writeFile := func(t *testing.T, name, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("yaml extension", func(t *testing.T) {
		f, err := FromFile(writeFile(t, "bus.yaml", yamlConfig))
		require.NoError(t, err)
		assertFullConfig(t, f)
	})

	t.Run("yml extension", func(t *testing.T) {
		f, err := FromFile(writeFile(t, "bus.yml", yamlConfig))
		require.NoError(t, err)
		assertFullConfig(t, f)
	})

	t.Run("json extension", func(t *testing.T) {
		f, err := FromFile(writeFile(t, "bus.json", jsonConfig))
		require.NoError(t, err)
		assertFullConfig(t, f)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := FromFile(writeFile(t, "bus.toml", ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported config file extension")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := FromFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
