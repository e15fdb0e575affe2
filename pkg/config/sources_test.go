package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSourcesFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadSignalSources(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - type: queue
    name: crm-signals
    configuration:
      url: localhost:6379
      queue: signals
  - type: kafka
    name: event-stream
`)

	sources, err := LoadSignalSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, "queue", sources[0].Type)
	assert.Equal(t, "crm-signals", sources[0].Name)
	assert.Equal(t, "localhost:6379", sources[0].Configuration["url"])

	// A nil configuration block comes back as an empty map.
	assert.Equal(t, "kafka", sources[1].Type)
	assert.NotNil(t, sources[1].Configuration)
}

func TestLoadSignalSources_UnknownType(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - type: carrier-pigeon
    name: slow
`)

	_, err := LoadSignalSources(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestLoadSignalSources_MissingFile(t *testing.T) {
	_, err := LoadSignalSources(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadSignalSources_MalformedYAML(t *testing.T) {
	path := writeSourcesFile(t, "sources: [")

	_, err := LoadSignalSources(path)
	assert.Error(t, err)
}
