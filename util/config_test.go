package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
storage:
  path: /tmp/petrel.db
timeline:
  pageSize: 40
speech:
  backend: http
  port: 50080
`
	err := os.WriteFile(path, []byte(body), 0644)
	assert.NoError(t, err)

	var conf Config
	err = conf.Load(path)
	assert.NoError(t, err)

	assert.Equal(t, "/tmp/petrel.db", conf.Storage.Path)
	assert.Equal(t, 40, conf.Timeline.PageSize)
	assert.Equal(t, "http", conf.Speech.Backend)
	assert.Equal(t, 50080, conf.Speech.Port)

	// unset values fall back to defaults
	core := conf.Core()
	assert.Equal(t, 500, core.MaxVisible)
	assert.Equal(t, 10, core.ScrollThreshold)
	assert.Equal(t, 40, core.PageSize)
}

func TestConfigLoadMissingFile(t *testing.T) {
	var conf Config
	err := conf.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfigLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte("storage: ["), 0644)
	assert.NoError(t, err)

	var conf Config
	err = conf.Load(path)
	assert.Error(t, err)
}
