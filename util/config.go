package util

import (
	"os"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"

	"github.com/petrelapp/petrel/core"
)

// Config is petrel base configuration
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Timeline Timeline `yaml:"timeline"`
	Speech   Speech   `yaml:"speech"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Timeline struct {
	PageSize        int `yaml:"pageSize"`
	MaxVisible      int `yaml:"maxVisible"`
	ScrollThreshold int `yaml:"scrollThreshold"`
}

type Speech struct {
	Backend string `yaml:"backend"` // none, command or http
	Command string `yaml:"command"`
	Port    int    `yaml:"port"`
}

// Load loads petrel config from given path. Failures are returned, not
// fatal; the hosting shell decides how to surface a broken config.
func (c *Config) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open configuration file")
	}
	defer f.Close()

	err = yaml.NewDecoder(f).Decode(&c)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration file")
	}

	c.applyDefaults()

	return nil
}

func (c *Config) applyDefaults() {
	if c.Timeline.PageSize == 0 {
		c.Timeline.PageSize = 20
	}
	if c.Timeline.MaxVisible == 0 {
		c.Timeline.MaxVisible = 500
	}
	if c.Timeline.ScrollThreshold == 0 {
		c.Timeline.ScrollThreshold = 10
	}
	if c.Speech.Backend == "" {
		c.Speech.Backend = "none"
	}
}

// Core converts the loaded file into the config the services consume
func (c *Config) Core() core.Config {
	c.applyDefaults()
	return core.Config{
		UserAgent:       "petrel/" + GetVersion(),
		PageSize:        c.Timeline.PageSize,
		MaxVisible:      c.Timeline.MaxVisible,
		ScrollThreshold: c.Timeline.ScrollThreshold,
		SpeechBackend:   c.Speech.Backend,
		SpeechCommand:   c.Speech.Command,
		SpeechPort:      c.Speech.Port,
	}
}
