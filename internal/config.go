package internal

import (
	"fmt"
	"os"

	"github.com/GabrielSantos23/downly/internal/api"
	"github.com/GabrielSantos23/downly/internal/artifact"
	"github.com/GabrielSantos23/downly/internal/ffmpeg"
	"github.com/GabrielSantos23/downly/internal/processor"
	"github.com/GabrielSantos23/downly/internal/ytdlp"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

// DownlyConfig is the user-supplied configuration for the engine,
// loadable from a YAML file and overridable via the environment.
type DownlyConfig struct {
	Processor  processor.Config `yaml:"processor"`
	Extraction ytdlp.Config     `yaml:"ytdlp"`
	Ffmpeg     ffmpeg.Config    `yaml:"ffmpeg"`
	Artifacts  artifact.Config  `yaml:"artifacts"`
	RestConfig api.RestConfig   `yaml:"api"`
}

// LoadFromFile populates the config from the YAML file at the given path,
// falling back to environment variables (and their defaults) when the
// file does not exist. Tilde-prefixed output/working paths are expanded
// to the users home directory.
func (config *DownlyConfig) LoadFromFile(configPath string) error {
	if _, err := os.Stat(configPath); err != nil {
		if err := cleanenv.ReadEnv(config); err != nil {
			return fmt.Errorf("failed to load configuration from environment - %w", err)
		}
	} else if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration file '%s' - %w", configPath, err)
	}

	return config.expandPaths()
}

func (config *DownlyConfig) expandPaths() error {
	for _, path := range []*string{&config.Processor.OutputPath, &config.Processor.WorkingPath} {
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand configured path '%s' - %w", *path, err)
		}

		*path = expanded
	}

	return nil
}
