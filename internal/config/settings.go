package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SettingsFileName is the settings file looked up in each config dir.
const SettingsFileName = "cpupowerctl.yaml"

// DefaultProfileName is applied when no settings file names one.
const DefaultProfileName = "Balanced"

// Settings are user preferences shared by cpupowerctl commands.
type Settings struct {
	DefaultProfile   string `yaml:"defaultProfile"`
	AllCPUsDefault   bool   `yaml:"allCpusDefault"`
	EnergyPrefPerCPU bool   `yaml:"energyPrefPerCpu"`
}

// DefaultSettings returns the built-in preferences.
func DefaultSettings() Settings {
	return Settings{DefaultProfile: DefaultProfileName}
}

type settingsFile struct {
	DefaultProfile   *string `yaml:"defaultProfile"`
	AllCPUsDefault   *bool   `yaml:"allCpusDefault"`
	EnergyPrefPerCPU *bool   `yaml:"energyPrefPerCpu"`
}

// LoadSettings layers settings files from dirs in order, later files
// overriding only the keys they set. Missing files are skipped.
func LoadSettings(dirs ...string) (Settings, error) {
	settings := DefaultSettings()
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, SettingsFileName)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Settings{}, fmt.Errorf("reading %s: %w", path, err)
		}

		var file settingsFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Settings{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		if file.DefaultProfile != nil && *file.DefaultProfile != "" {
			settings.DefaultProfile = *file.DefaultProfile
		}
		if file.AllCPUsDefault != nil {
			settings.AllCPUsDefault = *file.AllCPUsDefault
		}
		if file.EnergyPrefPerCPU != nil {
			settings.EnergyPrefPerCPU = *file.EnergyPrefPerCPU
		}
	}
	return settings, nil
}

// SaveSettings writes s to dir, creating the directory when needed.
func SaveSettings(dir string, s Settings) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	path := filepath.Join(dir, SettingsFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
