package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveConfig writes a Config to a YAML file.
// It performs an atomic write by writing to a temporary file first,
// then renaming it to the target path.
func SaveConfig(cfg *Config, path string) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// AddClass adds a new class to an existing config file.
// If the config file doesn't exist, it creates a new one with sensible defaults.
func AddClass(configPath string, class Class) error {
	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}

	if _, ok := cfg.Class(class.Name); ok {
		return fmt.Errorf("class '%s' already exists", class.Name)
	}
	cfg.Classes = append(cfg.Classes, class)

	if err := SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// RemoveClass removes a class from the config file by name. Its recorded
// history stays in the store until purged.
func RemoveClass(configPath, name string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	found := false
	kept := make([]Class, 0, len(cfg.Classes))
	for _, class := range cfg.Classes {
		if class.Name == name {
			found = true
			continue
		}
		kept = append(kept, class)
	}
	if !found {
		return fmt.Errorf("class '%s' not found", name)
	}
	cfg.Classes = kept

	if err := SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// UpdateClass replaces an existing class in the config file.
func UpdateClass(configPath string, class Class) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	found := false
	for i := range cfg.Classes {
		if cfg.Classes[i].Name == class.Name {
			cfg.Classes[i] = class
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("class '%s' not found", class.Name)
	}

	if err := SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetClass retrieves a class by name from the config file.
func GetClass(configPath, name string) (*Class, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	class, ok := cfg.Class(name)
	if !ok {
		return nil, fmt.Errorf("class '%s' not found", name)
	}
	return class, nil
}

// NewDefaultConfig creates a new Config with sensible defaults.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Store: Store{
			Driver: "bbolt",
			Path:   DefaultStorePath,
		},
		Classes: []Class{},
	}
	applyDefaults(cfg)
	return cfg
}

func loadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return NewDefaultConfig(), nil
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing config: %w", err)
	}
	return cfg, nil
}
