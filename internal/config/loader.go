package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"conductor/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/conductor"
	configFileName = "config.yaml"
	servicesDir    = "services"
)

// GetDefaultConfigPathOrPanic returns ~/.config/conductor.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// ServicesPath returns the directory holding service definition files.
func ServicesPath(configPath string) string {
	return filepath.Join(configPath, servicesDir)
}

// LoadConfig loads config.yaml from the specified directory, falling back to
// defaults for anything the file does not set.
func LoadConfig(configPath string) (ConductorConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return ConductorConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return ConductorConfig{}, fileError(configFilePath, "config", "parse", "malformed YAML", err,
			"Check indentation and that durations are quoted strings such as \"10s\"")
	}
	if err := ValidateConfig(config); err != nil {
		return ConductorConfig{}, fileError(configFilePath, "config", "validation", "invalid settings", err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// LoadServiceDefinitions reads every *.yaml and *.yml file under
// <configPath>/services, one definition per file, in file name order. A
// missing directory yields no definitions. Any parse, validation or duplicate
// error is returned as a *ConfigurationErrorCollection together with the
// definitions that did load.
func LoadServiceDefinitions(configPath string, settings OrchestratorSettings) ([]ServiceDefinition, error) {
	dir := ServicesPath(configPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No services directory at %s", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("reading services directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	collection := &ConfigurationErrorCollection{}
	defs := make([]ServiceDefinition, 0, len(files))
	seen := make(map[string]string, len(files))

	for _, name := range files {
		path := filepath.Join(dir, name)
		def, cfgErr := loadDefinitionFile(path, settings)
		if cfgErr != nil {
			collection.Add(*cfgErr)
			continue
		}
		if prev, ok := seen[def.Name]; ok {
			collection.Add(fileError(path, "services", "duplicate",
				fmt.Sprintf("service %s already defined in %s", def.Name, filepath.Base(prev)), nil,
				"Rename one of the services or remove the duplicate file"))
			continue
		}
		seen[def.Name] = path
		defs = append(defs, def)
	}

	logging.Info("ConfigLoader", "Loaded %d service definitions from %s (%d errors)", len(defs), dir, collection.Count())
	if collection.HasErrors() {
		return defs, collection
	}
	return defs, nil
}

// ParseServiceDefinition decodes a single definition document on top of the
// defaults derived from settings and validates it.
func ParseServiceDefinition(data []byte, settings OrchestratorSettings) (ServiceDefinition, error) {
	def, err := decodeDefinition(data, settings)
	if err != nil {
		return ServiceDefinition{}, fmt.Errorf("decoding service definition: %w", err)
	}
	if err := ValidateDefinition(def); err != nil {
		return ServiceDefinition{}, err
	}
	return def, nil
}

// decodeDefinition rejects unknown keys so typos do not silently fall back to defaults.
func decodeDefinition(data []byte, settings OrchestratorSettings) (ServiceDefinition, error) {
	def := DefaultServiceDefinition(settings)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return ServiceDefinition{}, err
	}
	return def, nil
}

func loadDefinitionFile(path string, settings OrchestratorSettings) (ServiceDefinition, *ConfigurationError) {
	data, err := os.ReadFile(path)
	if err != nil {
		cfgErr := fileError(path, "services", "io", "cannot read file", err)
		return ServiceDefinition{}, &cfgErr
	}

	def, err := decodeDefinition(data, settings)
	if err != nil {
		cfgErr := fileError(path, "services", "parse", "malformed service definition", err,
			"Each file must contain exactly one service definition", "Unknown keys are rejected")
		return ServiceDefinition{}, &cfgErr
	}
	def.SourceFile = path

	if err := ValidateDefinition(def); err != nil {
		cfgErr := fileError(path, "services", "validation", "invalid service definition", err)
		return ServiceDefinition{}, &cfgErr
	}
	return def, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
