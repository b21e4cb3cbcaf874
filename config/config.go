package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/wastenet/errors"
	"github.com/grovetools/wastenet/pkg/paths"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are searched in order in every directory.
var configNames = []string{
	"wastenet.yml",
	"wastenet.yaml",
	".wastenet.yml",
	".wastenet.yaml",
	"wastenet.toml",
}

// overrideNames are merged over the project config, in order.
var overrideNames = []string{
	"wastenet.override.yml",
	"wastenet.override.yaml",
	".wastenet.override.yml",
	".wastenet.override.yaml",
}

// Default returns a config with every default applied and no bins.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads, validates and defaults a single configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	return LoadFromBytes(data, formatFor(path))
}

// LoadDefault finds and loads the configuration with hierarchical merging
// starting from the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}

	return LoadFrom(cwd)
}

// LoadOrDefault behaves like LoadFrom but returns Default() when no config
// file exists anywhere on the search path. Other errors are returned.
func LoadOrDefault(startDir string) (*Config, string, error) {
	path, err := FindConfigFile(startDir)
	if err != nil {
		if errors.Is(err, errors.ErrCodeConfigNotFound) {
			loadDotEnv(startDir)
			return Default(), "", nil
		}
		return nil, "", err
	}
	cfg, err := LoadFrom(startDir)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// LoadFrom loads configuration with hierarchical merging starting from the given directory
func LoadFrom(startDir string) (*Config, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return LoadFromWithLogger(startDir, logger)
}

// LoadFromWithLogger loads configuration with hierarchical merging:
// 1. Global config ($XDG_CONFIG_HOME/wastenet/wastenet.yml) - base layer
// 2. Project config (wastenet.yml) - overrides global
// 3. Local override (wastenet.override.yml) - overrides all
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	layers, err := loadLayers(startDir, logger)
	if err != nil {
		return nil, err
	}

	if err := validateSchema(layers.Final); err != nil {
		return nil, err
	}
	layers.Final.SetDefaults()
	if err := layers.Final.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Configuration loaded and validated successfully")
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(layers.Final); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}

	return layers.Final, nil
}

// LoadFromBytes parses configuration from byte array. format is "yaml" or
// "toml".
func LoadFromBytes(data []byte, format string) (*Config, error) {
	cfg, err := parse(data, format)
	if err != nil {
		return nil, err
	}

	if err := validateSchema(cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadLayered finds and loads all configuration layers (global, project, overrides)
// without merging them, for analysis purposes. It also computes the final merged config.
func LoadLayered(startDir string) (*LayeredConfig, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	layers, err := loadLayers(startDir, logger)
	if err != nil {
		return nil, err
	}
	layers.Final.SetDefaults()
	if err := layers.Final.Validate(); err != nil {
		return nil, err
	}
	return layers, nil
}

func loadLayers(startDir string, logger *logrus.Logger) (*LayeredConfig, error) {
	projectPath, err := FindConfigFile(startDir)
	if err != nil {
		return nil, err
	}
	projectDir := filepath.Dir(projectPath)
	loadDotEnv(projectDir)

	layered := &LayeredConfig{
		Default:   Default(),
		Overrides: make([]OverrideSource, 0),
		FilePaths: make(map[ConfigSource]string),
	}

	final := &Config{}

	globalPath := getXDGConfigPath()
	if globalPath != "" && globalPath != projectPath {
		if _, err := os.Stat(globalPath); err == nil {
			logger.WithField("path", globalPath).Debug("Loading global configuration")
			global, err := parseFile(globalPath)
			if err != nil {
				logger.WithError(err).Warn("Failed to parse global configuration, continuing without it")
			} else {
				layered.Global = global
				layered.FilePaths[SourceGlobal] = globalPath
				final = mergeConfigs(final, global)
			}
		}
	}

	logger.WithField("path", projectPath).Debug("Loading project configuration")
	project, err := parseFile(projectPath)
	if err != nil {
		return nil, err
	}
	layered.Project = project
	layered.FilePaths[SourceProject] = projectPath
	final = mergeConfigs(final, project)

	for _, name := range overrideNames {
		overridePath := filepath.Join(projectDir, name)
		if _, err := os.Stat(overridePath); err != nil {
			continue
		}
		logger.WithField("path", overridePath).Debug("Loading local override configuration")
		override, err := parseFile(overridePath)
		if err != nil {
			logger.WithError(err).Warn("Failed to parse override file, skipping")
			continue
		}
		layered.Overrides = append(layered.Overrides, OverrideSource{Path: overridePath, Config: override})
		if _, ok := layered.FilePaths[SourceOverride]; !ok {
			layered.FilePaths[SourceOverride] = overridePath
		}
		final = mergeConfigs(final, override)
	}

	layered.Final = final
	return layered, nil
}

// FindConfigFile searches for wastenet configuration files with the following precedence:
// 1. Current directory up to filesystem root
// 2. XDG config directory ($XDG_CONFIG_HOME/wastenet/wastenet.yml)
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if xdgConfigPath := getXDGConfigPath(); xdgConfigPath != "" {
		if info, err := os.Stat(xdgConfigPath); err == nil && !info.IsDir() {
			return xdgConfigPath, nil
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config").
			WithDetail("path", path)
	}
	cfg, err := parse(data, formatFor(path))
	if err != nil {
		if e, ok := errors.As(err); ok {
			return nil, e.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// parse decodes YAML or TOML without defaults or validation. TOML is
// normalised through a generic map so extension blocks land in
// Config.Extensions the same way they do for YAML.
func parse(data []byte, format string) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	if format == "toml" {
		var raw map[string]interface{}
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
		converted, err := yaml.Marshal(raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to normalise TOML configuration")
		}
		expanded = converted
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
	}
	return &cfg, nil
}

func formatFor(path string) string {
	if strings.HasSuffix(path, ".toml") {
		return "toml"
	}
	return "yaml"
}

// loadDotEnv loads .env.local then .env from dir. godotenv never overrides
// variables that are already set, so the real environment wins, then
// .env.local, then .env.
func loadDotEnv(dir string) {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// getXDGConfigPath returns the global config path for wastenet
func getXDGConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "wastenet.yml")
}
