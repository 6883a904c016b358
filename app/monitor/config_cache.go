package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/research-comb/app/search"
)

const (
	defaultMaxResults = 50
	defaultTimeout    = 30
)

type ConfigCache struct {
	monitorsDir string
	cache       map[string]*Config
	mu          sync.RWMutex
}

func NewConfigCache(monitorsDir string) *ConfigCache {
	return &ConfigCache{
		monitorsDir: monitorsDir,
		cache:       make(map[string]*Config),
	}
}

func (cc *ConfigCache) Dir() string {
	return cc.monitorsDir
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.monitorsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.monitorsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		monitorName := NameFromPath(file)

		config, err := cc.LoadConfig(monitorName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "monitor", monitorName, "enabled", config.Settings.Enabled, "frequency", config.Frequency)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(monitorName string) (*Config, error) {
	configFile := cc.getConfigFilePath(monitorName)
	monitorConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	monitorConfig.Name = monitorName

	if err := validateConfig(monitorConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[monitorConfig.Name] = monitorConfig

	return monitorConfig, nil
}

func (cc *ConfigCache) GetConfig(monitorName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	monitorConfig, ok := cc.cache[monitorName]
	if !ok {
		return nil, fmt.Errorf("monitor config with name '%s' not found", monitorName)
	}
	return monitorConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

// Remove drops a monitor from the cache and reports whether it was present.
func (cc *ConfigCache) Remove(monitorName string) bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	_, ok := cc.cache[monitorName]
	delete(cc.cache, monitorName)
	return ok
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var monitorConfig Config
	if err := yaml.Unmarshal(data, &monitorConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	monitorConfig.Query = strings.TrimSpace(monitorConfig.Query)
	if monitorConfig.Frequency == "" {
		monitorConfig.Frequency = FrequencyDaily
	}
	if len(monitorConfig.Sources) == 0 {
		monitorConfig.Sources = []string{search.SourceWeb, search.SourceNews}
	}
	if monitorConfig.Settings.MaxResults == 0 {
		monitorConfig.Settings.MaxResults = defaultMaxResults
	}
	if monitorConfig.Settings.Timeout == 0 {
		monitorConfig.Settings.Timeout = defaultTimeout
	}

	return &monitorConfig, nil
}

func validateConfig(monitorConfig *Config) error {
	if monitorConfig == nil {
		return fmt.Errorf("monitorConfig is nil")
	}

	requiredFields := map[string]string{
		"monitor name": monitorConfig.Name,
		"user ID":      monitorConfig.UserID,
		"query":        monitorConfig.Query,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if !slices.Contains(frequencies, monitorConfig.Frequency) {
		return fmt.Errorf("invalid frequency: %s", monitorConfig.Frequency)
	}

	for _, source := range monitorConfig.Sources {
		if !search.IsSource(source) {
			return fmt.Errorf("invalid source: %s", source)
		}
	}

	if slices.Contains(monitorConfig.Sources, search.SourceFeeds) && len(monitorConfig.Feeds) == 0 {
		return fmt.Errorf("feeds source requires at least one feed URL")
	}

	nonNegativeFields := map[string]int{
		"max results": monitorConfig.Settings.MaxResults,
		"timeout":     monitorConfig.Settings.Timeout,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	for i, filter := range monitorConfig.Filters {
		if !validFilterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(monitorName string) string {
	return filepath.Join(cc.monitorsDir, monitorName+".yml")
}

// NameFromPath derives a monitor name from its configuration file path.
func NameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".yml")
}
