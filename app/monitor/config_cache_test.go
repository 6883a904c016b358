package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMonitor(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigCacheLoadValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	writeMonitor(t, tempDir, "acme-litigation", `
user_id: "user-1"
tier: "pro"
query: "  Acme Corp lawsuit "
sources: ["web", "news"]
frequency: "weekly"

settings:
  enabled: true
  max_results: 25
  timeout: 15

filters:
  - field: "domain"
    excludes:
      - "pinterest.com"
  - field: "title"
    includes:
      - "acme"
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetConfigCount() != 1 {
		t.Errorf("Expected 1 monitorConfig, got %d", configCache.GetConfigCount())
	}

	monitorConfig, err := configCache.GetConfig("acme-litigation")
	if err != nil {
		t.Fatal(err)
	}

	if monitorConfig.Name != "acme-litigation" {
		t.Errorf("Expected name 'acme-litigation', got '%s'", monitorConfig.Name)
	}
	if monitorConfig.UserID != "user-1" {
		t.Errorf("Expected user 'user-1', got '%s'", monitorConfig.UserID)
	}
	if monitorConfig.Query != "Acme Corp lawsuit" {
		t.Errorf("Expected trimmed query, got '%s'", monitorConfig.Query)
	}
	if monitorConfig.Frequency != FrequencyWeekly {
		t.Errorf("Expected frequency 'weekly', got '%s'", monitorConfig.Frequency)
	}
	if !monitorConfig.Settings.Enabled {
		t.Error("Expected monitor to be enabled")
	}
	if monitorConfig.Settings.MaxResults != 25 {
		t.Errorf("Expected max results 25, got %d", monitorConfig.Settings.MaxResults)
	}
	if monitorConfig.Settings.Timeout != 15 {
		t.Errorf("Expected timeout 15, got %d", monitorConfig.Settings.Timeout)
	}
	if len(monitorConfig.Filters) != 2 {
		t.Errorf("Expected 2 filters, got %d", len(monitorConfig.Filters))
	}
}

func TestConfigCacheDefaults(t *testing.T) {
	tempDir := t.TempDir()

	writeMonitor(t, tempDir, "minimal", `
user_id: "user-1"
query: "zoning variance"
`)

	configCache := NewConfigCache(tempDir)
	monitorConfig, err := configCache.LoadConfig("minimal")
	if err != nil {
		t.Fatal(err)
	}

	if monitorConfig.Frequency != FrequencyDaily {
		t.Errorf("Expected default frequency 'daily', got '%s'", monitorConfig.Frequency)
	}
	if strings.Join(monitorConfig.Sources, ",") != "web,news" {
		t.Errorf("Expected default sources web,news, got %v", monitorConfig.Sources)
	}
	if monitorConfig.Settings.MaxResults != 50 {
		t.Errorf("Expected default max results 50, got %d", monitorConfig.Settings.MaxResults)
	}
	if monitorConfig.Settings.Timeout != 30 {
		t.Errorf("Expected default timeout 30, got %d", monitorConfig.Settings.Timeout)
	}
	if monitorConfig.Settings.Enabled {
		t.Error("Expected monitor to be disabled unless enabled explicitly")
	}
}

func TestConfigCacheInvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing user",
			content: `query: "acme"`,
			wantErr: "user ID is required",
		},
		{
			name:    "missing query",
			content: `user_id: "user-1"`,
			wantErr: "query is required",
		},
		{
			name: "invalid frequency",
			content: `
user_id: "user-1"
query: "acme"
frequency: "hourly"`,
			wantErr: "invalid frequency: hourly",
		},
		{
			name: "invalid source",
			content: `
user_id: "user-1"
query: "acme"
sources: ["web", "twitter"]`,
			wantErr: "invalid source: twitter",
		},
		{
			name: "feeds without URLs",
			content: `
user_id: "user-1"
query: "acme"
sources: ["feeds"]`,
			wantErr: "feeds source requires at least one feed URL",
		},
		{
			name: "negative max results",
			content: `
user_id: "user-1"
query: "acme"
settings:
  max_results: -5`,
			wantErr: "max results must be non-negative",
		},
		{
			name: "invalid filter field",
			content: `
user_id: "user-1"
query: "acme"
filters:
  - field: "description"
    includes: ["x"]`,
			wantErr: "invalid filter field at index 0: description",
		},
		{
			name: "empty filter",
			content: `
user_id: "user-1"
query: "acme"
filters:
  - field: "title"`,
			wantErr: "filter at index 0 must have at least one include or exclude rule",
		},
		{
			name:    "malformed yaml",
			content: "user_id: [unclosed",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeMonitor(t, tempDir, "broken", tt.content)

			configCache := NewConfigCache(tempDir)
			_, err := configCache.LoadConfig("broken")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing '%s', got '%v'", tt.wantErr, err)
			}
			if configCache.GetConfigCount() != 0 {
				t.Errorf("Expected invalid config not to be cached, got %d", configCache.GetConfigCount())
			}
		})
	}
}

func TestConfigCacheMissingDirectory(t *testing.T) {
	configCache := NewConfigCache(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := configCache.Run(); err != nil {
		t.Errorf("Expected no error for missing directory, got %v", err)
	}
	if configCache.GetConfigCount() != 0 {
		t.Errorf("Expected 0 configs, got %d", configCache.GetConfigCount())
	}
}

func TestConfigCacheEnabledConfigsAndRemove(t *testing.T) {
	tempDir := t.TempDir()

	writeMonitor(t, tempDir, "enabled", `
user_id: "user-1"
query: "acme"
settings:
  enabled: true`)
	writeMonitor(t, tempDir, "disabled", `
user_id: "user-1"
query: "globex"`)
	if err := os.WriteFile(filepath.Join(tempDir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if len(configCache.GetConfigs()) != 2 {
		t.Errorf("Expected 2 configs, got %d", len(configCache.GetConfigs()))
	}

	enabled := configCache.GetEnabledConfigs()
	if len(enabled) != 1 || enabled["enabled"] == nil {
		t.Errorf("Expected only 'enabled' in enabled configs, got %v", enabled)
	}

	if !configCache.Remove("enabled") {
		t.Error("Expected Remove to report the monitor was cached")
	}
	if configCache.Remove("enabled") {
		t.Error("Expected second Remove to report nothing removed")
	}
	if _, err := configCache.GetConfig("enabled"); err == nil {
		t.Error("Expected removed monitor to be gone from the cache")
	}
}

func TestConfigCacheReloadReplacesConfig(t *testing.T) {
	tempDir := t.TempDir()
	writeMonitor(t, tempDir, "acme", `
user_id: "user-1"
query: "acme"`)

	configCache := NewConfigCache(tempDir)
	if _, err := configCache.LoadConfig("acme"); err != nil {
		t.Fatal(err)
	}

	writeMonitor(t, tempDir, "acme", `
user_id: "user-1"
query: "acme corp"
frequency: "realtime"`)
	if _, err := configCache.LoadConfig("acme"); err != nil {
		t.Fatal(err)
	}

	monitorConfig, err := configCache.GetConfig("acme")
	if err != nil {
		t.Fatal(err)
	}
	if monitorConfig.Query != "acme corp" || monitorConfig.Frequency != FrequencyRealtime {
		t.Errorf("Expected reloaded config, got query '%s' frequency '%s'", monitorConfig.Query, monitorConfig.Frequency)
	}
}

func TestNameFromPath(t *testing.T) {
	if got := NameFromPath("/etc/monitors/acme-litigation.yml"); got != "acme-litigation" {
		t.Errorf("Expected 'acme-litigation', got '%s'", got)
	}
}
