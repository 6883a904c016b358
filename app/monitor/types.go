package monitor

// Configuration types

type Config struct {
	Name      string         // Derived from filename (without .yml extension)
	UserID    string         `yaml:"user_id"`
	Tier      string         `yaml:"tier"`
	Query     string         `yaml:"query"`
	Sources   []string       `yaml:"sources"`
	Feeds     []string       `yaml:"feeds"`
	Frequency string         `yaml:"frequency"` // daily, weekly, realtime
	Settings  ConfigSettings `yaml:"settings"`
	Filters   []ConfigFilter `yaml:"filters"`
}

type ConfigSettings struct {
	Enabled    bool `yaml:"enabled"`
	MaxResults int  `yaml:"max_results"`
	Timeout    int  `yaml:"timeout"` // seconds
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
