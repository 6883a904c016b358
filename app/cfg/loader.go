package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath      string `long:"db-path" env:"DB_PATH" default:"./data/research-comb.db" description:"Path to the sqlite database file"`
	MonitorsDir string `long:"monitors-dir" env:"MONITORS_DIR" default:"./monitors" description:"Directory containing monitor configuration files"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://research.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for monitor runs and archiving"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	NoWatch           bool   `long:"no-watch" env:"NO_WATCH" description:"Disable hot reload of monitor configuration files"`

	// Outbound fetching
	FetchMaxSize int64 `long:"fetch-max-size" env:"FETCH_MAX_SIZE" default:"10485760" description:"Maximum response size in bytes for fetched pages and feeds"`
	FetchTimeout int   `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Timeout in seconds for fetched pages and feeds"`

	// Search providers
	BingAPIKey      string  `long:"bing-api-key" env:"BING_API_KEY" description:"Bing Search API key (sample results are returned when empty)"`
	BingEndpoint    string  `long:"bing-endpoint" env:"BING_ENDPOINT" default:"https://api.bing.microsoft.com/v7.0" description:"Bing Search API endpoint"`
	SearchRate      float64 `long:"search-rate" env:"SEARCH_RATE" default:"3" description:"Maximum search API requests per second"`
	WaybackEnabled  bool    `long:"wayback" env:"WAYBACK_ENABLED" description:"Archive results through the Wayback Machine before falling back to local snapshots"`
	WaybackEndpoint string  `long:"wayback-endpoint" env:"WAYBACK_ENDPOINT" default:"https://web.archive.org" description:"Wayback Machine endpoint"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Research Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps and monitor schedules (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validate(&raw); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		MonitorsDir:       raw.MonitorsDir,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		NoWatch:           raw.NoWatch,
		FetchMaxSize:      raw.FetchMaxSize,
		FetchTimeout:      time.Duration(raw.FetchTimeout) * time.Second,
		BingAPIKey:        raw.BingAPIKey,
		BingEndpoint:      raw.BingEndpoint,
		SearchRate:        raw.SearchRate,
		WaybackEnabled:    raw.WaybackEnabled,
		WaybackEndpoint:   raw.WaybackEndpoint,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(raw *rawCfg) error {
	positive := map[string]int64{
		"worker count":       int64(raw.WorkerCount),
		"scheduler interval": int64(raw.SchedulerInterval),
		"fetch max size":     raw.FetchMaxSize,
		"fetch timeout":      int64(raw.FetchTimeout),
	}

	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if raw.SearchRate <= 0 {
		return fmt.Errorf("search rate must be positive")
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
