package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath      string
	MonitorsDir string

	// Application configuration
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string
	NoWatch           bool

	// Outbound fetching
	FetchMaxSize int64
	FetchTimeout time.Duration

	// Search providers
	BingAPIKey      string
	BingEndpoint    string
	SearchRate      float64
	WaybackEnabled  bool
	WaybackEndpoint string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
