package config

import (
	"fmt"
	"os"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Default DC GIS endpoints for the public injury crash tables.
const (
	defaultCrashPointsURL  = "https://maps2.dcgis.dc.gov/dcgis/rest/services/DCGIS_DATA/Public_Safety_WebMercator/MapServer/24/query"
	defaultCrashDetailsURL = "https://maps2.dcgis.dc.gov/dcgis/rest/services/DCGIS_DATA/Public_Safety_WebMercator/MapServer/25/query"
	defaultPortalURL       = "https://dcgis.maps.arcgis.com"
)

// Error is a fatal configuration problem detected before any fetch.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "config: " + e.Reason }

func missing(name string) error {
	return &Error{Reason: name + " is required"}
}

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	// Injury source endpoints.
	CrashPointsURL  string
	CrashDetailsURL string

	// Fatality feature service credentials (required, no defaults).
	ArcGISPortalURL      string
	ArcGISClientID       string
	ArcGISClientSecret   string
	ArcGISFeatureLayerID string

	HTTPTimeout time.Duration

	// Static boundary layers and local artifacts.
	BoundaryDir string
	OutputPath  string
	CursorPath  string

	// Downstream mirror repository.
	MirrorRepoURL     string
	MirrorToken       string
	MirrorBranch      string
	MirrorTargetPath  string
	MirrorAuthorName  string
	MirrorAuthorEmail string

	// Optional Kafka record sink; disabled when no brokers are set.
	KafkaBrokers []string
	KafkaTopic   string

	// Optional Pushgateway for run metrics.
	PushgatewayURL string

	// ScheduledRun is true when the host scheduler (rather than an operator)
	// triggered this run; it enables the stale-cursor guard.
	ScheduledRun bool

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, applying defaults where a
// default is safe and failing on missing credentials. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	httpTimeoutStr := sharedcfg.EnvOrDefault("HTTP_TIMEOUT", "60s")
	httpTimeout, err := time.ParseDuration(httpTimeoutStr)
	if err != nil || httpTimeout <= 0 {
		return nil, &Error{Reason: fmt.Sprintf("invalid HTTP_TIMEOUT %q", httpTimeoutStr)}
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		CrashPointsURL:  sharedcfg.EnvOrDefault("CRASH_POINTS_URL", defaultCrashPointsURL),
		CrashDetailsURL: sharedcfg.EnvOrDefault("CRASH_DETAILS_URL", defaultCrashDetailsURL),

		ArcGISPortalURL:      sharedcfg.EnvOrDefault("ARCGIS_PORTAL_URL", defaultPortalURL),
		ArcGISClientID:       os.Getenv("ARCGIS_CLIENT_ID"),
		ArcGISClientSecret:   os.Getenv("ARCGIS_CLIENT_SECRET"),
		ArcGISFeatureLayerID: os.Getenv("ARCGIS_FEATURE_LAYER_ID"),

		HTTPTimeout: httpTimeout,

		BoundaryDir: sharedcfg.EnvOrDefault("BOUNDARY_DIR", "Spatial-Files"),
		OutputPath:  sharedcfg.EnvOrDefault("OUTPUT_PATH", "crashes.parquet"),
		CursorPath:  sharedcfg.EnvOrDefault("CURSOR_PATH", "last_record_timestamp.txt"),

		MirrorRepoURL:     os.Getenv("MIRROR_REPO_URL"),
		MirrorToken:       os.Getenv("MIRROR_TOKEN"),
		MirrorBranch:      sharedcfg.EnvOrDefault("MIRROR_BRANCH", "main"),
		MirrorTargetPath:  sharedcfg.EnvOrDefault("MIRROR_TARGET_PATH", "crashes.parquet"),
		MirrorAuthorName:  sharedcfg.EnvOrDefault("MIRROR_AUTHOR_NAME", "crash-injury-etl"),
		MirrorAuthorEmail: sharedcfg.EnvOrDefault("MIRROR_AUTHOR_EMAIL", "etl@couchcryptid.dev"),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "enriched-crash-records"),

		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),

		ScheduledRun: os.Getenv("GITHUB_EVENT_NAME") == "schedule",

		LogLevel:  sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.ArcGISClientID == "" {
		return nil, missing("ARCGIS_CLIENT_ID")
	}
	if cfg.ArcGISClientSecret == "" {
		return nil, missing("ARCGIS_CLIENT_SECRET")
	}
	if cfg.ArcGISFeatureLayerID == "" {
		return nil, missing("ARCGIS_FEATURE_LAYER_ID")
	}
	if cfg.MirrorRepoURL == "" {
		return nil, missing("MIRROR_REPO_URL")
	}
	if cfg.MirrorToken == "" {
		return nil, missing("MIRROR_TOKEN")
	}

	return cfg, nil
}

// KafkaEnabled reports whether the optional record sink should be constructed.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
