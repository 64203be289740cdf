package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Feed source selectors.
const (
	FeedTfL    = "tfl"
	FeedGTFSRT = "gtfsrt"
)

// Config holds all configuration for the drift tracker
type Config struct {
	// Route under observation
	LineID    string `validate:"required"`
	Direction string `validate:"oneof=inbound outbound"`

	// Feed selection
	Feed string `validate:"oneof=tfl gtfsrt"`

	// TfL Unified API
	TfLBaseURL string `validate:"omitempty,url"`
	TfLAppKey  string `validate:"required_if=Feed tfl"`
	TfLMaxRPS  int    `validate:"gt=0"`

	// GTFS-RT trip updates (alternative feed)
	TripUpdatesURL string `validate:"required_if=Feed gtfsrt,omitempty,url"`
	DirectionID    int    `validate:"gte=0,lte=1"`

	// Cycle cadence and scoring windows
	PollInterval     time.Duration `validate:"gt=0"`
	ArrivalThreshold time.Duration `validate:"gt=0"`
	MaxPredictionAge time.Duration `validate:"gt=0"`
	PhantomGrace     time.Duration `validate:"gt=0"`

	// Artifacts
	DataDir      string `validate:"required"`
	StatePath    string
	SnapshotPath string

	// HTTP server
	Port string `validate:"required"`
}

// Load reads configuration from environment variables with sensible
// defaults and validates it. Only a broken configuration is fatal;
// everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		LineID:    getEnv("LINE_ID", "430"),
		Direction: getEnv("DIRECTION", "inbound"),
		Feed:      getEnv("FEED", FeedTfL),

		TfLBaseURL: getEnv("TFL_BASE_URL", "https://api.tfl.gov.uk"),
		TfLAppKey:  getEnv("TFL_APP_KEY", ""),
		TfLMaxRPS:  getEnvInt("TFL_MAX_RPS", 5),

		TripUpdatesURL: getEnv("GTFSRT_TRIP_UPDATES_URL", ""),
		DirectionID:    getEnvInt("GTFSRT_DIRECTION_ID", 0),

		PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL", 60)) * time.Second,
		ArrivalThreshold: time.Duration(getEnvInt("ARRIVAL_THRESHOLD_SEC", 30)) * time.Second,
		MaxPredictionAge: time.Duration(getEnvInt("PREDICTION_MAX_AGE_SEC", 1500)) * time.Second,
		PhantomGrace:     time.Duration(getEnvInt("PHANTOM_GRACE_SEC", 360)) * time.Second,

		DataDir: getEnv("DATA_DIR", "."),
		Port:    getEnv("PORT", "8080"),
	}

	// Derived artifact paths, one pair per route/direction
	cfg.StatePath = filepath.Join(cfg.DataDir, fmt.Sprintf("%s-%s-state.json", cfg.LineID, cfg.Direction))
	cfg.SnapshotPath = filepath.Join(cfg.DataDir, fmt.Sprintf("stops-%s-%s.geojson", cfg.LineID, cfg.Direction))

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
