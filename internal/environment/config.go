// Package environment reads deployment configuration from the process
// environment, with a .env file merged in when present.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type EnvConfig struct {
	// JobeServers is a semicolon separated list of jobe base URLs; jobs
	// are routed between them by job id hash.
	JobeServers string
	JobeAPIKey  string
	JobeTimeout time.Duration

	FileStoreDir     string
	FileStoreBaseURL string

	GradeCacheDir string

	NatsURL     string
	NatsSubject string

	AWSRegion      string
	SQSResponseURL string
}

// ReadEnvConfig loads configuration, applying defaults for everything that
// only matters in larger deployments. A missing .env file is not an error.
func ReadEnvConfig() (*EnvConfig, error) {
	_ = godotenv.Load()

	cfg := &EnvConfig{
		JobeServers:      getenv("JOBE_SERVERS", "http://localhost:4000"),
		JobeAPIKey:       os.Getenv("JOBE_API_KEY"),
		FileStoreDir:     getenv("FILESTORE_DIR", "var/marker/files"),
		FileStoreBaseURL: getenv("FILESTORE_BASE_URL", "http://localhost:8080/files"),
		GradeCacheDir:    getenv("GRADE_CACHE_DIR", "var/marker/cache"),
		NatsURL:          os.Getenv("NATS_URL"),
		NatsSubject:      getenv("NATS_SUBJECT", "marker.progress"),
		AWSRegion:        getenv("AWS_REGION", "eu-central-1"),
		SQSResponseURL:   os.Getenv("SQS_RESPONSE_URL"),
	}

	timeoutSecs := getenv("JOBE_TIMEOUT_SECS", "30")
	secs, err := strconv.Atoi(timeoutSecs)
	if err != nil || secs <= 0 {
		return nil, fmt.Errorf("invalid JOBE_TIMEOUT_SECS value %q", timeoutSecs)
	}
	cfg.JobeTimeout = time.Duration(secs) * time.Second

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
