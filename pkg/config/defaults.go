// Package config provides centralized default values for the beacon binaries
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
		log.Printf("Config ignored: %s=%q is not an integer", key, valStr)
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

// getEnvSecret never logs the value.
func getEnvSecret(key string) string {
	if val := os.Getenv(key); val != "" {
		log.Printf("Config override: %s is set", key)
		return val
	}
	return ""
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
		log.Printf("Config ignored: %s=%q is not a boolean", key, valStr)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
		log.Printf("Config ignored: %s=%q is not a duration", key, valStr)
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	log.Printf("Config override: %s=%s", key, strings.Join(out, ","))
	return out
}

var (
	// Collector Configuration
	BeaconEndpoint         string
	BeaconBaseURL          string
	BeaconBatchSize        int
	BeaconFlushInterval    time.Duration
	BeaconTrackClicks      bool
	BeaconTrackScroll      bool
	BeaconTrackMouse       bool
	BeaconTrackPerformance bool
	BeaconCompress         bool
	BeaconUnloadTimeout    time.Duration

	// Identity Store
	BeaconIdentityDSN       string
	BeaconIdentityAuthToken string

	// Sink Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	ShutdownTimeout    time.Duration

	// Sink Ingest Policy
	SinkCSRFSecret     string
	SinkCSRFTTL        time.Duration
	SinkRequireCSRF    bool
	SinkAllowedOrigins []string
	SinkMaxBodyBytes   int

	// Logging
	LogLevel     string
	LogFormat    string
	LogToFile    bool
	LogDirectory string
)

func init() {
	Load()
}

// Load reads every setting from the environment, after applying a .env file
// in the working directory once per process.
func Load() {
	loadEnvFile()

	// Collector Configuration
	BeaconEndpoint = getEnvString("BEACON_ENDPOINT", "/api/analytics/track")
	BeaconBaseURL = getEnvString("BEACON_BASE_URL", "http://localhost:8080")
	BeaconBatchSize = getEnvInt("BEACON_BATCH_SIZE", 10)
	BeaconFlushInterval = getEnvDuration("BEACON_FLUSH_INTERVAL", 5*time.Second)
	BeaconTrackClicks = getEnvBool("BEACON_TRACK_CLICKS", true)
	BeaconTrackScroll = getEnvBool("BEACON_TRACK_SCROLL", true)
	BeaconTrackMouse = getEnvBool("BEACON_TRACK_MOUSE", true)
	BeaconTrackPerformance = getEnvBool("BEACON_TRACK_PERFORMANCE", true)
	BeaconCompress = getEnvBool("BEACON_COMPRESS", false)
	BeaconUnloadTimeout = getEnvDuration("BEACON_UNLOAD_TIMEOUT", 5*time.Second)

	// Identity Store
	BeaconIdentityDSN = getEnvString("BEACON_IDENTITY_DSN", "")
	BeaconIdentityAuthToken = getEnvSecret("BEACON_IDENTITY_AUTH_TOKEN")

	// Sink Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)

	// Sink Ingest Policy
	SinkCSRFSecret = getEnvSecret("SINK_CSRF_SECRET")
	SinkCSRFTTL = getEnvDuration("SINK_CSRF_TTL", 2*time.Hour)
	SinkRequireCSRF = getEnvBool("SINK_REQUIRE_CSRF", false)
	SinkAllowedOrigins = getEnvList("SINK_ALLOWED_ORIGINS", []string{
		"http://localhost:3000",
		"http://localhost:4321",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:4321",
	})
	SinkMaxBodyBytes = getEnvInt("SINK_MAX_BODY_BYTES", 1<<20)

	// Logging
	LogLevel = getEnvString("LOG_LEVEL", "info")
	LogFormat = getEnvString("LOG_FORMAT", "json")
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
}
