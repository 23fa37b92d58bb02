// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds every runtime setting of the intersection service.
type Config struct {
	UnitID string
	Port   string

	TickInterval time.Duration
	SimDT        float64

	MQTTBroker   string
	MQTTClientID string

	MongoURI string
	MongoDB  string
	// SQLitePath is a local event database used when MongoURI is empty.
	SQLitePath string

	JWTSecret            string
	JWTExpiry            time.Duration
	OperatorUsername     string
	OperatorPasswordHash string

	// TrustedProxies are peer addresses whose X-Forwarded-For is believed
	// when rate limiting.
	TrustedProxies []string

	LogLevel  string
	LogFormat string
}

// Load reads the optional env files and then the environment. Invalid
// numeric or duration values fall back to their defaults.
func Load(files ...string) Config {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to read env file")
	}

	cfg := Config{
		UnitID:               getenv("UNIT_ID", "INT_WEB"),
		Port:                 getenv("PORT", "8080"),
		TickInterval:         16 * time.Millisecond,
		SimDT:                0.016,
		MQTTBroker:           getenv("MQTT_BROKER", "tcp://localhost:1883"),
		MongoURI:             os.Getenv("MONGO_URI"),
		MongoDB:              getenv("MONGO_DB", "traffic"),
		SQLitePath:           os.Getenv("SQLITE_PATH"),
		JWTSecret:            getenv("JWT_SECRET", "default-secret-key-change-in-production"),
		JWTExpiry:            24 * time.Hour,
		OperatorUsername:     getenv("OPERATOR_USERNAME", "operator"),
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogFormat:            getenv("LOG_FORMAT", "text"),
	}
	cfg.MQTTClientID = getenv("MQTT_CLIENT_ID", "intersection-"+cfg.UnitID)

	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if v := os.Getenv("SIM_DT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.SimDT = f
		}
	}
	if v := os.Getenv("JWT_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.JWTExpiry = d
		}
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.TrustedProxies = append(cfg.TrustedProxies, p)
			}
		}
	}
	// MQTT_BROKER set to an empty value disables the broker.
	if v, ok := os.LookupEnv("MQTT_BROKER"); ok {
		cfg.MQTTBroker = strings.TrimSpace(v)
	}

	return cfg
}

// ConfigureLogging applies the level and formatter to the standard logger.
func (c Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
