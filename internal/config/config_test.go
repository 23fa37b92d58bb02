package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"UNIT_ID", "PORT", "TICK_INTERVAL", "SIM_DT", "MQTT_BROKER", "MQTT_CLIENT_ID",
	"MONGO_URI", "MONGO_DB", "SQLITE_PATH", "JWT_SECRET", "JWT_EXPIRY", "OPERATOR_USERNAME",
	"OPERATOR_PASSWORD_HASH", "LOG_LEVEL", "LOG_FORMAT", "TRUSTED_PROXIES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "INT_WEB", cfg.UnitID)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 16*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 0.016, cfg.SimDT)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "intersection-INT_WEB", cfg.MQTTClientID)
	assert.Empty(t, cfg.MongoURI)
	assert.Equal(t, "traffic", cfg.MongoDB)
	assert.Empty(t, cfg.SQLitePath)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "operator", cfg.OperatorUsername)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("UNIT_ID", "INT_8A2F")
	t.Setenv("TICK_INTERVAL", "20ms")
	t.Setenv("SIM_DT", "0.02")
	t.Setenv("JWT_EXPIRY", "1h")
	t.Setenv("MQTT_BROKER", "")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, ,127.0.0.1")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "INT_8A2F", cfg.UnitID)
	assert.Equal(t, "intersection-INT_8A2F", cfg.MQTTClientID)
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 0.02, cfg.SimDT)
	assert.Equal(t, time.Hour, cfg.JWTExpiry)
	assert.Empty(t, cfg.MQTTBroker, "an explicitly empty broker disables MQTT")
	assert.Equal(t, []string{"10.0.0.1", "127.0.0.1"}, cfg.TrustedProxies)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICK_INTERVAL", "fast")
	t.Setenv("SIM_DT", "-1")
	t.Setenv("JWT_EXPIRY", "soon")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, 16*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 0.016, cfg.SimDT)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("UNIT_ID=INT_FILE\nMONGO_URI=mongodb://localhost:27017\nSQLITE_PATH=/var/lib/twin/events.db\n"), 0o600))

	cfg := Load(path)
	assert.Equal(t, "INT_FILE", cfg.UnitID)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "/var/lib/twin/events.db", cfg.SQLitePath)
}

func TestConfigureLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	Config{LogLevel: "debug", LogFormat: "json"}.ConfigureLogging()
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	_, ok := log.StandardLogger().Formatter.(*log.JSONFormatter)
	assert.True(t, ok)

	Config{LogLevel: "loud"}.ConfigureLogging()
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
