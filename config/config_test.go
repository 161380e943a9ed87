package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Business.DispenseTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Business.IdempotencyTTL())
	assert.Equal(t, devJWTSecret, cfg.Auth.JWTSecret)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("DATABASE_URL", "file:clinic.db")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("LOW_STOCK_THRESHOLD", "3")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:clinic.db", cfg.Database.URL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Business.LowStockThreshold)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")
	_, err := Load(viper.New())
	assert.Error(t, err)
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	_, err := Load(viper.New())
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestFlagOverride(t *testing.T) {
	v := viper.New()
	v.Set("PORT", "7070")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
}
