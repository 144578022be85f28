package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 4, cfg.Grading.BulkConcurrency)
	assert.Equal(t, 500, cfg.Grading.BulkMaxItems)
	assert.True(t, cfg.Gradebook.CacheEnabled)
	assert.Equal(t, 5*time.Minute, cfg.Gradebook.CacheTTL)
	assert.Equal(t, 2*time.Second, cfg.Resync.RetryDelay)
}

func TestFromViperFallsBackOnInvalidValues(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("GRADING_BULK_CONCURRENCY", 0)
	v.Set("GRADEBOOK_CACHE_TTL", "soon")
	v.Set("JWT_AUDIENCE", "portal, ,mobile")

	cfg := fromViper(v)
	assert.Equal(t, 4, cfg.Grading.BulkConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.Gradebook.CacheTTL)
	assert.Equal(t, []string{"portal", "mobile"}, cfg.JWT.Audience)
}
