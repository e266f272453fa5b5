package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("NETWORTH_TEST_VALUE", "present")

	assert.Equal(t, "present", GetEnv("NETWORTH_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnv("NETWORTH_TEST_MISSING_VALUE", "fallback"))
}

func TestConfigureLogging(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	logger := ConfigureLogging()
	assert.Equal(t, "warning", logger.GetLevel().String())

	t.Setenv("LOG_LEVEL", "nonsense")
	logger = ConfigureLogging()
	assert.Equal(t, "info", logger.GetLevel().String())
}
