package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()

	assert.Equal(t, "0.0.0.0:5001", viper.GetString("listen_addr"))
	assert.Equal(t, 1800, viper.GetInt("session_ttl_seconds"))
	assert.Equal(t, 10, viper.GetInt("command_timeout_seconds"))
	assert.Equal(t, 300, viper.GetInt("transfer_timeout_seconds"))
	assert.Equal(t, "job_output", viper.GetString("output_dir"))
	assert.Equal(t, "sqlite", viper.GetString("store.type"))
}

func TestEnvOverride(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("TN3270D_SESSION_TTL_SECONDS", "60")
	viper.SetEnvPrefix("TN3270D")
	viper.AutomaticEnv()
	SetDefaults()

	assert.Equal(t, 60, viper.GetInt("session_ttl_seconds"))
}
