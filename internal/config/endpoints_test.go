package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvironment(t *testing.T) {
	for _, name := range []string{"production", "sandbox"} {
		t.Run("valid_"+name, func(t *testing.T) {
			cfg, err := GetEnvironment(name)
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.OAuthServer)
			assert.NotEmpty(t, cfg.APIBase)
		})
	}

	t.Run("unknown environment returns error", func(t *testing.T) {
		_, err := GetEnvironment("staging")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown environment")
	})

	t.Run("empty string falls back to production", func(t *testing.T) {
		cfg, err := GetEnvironment("")
		require.NoError(t, err)
		assert.Equal(t, Environments["production"], cfg)
	})

	t.Run("production has correct URLs", func(t *testing.T) {
		cfg, err := GetEnvironment("production")
		require.NoError(t, err)
		assert.Equal(t, "https://oauth.yandex.ru/authorize", cfg.AuthorizeURL())
		assert.Equal(t, "https://oauth.yandex.ru/token", cfg.TokenURL())
		assert.Equal(t, "https://api.direct.yandex.com/json/v5/campaigns", cfg.ServiceURL("campaigns"))
	})

	t.Run("sandbox uses sandbox API host", func(t *testing.T) {
		cfg, err := GetEnvironment("sandbox")
		require.NoError(t, err)
		assert.Equal(t, "https://api-sandbox.direct.yandex.com/json/v5/reports", cfg.ServiceURL("reports"))
	})
}

func TestValidEnvironments(t *testing.T) {
	names := ValidEnvironments()

	assert.Equal(t, []string{"production", "sandbox"}, names)
}
