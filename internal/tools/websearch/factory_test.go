package websearch

import (
	"io"
	"testing"

	"github.com/sammcj/mcp-websearch/internal/config"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	for _, name := range []string{provider.NameGemini, provider.NameCodeAssist, provider.NameOpenAI, provider.NameOpenRouter} {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Provider = name
			cfg.Model = "some-model"

			p, err := NewProvider(cfg, logger)
			require.NoError(t, err)
			assert.Equal(t, name, p.Name())
		})
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.Provider = "openrouter"

	_, err := NewProvider(cfg, logger)
	require.Error(t, err)
	assert.Equal(t, provider.ErrorTypeValidation, provider.ErrorType(err))

	cfg.Provider = "bing"
	cfg.Model = "x"
	_, err = NewProvider(cfg, logger)
	assert.Equal(t, provider.ErrorTypeValidation, provider.ErrorType(err))
}
