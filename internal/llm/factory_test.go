package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-assistant/internal/config"
)

func TestFactoryCreateClient(t *testing.T) {
	f := NewFactory(&config.Config{OpenAIAPIKey: "sk-test", OpenAITemperature: 0.7})

	c, err := f.CreateClient("OpenAI", "gpt-4o-mini")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = f.CreateClient("mistral", "m")
	assert.ErrorContains(t, err, "unknown llm provider")

	_, err = NewFactory(&config.Config{}).CreateClient(config.ProviderOpenAI, "m")
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}
