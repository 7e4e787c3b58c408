package llm

import (
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientByProvider(t *testing.T) {
	c, err := NewClient(ProviderOpenAI, "key")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = NewClient(ProviderAnthropic, "key")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	_, err = NewClient(Provider("mystery"), "key")
	assert.Error(t, err)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(ProviderOpenAI, "")
	assert.Error(t, err)

	_, err = NewClient(ProviderAnthropic, "")
	assert.Error(t, err)
}

func TestOpenAIEmbeddingModelConfigurable(t *testing.T) {
	c, err := NewOpenAIClient("key", "text-embedding-3-large")
	require.NoError(t, err)
	assert.Equal(t, openai.EmbeddingModel("text-embedding-3-large"), c.embeddingModel)

	c, err = NewOpenAIClient("key", "")
	require.NoError(t, err)
	assert.Equal(t, openai.SmallEmbedding3, c.embeddingModel)
}
