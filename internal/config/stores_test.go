package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStoreConfigHolderScopeFallback(t *testing.T) {
	holder, err := NewStoreConfigHolder([]string{"testdata"}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "epayment", holder.GetValue(KeyProtocol, "store-dk"))
	assert.Equal(t, "DKK", holder.GetValue(KeyBaseCurrency, "store-dk"))
	assert.Equal(t, "123456", holder.GetValue(KeyMerchantSerialNumber, "store-dk"))
	assert.True(t, holder.GetBool(KeyOfflinePartialVoid, "store-dk"))

	assert.Equal(t, "ecom", holder.GetValue(KeyProtocol, "store-se"))
	assert.Equal(t, "manual", holder.GetValue(KeyCancellationPolicy, "store-se"))
	assert.False(t, holder.GetBool(KeyOfflinePartialVoid, "store-se"))

	assert.Equal(t, "ecom", holder.GetValue(KeyProtocol, "unknown-store"))
	assert.Equal(t, "https://apitest.vipps.no", holder.BaseURL("store-dk"))
}

func TestStoreConfigHolderMissingFileUsesDefaults(t *testing.T) {
	holder, err := NewStoreConfigHolder([]string{t.TempDir()}, nil)
	require.NoError(t, err)

	assert.Equal(t, "ecom", holder.GetValue(KeyProtocol, ""))
	assert.Equal(t, "automatic", holder.GetValue(KeyCancellationPolicy, "any"))
}

func TestStaticStoreConfig(t *testing.T) {
	holder := NewStaticStoreConfig(map[string]map[string]string{
		"Store-A": {"BASE_URL": "http://localhost:9000/"},
	})

	assert.Equal(t, "http://localhost:9000", holder.BaseURL("store-a"))
	assert.Equal(t, "", holder.GetValue(KeyProtocol, "store-a"))
}
