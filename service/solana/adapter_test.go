package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRandomEndpoint(t *testing.T) {
	t.Run("selects from configured endpoints", func(t *testing.T) {
		endpoints := []string{
			"https://api.mainnet-beta.solana.com",
			"https://mainnet.helius-rpc.com",
		}

		selected, err := SelectRandomEndpoint(endpoints)
		require.NoError(t, err)
		assert.Contains(t, endpoints, selected)
	})

	t.Run("error on empty list", func(t *testing.T) {
		_, err := SelectRandomEndpoint(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no RPC endpoints configured")
	})
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://api.mainnet-beta.solana.com", "api.mainnet-beta.solana.com"},
		{"https://mainnet.helius-rpc.com/?api-key=secret", "mainnet.helius-rpc.com"},
		{"not a url", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, EndpointLabel(tt.url))
		})
	}
}
