package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidChain(t *testing.T) {
	tests := []struct {
		name     string
		chain    Chain
		expected bool
	}{
		{
			name:     "valid ethereum mainnet",
			chain:    ChainEthereumMainnet,
			expected: true,
		},
		{
			name:     "valid ethereum sepolia",
			chain:    ChainEthereumSepolia,
			expected: true,
		},
		{
			name:     "invalid empty chain",
			chain:    Chain(""),
			expected: false,
		},
		{
			name:     "invalid polygon chain",
			chain:    Chain("eip155:137"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidChain(tt.chain))
		})
	}
}

func TestTokenKey(t *testing.T) {
	key := NewTokenKey(ChainEthereumMainnet, "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D", "1234")
	assert.Equal(t, TokenKey("eip155:1:0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d:1234"), key)
	assert.True(t, key.Valid())

	chain, contract, tokenNumber := key.Parse()
	assert.Equal(t, ChainEthereumMainnet, chain)
	assert.Equal(t, "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d", contract)
	assert.Equal(t, "1234", tokenNumber)
}

func TestTokenKeyValid(t *testing.T) {
	tests := []struct {
		name     string
		key      TokenKey
		expected bool
	}{
		{
			name:     "valid key",
			key:      TokenKey("eip155:1:0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d:1"),
			expected: true,
		},
		{
			name:     "uppercase contract rejected",
			key:      TokenKey("eip155:1:0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D:1"),
			expected: false,
		},
		{
			name:     "unknown chain",
			key:      TokenKey("eip155:137:0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d:1"),
			expected: false,
		},
		{
			name:     "missing token number",
			key:      TokenKey("eip155:1:0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d"),
			expected: false,
		},
		{
			name:     "non-numeric token number",
			key:      TokenKey("eip155:1:0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d:abc"),
			expected: false,
		},
		{
			name:     "not an address",
			key:      TokenKey("eip155:1:nothex:1"),
			expected: false,
		},
		{
			name:     "empty",
			key:      TokenKey(""),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.key.Valid())
		})
	}
}

func TestAddressHelpers(t *testing.T) {
	assert.True(t, SameAddress("0xAbC123", "0xabc123"))
	assert.False(t, SameAddress("", ""))
	assert.False(t, SameAddress("0xabc", "0xdef"))

	assert.True(t, IsZeroAddress(ETHEREUM_ZERO_ADDRESS))
	assert.True(t, IsZeroAddress("0x0000000000000000000000000000000000000000"))
	assert.False(t, IsZeroAddress("0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d"))
}
