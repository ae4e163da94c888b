package gate

import (
	"fmt"
	"math/big"
)

// NetworkType represents the blockchain virtual machine type.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeEVM represents Ethereum Virtual Machine chains.
	NetworkTypeEVM
	// NetworkTypeSVM represents Solana Virtual Machine chains.
	NetworkTypeSVM
)

// Network is a supported blockchain network. The set is closed: every value
// carries its domain parameters in the table below, so an unrecognized
// network identifier can never fall through with partial configuration.
type Network int

const (
	// NetworkBase is Base mainnet.
	NetworkBase Network = iota + 1
	// NetworkBaseSepolia is the Base Sepolia testnet.
	NetworkBaseSepolia
	// NetworkPolygon is Polygon PoS mainnet.
	NetworkPolygon
	// NetworkPolygonAmoy is the Polygon Amoy testnet.
	NetworkPolygonAmoy
	// NetworkAvalanche is Avalanche C-Chain mainnet.
	NetworkAvalanche
	// NetworkAvalancheFuji is the Avalanche Fuji testnet.
	NetworkAvalancheFuji
	// NetworkSolana is Solana mainnet.
	NetworkSolana
	// NetworkSolanaDevnet is Solana devnet.
	NetworkSolanaDevnet
)

// NetworkConfig contains chain-specific configuration for USDC payments.
// All USDC addresses and EIP-3009 parameters were verified on 2025-10-28
// (base-sepolia re-verified 2025-10-30 via on-chain contract read).
type NetworkConfig struct {
	// ID is the x402 protocol network identifier (e.g., "base", "solana").
	ID string

	// Type is the virtual machine family of the chain.
	Type NetworkType

	// ChainID is the EVM chain ID used in the EIP-712 domain (nil for SVM).
	ChainID *big.Int

	// USDCAddress is the official Circle USDC contract or mint address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals uint8

	// TokenName is the EIP-712 domain parameter "name" (empty for SVM chains).
	TokenName string

	// TokenVersion is the EIP-712 domain parameter "version" (empty for SVM chains).
	TokenVersion string
}

var networkConfigs = map[Network]NetworkConfig{
	NetworkBase: {
		ID:           "base",
		Type:         NetworkTypeEVM,
		ChainID:      big.NewInt(8453),
		USDCAddress:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:     6,
		TokenName:    "USD Coin",
		TokenVersion: "2",
	},
	NetworkBaseSepolia: {
		ID:           "base-sepolia",
		Type:         NetworkTypeEVM,
		ChainID:      big.NewInt(84532),
		USDCAddress:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:     6,
		TokenName:    "USDC",
		TokenVersion: "2",
	},
	NetworkPolygon: {
		ID:           "polygon",
		Type:         NetworkTypeEVM,
		ChainID:      big.NewInt(137),
		USDCAddress:  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:     6,
		TokenName:    "USD Coin",
		TokenVersion: "2",
	},
	NetworkPolygonAmoy: {
		ID:           "polygon-amoy",
		Type:         NetworkTypeEVM,
		ChainID:      big.NewInt(80002),
		USDCAddress:  "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		Decimals:     6,
		TokenName:    "USDC",
		TokenVersion: "2",
	},
	NetworkAvalanche: {
		ID:           "avalanche",
		Type:         NetworkTypeEVM,
		ChainID:      big.NewInt(43114),
		USDCAddress:  "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Decimals:     6,
		TokenName:    "USD Coin",
		TokenVersion: "2",
	},
	NetworkAvalancheFuji: {
		ID:           "avalanche-fuji",
		Type:         NetworkTypeEVM,
		ChainID:      big.NewInt(43113),
		USDCAddress:  "0x5425890298aed601595a70AB815c96711a31Bc65",
		Decimals:     6,
		TokenName:    "USD Coin",
		TokenVersion: "2",
	},
	NetworkSolana: {
		ID:          "solana",
		Type:        NetworkTypeSVM,
		USDCAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:    6,
	},
	NetworkSolanaDevnet: {
		ID:          "solana-devnet",
		Type:        NetworkTypeSVM,
		USDCAddress: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Decimals:    6,
	},
}

var networksByID = func() map[string]Network {
	m := make(map[string]Network, len(networkConfigs))
	for n, cfg := range networkConfigs {
		m[cfg.ID] = n
	}
	return m
}()

// ParseNetwork resolves a network identifier to a supported Network.
// Returns ErrUnsupportedNetwork for anything outside the table.
func ParseNetwork(id string) (Network, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: empty network identifier", ErrUnsupportedNetwork)
	}
	n, ok := networksByID[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, id)
	}
	return n, nil
}

// AllNetworks returns every supported network in declaration order.
func AllNetworks() []Network {
	return []Network{
		NetworkBase,
		NetworkBaseSepolia,
		NetworkPolygon,
		NetworkPolygonAmoy,
		NetworkAvalanche,
		NetworkAvalancheFuji,
		NetworkSolana,
		NetworkSolanaDevnet,
	}
}

// Config returns the chain configuration for the network.
// Panics on a Network value outside the table, which cannot be produced by
// ParseNetwork.
func (n Network) Config() NetworkConfig {
	cfg, ok := networkConfigs[n]
	if !ok {
		panic(fmt.Sprintf("gate: unknown network %d", int(n)))
	}
	return cfg
}

// ID returns the protocol network identifier.
func (n Network) ID() string { return n.Config().ID }

// Type returns the virtual machine family of the network.
func (n Network) Type() NetworkType { return n.Config().Type }

// String implements fmt.Stringer.
func (n Network) String() string { return n.Config().ID }
