package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChainProfile configures one anchor chain.
type ChainProfile struct {
	Name    string  `yaml:"name" json:"name"`
	Kind    string  `yaml:"kind" json:"kind"` // "evm" | "solana" | "mock"
	RPCURL  string  `yaml:"rpc_url" json:"rpc_url"`
	ChainID int64   `yaml:"chain_id,omitempty" json:"chain_id,omitempty"`
	KeyEnv  string  `yaml:"key_env,omitempty" json:"key_env,omitempty"`
	MaxRPS  float64 `yaml:"max_rps,omitempty" json:"max_rps,omitempty"`
	Enabled bool    `yaml:"enabled" json:"enabled"`
}

// ChainsFile is the on-disk layout of chains.yaml.
type ChainsFile struct {
	Chains []ChainProfile `yaml:"chains" json:"chains"`
}

// Key resolves the chain's signing key from the environment variable the
// profile names. Profiles without a key_env run verify-only.
func (p *ChainProfile) Key() string {
	if p.KeyEnv == "" {
		return ""
	}
	return os.Getenv(p.KeyEnv)
}

// LoadChains reads a chains.yaml file and returns the enabled profiles in
// file order.
func LoadChains(path string) ([]ChainProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load chains file: %w", err)
	}

	var file ChainsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse chains file: %w", err)
	}

	var enabled []ChainProfile
	for i, c := range file.Chains {
		if c.Name == "" {
			return nil, fmt.Errorf("chains file: entry %d has no name", i)
		}
		switch c.Kind {
		case "evm", "solana", "mock":
		default:
			return nil, fmt.Errorf("chains file: %s has unknown kind %q", c.Name, c.Kind)
		}
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	return enabled, nil
}
