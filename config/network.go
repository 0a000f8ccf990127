// Package config holds per-network parameters: genesis identity, the fork
// schedule, checkpoint defaults, and peer endpoints. Built-in presets cover
// the public networks; a YAML file overrides or defines everything else.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/geanlabs/lantern/fork"
	"github.com/geanlabs/lantern/types"
)

// Network is one chain's configuration.
type Network struct {
	Name                  string       `yaml:"name"`
	GenesisTime           uint64       `yaml:"genesis_time"`
	GenesisValidatorsRoot types.Root   `yaml:"genesis_validators_root"`
	Forks                 []fork.Entry `yaml:"forks"`
	DefaultCheckpoint     types.Root   `yaml:"default_checkpoint,omitempty"`
	ConsensusRPC          string       `yaml:"consensus_rpc,omitempty"`
	Bootnodes             []string     `yaml:"bootnodes,omitempty"`
}

// Schedule builds the validated fork schedule.
func (n *Network) Schedule() (*fork.Schedule, error) {
	s, err := fork.NewSchedule(n.Forks)
	if err != nil {
		return nil, fmt.Errorf("network %q: %w", n.Name, err)
	}
	return s, nil
}

// Mainnet is the Ethereum mainnet preset.
func Mainnet() Network {
	return Network{
		Name:                  "mainnet",
		GenesisTime:           1606824023,
		GenesisValidatorsRoot: mustRoot("0x4b363db94e286120d76eb905340fdd4e54bfe9f06bf33ff6cf5ad27f511bfe95"),
		Forks: []fork.Entry{
			{Name: "phase0", Version: types.Version{0x00, 0x00, 0x00, 0x00}, Epoch: 0},
			{Name: "altair", Version: types.Version{0x01, 0x00, 0x00, 0x00}, Epoch: 74240},
			{Name: "bellatrix", Version: types.Version{0x02, 0x00, 0x00, 0x00}, Epoch: 144896},
			{Name: "capella", Version: types.Version{0x03, 0x00, 0x00, 0x00}, Epoch: 194048},
			{Name: "deneb", Version: types.Version{0x04, 0x00, 0x00, 0x00}, Epoch: 269568},
		},
		DefaultCheckpoint: mustRoot("0xc7fc7b2f4b548bfc9305fa80bc1865ddc6eea4557f0a80507af5dc34db7bd9ce"),
		ConsensusRPC:      "https://www.lightclientdata.org",
	}
}

// Sepolia is the Sepolia testnet preset.
func Sepolia() Network {
	return Network{
		Name:                  "sepolia",
		GenesisTime:           1655733600,
		GenesisValidatorsRoot: mustRoot("0xd8ea171f3c94aea21ebc42a1ed61052acf3f9209c00e4efbaaddac09ed9b8078"),
		Forks: []fork.Entry{
			{Name: "phase0", Version: types.Version{0x90, 0x00, 0x00, 0x69}, Epoch: 0},
			{Name: "altair", Version: types.Version{0x90, 0x00, 0x00, 0x70}, Epoch: 50},
			{Name: "bellatrix", Version: types.Version{0x90, 0x00, 0x00, 0x71}, Epoch: 100},
			{Name: "capella", Version: types.Version{0x90, 0x00, 0x00, 0x72}, Epoch: 56832},
			{Name: "deneb", Version: types.Version{0x90, 0x00, 0x00, 0x73}, Epoch: 132608},
		},
	}
}

// ByName resolves a built-in preset.
func ByName(name string) (Network, error) {
	switch name {
	case "mainnet":
		return Mainnet(), nil
	case "sepolia":
		return Sepolia(), nil
	default:
		return Network{}, fmt.Errorf("unknown network %q", name)
	}
}

// Load reads a network definition from a YAML file.
func Load(path string) (Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Network{}, fmt.Errorf("read network config: %w", err)
	}
	var n Network
	if err := yaml.Unmarshal(data, &n); err != nil {
		return Network{}, fmt.Errorf("parse network config: %w", err)
	}
	if n.Name == "" {
		return Network{}, fmt.Errorf("network config %s: missing name", path)
	}
	if len(n.Forks) == 0 {
		return Network{}, fmt.Errorf("network config %s: missing fork schedule", path)
	}
	if _, err := n.Schedule(); err != nil {
		return Network{}, err
	}
	return n, nil
}

func mustRoot(s string) types.Root {
	var r types.Root
	if err := r.UnmarshalText([]byte(s)); err != nil {
		panic(err)
	}
	return r
}
