// Package config loads indexer configuration files.
//
// A config is YAML. It is first validated against an embedded CUE schema,
// then decoded into Config and checked for cross-references: every
// network contract must name a global contract or carry its own handler
// and events, and every event signature must parse.
//
// Example:
//
//	name: gravatar
//	contracts:
//	  - name: Gravatar
//	    handler: gravatar
//	    events:
//	      - event: "NewGravatar(uint256 id, address owner, string displayName, string imageUrl)"
//	      - event: "UpdatedGravatar(uint256 id, address owner, string displayName, string imageUrl)"
//	networks:
//	  - id: 1
//	    start_block: 0
//	    contracts:
//	      - name: Gravatar
//	        address: "0x2E645469f354BB4F5c8a05B3b30A929361cf77eC"
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Config is a decoded indexer config.
type Config struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description,omitempty"`
	Schema          string         `yaml:"schema,omitempty"`
	SaveFullHistory bool           `yaml:"save_full_history,omitempty"`
	Contracts       []Contract     `yaml:"contracts,omitempty"`
	Networks        []Network      `yaml:"networks"`
	Engine          EngineSettings `yaml:"engine,omitempty"`
}

// Contract is a contract definition shared by every network.
type Contract struct {
	Name        string  `yaml:"name"`
	Handler     string  `yaml:"handler"`
	ABIFilePath string  `yaml:"abi_file_path,omitempty"`
	Events      []Event `yaml:"events"`
}

// Event is one configured event signature.
type Event struct {
	Event   string `yaml:"event"`
	IsAsync bool   `yaml:"isAsync,omitempty"`
}

// Network is one chain and the contracts indexed on it.
type Network struct {
	ID                      uint64            `yaml:"id"`
	StartBlock              uint64            `yaml:"start_block"`
	EndBlock                *uint64           `yaml:"end_block,omitempty"`
	ConfirmedBlockThreshold *int              `yaml:"confirmed_block_threshold,omitempty"`
	Contracts               []NetworkContract `yaml:"contracts"`
}

// NetworkContract places a contract on a network. Handler and Events are
// set only for contracts defined locally instead of in Config.Contracts.
type NetworkContract struct {
	Name        string    `yaml:"name"`
	Address     Addresses `yaml:"address,omitempty"`
	Handler     string    `yaml:"handler,omitempty"`
	ABIFilePath string    `yaml:"abi_file_path,omitempty"`
	Events      []Event   `yaml:"events,omitempty"`
}

// Addresses accepts a single address or a list of them.
type Addresses []string

func (a *Addresses) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*a = Addresses{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: address must be a string or a list of strings", node.Line)
	}
}

// EngineSettings tunes batching and retries.
type EngineSettings struct {
	BatchSize       int      `yaml:"batch_size,omitempty"`
	LoadConcurrency int      `yaml:"load_concurrency,omitempty"`
	FetchTimeout    Duration `yaml:"fetch_timeout,omitempty"`
	CommitTimeout   Duration `yaml:"commit_timeout,omitempty"`
	MaxAttempts     int      `yaml:"max_attempts,omitempty"`
	BackoffBase     Duration `yaml:"backoff_base,omitempty"`
	BackoffMax      Duration `yaml:"backoff_max,omitempty"`
}

// Duration is a time.Duration written as "30s", "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if v < 0 {
		return fmt.Errorf("line %d: negative duration %s", node.Line, s)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ContractDef is a contract with its handler and parsed events resolved,
// whether it was defined globally or on a network.
type ContractDef struct {
	Name    string
	Handler string
	Events  []EventSignature
}

// Load reads and parses the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes a YAML config.
func Parse(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if doc == nil {
		return nil, &ValidationError{Message: "config is empty"}
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Name = stripToLetters(c.Name)
	for i := range c.Networks {
		for j := range c.Networks[i].Contracts {
			nc := &c.Networks[i].Contracts[j]
			for k, a := range nc.Address {
				nc.Address[k] = NormalizeAddress(a)
			}
		}
	}
}

// check validates cross-references the schema cannot express.
func (c *Config) check() error {
	var errs ValidationErrors
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if c.Name == "" {
		add("name", "must contain at least one letter")
	}

	global := make(map[string]bool, len(c.Contracts))
	for i, ct := range c.Contracts {
		if global[ct.Name] {
			add(fmt.Sprintf("contracts.%d.name", i), "duplicate contract %q", ct.Name)
		}
		global[ct.Name] = true
		for j, ev := range ct.Events {
			if _, err := ParseSignature(ev.Event); err != nil {
				add(fmt.Sprintf("contracts.%d.events.%d.event", i, j), "%v", err)
			}
		}
	}

	chains := make(map[uint64]bool, len(c.Networks))
	for i, n := range c.Networks {
		path := fmt.Sprintf("networks.%d", i)
		if chains[n.ID] {
			add(path+".id", "duplicate network %d", n.ID)
		}
		chains[n.ID] = true
		if n.EndBlock != nil && *n.EndBlock < n.StartBlock {
			add(path+".end_block", "end_block %d is before start_block %d", *n.EndBlock, n.StartBlock)
		}

		owner := make(map[string]string)
		for j, nc := range n.Contracts {
			cpath := fmt.Sprintf("%s.contracts.%d", path, j)
			local := nc.Handler != "" || len(nc.Events) > 0
			switch {
			case local && global[nc.Name]:
				add(cpath, "contract %q is defined globally and locally", nc.Name)
			case local && nc.Handler == "":
				add(cpath+".handler", "local contract %q needs a handler", nc.Name)
			case !local && !global[nc.Name]:
				add(cpath+".name", "unknown contract %q", nc.Name)
			}
			for k, ev := range nc.Events {
				if _, err := ParseSignature(ev.Event); err != nil {
					add(fmt.Sprintf("%s.events.%d.event", cpath, k), "%v", err)
				}
			}
			for _, a := range nc.Address {
				if !isHexAddress(a) {
					add(cpath+".address", "invalid address %q", a)
					continue
				}
				if prev, ok := owner[a]; ok && prev != nc.Name {
					add(cpath+".address", "address %s already belongs to %q", a, prev)
				}
				owner[a] = nc.Name
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ContractDefs returns every contract definition, global ones first,
// then locally defined ones in network order. Signatures have already
// been validated by Parse.
func (c *Config) ContractDefs() []ContractDef {
	var defs []ContractDef
	seen := make(map[string]bool)
	add := func(name, handler string, events []Event) {
		if seen[name] {
			return
		}
		seen[name] = true
		def := ContractDef{Name: name, Handler: handler}
		for _, ev := range events {
			sig, err := ParseSignature(ev.Event)
			if err != nil {
				continue
			}
			def.Events = append(def.Events, sig)
		}
		defs = append(defs, def)
	}

	for _, ct := range c.Contracts {
		add(ct.Name, ct.Handler, ct.Events)
	}
	for _, n := range c.Networks {
		for _, nc := range n.Contracts {
			if nc.Handler != "" {
				add(nc.Name, nc.Handler, nc.Events)
			}
		}
	}
	return defs
}

// NormalizeAddress lowercases and trims an address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func isHexAddress(a string) bool {
	if len(a) != 42 || !strings.HasPrefix(a, "0x") {
		return false
	}
	for _, r := range a[2:] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func stripToLetters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
