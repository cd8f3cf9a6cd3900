package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gravindex/internal/ir"
)

// Scenario defines an indexer test: events to feed the engine and the
// state they must leave behind.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the path of an indexer config. Relative paths are resolved
	// against the scenario file's directory by LoadScenario. When set, the
	// registry and event filtering come from the config.
	Config string `yaml:"config,omitempty"`

	// Handlers maps contract names to built-in indexer names. Used when
	// Config is empty.
	Handlers map[string]string `yaml:"handlers,omitempty"`

	// BatchSize caps events per batch. 0 keeps the engine default.
	BatchSize int `yaml:"batch_size,omitempty"`

	// Setup events are committed before Events, as their own batches.
	Setup []ir.Event `yaml:"setup,omitempty"`

	// Events is the main input.
	Events []ir.Event `yaml:"events"`

	// ExpectError, when set, requires the run to fail with an error
	// containing it.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the committed state and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates committed state or the batch trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Entity and ID select an entity (entity, entity_absent,
	// entity_count, mutation_count).
	Entity string `yaml:"entity,omitempty"`
	ID     string `yaml:"id,omitempty"`

	// Expect contains expected field values (entity). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number (entity_count, mutation_count,
	// batch_count).
	Count *int `yaml:"count,omitempty"`

	// Refs is the expected first-write order (mutation_order).
	Refs []string `yaml:"refs,omitempty"`

	// Chain, Block and LogIndex locate the expected checkpoint.
	Chain    uint64 `yaml:"chain,omitempty"`
	Block    uint64 `yaml:"block,omitempty"`
	LogIndex uint64 `yaml:"log_index,omitempty"`
}

// Assertion type constants.
const (
	AssertEntity        = "entity"
	AssertEntityAbsent  = "entity_absent"
	AssertEntityCount   = "entity_count"
	AssertMutationCount = "mutation_count"
	AssertMutationOrder = "mutation_order"
	AssertBatchCount    = "batch_count"
	AssertCheckpoint    = "checkpoint"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and a relative Config path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Config != "" && !filepath.IsAbs(scenario.Config) {
		scenario.Config = filepath.Join(filepath.Dir(path), scenario.Config)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes a scenario without validating it.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Config == "" && len(s.Handlers) == 0 {
		return fmt.Errorf("either config or handlers is required")
	}
	if s.Config != "" {
		if _, err := os.Stat(s.Config); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", s.Config)
		}
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("batch_size must be non-negative")
	}

	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	for i, ev := range append(append([]ir.Event{}, s.Setup...), s.Events...) {
		if ev.Contract == "" && ev.Address == "" {
			return fmt.Errorf("event[%d]: contract or address is required", i)
		}
		if ev.Kind == "" {
			return fmt.Errorf("event[%d]: kind is required", i)
		}
	}

	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEntity:
		if a.Entity == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: entity and id are required for entity", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for entity", index)
		}
	case AssertEntityAbsent:
		if a.Entity == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: entity and id are required for entity_absent", index)
		}
	case AssertEntityCount:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for entity_count", index)
		}
		fallthrough
	case AssertMutationCount, AssertBatchCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertMutationOrder:
		if len(a.Refs) == 0 {
			return fmt.Errorf("assertions[%d]: refs list is required for mutation_order", index)
		}
	case AssertCheckpoint:
		if a.Chain == 0 {
			return fmt.Errorf("assertions[%d]: chain is required for checkpoint", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
