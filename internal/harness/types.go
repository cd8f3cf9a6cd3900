package harness

import (
	"github.com/roach88/gravindex/internal/engine"
	"github.com/roach88/gravindex/internal/ir"
)

// BatchTrace is one committed batch as seen by the harness.
type BatchTrace struct {
	BatchID    string        `json:"batch_id"`
	Setup      bool          `json:"setup,omitempty"`
	Events     int           `json:"events"`
	Handled    int           `json:"handled"`
	Mutations  []ir.Mutation `json:"mutations"`
	Checkpoint ir.Provenance `json:"checkpoint"`
}

func newBatchTrace(res *engine.BatchResult, setup bool) BatchTrace {
	return BatchTrace{
		BatchID:    res.BatchID,
		Setup:      setup,
		Events:     res.Events,
		Handled:    res.Handled,
		Mutations:  res.Mutations,
		Checkpoint: res.Checkpoint,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the run behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace holds committed batches in commit order, setup first.
	Trace []BatchTrace `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// RunError is the engine error, if the run failed.
	RunError string `json:"run_error,omitempty"`

	// State is the final committed state: entity type → id → fields.
	State map[string]map[string]ir.IRObject `json:"state,omitempty"`

	// Checkpoints are the final committed checkpoints per chain.
	Checkpoints map[uint64]ir.Provenance `json:"checkpoints,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []BatchTrace{},
		Errors:      []string{},
		State:       make(map[string]map[string]ir.IRObject),
		Checkpoints: make(map[uint64]ir.Provenance),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// eventBatches returns the batches committed after setup.
func (r *Result) eventBatches() []BatchTrace {
	var out []BatchTrace
	for _, b := range r.Trace {
		if !b.Setup {
			out = append(out, b)
		}
	}
	return out
}
