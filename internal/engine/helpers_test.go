package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/gravindex/internal/ir"
	"github.com/roach88/gravindex/internal/store"
	"github.com/roach88/gravindex/internal/testutil"
)

// counter is the test entity: a keyed accumulator.
type counter struct {
	ID    string
	Count int64
	Label string
}

var counters = Table[counter]{
	Name: "Counter",
	Key:  func(c counter) string { return c.ID },
	Encode: func(c counter) (ir.IRObject, error) {
		obj := ir.IRObject{
			"id":    ir.IRString(c.ID),
			"count": ir.IRInt(c.Count),
		}
		if c.Label != "" {
			obj["label"] = ir.IRString(c.Label)
		}
		return obj, nil
	},
	Decode: func(obj ir.IRObject) (counter, error) {
		var c counter
		var err error
		if c.ID, err = obj.String("id"); err != nil {
			return c, err
		}
		if c.Count, err = obj.Int("count"); err != nil {
			return c, err
		}
		if _, ok := obj["label"]; ok {
			if c.Label, err = obj.String("label"); err != nil {
				return c, err
			}
		}
		return c, nil
	},
}

type bumpParams struct {
	ID string `json:"id"`
}

type createParams struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// loadBump declares the counter it bumps.
func loadBump(lc *LoadContext, p bumpParams) error {
	counters.Load(lc, p.ID)
	return nil
}

// handleBump is count = previous + 1, else 1.
func handleBump(hc *HandlerContext, p bumpParams) error {
	prev, err := counters.Get(hc, p.ID)
	if err != nil {
		return err
	}
	next := ir.MapOption(prev, counter{ID: p.ID, Count: 1}, func(c counter) counter {
		c.Count++
		return c
	})
	return counters.Update(hc, next)
}

func handleCreate(hc *HandlerContext, p createParams) error {
	return counters.Insert(hc, counter{ID: p.ID, Label: p.Label})
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	Register(r, "Counter", "Bump", loadBump, handleBump)
	Register(r, "Counter", "Create", nil, handleCreate)
	return r
}

func bump(id string, block, logIndex uint64) ir.Event {
	return ir.Event{
		Contract:   "Counter",
		Kind:       "Bump",
		Params:     bumpParams{ID: id},
		Provenance: ir.Provenance{ChainID: 1, Block: block, LogIndex: logIndex},
	}
}

func create(id, label string, block, logIndex uint64) ir.Event {
	return ir.Event{
		Contract:   "Counter",
		Kind:       "Create",
		Params:     createParams{ID: id, Label: label},
		Provenance: ir.Provenance{ChainID: 1, Block: block, LogIndex: logIndex},
	}
}

func setupTestStore(t *testing.T) *store.Store {
	return testutil.OpenStore(t)
}

func newTestCoordinator(d Durable, opts ...EngineOption) *Coordinator {
	es := NewEntityStore(d)
	opts = append([]EngineOption{WithBatchIDGenerator(NewSequentialGenerator("batch"))}, opts...)
	return NewCoordinator(es, NewPlanner(newTestRegistry(), 4), opts...)
}

func getCounter(t *testing.T, s *store.Store, id string) (counter, bool) {
	t.Helper()
	obj, ok, err := s.Get(context.Background(), ir.EntityRef{Type: "Counter", ID: id})
	require.NoError(t, err)
	if !ok {
		return counter{}, false
	}
	c, err := counters.Decode(obj)
	require.NoError(t, err)
	return c, true
}

// memDurable is an in-memory Durable with failure injection.
type memDurable struct {
	mu         sync.Mutex
	rows       map[ir.EntityRef]ir.IRObject
	cps        map[uint64]ir.Provenance
	commits    []ir.CommitSet
	fetchCalls map[string]int

	// commitErrs are returned by successive Commit calls; nil entries
	// succeed. Once exhausted, commits succeed.
	commitErrs []error
	fetchErr   error

	// lostAcks commits are applied but reported as timed out.
	lostAcks int

	// uniqueBatchIDs rejects a batch id already committed.
	uniqueBatchIDs bool
	commitCalls    int

	// fetchGate, when set, blocks FetchMany until closed or ctx is done.
	fetchGate chan struct{}
}

func newMemDurable() *memDurable {
	return &memDurable{
		rows:       make(map[ir.EntityRef]ir.IRObject),
		cps:        make(map[uint64]ir.Provenance),
		fetchCalls: make(map[string]int),
	}
}

func (m *memDurable) FetchMany(ctx context.Context, entityType string, ids []string) (map[string]ir.IRObject, error) {
	if m.fetchGate != nil {
		select {
		case <-m.fetchGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls[entityType]++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make(map[string]ir.IRObject)
	for _, id := range ids {
		if obj, ok := m.rows[ir.EntityRef{Type: entityType, ID: id}]; ok {
			out[id] = obj.Clone()
		}
	}
	return out, nil
}

func (m *memDurable) Commit(ctx context.Context, set ir.CommitSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCalls++
	if len(m.commitErrs) > 0 {
		err := m.commitErrs[0]
		m.commitErrs = m.commitErrs[1:]
		if err != nil {
			return err
		}
	}
	if m.uniqueBatchIDs && m.hasBatch(set.BatchID) {
		return fmt.Errorf("batch %s: %w", set.BatchID, ir.ErrBatchCommitted)
	}
	for _, mut := range set.Mutations {
		m.rows[mut.Ref] = mut.Data.Clone()
	}
	for _, cp := range set.Checkpoints {
		m.cps[cp.ChainID] = cp
	}
	m.commits = append(m.commits, set)
	if m.lostAcks > 0 {
		m.lostAcks--
		return context.DeadlineExceeded
	}
	return nil
}

func (m *memDurable) HasBatch(ctx context.Context, batchID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasBatch(batchID), nil
}

func (m *memDurable) hasBatch(batchID string) bool {
	for _, set := range m.commits {
		if set.BatchID == batchID {
			return true
		}
	}
	return false
}

// unloggedDurable hides memDurable's batch log.
type unloggedDurable struct {
	m *memDurable
}

func (u unloggedDurable) FetchMany(ctx context.Context, entityType string, ids []string) (map[string]ir.IRObject, error) {
	return u.m.FetchMany(ctx, entityType, ids)
}

func (u unloggedDurable) Commit(ctx context.Context, set ir.CommitSet) error {
	return u.m.Commit(ctx, set)
}

func (u unloggedDurable) Checkpoints(ctx context.Context) (map[uint64]ir.Provenance, error) {
	return u.m.Checkpoints(ctx)
}

func (m *memDurable) Checkpoints(ctx context.Context) (map[uint64]ir.Provenance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]ir.Provenance, len(m.cps))
	for k, v := range m.cps {
		out[k] = v
	}
	return out, nil
}

func (m *memDurable) count(id string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.rows[ir.EntityRef{Type: "Counter", ID: id}]
	if !ok {
		return 0, false
	}
	n, _ := obj.Int("count")
	return n, true
}

func (m *memDurable) commitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commits)
}

// fastRetry retries immediately.
func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}
