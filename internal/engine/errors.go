package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/gravindex/internal/ir"
)

// Contract violations raised by the entity store and coordinator.
var (
	// ErrNotLoaded is returned when a handler reads an entity that was
	// neither declared in its batch's load phase nor staged earlier in the
	// batch. Handlers may not perform hidden storage reads.
	ErrNotLoaded = errors.New("entity not loaded")

	// ErrDuplicateKey is returned when a handler inserts an entity whose
	// key was already staged in the same batch.
	ErrDuplicateKey = errors.New("duplicate entity key")

	// ErrCoordinatorBusy is returned when a batch is started while another
	// batch is still in flight on the same coordinator.
	ErrCoordinatorBusy = errors.New("coordinator busy")

	// ErrEngineClosed is returned by Enqueue after Close.
	ErrEngineClosed = errors.New("engine closed")

	// ErrBatchCommitted is returned when a batch id is committed twice.
	ErrBatchCommitted = ir.ErrBatchCommitted
)

// StoreErrorCode categorizes durable storage failures.
type StoreErrorCode string

const (
	// StoreUnavailable indicates durable storage could not be reached.
	StoreUnavailable StoreErrorCode = "STORE_UNAVAILABLE"

	// StoreTimeout indicates a fetch or commit exceeded its deadline.
	StoreTimeout StoreErrorCode = "STORE_TIMEOUT"

	// StoreRejected indicates storage refused the commit because its batch
	// id is already in the batch log. Retrying cannot succeed.
	StoreRejected StoreErrorCode = "STORE_REJECTED"
)

// StoreError reports a durable storage failure during fetch or commit.
type StoreError struct {
	// Op is the failed operation: "fetch" or "commit".
	Op string

	Code StoreErrorCode

	// EntityType is set for fetch failures.
	EntityType string

	Err error
}

func (e *StoreError) Error() string {
	if e.EntityType != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Op, e.EntityType, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// BatchError aborts one batch. Cause is a *StoreError, a *HandlerPanic, or
// the error a load or handler function returned.
type BatchError struct {
	BatchID string

	// Phase is the coordinator state the batch failed in.
	Phase State

	// First and Last bound the provenance range of the batch's events.
	First ir.Provenance
	Last  ir.Provenance

	Cause error
}

func (e *BatchError) Error() string {
	var b strings.Builder
	b.WriteString("batch")
	if e.BatchID != "" {
		b.WriteString(" ")
		b.WriteString(e.BatchID)
	}
	fmt.Fprintf(&b, " failed in %s", e.Phase)
	if !e.First.IsZero() || !e.Last.IsZero() {
		fmt.Fprintf(&b, " [%s..%s]", e.First, e.Last)
	}
	fmt.Fprintf(&b, ": %v", e.Cause)
	return b.String()
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}

// HandlerPanic is a fault raised inside a load or handler function. It is
// fatal to the batch, not to the process.
type HandlerPanic struct {
	Contract   string
	Kind       string
	Provenance ir.Provenance

	// Phase is "load" or "handle".
	Phase string

	Value any
	Stack []byte
}

func (e *HandlerPanic) Error() string {
	return fmt.Sprintf("panic in %s %s.%s at %s: %v", e.Phase, e.Contract, e.Kind, e.Provenance, e.Value)
}

// IsStoreError reports whether err wraps a *StoreError.
// Uses errors.As to handle wrapped errors.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IsHandlerPanic reports whether err wraps a *HandlerPanic.
func IsHandlerPanic(err error) bool {
	var hp *HandlerPanic
	return errors.As(err, &hp)
}

// IsRetryable reports whether a failed batch may succeed when retried
// unchanged. Storage failures are retryable except rejected commits;
// handler faults are deterministic and would fail again.
func IsRetryable(err error) bool {
	if IsHandlerPanic(err) {
		return false
	}
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code != StoreRejected
}
