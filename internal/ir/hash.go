package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainMutation = "gravindex/mutation/v1"
	DomainBatch    = "gravindex/batch/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MutationDigest hashes one mutation: its kind, ref, provenance and full
// record state.
func MutationDigest(m Mutation) (string, error) {
	canonical, err := MarshalCanonical(m.toIR())
	if err != nil {
		return "", fmt.Errorf("MutationDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMutation, canonical), nil
}

// MutationsDigest hashes an ordered mutation list. Two executions of the
// same batch over the same store state must yield the same digest; replay
// verification compares these.
func MutationsDigest(ms []Mutation) (string, error) {
	arr := make(IRArray, len(ms))
	for i, m := range ms {
		arr[i] = m.toIR()
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("MutationsDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBatch, canonical), nil
}
