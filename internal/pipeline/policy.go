package pipeline

import (
	"fmt"
	"strings"
)

// FailurePolicy decides what happens to an invocation that failed
type FailurePolicy int

const (
	// Drop logs the failure and reports success to the platform
	Drop FailurePolicy = iota
	// Retry returns transient failures to the platform so it redelivers the blob.
	// Publishing is also retried with backoff before giving up.
	Retry
	// DeadLetter records the failure with the dead letter provider and reports success to the platform
	DeadLetter
)

var policyNames = []string{"drop", "retry", "deadletter"}

func (p FailurePolicy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}

	return "unknown"
}

// ParseFailurePolicy parses a failure policy name
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	for i, name := range policyNames {
		if strings.EqualFold(s, name) {
			return FailurePolicy(i), nil
		}
	}

	return Drop, fmt.Errorf("invalid failure policy %q", s)
}
