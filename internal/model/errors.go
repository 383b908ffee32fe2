package model

import (
	"fmt"

	"github.com/wannadb/matching/internal/matcherr"
)

func violation(format string, args ...any) error {
	return &matcherr.ConsistencyViolationError{Invariant: fmt.Sprintf(format, args...)}
}
