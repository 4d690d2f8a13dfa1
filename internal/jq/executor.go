// Package jq evaluates jq paths against parsed JSON artifacts. It backs the
// dotted property syntax accepted by fan-out and router steps.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout bounds a single evaluation
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize is the largest JSON document accepted (10MB)
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// IsPath reports whether a property reference should be treated as a jq
// expression rather than a plain object key.
func IsPath(ref string) bool {
	return strings.HasPrefix(ref, ".")
}

// Executor compiles and runs jq expressions with timeout and size limits.
// Compiled queries are cached by expression text.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewExecutor creates a new jq executor. Zero values select the defaults.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}

	return &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
		cache:        make(map[string]*gojq.Code),
	}
}

// Default is the shared executor used by pipeline steps.
var Default = NewExecutor(0, 0)

// Execute runs a jq expression against data. A single result is returned as
// is; multiple results are returned as []any; no result returns nil.
func (e *Executor) Execute(ctx context.Context, expression string, data any) (any, error) {
	if expression == "" {
		return data, nil
	}

	if err := e.validateInputSize(data); err != nil {
		return nil, err
	}

	code, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	iter := code.RunWithContext(execCtx, data)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if execCtx.Err() != nil {
				return nil, fmt.Errorf("jq %q: execution timeout after %v", expression, e.timeout)
			}
			return nil, fmt.Errorf("jq %q: %w", expression, err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Validate checks that an expression parses and compiles.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := e.compile(expression)
	return err
}

func (e *Executor) compile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	code, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expression, err)
	}
	code, err = gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed for %q: %w", expression, err)
	}

	e.mu.Lock()
	e.cache[expression] = code
	e.mu.Unlock()
	return code, nil
}

// validateInputSize checks if the data size is within limits.
func (e *Executor) validateInputSize(data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if int64(len(jsonData)) > e.maxInputSize {
		return fmt.Errorf("data size (%d bytes) exceeds maximum (%d bytes)",
			len(jsonData), e.maxInputSize)
	}

	return nil
}
