// Package docstore defines the schemaless document store the stock core runs on.
// Documents are addressed by collection name and id and carry a flat field map.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrAlreadyExists = errors.New("docstore: document already exists")
	// ErrBelowFloor is returned by Adjust when applying the delta would take the
	// field under the requested floor. Nothing is written in that case.
	ErrBelowFloor = errors.New("docstore: adjustment below floor")
	// ErrNotInteger is returned by Adjust when the field holds a non-integral value.
	ErrNotInteger = errors.New("docstore: field is not an integer")
)

// Fields is the field map of a single document.
type Fields map[string]any

type Document struct {
	ID     string
	Fields Fields
}

type Operator string

const (
	OpLT  Operator = "<"
	OpLTE Operator = "<="
	OpEQ  Operator = "=="
	OpGTE Operator = ">="
	OpGT  Operator = ">"
)

func (o Operator) Valid() bool {
	switch o {
	case OpLT, OpLTE, OpEQ, OpGTE, OpGT:
		return true
	}
	return false
}

// Filter is a single field comparison used by Query.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Adjustment describes an atomic signed change of an integer field.
// When Floor is set the change only commits if Field+Delta >= *Floor.
// Set is merged into the document in the same write.
type Adjustment struct {
	Field string
	Delta int
	Floor *int
	Set   Fields
}

// Floor is a helper to build Adjustment.Floor inline.
func Floor(v int) *int { return &v }

// Store is implemented by the memory, MongoDB and PostgreSQL backends.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Insert(ctx context.Context, collection, id string, fields Fields) error
	Update(ctx context.Context, collection, id string, fields Fields) error
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)

	// Adjust applies the adjustment atomically and returns the new value.
	// On ErrBelowFloor the returned int is the current, unchanged value.
	Adjust(ctx context.Context, collection, id string, adj Adjustment) (int, error)
}

// BelowFloorError carries the value observed when an adjustment was refused.
type BelowFloorError struct {
	Current int
}

func (e *BelowFloorError) Error() string {
	return fmt.Sprintf("%s (current %d)", ErrBelowFloor.Error(), e.Current)
}

func (e *BelowFloorError) Unwrap() error { return ErrBelowFloor }

// ValidateAdjustment is shared by the backends.
func ValidateAdjustment(adj Adjustment) error {
	if adj.Field == "" {
		return errors.New("docstore: adjustment field is required")
	}
	if _, ok := adj.Set[adj.Field]; ok {
		return fmt.Errorf("docstore: field %q cannot be both adjusted and set", adj.Field)
	}
	return nil
}

// ValidateFilter is shared by the backends.
func ValidateFilter(f Filter) error {
	if f.Field == "" {
		return errors.New("docstore: filter field is required")
	}
	if !f.Op.Valid() {
		return fmt.Errorf("docstore: unsupported operator %q", f.Op)
	}
	return nil
}
