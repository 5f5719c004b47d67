package models

import (
	"bytes"
	"encoding/json"
)

// Field tracks presence and value for partial-update semantics.
// Go's *T cannot tell "absent" from "null", so Field carries both:
//   - Present=false: field absent (don't change)
//   - Present=true, Null=true: field is explicit null
//   - Present=true, Null=false: field has Value
type Field[T any] struct {
	Present bool
	Null    bool
	Value   T
}

// Set returns a Field holding v.
func Set[T any](v T) Field[T] {
	return Field[T]{Present: true, Value: v}
}

// Null returns an explicit-null Field.
func Null[T any]() Field[T] {
	return Field[T]{Present: true, Null: true}
}

// FromPtr maps nil to an explicit null and non-nil to a value.
func FromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Null[T]()
	}
	return Set(*p)
}

// HasValue reports whether the field carries a non-null value.
func (f Field[T]) HasValue() bool {
	return f.Present && !f.Null
}

// Ptr returns the value as a pointer, nil when absent or null.
func (f Field[T]) Ptr() *T {
	if !f.HasValue() {
		return nil
	}
	v := f.Value
	return &v
}

// Sparse drops an explicit null, turning it into "no opinion".
func (f Field[T]) Sparse() Field[T] {
	if f.Null {
		return Field[T]{}
	}
	return f
}

// UnmarshalJSON implements json.Unmarshaler.
// When this method is called, the field was present in the JSON.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Present = true

	if string(bytes.TrimSpace(data)) == "null" {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}

	f.Null = false
	return json.Unmarshal(data, &f.Value)
}
