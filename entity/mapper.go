// Package entity maps classified JSON objects to and from a persistence
// layer. Records are looked up by a unique business key and created when
// absent; field mapping only overwrites values present in the incoming JSON.
package entity

import (
	"context"
	"fmt"

	"github.com/restq/restq"
)

// DefaultRootKey is the root key used for collection responses when none is
// configured.
const DefaultRootKey = "results"

// Record is one persisted entity: a key-value record with a unique business
// key and application fields, holding decoded JSON values.
type Record map[string]any

// Repository is the storage contract the mapper runs against. Implementations
// must never store two records for the same key value.
type Repository interface {
	// FindByKey looks up the record with the given unique key value. The
	// second result reports whether a record was found.
	FindByKey(ctx context.Context, key string) (Record, bool, error)

	// Upsert creates the record for key if absent, or replaces its stored
	// fields if present.
	Upsert(ctx context.Context, key string, fields Record) error
}

// Mapper applies field mappings between JSON objects and persisted records.
type Mapper struct {
	repo     Repository
	keyField string
	fields   []string
	rootKey  string
}

// NewMapper creates a Mapper using keyField as the unique business key.
// fields is the full mapped field set; it should include keyField.
func NewMapper(repo Repository, keyField string, fields ...string) *Mapper {
	return &Mapper{
		repo:     repo,
		keyField: keyField,
		fields:   fields,
		rootKey:  DefaultRootKey,
	}
}

// WithRootKey overrides the collection root key. It returns the mapper for
// chaining.
func (m *Mapper) WithRootKey(key string) *Mapper {
	m.rootKey = key
	return m
}

// RootKey returns the root key the mapper expects collection responses
// to be nested under.
func (m *Mapper) RootKey() string { return m.rootKey }

// Apply maps one JSON object into the repository: the record matching the
// object's unique key is looked up, created if absent, and updated in place
// with every mapped field present in the object. Fields absent from the
// object leave existing stored values untouched.
func (m *Mapper) Apply(ctx context.Context, obj map[string]any) (Record, error) {
	keyVal, ok := obj[m.keyField]
	if !ok {
		return nil, fmt.Errorf("object has no %q field", m.keyField)
	}
	key, ok := keyVal.(string)
	if !ok {
		return nil, fmt.Errorf("field %q must be a string, got %T", m.keyField, keyVal)
	}

	rec, found, err := m.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", key, err)
	}
	if !found {
		rec = Record{m.keyField: key}
	}

	for _, f := range m.fields {
		if v, ok := obj[f]; ok {
			rec[f] = v
		}
	}

	if err := m.repo.Upsert(ctx, key, rec); err != nil {
		return nil, fmt.Errorf("upsert %q: %w", key, err)
	}
	return rec, nil
}

// ApplyNode maps a classified response node into the repository. Object
// nodes map one record; array nodes map every object element. It returns
// the mapped records.
func (m *Mapper) ApplyNode(ctx context.Context, n restq.Node) ([]Record, error) {
	switch n.Kind {
	case restq.NodeObject:
		rec, err := m.Apply(ctx, n.Object)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil

	case restq.NodeArray:
		recs := make([]Record, 0, len(n.Array))
		for i, el := range n.Array {
			obj, ok := el.(map[string]any)
			if !ok {
				return recs, fmt.Errorf("element %d is not an object (%T)", i, el)
			}
			rec, err := m.Apply(ctx, obj)
			if err != nil {
				return recs, err
			}
			recs = append(recs, rec)
		}
		return recs, nil

	default:
		return nil, fmt.Errorf("node kind %q cannot be mapped", n.Kind)
	}
}

// ToJSON serializes a record back to a JSON object holding exactly the
// mapped fields that are present on the record.
func (m *Mapper) ToJSON(rec Record) map[string]any {
	obj := make(map[string]any, len(m.fields))
	for _, f := range m.fields {
		if v, ok := rec[f]; ok {
			obj[f] = v
		}
	}
	return obj
}
