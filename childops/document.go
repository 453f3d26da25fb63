// Package childops implements the child Get/Put/Update operations the
// two-phase update coordinator consumes through the "start / receive /
// onClose" contract spec.md §6 defines. They are genuine (if simplified)
// implementations — fanning out to replicas over a transport.Sender — not
// mocks, so the coordinator in package distributor can be exercised
// end-to-end.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package childops

import (
	"fmt"

	"github.com/docstore/distributor/clock"
	"github.com/docstore/distributor/cluster"
)

type (
	// DocumentID names a logical document, independent of which bucket it
	// currently hashes to.
	DocumentID string

	// DocumentType is a declared schema: the field names a document of
	// this type may carry. Minimal on purpose — the update payload
	// language itself is out of scope (spec.md §1 Non-goals).
	DocumentType struct {
		Name   string
		Fields []string
	}

	// Document is one stored revision: a typed, timestamped field map.
	Document struct {
		ID        DocumentID
		Type      *DocumentType
		Timestamp clock.Timestamp
		Fields    map[string]interface{}
	}

	// DocumentTypeRepo is the borrowed collaborator spec.md §4.6 calls
	// "the system's document-type repo", consulted by createIfNonExistent's
	// empty-document construction. The condition evaluator does not use
	// it: conditions are parsed and matched by field name alone.
	DocumentTypeRepo interface {
		Lookup(name string) (*DocumentType, bool)
	}

	// inMemoryTypeRepo is a small concrete DocumentTypeRepo good enough
	// for tests and for a single-process deployment; a real deployment
	// would back this with the shared schema store, external to this
	// core per spec.md §1.
	inMemoryTypeRepo struct {
		types map[string]*DocumentType
	}
)

func NewDocumentTypeRepo(types ...*DocumentType) DocumentTypeRepo {
	m := make(map[string]*DocumentType, len(types))
	for _, t := range types {
		m[t.Name] = t
	}
	return &inMemoryTypeRepo{types: m}
}

func (r *inMemoryTypeRepo) Lookup(name string) (*DocumentType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Field implements selection.Document so the condition evaluator can
// compare a parsed expression against a candidate document's fields
// without this package importing the selection package.
func (d *Document) Field(name string) (interface{}, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.Fields[name]
	return v, ok
}

// NewEmpty builds the empty candidate document createIfNonExistent
// constructs (spec.md §4.5): correctly typed, no fields populated, at the
// given timestamp. Mirrors the original's use of the declared document
// type to get correctly-typed (empty) field values rather than a bare
// id-only stub (see SPEC_FULL.md §4).
func NewEmpty(id DocumentID, docType *DocumentType, ts clock.Timestamp) *Document {
	return &Document{
		ID:        id,
		Type:      docType,
		Timestamp: ts,
		Fields:    make(map[string]interface{}),
	}
}

// UpdatePayload is the partial mutation the client sent. Semantics are
// intentionally the simplest possible merge (field assignment) — the
// update payload language itself is out of scope per spec.md §1.
type UpdatePayload struct {
	DocType string
	Assigns map[string]interface{}
}

// Apply merges the payload into doc in place. Returns an error if doc's
// type does not match the payload's declared type — the one condition the
// "update apply threw" error-handling row (spec.md §7) has to cover in
// this minimal payload language.
func (p *UpdatePayload) Apply(doc *Document) error {
	if doc.Type == nil || doc.Type.Name != p.DocType {
		return fmt.Errorf("update declared type %q does not match document type %q", p.DocType, typeName(doc.Type))
	}
	for k, v := range p.Assigns {
		doc.Fields[k] = v
	}
	return nil
}

func typeName(t *DocumentType) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// Locate resolves a document id to its bucket, bundling cluster.HashBucket
// behind the document-centric name childops callers use.
func Locate(id DocumentID, numBuckets uint64) cluster.BucketID {
	return cluster.HashBucket(string(id), numBuckets)
}
