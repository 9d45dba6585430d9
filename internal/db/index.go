package db

import (
	"fmt"
	"strings"
)

// StorageHash stores indexed entries as Redis hashes. The only storage the chunk index uses.
const StorageHash = "HASH"

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

// DistanceCosine is cosine distance: score = 1 - cosine similarity.
const DistanceCosine DistanceMetric = "COSINE"

// IndexFieldType enumerates the FT field types the chunk index needs.
type IndexFieldType int

const (
	// IndexFieldTag is an exact-match tag field.
	IndexFieldTag IndexFieldType = iota + 1
	// IndexFieldVector is an HNSW FLOAT32 vector field.
	IndexFieldVector
)

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name string
	Type IndexFieldType

	TagCaseSensitive bool

	VectorDim         int
	VectorDistance    DistanceMetric
	VectorM           int // max edges per node, 0 = server default
	VectorEFConstruct int // build-time candidate list, 0 = server default
}

// IndexDefinition is a complete FT index definition used by FT.CREATE.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("invalid index name %q", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return fmt.Errorf("index %s: no fields", idx.Name)
	}

	seen := make(map[string]struct{}, len(idx.Fields))
	for i, f := range idx.Fields {
		if f.Name == "" {
			return fmt.Errorf("index %s: field %d has no name", idx.Name, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("index %s: duplicate field %s", idx.Name, f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.Type == IndexFieldVector && f.VectorDim <= 0 {
			return fmt.Errorf("index %s: vector field %s needs a positive dimension", idx.Name, f.Name)
		}
	}
	return nil
}

// IsValidIdentifier reports whether s is non-empty and made of letters, digits, '_', ':' and '-'.
func IsValidIdentifier(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '_' || r == ':' || r == '-':
			return false
		}
		return true
	}) < 0
}
