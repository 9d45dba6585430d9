package document

import (
	"crypto/md5" //nolint:gosec // identity hash, not a security boundary
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var namespaceRegex = regexp.MustCompile(`^[a-zA-Z0-9.@-][a-zA-Z0-9._@-]*$`)

// MaxNamespaceLen caps the namespace length.
const MaxNamespaceLen = 128

// fileHashLen is the number of hex characters of md5(filename) carried in chunk ids.
const fileHashLen = 8

// Page is one extracted page of a document. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk is a bounded slice of a page's text. Index is local to the page and starts at 0.
type Chunk struct {
	Page  int
	Index int
	Text  string
}

// Summary describes an ingested document (immutable value object).
type Summary struct {
	filename   string
	pageCount  int
	chunkCount int
}

// NewSummary creates a Summary.
func NewSummary(filename string, pageCount, chunkCount int) Summary {
	return Summary{filename: filename, pageCount: pageCount, chunkCount: chunkCount}
}

// Filename returns the original upload filename.
func (s Summary) Filename() string { return s.filename }

// PageCount returns the number of pages kept by extraction.
func (s Summary) PageCount() int { return s.pageCount }

// ChunkCount returns the number of stored chunks.
func (s Summary) ChunkCount() int { return s.chunkCount }

// ValidateNamespace checks that ns can partition the index.
// Namespaces become key segments, so glob metacharacters and separators are rejected.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("namespace is required")
	}
	if len(ns) > MaxNamespaceLen {
		return fmt.Errorf("namespace too long (max %d)", MaxNamespaceLen)
	}
	if !namespaceRegex.MatchString(ns) {
		return fmt.Errorf("namespace %q contains invalid characters", ns)
	}
	return nil
}

// FileHash returns the short filename hash used in chunk ids.
func FileHash(filename string) string {
	sum := md5.Sum([]byte(filename)) //nolint:gosec // identity hash
	return hex.EncodeToString(sum[:])[:fileHashLen]
}

// FilePrefix returns the id prefix shared by every chunk of filename in ns.
func FilePrefix(ns, filename string) string {
	return ns + "_" + FileHash(filename) + "_"
}

// StableID returns the deterministic id of a chunk:
// {namespace}_{md5(filename)[:8]}_p{page}_c{index}.
func StableID(ns, filename string, page, index int) string {
	return FilePrefix(ns, filename) + "p" + strconv.Itoa(page) + "_c" + strconv.Itoa(index)
}

// ParsedID is a decomposed stable id.
type ParsedID struct {
	Namespace string
	FileHash  string
	Page      int
	Index     int
}

// Prefix returns the file prefix the id belongs to.
func (p ParsedID) Prefix() string {
	return p.Namespace + "_" + p.FileHash + "_"
}

// ParseStableID splits a stable id. It parses from the right because namespaces may contain '_'.
func ParseStableID(id string) (ParsedID, bool) {
	rest, idxPart, ok := cutLast(id, "_c")
	if !ok {
		return ParsedID{}, false
	}
	idx, err := strconv.Atoi(idxPart)
	if err != nil || idx < 0 {
		return ParsedID{}, false
	}

	rest, pagePart, ok := cutLast(rest, "_p")
	if !ok {
		return ParsedID{}, false
	}
	page, err := strconv.Atoi(pagePart)
	if err != nil || page < 1 {
		return ParsedID{}, false
	}

	ns, hash, ok := cutLast(rest, "_")
	if !ok || ns == "" || len(hash) != fileHashLen {
		return ParsedID{}, false
	}

	return ParsedID{Namespace: ns, FileHash: hash, Page: page, Index: idx}, true
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
