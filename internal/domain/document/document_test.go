package document

import (
	"strings"
	"testing"
)

func TestStableID_Format(t *testing.T) {
	id := StableID("alice", "annual-report.pdf", 2, 0)

	want := "alice_" + FileHash("annual-report.pdf") + "_p2_c0"
	if id != want {
		t.Fatalf("StableID = %q, want %q", id, want)
	}
	if len(FileHash("annual-report.pdf")) != 8 {
		t.Errorf("file hash must be 8 chars")
	}
}

func TestFileHash_KnownValue(t *testing.T) {
	// md5("report.pdf") = 5c6813f49dfba292cc1008edce1c90e2
	if got := FileHash("report.pdf"); got != "5c6813f4" {
		t.Errorf("FileHash = %q, want 5c6813f4", got)
	}
}

func TestStableID_Deterministic(t *testing.T) {
	a := StableID("bob", "10-K.pdf", 14, 3)
	b := StableID("bob", "10-K.pdf", 14, 3)
	if a != b {
		t.Fatalf("ids differ: %q vs %q", a, b)
	}
	if StableID("carol", "10-K.pdf", 14, 3) == a {
		t.Error("different namespaces must yield different ids")
	}
}

func TestFilePrefix_MatchesChunkIDs(t *testing.T) {
	prefix := FilePrefix("bob", "q3.pdf")
	for page := 1; page <= 3; page++ {
		for idx := 0; idx < 3; idx++ {
			if id := StableID("bob", "q3.pdf", page, idx); !strings.HasPrefix(id, prefix) {
				t.Errorf("id %q lacks prefix %q", id, prefix)
			}
		}
	}
	if strings.HasPrefix(StableID("bob", "q4.pdf", 1, 0), prefix) {
		t.Error("another file's ids must not share the prefix")
	}
}

func TestParseStableID_RoundTrip(t *testing.T) {
	tests := []struct {
		ns    string
		page  int
		index int
	}{
		{"alice", 1, 0},
		{"user_with_underscores", 120, 7},
		{"a.b@example.com", 3, 12},
	}
	for _, tt := range tests {
		id := StableID(tt.ns, "file.pdf", tt.page, tt.index)
		p, ok := ParseStableID(id)
		if !ok {
			t.Fatalf("ParseStableID(%q) failed", id)
		}
		if p.Namespace != tt.ns || p.Page != tt.page || p.Index != tt.index {
			t.Errorf("ParseStableID(%q) = %+v", id, p)
		}
		if p.Prefix() != FilePrefix(tt.ns, "file.pdf") {
			t.Errorf("Prefix() = %q", p.Prefix())
		}
	}
}

func TestParseStableID_Invalid(t *testing.T) {
	for _, id := range []string{
		"",
		"no-separators",
		"alice_abcdef12_p0_c0", // page must be >= 1
		"alice_abc_p1_c0",      // short hash
		"alice_abcdef12_p1_cX", // bad index
		"_abcdef12_p1_c0",      // empty namespace
		"alice_abcdef12_c0",    // missing page
	} {
		if _, ok := ParseStableID(id); ok {
			t.Errorf("ParseStableID(%q) should fail", id)
		}
	}
}

func TestValidateNamespace(t *testing.T) {
	valid := []string{"alice", "a.b@example.com", "team-7", "x_y"}
	for _, ns := range valid {
		if err := ValidateNamespace(ns); err != nil {
			t.Errorf("ValidateNamespace(%q) = %v", ns, err)
		}
	}

	invalid := []string{"", "a*b", "a/b", "a b", "[x]", "_lead", strings.Repeat("a", MaxNamespaceLen+1)}
	for _, ns := range invalid {
		if err := ValidateNamespace(ns); err == nil {
			t.Errorf("ValidateNamespace(%q) should fail", ns)
		}
	}
}

func TestSummary(t *testing.T) {
	s := NewSummary("report.pdf", 4, 11)
	if s.Filename() != "report.pdf" || s.PageCount() != 4 || s.ChunkCount() != 11 {
		t.Errorf("unexpected summary: %+v", s)
	}
}
