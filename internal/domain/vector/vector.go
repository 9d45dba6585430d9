package vector

// Metadata is stored alongside each vector.
type Metadata struct {
	Namespace string
	Filename  string
	Page      int
	Text      string
	// DocPages is the page count reported when the document was ingested.
	DocPages int
}

// Record is a vector keyed by its chunk's stable id.
type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Match is a search hit. Score is cosine similarity in [-1, 1].
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Ref is a listed vector without its values.
type Ref struct {
	ID       string
	Metadata Metadata
}

// DeleteResult reports a prefix deletion. Degraded is set when the store could not
// enumerate the prefix and removed nothing or only part of it.
type DeleteResult struct {
	Deleted  int
	Degraded bool
	Reason   string
}
