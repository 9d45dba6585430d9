package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// TagFilters restrict candidates to hashes whose TAG field equals the value (AND-ed).
	TagFilters   map[string]string
	VectorField  string // default "vector"
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. For COSINE indexes Score is the similarity 1 - distance.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
