package domain

// Chunk is the unit of both search indexes. Once indexed, the same ID must
// exist in the lexical index and the semantic collection; fusion keys on it.
type Chunk struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	SourceURL      string `json:"url"`
	Title          string `json:"title"`
	SourceFilename string `json:"filename"`
	ChunkID        string `json:"chunk_id"`
	ParsedAt       string `json:"parsed_at,omitempty"`
}

type CandidateOrigin string

const (
	OriginLexical  CandidateOrigin = "lexical"
	OriginSemantic CandidateOrigin = "semantic"
)

type RetrievalCandidate struct {
	Chunk  Chunk           `json:"chunk"`
	Score  float64         `json:"score"`
	Origin CandidateOrigin `json:"origin"`
}

// RankedIndex is one entry of a reranker permutation: Index points into the
// candidate slice the reranker was given.
type RankedIndex struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// IngestRecord is a raw knowledge-base page or uploaded document before chunking.
type IngestRecord struct {
	Text      string `json:"text"`
	SourceURL string `json:"url"`
	Title     string `json:"title"`
	ParsedAt  string `json:"parsed_at,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// CollectionInfo mirrors the semantic collection status report.
type CollectionInfo struct {
	Name         string `json:"collection_name"`
	PointsCount  int    `json:"documents_count"`
	VectorsCount int    `json:"vectors_count"`
	Status       string `json:"status"`
}

type WebSearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
