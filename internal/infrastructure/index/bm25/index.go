package bm25

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
)

const (
	k1 = 1.5
	b  = 0.75

	indexFile  = "index.json"
	corpusFile = "corpus.json"
)

// Index is an in-process Okapi BM25 inverted index over lemmatized tokens.
// Every Add rebuilds the whole index from the accumulated corpus; there is no
// incremental single-document update. Mutation is serialized by the owning
// knowledge-base service.
type Index struct {
	dataDir string
	topK    int
	lemma   ports.Lemmatizer

	corpus    []domain.Chunk
	postings  map[string]map[int]int
	docLens   []int
	avgDocLen float64
}

func New(dataDir string, topK int, lemma ports.Lemmatizer) *Index {
	if topK <= 0 {
		topK = 10
	}
	return &Index{
		dataDir:  dataDir,
		topK:     topK,
		lemma:    lemma,
		postings: make(map[string]map[int]int),
	}
}

// Index replaces the full corpus and rebuilds the token index.
func (ix *Index) Index(chunks []domain.Chunk) error {
	ix.corpus = append([]domain.Chunk(nil), chunks...)
	ix.rebuild()
	slog.Info("bm25_indexed", "documents", len(ix.corpus))
	return nil
}

// Add appends to the corpus and rebuilds the entire index; every add is
// O(corpus size).
func (ix *Index) Add(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ix.corpus = append(ix.corpus, chunks...)
	ix.rebuild()
	slog.Info("bm25_added", "added", len(chunks), "total", len(ix.corpus))
	return nil
}

func (ix *Index) rebuild() {
	ix.postings = make(map[string]map[int]int, len(ix.corpus)*8)
	ix.docLens = make([]int, len(ix.corpus))

	totalLen := 0
	for docIdx, chunk := range ix.corpus {
		tokens := lemmatizeTokens(ix.lemma, tokenize(chunk.Text))
		ix.docLens[docIdx] = len(tokens)
		totalLen += len(tokens)
		for _, term := range tokens {
			docs, ok := ix.postings[term]
			if !ok {
				docs = make(map[int]int, 4)
				ix.postings[term] = docs
			}
			docs[docIdx]++
		}
	}

	ix.avgDocLen = 0
	if len(ix.corpus) > 0 {
		ix.avgDocLen = float64(totalLen) / float64(len(ix.corpus))
	}
}

// Search ranks the corpus against the query, keeps scores above zero and caps
// the result at the configured top-K. An empty index yields an empty list.
func (ix *Index) Search(query string) []domain.RetrievalCandidate {
	if len(ix.corpus) == 0 || len(ix.postings) == 0 {
		slog.Warn("bm25_search_empty_index")
		return nil
	}

	terms := lemmatizeTokens(ix.lemma, tokenize(query))
	if len(terms) == 0 {
		return nil
	}

	n := float64(len(ix.corpus))
	scores := make(map[int]float64, 32)
	for _, term := range terms {
		docs, ok := ix.postings[term]
		if !ok {
			continue
		}
		df := float64(len(docs))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for docIdx, tf := range docs {
			dl := float64(ix.docLens[docIdx])
			norm := k1 * (1 - b + b*dl/ix.avgDocLen)
			scores[docIdx] += idf * (float64(tf) * (k1 + 1)) / (float64(tf) + norm)
		}
	}

	ranked := make([]int, 0, len(scores))
	for docIdx, score := range scores {
		if score > 0 {
			ranked = append(ranked, docIdx)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > ix.topK {
		ranked = ranked[:ix.topK]
	}

	out := make([]domain.RetrievalCandidate, 0, len(ranked))
	for _, docIdx := range ranked {
		out = append(out, domain.RetrievalCandidate{
			Chunk:  ix.corpus[docIdx],
			Score:  scores[docIdx],
			Origin: domain.OriginLexical,
		})
	}
	return out
}

func (ix *Index) Clear() {
	ix.corpus = nil
	ix.postings = make(map[string]map[int]int)
	ix.docLens = nil
	ix.avgDocLen = 0
	slog.Info("bm25_cleared")
}

func (ix *Index) Len() int {
	return len(ix.corpus)
}

type persistedPosting struct {
	Doc int `json:"doc"`
	TF  int `json:"tf"`
}

type persistedIndex struct {
	CorpusSize int                          `json:"corpus_size"`
	AvgDocLen  float64                      `json:"avg_doc_len"`
	DocLens    []int                        `json:"doc_lens"`
	Postings   map[string][]persistedPosting `json:"postings"`
}

// Save persists the token index plus the full corpus into the data directory.
func (ix *Index) Save() error {
	if err := os.MkdirAll(ix.dataDir, 0o755); err != nil {
		return fmt.Errorf("create bm25 dir: %w", err)
	}

	snapshot := persistedIndex{
		CorpusSize: len(ix.corpus),
		AvgDocLen:  ix.avgDocLen,
		DocLens:    ix.docLens,
		Postings:   make(map[string][]persistedPosting, len(ix.postings)),
	}
	for term, docs := range ix.postings {
		entries := make([]persistedPosting, 0, len(docs))
		for docIdx, tf := range docs {
			entries = append(entries, persistedPosting{Doc: docIdx, TF: tf})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Doc < entries[j].Doc })
		snapshot.Postings[term] = entries
	}

	if err := writeJSONFile(filepath.Join(ix.dataDir, indexFile), snapshot); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}
	if err := writeJSONFile(filepath.Join(ix.dataDir, corpusFile), ix.corpus); err != nil {
		return fmt.Errorf("write corpus file: %w", err)
	}
	slog.Info("bm25_saved", "dir", ix.dataDir, "documents", len(ix.corpus))
	return nil
}

// Load restores a persisted snapshot. It reports false without error when no
// snapshot exists, so callers can fall back to a rebuild.
func (ix *Index) Load() (bool, error) {
	indexPath := filepath.Join(ix.dataDir, indexFile)
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return false, nil
	}

	var snapshot persistedIndex
	if err := readJSONFile(indexPath, &snapshot); err != nil {
		return false, fmt.Errorf("read index file: %w", err)
	}
	var corpus []domain.Chunk
	if err := readJSONFile(filepath.Join(ix.dataDir, corpusFile), &corpus); err != nil {
		return false, fmt.Errorf("read corpus file: %w", err)
	}
	if snapshot.CorpusSize != len(corpus) || len(snapshot.DocLens) != len(corpus) {
		return false, fmt.Errorf("bm25 snapshot inconsistent: index=%d corpus=%d", snapshot.CorpusSize, len(corpus))
	}

	ix.corpus = corpus
	ix.docLens = snapshot.DocLens
	ix.avgDocLen = snapshot.AvgDocLen
	ix.postings = make(map[string]map[int]int, len(snapshot.Postings))
	for term, entries := range snapshot.Postings {
		docs := make(map[int]int, len(entries))
		for _, entry := range entries {
			docs[entry.Doc] = entry.TF
		}
		ix.postings[term] = docs
	}

	slog.Info("bm25_loaded", "dir", ix.dataDir, "documents", len(ix.corpus))
	return true, nil
}

func writeJSONFile(path string, value any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(value)
}

func readJSONFile(path string, target any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(target)
}
