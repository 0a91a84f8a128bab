package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
)

// Ingestor turns source records into bounded chunks and feeds them to the
// knowledge base. Records with no usable text are skipped with a warning, not
// an error, so one bad article never sinks a batch.
type Ingestor struct {
	kb      *KnowledgeBase
	chunker ports.Chunker
}

func NewIngestor(kb *KnowledgeBase, chunker ports.Chunker) *Ingestor {
	return &Ingestor{kb: kb, chunker: chunker}
}

func (in *Ingestor) IngestRecords(ctx context.Context, records []domain.IngestRecord) (int, error) {
	chunks := in.chunkRecords(records)
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := in.kb.AddChunks(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// IngestDirectory loads every *.json file in dir. A file may hold one record
// or an array of records with fields {url, title, text|content, parsed_at}.
func (in *Ingestor) IngestDirectory(ctx context.Context, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("list source directory: %w", err)
	}

	var records []domain.IngestRecord
	for _, path := range paths {
		fileRecords, err := readRecordFile(path)
		if err != nil {
			slog.Warn("source_file_skipped", "file", filepath.Base(path), "error", err)
			continue
		}
		records = append(records, fileRecords...)
	}
	return in.IngestRecords(ctx, records)
}

func (in *Ingestor) chunkRecords(records []domain.IngestRecord) []domain.Chunk {
	var out []domain.Chunk
	for _, record := range records {
		text := strings.TrimSpace(record.Text)
		if text == "" {
			slog.Warn("ingest_record_empty", "title", record.Title, "filename", record.Filename)
			continue
		}
		for i, part := range in.chunker.Split(text) {
			out = append(out, domain.Chunk{
				ID:             newChunkID(),
				Text:           part,
				SourceURL:      record.SourceURL,
				Title:          record.Title,
				SourceFilename: record.Filename,
				ChunkID:        fmt.Sprintf("%s#%d", record.Filename, i),
				ParsedAt:       record.ParsedAt,
			})
		}
	}
	return out
}

type sourceRecord struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Content  string `json:"content"`
	ParsedAt string `json:"parsed_at"`
}

func (r sourceRecord) toIngestRecord(filename string) domain.IngestRecord {
	text := r.Text
	if text == "" {
		text = r.Content
	}
	return domain.IngestRecord{
		Text:      text,
		SourceURL: r.URL,
		Title:     r.Title,
		ParsedAt:  r.ParsedAt,
		Filename:  filename,
	}
}

func readRecordFile(path string) ([]domain.IngestRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	filename := filepath.Base(path)

	var many []sourceRecord
	if err := json.Unmarshal(raw, &many); err == nil {
		out := make([]domain.IngestRecord, 0, len(many))
		for _, r := range many {
			out = append(out, r.toIngestRecord(filename))
		}
		return out, nil
	}

	var one sourceRecord
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return []domain.IngestRecord{one.toIngestRecord(filename)}, nil
}
