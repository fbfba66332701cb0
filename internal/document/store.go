package document

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"
	"github.com/mohammad-safakhou/pdfbot/internal/telemetry"
	"github.com/mohammad-safakhou/pdfbot/models"
)

const textField = "text"

// File is one uploaded document.
type File struct {
	Name string
	Data []byte
}

// Candidate is a chunk returned by a query together with its relevance score.
// Score is zero when the chunk was picked by document order.
type Candidate struct {
	models.Chunk
	Score float64 `json:"score"`
}

// Status describes the active knowledge base.
type Status struct {
	Version    uint64    `json:"version"`
	Chunks     int       `json:"chunks"`
	Files      []string  `json:"files"`
	IngestedAt time.Time `json:"ingested_at,omitempty"`
}

// Loaded reports whether any document has been ingested.
func (s Status) Loaded() bool { return s.Chunks > 0 }

type snapshot struct {
	index      bleve.Index
	chunks     []models.Chunk
	byID       map[string]int
	files      []string
	textLength int
	ingestedAt time.Time
}

// Store keeps the chunks of the most recent ingest. A new ingest replaces
// the previous one entirely.
type Store struct {
	extractor Extractor
	size      int
	overlap   int
	logger    *log.Logger
	metrics   *telemetry.Metrics

	mu      sync.RWMutex
	slot    *snapshot
	version uint64
}

// NewStore creates an empty store. extractor defaults to PDFExtractor.
func NewStore(extractor Extractor, chunkSize, chunkOverlap int, metrics *telemetry.Metrics) *Store {
	if extractor == nil {
		extractor = PDFExtractor{}
	}
	return &Store{
		extractor: extractor,
		size:      chunkSize,
		overlap:   chunkOverlap,
		logger:    log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
		metrics:   metrics,
	}
}

// Ingest extracts, chunks and indexes files, then swaps them in as the
// knowledge base. On any failure the previous knowledge base stays active.
func (s *Store) Ingest(ctx context.Context, files ...File) (models.IngestResult, error) {
	if len(files) == 0 {
		return models.IngestResult{}, fmt.Errorf("%w: no files provided", models.ErrInvalidRequest)
	}

	snap, err := s.build(ctx, files)
	if err != nil {
		s.metrics.Ingested(telemetry.OutcomeError, 0)
		s.logger.Printf("ingest failed: %v", err)
		return models.IngestResult{}, err
	}

	s.mu.Lock()
	old := s.slot
	s.slot = snap
	s.version++
	version := s.version
	s.mu.Unlock()

	if old != nil {
		if err := old.index.Close(); err != nil {
			s.logger.Printf("close previous index: %v", err)
		}
	}

	s.metrics.Ingested(telemetry.OutcomeOK, len(snap.chunks))
	s.logger.Printf("version=%d files=%d chunks=%d chars=%d", version, len(snap.files), len(snap.chunks), snap.textLength)
	return models.IngestResult{
		Version:    version,
		Files:      append([]string(nil), snap.files...),
		Chunks:     len(snap.chunks),
		TextLength: snap.textLength,
	}, nil
}

func (s *Store) build(ctx context.Context, files []File) (*snapshot, error) {
	snap := &snapshot{
		byID:       make(map[string]int),
		ingestedAt: time.Now().UTC(),
	}
	for _, f := range files {
		text, err := s.extractor.Extract(ctx, f.Name, f.Data)
		if err != nil {
			var extractErr *models.ExtractionError
			if errors.As(err, &extractErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, &models.ExtractionError{File: f.Name, Err: err}
		}
		snap.textLength += len([]rune(text))
		sourceID := fmt.Sprintf("%s/%s", uuid.NewString(), f.Name)
		for _, part := range Split(text, s.size, s.overlap) {
			snap.chunks = append(snap.chunks, models.Chunk{
				Text:     part,
				SourceID: sourceID,
				Position: len(snap.chunks),
			})
		}
		snap.files = append(snap.files, f.Name)
	}
	if len(snap.chunks) == 0 {
		return nil, &models.ExtractionError{File: files[0].Name, Err: errors.New("no chunks produced")}
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, &models.ExtractionError{File: files[0].Name, Err: fmt.Errorf("create index: %w", err)}
	}
	batch := index.NewBatch()
	for _, c := range snap.chunks {
		id := chunkID(c.Position)
		snap.byID[id] = c.Position
		if err := batch.Index(id, map[string]interface{}{textField: c.Text}); err != nil {
			_ = index.Close()
			return nil, &models.ExtractionError{File: files[0].Name, Err: fmt.Errorf("index chunk %d: %w", c.Position, err)}
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, &models.ExtractionError{File: files[0].Name, Err: fmt.Errorf("index batch: %w", err)}
	}
	snap.index = index
	return snap, nil
}

// QueryCandidates returns up to k chunks ranked by relevance to question.
// An empty result means nothing has been ingested. A blank question, or one
// that matches no chunk, yields the first k chunks in document order.
func (s *Store) QueryCandidates(ctx context.Context, question string, k int) ([]Candidate, error) {
	if k <= 0 {
		return []Candidate{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.slot
	if snap == nil {
		return []Candidate{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(question) == "" {
		return firstK(snap.chunks, k), nil
	}

	q := bleve.NewMatchQuery(question)
	q.SetField(textField)
	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	res, err := snap.index.Search(req)
	if err != nil {
		return nil, &models.RetrievalError{Err: fmt.Errorf("search version %d: %w", s.version, err)}
	}

	out := make([]Candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		pos, ok := snap.byID[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Candidate{Chunk: snap.chunks[pos], Score: hit.Score})
	}
	if len(out) == 0 {
		out = firstK(snap.chunks, k)
	}
	s.logger.Printf("query version=%d k=%d hits=%d returned=%d", s.version, k, len(res.Hits), len(out))
	return out, nil
}

// Status reports the active knowledge base.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{Version: s.version, Files: []string{}}
	if s.slot != nil {
		st.Chunks = len(s.slot.chunks)
		st.Files = append(st.Files, s.slot.files...)
		st.IngestedAt = s.slot.ingestedAt
	}
	return st
}

// Unload drops the knowledge base if version is still the active one, so a
// newer ingest from another source is never discarded. It reports whether
// anything was dropped.
func (s *Store) Unload(version uint64) bool {
	s.mu.Lock()
	if s.slot == nil || s.version != version {
		s.mu.Unlock()
		return false
	}
	old := s.slot
	s.slot = nil
	s.version++
	s.mu.Unlock()

	if err := old.index.Close(); err != nil {
		s.logger.Printf("close index: %v", err)
	}
	s.metrics.Unloaded()
	s.logger.Printf("knowledge base version %d unloaded", version)
	return true
}

// Close releases the active index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return nil
	}
	err := s.slot.index.Close()
	s.slot = nil
	return err
}

func chunkID(position int) string {
	return fmt.Sprintf("chunk#%06d", position)
}

func firstK(chunks []models.Chunk, k int) []Candidate {
	n := min(k, len(chunks))
	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Candidate{Chunk: chunks[i]})
	}
	return out
}
