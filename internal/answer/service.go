// Package answer orchestrates one question-answering call: embed the
// question, search every collection, fuse the results, and synthesize an
// answer grounded in the single best fragment.
package answer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/calvete/audex/internal/retrieval"
	"github.com/calvete/audex/internal/storage"
)

// Embedder converts the question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs similarity search over one collection.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, opts retrieval.SearchOptions) ([]retrieval.ScoredRecord, error)
}

// Synthesizer generates the final answer from the question and the
// grounding text.
type Synthesizer interface {
	Synthesize(ctx context.Context, query, grounding string) (string, error)
}

// FileGetter loads a stored source file for the download reference.
type FileGetter interface {
	GetSourceFile(ctx context.Context, id string) (storage.SourceFile, error)
}

// DownloadRef is a self-contained reference to the winning fragment's
// source document: the client can materialize the file from it without a
// second round trip.
type DownloadRef struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	DataURI  string `json:"data_uri"`
}

// Answer is the outcome of a successful question.
type Answer struct {
	Text       string       `json:"answer"`
	Grounding  string       `json:"grounding_text"`
	SourceID   string       `json:"source_id"`
	SourceName string       `json:"source_name"`
	Collection string       `json:"collection"`
	Score      float32      `json:"score"`
	Download   *DownloadRef `json:"download,omitempty"`
}

// Service wires the question-answering pipeline together.
type Service struct {
	embedder    Embedder
	searcher    Searcher
	synthesizer Synthesizer
	files       FileGetter
	collections []string
	opts        retrieval.SearchOptions
	logger      *slog.Logger
}

// NewService creates a Service searching the given collections in order
// with the given search options.
func NewService(embedder Embedder, searcher Searcher, synthesizer Synthesizer, files FileGetter, collections []string, opts retrieval.SearchOptions) *Service {
	return &Service{
		embedder:    embedder,
		searcher:    searcher,
		synthesizer: synthesizer,
		files:       files,
		collections: collections,
		opts:        opts,
		logger:      slog.Default(),
	}
}

// Ask answers a question from the corpus. A (nil, nil) return means no
// fragment cleared the confidence floor in any collection — a valid
// "no match" outcome, not an error. Embedding and synthesis failures
// abort the query; a download-reference failure only drops the link.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	// Sequential by design; fusion re-sorts by score, so search order
	// never affects the winner.
	pools := make([][]retrieval.ScoredRecord, 0, len(s.collections))
	for _, collection := range s.collections {
		results, err := s.searcher.Search(ctx, collection, vec, s.opts)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", collection, err)
		}
		pools = append(pools, results)
	}

	best := retrieval.Fuse(pools...)
	if best == nil {
		s.logger.Debug("no candidate cleared the score floor", "question_len", len(question))
		return nil, nil
	}

	answerText, err := s.synthesizer.Synthesize(ctx, question, best.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesizing answer: %w", err)
	}

	ans := &Answer{
		Text:       answerText,
		Grounding:  best.Body,
		SourceID:   best.SourceID,
		SourceName: best.DisplayName,
		Collection: best.Collection,
		Score:      best.Score,
	}

	// A missing blob (e.g. a delete racing this query) degrades to an
	// answer without a download link.
	ref, err := s.buildDownloadRef(ctx, best.SourceID)
	if err != nil {
		s.logger.Warn("download reference unavailable", "source_id", best.SourceID, "error", err)
	} else {
		ans.Download = ref
	}

	return ans, nil
}

func (s *Service) buildDownloadRef(ctx context.Context, sourceID string) (*DownloadRef, error) {
	f, err := s.files.GetSourceFile(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return &DownloadRef{
		FileName: f.DisplayName,
		MimeType: f.MimeType,
		DataURI:  fmt.Sprintf("data:%s;base64,%s", f.MimeType, base64.StdEncoding.EncodeToString(f.Content)),
	}, nil
}
