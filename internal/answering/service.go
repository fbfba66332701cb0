package answering

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pdfbot/internal/document"
	"github.com/mohammad-safakhou/pdfbot/internal/telemetry"
	"github.com/mohammad-safakhou/pdfbot/models"
	"github.com/mohammad-safakhou/pdfbot/provider"
)

// Retriever returns ranked chunks for a question.
type Retriever interface {
	QueryCandidates(ctx context.Context, question string, k int) ([]document.Candidate, error)
}

// Recorder stores completed answers and hands back earlier turns of a
// conversation.
type Recorder interface {
	Append(r models.Record) models.Record
	Conversation(conversationID string, limit int) []models.Record
}

// Meta says where a question came from.
type Meta struct {
	Channel        models.Channel
	ConversationID string
}

type Options struct {
	TopK               int
	MaxRetries         int
	RetryBackoff       time.Duration
	NoKnowledgeMessage string
	Metrics            *telemetry.Metrics

	// HistoryTurns is how many earlier turns of the same conversation are
	// replayed to the model. Zero disables history.
	HistoryTurns int
}

// Service answers questions from the document store through the language model.
type Service struct {
	retriever Retriever
	llm       provider.Provider
	recorder  Recorder
	opts      Options
	logger    *log.Logger
}

func New(retriever Retriever, llm provider.Provider, recorder Recorder, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRetries > 1 {
		opts.MaxRetries = 1
	}
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	return &Service{
		retriever: retriever,
		llm:       llm,
		recorder:  recorder,
		opts:      opts,
		logger:    log.New(log.Writer(), "[ANSWER] ", log.LstdFlags),
	}
}

// Answer retrieves context for question, asks the model and records the
// result. Exactly one record is appended per successful call; failures
// append nothing.
func (s *Service) Answer(ctx context.Context, question string, meta Meta) (models.AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.AnswerResult{}, models.ErrEmptyQuestion
	}
	if meta.Channel == "" {
		meta.Channel = models.ChannelUI
	}

	history := s.recorder.Conversation(meta.ConversationID, s.opts.HistoryTurns)
	query := question
	if n := len(history); n > 0 {
		// follow-ups like "and its population?" need the previous subject
		query = history[n-1].Question + "\n" + question
	}

	candidates, err := s.retriever.QueryCandidates(ctx, query, s.opts.TopK)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, models.ErrRetrieval) {
			return models.AnswerResult{}, err
		}
		return models.AnswerResult{}, &models.RetrievalError{Err: err}
	}

	var result models.AnswerResult
	if len(candidates) == 0 {
		s.logger.Printf("no knowledge base loaded channel=%s", meta.Channel)
		result = models.AnswerResult{Text: s.opts.NoKnowledgeMessage, Citations: []models.Citation{}}
	} else {
		text, err := s.complete(ctx, buildMessages(question, candidates, history))
		if err != nil {
			s.logger.Printf("model unavailable channel=%s conversation=%s: %v", meta.Channel, meta.ConversationID, err)
			return models.AnswerResult{}, err
		}
		result = models.AnswerResult{Text: text, Citations: citations(candidates)}
	}

	s.recorder.Append(models.Record{
		Question:       question,
		Answer:         result.Text,
		Timestamp:      time.Now().UTC(),
		Channel:        meta.Channel,
		ConversationID: meta.ConversationID,
	})
	s.opts.Metrics.AnswerServed(meta.Channel)
	return result, nil
}

func (s *Service) complete(ctx context.Context, messages []models.Message) (string, error) {
	tries := s.opts.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < tries; attempt++ {
		text, err := s.llm.Complete(ctx, messages)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty completion")
		}
		if err == nil {
			return text, nil
		}
		lastErr = err
		s.opts.Metrics.ModelError()
		s.logger.Printf("completion attempt %d/%d failed: %v", attempt+1, tries, err)

		if attempt < tries-1 {
			select {
			case <-time.After(s.opts.RetryBackoff):
			case <-ctx.Done():
				return "", &models.ModelError{Attempts: attempt + 1, Err: ctx.Err()}
			}
		}
	}
	return "", &models.ModelError{Attempts: tries, Err: lastErr}
}
