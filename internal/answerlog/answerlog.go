package answerlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/pdfbot/models"
)

// Log is an append-only, in-memory record of answered questions.
type Log struct {
	mu      sync.Mutex
	records []models.Record
}

func New() *Log {
	return &Log{}
}

// Append stores r, filling in a missing id, timestamp or channel.
func (l *Log) Append(r models.Record) models.Record {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.Channel == "" {
		r.Channel = models.ChannelUI
	}
	l.mu.Lock()
	l.records = append(l.records, r)
	l.mu.Unlock()
	return r
}

// All returns a copy of every record, oldest first. Never nil.
func (l *Log) All() []models.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Record, len(l.records))
	copy(out, l.records)
	return out
}

// Latest returns the most recent record or models.ErrNotFound.
func (l *Log) Latest() (models.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return models.Record{}, models.ErrNotFound
	}
	return l.records[len(l.records)-1], nil
}

// Conversation returns up to limit of the most recent records for
// conversationID, oldest first.
func (l *Log) Conversation(conversationID string, limit int) []models.Record {
	if conversationID == "" || limit <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Record
	for i := len(l.records) - 1; i >= 0 && len(out) < limit; i-- {
		if l.records[i].ConversationID == conversationID {
			out = append(out, l.records[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
