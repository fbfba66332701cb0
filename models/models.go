package models

import (
	"time"
)

// Chunk is a bounded slice of extracted document text used as a retrieval unit.
type Chunk struct {
	Text     string `json:"text"`
	SourceID string `json:"source_id"`
	Position int    `json:"position"`
}

// Channel identifies the front-end a question arrived through.
type Channel string

const (
	ChannelUI       Channel = "ui"
	ChannelChatwoot Channel = "chatwoot"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	return c == ChannelUI || c == ChannelChatwoot
}

// Record is a single question/answer pair kept in the answer log.
type Record struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Timestamp      time.Time `json:"timestamp"`
	Channel        Channel   `json:"channel"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// ConversationRef routes a reply back to a Chatwoot conversation.
type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
	AccountID      string `json:"account_id"`
}

// Citation points at a chunk that was handed to the model as context.
type Citation struct {
	SourceID string  `json:"source_id"`
	Position int     `json:"position"`
	Snippet  string  `json:"snippet"`
	Score    float64 `json:"score,omitempty"`
}

// AnswerResult is what the answering service hands back to its callers.
type AnswerResult struct {
	Text      string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// IngestResult summarises a completed ingest.
type IngestResult struct {
	Version    uint64   `json:"version"`
	Files      []string `json:"files"`
	Chunks     int      `json:"chunks_created"`
	TextLength int      `json:"text_length"`
}

// Message roles understood by chat completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
