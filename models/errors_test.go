package models

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		cause    error
	}{
		{"extraction", &ExtractionError{File: "a.pdf", Err: io.ErrUnexpectedEOF}, ErrExtraction, io.ErrUnexpectedEOF},
		{"model", &ModelError{Attempts: 2, Err: io.EOF}, ErrModelUnavailable, io.EOF},
		{"delivery", &DeliveryError{ConversationID: "7", Err: io.ErrClosedPipe}, ErrDelivery, io.ErrClosedPipe},
		{"payload", &PayloadError{Reason: "missing event", Err: io.ErrShortBuffer}, ErrMalformedPayload, io.ErrShortBuffer},
		{"retrieval", &RetrievalError{Err: io.ErrNoProgress}, ErrRetrieval, io.ErrNoProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.ErrorIs(t, wrapped, tt.cause)
		})
	}
}

func TestDeliveryErrorMessage(t *testing.T) {
	err := &DeliveryError{ConversationID: "42", StatusCode: 500, Body: "boom"}
	assert.Equal(t, "chatwoot delivery failed: conversation 42: status 500: boom", err.Error())
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestExtractionErrorWithoutCause(t *testing.T) {
	err := &ExtractionError{File: "empty.pdf"}
	assert.Equal(t, "extract empty.pdf: pdf extraction failed", err.Error())
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestChannelValid(t *testing.T) {
	assert.True(t, ChannelUI.Valid())
	assert.True(t, ChannelChatwoot.Valid())
	assert.False(t, Channel("sms").Valid())
}
