package models

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction is returned when an uploaded PDF cannot be read or yields no text.
	ErrExtraction = errors.New("pdf extraction failed")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrModelUnavailable is returned when the language model could not produce an answer.
	ErrModelUnavailable = errors.New("language model unavailable")

	// ErrMalformedPayload is returned for webhook bodies that do not match the Chatwoot event shape.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrDelivery is returned when a reply could not be posted back to Chatwoot.
	ErrDelivery = errors.New("chatwoot delivery failed")

	// ErrNotFound is returned when the answer log is empty.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRequest is returned for request bodies that fail validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRetrieval is returned when the document index cannot be searched.
	ErrRetrieval = errors.New("document retrieval failed")
)

// ExtractionError names the file that failed to extract.
type ExtractionError struct {
	File string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %v", e.File, ErrExtraction)
	}
	return fmt.Sprintf("extract %s: %v", e.File, e.Err)
}

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

func (e *ExtractionError) Unwrap() error { return e.Err }

// RetrievalError wraps a failed index search.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("%v: %v", ErrRetrieval, e.Err) }

func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

func (e *RetrievalError) Unwrap() error { return e.Err }

// ModelError carries the last provider failure after retries were exhausted.
type ModelError struct {
	Attempts int
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", ErrModelUnavailable, e.Attempts, e.Err)
}

func (e *ModelError) Is(target error) bool { return target == ErrModelUnavailable }

func (e *ModelError) Unwrap() error { return e.Err }

// DeliveryError describes a failed Chatwoot REST call.
type DeliveryError struct {
	ConversationID string
	StatusCode     int
	Body           string
	Err            error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: conversation %s: %v", ErrDelivery, e.ConversationID, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%v: conversation %s: status %d: %s", ErrDelivery, e.ConversationID, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%v: conversation %s: status %d", ErrDelivery, e.ConversationID, e.StatusCode)
}

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

func (e *DeliveryError) Unwrap() error { return e.Err }

// PayloadError explains why a webhook body was rejected.
type PayloadError struct {
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrMalformedPayload, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrMalformedPayload, e.Reason)
}

func (e *PayloadError) Is(target error) bool { return target == ErrMalformedPayload }

func (e *PayloadError) Unwrap() error { return e.Err }
