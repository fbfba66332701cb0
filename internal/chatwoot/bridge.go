package chatwoot

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/pdfbot/internal/answering"
	"github.com/mohammad-safakhou/pdfbot/internal/telemetry"
	"github.com/mohammad-safakhou/pdfbot/models"
)

// Outcome is what happened to one webhook delivery.
type Outcome string

const (
	OutcomeAnswered    Outcome = "answered"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeMalformed   Outcome = "malformed"
	OutcomeFailed      Outcome = "failed"
	OutcomeUndelivered Outcome = "undelivered"
)

// Answerer produces answers for incoming messages.
type Answerer interface {
	Answer(ctx context.Context, question string, meta answering.Meta) (models.AnswerResult, error)
}

// Sender delivers a reply into a conversation.
type Sender interface {
	SendMessage(ctx context.Context, ref models.ConversationRef, content string) error
}

// Bridge turns Chatwoot webhook events into answers posted back to the
// conversation they came from.
type Bridge struct {
	answerer Answerer
	sender   Sender
	dedup    Deduper
	metrics  *telemetry.Metrics
	logger   *log.Logger
}

// NewBridge wires a bridge. A nil dedup disables de-duplication; a nil
// sender answers without posting anything back.
func NewBridge(answerer Answerer, sender Sender, dedup Deduper, metrics *telemetry.Metrics) *Bridge {
	return &Bridge{
		answerer: answerer,
		sender:   sender,
		dedup:    dedup,
		metrics:  metrics,
		logger:   log.New(log.Writer(), "[CHATWOOT] ", log.LstdFlags),
	}
}

// HandleWebhook processes one webhook body. It never fails; every problem
// is logged and reported through the returned outcome.
func (b *Bridge) HandleWebhook(ctx context.Context, body []byte) Outcome {
	out := b.handle(ctx, body)
	b.metrics.WebhookEvent(string(out))
	return out
}

func (b *Bridge) handle(ctx context.Context, body []byte) Outcome {
	ev, err := Parse(body)
	if err != nil {
		b.logger.Printf("rejecting webhook: %v", err)
		return OutcomeMalformed
	}
	msg, ok := ev.(MessageCreated)
	if !ok {
		b.logger.Printf("ignoring event %q", ev.Name())
		return OutcomeIgnored
	}
	if reason := SkipReason(msg); reason != "" {
		b.logger.Printf("ignoring message %s in conversation %s: %s", msg.MessageID, msg.Conversation.ConversationID, reason)
		return OutcomeIgnored
	}

	if b.dedup != nil && msg.MessageID != "" {
		first, err := b.dedup.FirstSeen(ctx, msg.MessageID)
		if err != nil {
			// fail open
			b.logger.Printf("dedup check failed for message %s: %v", msg.MessageID, err)
		} else if !first {
			b.logger.Printf("duplicate message %s in conversation %s", msg.MessageID, msg.Conversation.ConversationID)
			return OutcomeDuplicate
		}
	}

	res, err := b.answerer.Answer(ctx, msg.Content, answering.Meta{
		Channel:        models.ChannelChatwoot,
		ConversationID: msg.Conversation.ConversationID,
	})
	if err != nil {
		b.logger.Printf("answer failed for conversation %s: %v", msg.Conversation.ConversationID, err)
		return OutcomeFailed
	}

	if b.sender == nil {
		b.logger.Printf("chatwoot credentials not configured; reply for conversation %s not sent", msg.Conversation.ConversationID)
		return OutcomeUndelivered
	}
	if err := b.sender.SendMessage(ctx, msg.Conversation, res.Text); err != nil {
		b.logger.Printf("reply dropped: %v", err)
		return OutcomeUndelivered
	}
	b.logger.Printf("replied to conversation %s", msg.Conversation.ConversationID)
	return OutcomeAnswered
}
