package chatwoot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/pdfbot/models"
)

// Event names Chatwoot sends to webhooks. Only message_created is acted on.
const (
	EventMessageCreated      = "message_created"
	EventMessageUpdated      = "message_updated"
	EventConversationCreated = "conversation_created"
	EventConversationUpdated = "conversation_updated"
	EventWebwidgetTriggered  = "webwidget_triggered"
)

// MessageType is Chatwoot's message direction. Webhooks encode it either as
// a string ("incoming") or as its enum ordinal (0).
type MessageType string

const (
	MessageIncoming MessageType = "incoming"
	MessageOutgoing MessageType = "outgoing"
	MessageActivity MessageType = "activity"
	MessageTemplate MessageType = "template"
)

var messageTypeOrdinals = []MessageType{MessageIncoming, MessageOutgoing, MessageActivity, MessageTemplate}

func (m *MessageType) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = MessageType(strings.ToLower(strings.TrimSpace(s)))
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("message_type: %w", err)
	}
	if n < 0 || n >= len(messageTypeOrdinals) {
		*m = MessageType(strconv.Itoa(n))
		return nil
	}
	*m = messageTypeOrdinals[n]
	return nil
}

// flexID accepts ids sent as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type envelope struct {
	Event          *string     `json:"event"`
	ID             flexID      `json:"id"`
	Content        *string     `json:"content"`
	MessageType    MessageType `json:"message_type"`
	Private        bool        `json:"private"`
	SenderType     string      `json:"sender_type"`
	ConversationID flexID      `json:"conversation_id"`
	Sender         *struct {
		ID   flexID `json:"id"`
		Type string `json:"type"`
	} `json:"sender"`
	Conversation *struct {
		ID flexID `json:"id"`
	} `json:"conversation"`
	Account *struct {
		ID flexID `json:"id"`
	} `json:"account"`
}

// Event is a decoded webhook body.
type Event interface {
	Name() string
}

// MessageCreated is the only event that can produce a reply.
type MessageCreated struct {
	MessageID    string
	Content      string
	MessageType  MessageType
	Private      bool
	SenderType   string
	Conversation models.ConversationRef
}

func (MessageCreated) Name() string { return EventMessageCreated }

// OtherEvent is any event the bridge acknowledges without acting on.
type OtherEvent struct {
	Event string
}

func (o OtherEvent) Name() string { return o.Event }

// Parse decodes a webhook body. Bodies that are not JSON objects, lack an
// event name, or describe a message without a conversation id fail with
// *models.PayloadError.
func Parse(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &models.PayloadError{Reason: "invalid json", Err: err}
	}
	if env.Event == nil || strings.TrimSpace(*env.Event) == "" {
		return nil, &models.PayloadError{Reason: "missing event"}
	}
	name := strings.TrimSpace(*env.Event)
	if name != EventMessageCreated {
		return OtherEvent{Event: name}, nil
	}

	convID := string(env.ConversationID)
	if env.Conversation != nil && env.Conversation.ID != "" {
		convID = string(env.Conversation.ID)
	}
	if convID == "" {
		return nil, &models.PayloadError{Reason: "message_created without conversation id"}
	}

	msg := MessageCreated{
		MessageID:   string(env.ID),
		MessageType: env.MessageType,
		Private:     env.Private,
		SenderType:  strings.ToLower(strings.TrimSpace(env.SenderType)),
		Conversation: models.ConversationRef{
			ConversationID: convID,
		},
	}
	if env.Content != nil {
		msg.Content = *env.Content
	}
	if env.Sender != nil && env.Sender.Type != "" {
		msg.SenderType = strings.ToLower(strings.TrimSpace(env.Sender.Type))
	}
	if env.Account != nil {
		msg.Conversation.AccountID = string(env.Account.ID)
	}
	return msg, nil
}

// SkipReason explains why a message must not be answered; empty means it
// should be. Only text written by a contact is answered, which keeps the
// bot from replying to its own outgoing messages.
func SkipReason(m MessageCreated) string {
	switch {
	case m.MessageType != MessageIncoming:
		return fmt.Sprintf("message_type %q", m.MessageType)
	case m.SenderType != "contact":
		return fmt.Sprintf("sender type %q", m.SenderType)
	case m.Private:
		return "private note"
	case strings.TrimSpace(m.Content) == "":
		return "blank content"
	}
	return ""
}
