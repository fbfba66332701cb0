package chatwoot

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pdfbot/internal/answering"
	"github.com/mohammad-safakhou/pdfbot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnswerer struct {
	mu        sync.Mutex
	questions []string
	metas     []answering.Meta
	err       error
}

func (f *fakeAnswerer) Answer(_ context.Context, q string, meta answering.Meta) (models.AnswerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, q)
	f.metas = append(f.metas, meta)
	if f.err != nil {
		return models.AnswerResult{}, f.err
	}
	return models.AnswerResult{Text: "answer to " + q}, nil
}

func webhook(messageID, senderType, messageType string) []byte {
	return []byte(`{"event":"message_created","id":` + messageID + `,"content":"Where is Paris?","message_type":` + messageType +
		`,"private":false,"sender":{"id":1,"type":"` + senderType + `"},"conversation":{"id":42},"account":{"id":7}}`)
}

func newTestBridge(t *testing.T, answerer Answerer, status map[string]int) (*Bridge, *fakeChatwoot) {
	t.Helper()
	fake, url := newFakeChatwoot(t, status)
	return NewBridge(answerer, NewClient(clientConfig(url), nil), NewMemoryDeduper(time.Minute), nil), fake
}

func TestBridgeAnswersContactMessage(t *testing.T) {
	ans := &fakeAnswerer{}
	b, fake := newTestBridge(t, ans, nil)

	out := b.HandleWebhook(context.Background(), webhook("100", "contact", `"incoming"`))
	assert.Equal(t, OutcomeAnswered, out)

	require.Len(t, ans.questions, 1)
	assert.Equal(t, "Where is Paris?", ans.questions[0])
	assert.Equal(t, answering.Meta{Channel: models.ChannelChatwoot, ConversationID: "42"}, ans.metas[0])

	posts := fake.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "/api/v1/accounts/7/conversations/42/messages", posts[0].Path)
	assert.Equal(t, "answer to Where is Paris?", posts[0].Body.Content)
	assert.Equal(t, "outgoing", posts[0].Body.MessageType)
}

func TestBridgeLoopGuard(t *testing.T) {
	cases := map[string][]byte{
		"agent reply":        webhook("1", "user", `"outgoing"`),
		"bot reply":          webhook("2", "agent_bot", `"outgoing"`),
		"own outgoing echo":  webhook("3", "contact", `1`),
		"agent incoming":     webhook("4", "user", `"incoming"`),
		"activity":           webhook("5", "contact", `2`),
		"private note":       []byte(`{"event":"message_created","id":6,"content":"note","message_type":"incoming","private":true,"sender":{"type":"contact"},"conversation":{"id":42}}`),
		"conversation event": []byte(`{"event":"conversation_status_changed","id":42}`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ans := &fakeAnswerer{}
			b, fake := newTestBridge(t, ans, nil)
			assert.Equal(t, OutcomeIgnored, b.HandleWebhook(context.Background(), body))
			assert.Empty(t, ans.questions)
			assert.Empty(t, fake.Posts())
		})
	}
}

func TestBridgeMalformedPayload(t *testing.T) {
	ans := &fakeAnswerer{}
	b, fake := newTestBridge(t, ans, nil)
	for _, body := range []string{"", "not json", `{"content":"x"}`, `{"event":"message_created","content":"hi"}`} {
		assert.Equal(t, OutcomeMalformed, b.HandleWebhook(context.Background(), []byte(body)))
	}
	assert.Empty(t, ans.questions)
	assert.Empty(t, fake.Posts())
}

func TestBridgeDuplicateDelivery(t *testing.T) {
	ans := &fakeAnswerer{}
	b, fake := newTestBridge(t, ans, nil)
	body := webhook("777", "contact", `0`)

	assert.Equal(t, OutcomeAnswered, b.HandleWebhook(context.Background(), body))
	assert.Equal(t, OutcomeDuplicate, b.HandleWebhook(context.Background(), body))
	assert.Len(t, ans.questions, 1)
	assert.Len(t, fake.Posts(), 1)
}

func TestBridgeAnswerFailurePostsNothing(t *testing.T) {
	ans := &fakeAnswerer{err: &models.ModelError{Attempts: 2, Err: errors.New("down")}}
	b, fake := newTestBridge(t, ans, nil)
	assert.Equal(t, OutcomeFailed, b.HandleWebhook(context.Background(), webhook("8", "contact", `"incoming"`)))
	assert.Empty(t, fake.Posts())
}

func TestBridgeDeliveryFailure(t *testing.T) {
	ans := &fakeAnswerer{}
	b, fake := newTestBridge(t, ans, map[string]int{"api-token": http.StatusBadGateway})
	assert.Equal(t, OutcomeUndelivered, b.HandleWebhook(context.Background(), webhook("9", "contact", `"incoming"`)))
	assert.Len(t, fake.Posts(), 1)
}

func TestBridgeWithoutSender(t *testing.T) {
	ans := &fakeAnswerer{}
	b := NewBridge(ans, nil, nil, nil)
	assert.Equal(t, OutcomeUndelivered, b.HandleWebhook(context.Background(), webhook("10", "contact", `"incoming"`)))
	require.Len(t, ans.questions, 1)
	assert.True(t, strings.HasPrefix(ans.questions[0], "Where"))
}
