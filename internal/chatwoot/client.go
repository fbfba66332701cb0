package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/pdfbot/config"
	"github.com/mohammad-safakhou/pdfbot/internal/telemetry"
	"github.com/mohammad-safakhou/pdfbot/models"
	"golang.org/x/time/rate"
)

const tokenHeader = "api_access_token"

// Client posts replies into Chatwoot conversations through the REST API.
type Client struct {
	baseURL   string
	apiToken  string
	botToken  string
	accountID string
	http      *http.Client
	limiter   *rate.Limiter
	metrics   *telemetry.Metrics
	logger    *log.Logger
}

func NewClient(cfg config.ChatwootConfig, metrics *telemetry.Metrics) *Client {
	cfg = cfg.Normalize()
	return &Client{
		baseURL:   cfg.URL,
		apiToken:  cfg.APIToken,
		botToken:  cfg.BotToken,
		accountID: cfg.AccountID,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		metrics:   metrics,
		logger:    log.New(log.Writer(), "[CHATWOOT] ", log.LstdFlags),
	}
}

type outgoingMessage struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private"`
}

// SendMessage posts content as an outgoing public message. When the API
// token is rejected and a bot token is configured, the message is sent once
// more with the bot token. Failures come back as *models.DeliveryError.
func (c *Client) SendMessage(ctx context.Context, ref models.ConversationRef, content string) error {
	accountID := ref.AccountID
	if accountID == "" {
		accountID = c.accountID
	}
	if accountID == "" {
		return &models.DeliveryError{ConversationID: ref.ConversationID, Err: errors.New("no account id")}
	}
	token := c.apiToken
	if token == "" {
		token = c.botToken
	}
	if token == "" {
		return &models.DeliveryError{ConversationID: ref.ConversationID, Err: errors.New("no api token configured")}
	}

	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/conversations/%s/messages",
		c.baseURL, url.PathEscape(accountID), url.PathEscape(ref.ConversationID))
	body, err := json.Marshal(outgoingMessage{Content: content, MessageType: "outgoing"})
	if err != nil {
		return &models.DeliveryError{ConversationID: ref.ConversationID, Err: err}
	}

	err = c.post(ctx, endpoint, token, body, ref.ConversationID)
	var de *models.DeliveryError
	if errors.As(err, &de) && rejected(de.StatusCode) && token == c.apiToken && c.botToken != "" && c.botToken != c.apiToken {
		c.logger.Printf("api token rejected (status %d) for conversation %s, trying bot token", de.StatusCode, ref.ConversationID)
		c.metrics.Delivery(telemetry.OutcomeFallback)
		err = c.post(ctx, endpoint, c.botToken, body, ref.ConversationID)
	}
	if err != nil {
		c.metrics.Delivery(telemetry.OutcomeError)
		return err
	}
	c.metrics.Delivery(telemetry.OutcomeOK)
	return nil
}

func (c *Client) post(ctx context.Context, endpoint, token string, body []byte, conversationID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &models.DeliveryError{ConversationID: conversationID, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &models.DeliveryError{ConversationID: conversationID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &models.DeliveryError{ConversationID: conversationID, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &models.DeliveryError{
		ConversationID: conversationID,
		StatusCode:     resp.StatusCode,
		Body:           strings.TrimSpace(string(b)),
	}
}

func rejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
