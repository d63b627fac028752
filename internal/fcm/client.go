package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ibrahimkhan7059/Edubazaar/internal/config"
	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

// Client sends wire messages to the FCM HTTP v1 per-project endpoint and
// classifies responses. It never mutates queue state.
type Client struct {
	endpoint  string
	projectID string
	client    *http.Client
	logger    *slog.Logger
}

// NewClient creates a gateway client for one Firebase project.
func NewClient(cfg config.FirebaseConfig, projectID string, logger *slog.Logger) *Client {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:  cfg.Endpoint,
		projectID: projectID,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With("component", "fcm"),
	}
}

// sendResponse carries the acknowledgment field FCM v1 returns on success,
// e.g. "projects/{project}/messages/{id}".
type sendResponse struct {
	Name string `json:"name"`
}

// Send issues one POST for one device token. Every failure mode is folded
// into the returned outcome; an ambiguous 2xx without the name acknowledgment
// is a failure, never a silent success.
func (c *Client) Send(ctx context.Context, msg *Message, authHeader string) domain.DispatchOutcome {
	outcome := domain.DispatchOutcome{Token: domain.RedactToken(msg.Token)}

	body, err := json.Marshal(SendRequest{Message: *msg})
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to marshal message: %v", err)
		return outcome
	}

	sendURL := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.endpoint, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to create request: %v", err)
		return outcome
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader)

	resp, err := c.client.Do(req)
	if err != nil {
		outcome.Error = fmt.Sprintf("request failed: %v", err)
		return outcome
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to read response body: %v", err)
		return outcome
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome.Error = domain.NewGatewayError(resp.StatusCode, string(respBody)).Error()
		c.logger.Warn("fcm send rejected",
			"token", outcome.Token,
			"status", resp.StatusCode,
		)
		return outcome
	}

	var ack sendResponse
	if err := json.Unmarshal(respBody, &ack); err != nil || ack.Name == "" {
		outcome.Error = fmt.Sprintf("missing acknowledgment in response: %s", string(respBody))
		return outcome
	}

	outcome.Success = true
	c.logger.Debug("fcm send acknowledged",
		"token", outcome.Token,
		"message_name", ack.Name,
	)
	return outcome
}
