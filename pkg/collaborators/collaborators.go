// Package collaborators provides HTTP-backed implementations of the
// engine's external collaborator interfaces: the CRM contact directory,
// the outbound action executor and the AI decision provider.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/enroutehq/enroute/pkg/protocol"
)

const defaultTimeoutSeconds = 30

// Config carries the base URLs of the collaborator services. APIKey, when
// set, is sent as a bearer token on every request.
type Config struct {
	CRMBaseURL      string
	DeliveryBaseURL string
	AIBaseURL       string
	APIKey          string
	Timeout         time.Duration
}

// Client implements protocol.ContactDirectory, protocol.ActionExecutor,
// protocol.DecisionProvider and protocol.CRMMutator over HTTP.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates an HTTP collaborator client.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeoutSeconds * time.Second
	}

	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}
}

// Bundle returns the client wired into a Collaborators value, with the
// sub-journey enroller supplied by the caller.
func (c *Client) Bundle(enroller protocol.SubJourneyEnroller) protocol.Collaborators {
	return protocol.Collaborators{
		Contacts:  c,
		Actions:   c,
		Decisions: c,
		CRM:       c,
		Enroller:  enroller,
	}
}

// GetContact fetches a contact summary from the CRM.
func (c *Client) GetContact(ctx context.Context, id string) (*protocol.ContactSummary, error) {
	var contact protocol.ContactSummary

	url := fmt.Sprintf("%s/contacts/%s", c.config.CRMBaseURL, id)
	if err := c.do(ctx, http.MethodGet, url, nil, &contact); err != nil {
		return nil, fmt.Errorf("failed to fetch contact %s: %w", id, err)
	}

	return &contact, nil
}

// Send delivers an outbound action through the delivery service. Webhook
// payloads carry their own destination URL and are posted there directly.
func (c *Client) Send(ctx context.Context, kind protocol.ActionKind, payload map[string]any) (*protocol.ActionResult, error) {
	var result protocol.ActionResult

	if kind == protocol.ActionKindWebhook {
		if err := c.sendWebhook(ctx, payload); err != nil {
			return &protocol.ActionResult{Delivered: false, Error: err.Error()}, nil
		}

		return &protocol.ActionResult{Delivered: true}, nil
	}

	url := fmt.Sprintf("%s/send/%s", c.config.DeliveryBaseURL, kind)
	if err := c.do(ctx, http.MethodPost, url, payload, &result); err != nil {
		return nil, fmt.Errorf("failed to deliver %s action: %w", kind, err)
	}

	return &result, nil
}

func (c *Client) sendWebhook(ctx context.Context, payload map[string]any) error {
	url, _ := payload["url"].(string)
	if url == "" {
		return fmt.Errorf("webhook payload has no url")
	}

	method, _ := payload["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(payload["payload"])
	if err != nil {
		return fmt.Errorf("failed to encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if headers, ok := payload["headers"].(map[string]any); ok {
		for key, value := range headers {
			if str, ok := value.(string); ok {
				req.Header.Set(key, str)
			}
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

// Decide asks the AI service for a boolean routing decision.
func (c *Client) Decide(ctx context.Context, prompt string, data map[string]any) (*protocol.Decision, error) {
	var decision protocol.Decision

	url := c.config.AIBaseURL + "/decide"
	body := map[string]any{"prompt": prompt, "context": data}

	if err := c.do(ctx, http.MethodPost, url, body, &decision); err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	return &decision, nil
}

// MutateContact applies an attribute patch to a CRM contact.
func (c *Client) MutateContact(ctx context.Context, contactID string, patch map[string]any) error {
	url := fmt.Sprintf("%s/contacts/%s", c.config.CRMBaseURL, contactID)

	return c.do(ctx, http.MethodPatch, url, patch, nil)
}

// MoveDeal moves a CRM deal to a pipeline stage.
func (c *Client) MoveDeal(ctx context.Context, dealID, stageID string) error {
	url := fmt.Sprintf("%s/deals/%s/stage", c.config.CRMBaseURL, dealID)

	return c.do(ctx, http.MethodPut, url, map[string]any{"stage_id": stageID}, nil)
}

// AddTag adds a tag to a CRM contact.
func (c *Client) AddTag(ctx context.Context, contactID, tag string) error {
	url := fmt.Sprintf("%s/contacts/%s/tags", c.config.CRMBaseURL, contactID)

	return c.do(ctx, http.MethodPost, url, map[string]any{"tag": tag}, nil)
}

// RemoveTag removes a tag from a CRM contact.
func (c *Client) RemoveTag(ctx context.Context, contactID, tag string) error {
	url := fmt.Sprintf("%s/contacts/%s/tags/%s", c.config.CRMBaseURL, contactID, tag)

	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}

		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s returned status %d", method, url, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
