package booksapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/finchat/booksync/assistant/contract"
)

const maxResponseSizeBytes = 4 << 20

const dateLayout = "2006-01-02"

// Config holds connection settings for the external Books API.
type Config struct {
	URL     string        `split_words:"true" required:"true"`
	Token   string        `split_words:"true" required:"true"`
	Timeout time.Duration `split_words:"true" default:"30s"`
}

// ClientOption customizes Client.
type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client talks to the external financial-record system. It is the only
// component allowed to make network calls to it.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ contractx.Upstream = (*Client)(nil)

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("books api url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid books api url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("books api token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

func MustNew(cfg Config, opts ...ClientOption) *Client {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return client
}

// List fetches one collection, filtered as narrowly as the caller allows.
// Full pulls are expensive against a rate-limited upstream, so callers
// should pass filters whenever they have them.
func (c *Client) List(ctx context.Context, kind contractx.Kind, filter contractx.Filter) ([]contractx.Document, error) {
	path, err := collectionPath(kind)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if filter.CustomerID != "" {
		query.Set("customer_id", filter.CustomerID)
	}
	if !filter.StartDate.IsZero() {
		query.Set("start_date", filter.StartDate.UTC().Format(dateLayout))
	}
	if !filter.EndDate.IsZero() {
		query.Set("end_date", filter.EndDate.UTC().Format(dateLayout))
	}
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var payloads []json.RawMessage
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return nil, fmt.Errorf("decode %s collection: %w", kind, err)
	}

	docs := make([]contractx.Document, 0, len(payloads))
	for _, payload := range payloads {
		doc, err := decodeDocument(payload)
		if err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("skipping undecodable upstream document")
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Get fetches a single record by external id.
func (c *Client) Get(ctx context.Context, kind contractx.Kind, externalID string) (contractx.Document, error) {
	path, err := recordPath(kind, externalID)
	if err != nil {
		return contractx.Document{}, err
	}

	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return contractx.Document{}, err
	}
	return decodeDocument(raw)
}

// Create posts a new record and returns the stored document, id assigned
// by the upstream system.
func (c *Client) Create(ctx context.Context, kind contractx.Kind, payload map[string]any) (contractx.Document, error) {
	path, err := collectionPath(kind)
	if err != nil {
		return contractx.Document{}, err
	}

	raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return contractx.Document{}, err
	}
	return decodeDocument(raw)
}

// Update applies a sparse update to an existing record.
func (c *Client) Update(ctx context.Context, kind contractx.Kind, externalID string, payload map[string]any) (contractx.Document, error) {
	path, err := recordPath(kind, externalID)
	if err != nil {
		return contractx.Document{}, err
	}

	raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return contractx.Document{}, err
	}
	return decodeDocument(raw)
}

func collectionPath(kind contractx.Kind) (string, error) {
	switch kind {
	case contractx.KindCustomer:
		return "/v1/customers", nil
	case contractx.KindInvoice:
		return "/v1/invoices", nil
	case contractx.KindPayment:
		return "/v1/payments", nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", contractx.ErrValidation, kind)
	}
}

func recordPath(kind contractx.Kind, externalID string) (string, error) {
	base, err := collectionPath(kind)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(externalID)
	if id == "" {
		return "", fmt.Errorf("%w: external id is empty", contractx.ErrValidation)
	}
	return base + "/" + url.PathEscape(id), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build books request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation propagates untranslated so callers can tell a
			// timeout from an upstream outage.
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", contractx.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", contractx.ErrUpstreamUnavailable, err)
	}

	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// classifyStatus maps HTTP status codes onto the upstream error taxonomy.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status=%d", contractx.ErrUpstreamRateLimited, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status=%d", contractx.ErrUpstreamAuthExpired, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status=%d", contractx.ErrNotFound, status)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status=%d body=%s", contractx.ErrUpstreamUnavailable, status, truncate(body, 256))
	default:
		return fmt.Errorf("%w: unexpected status=%d body=%s", contractx.ErrValidation, status, truncate(body, 256))
	}
}

func decodeDocument(raw json.RawMessage) (contractx.Document, error) {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return contractx.Document{}, fmt.Errorf("%w: decode document: %v", contractx.ErrMapping, err)
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return contractx.Document{}, fmt.Errorf("%w: document has no id", contractx.ErrMapping)
	}
	return contractx.Document{
		ExternalID: envelope.ID,
		Raw:        append(json.RawMessage(nil), raw...),
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
