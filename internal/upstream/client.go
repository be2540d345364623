package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orizonpaybr/gateway-web-sub001/libs/metrics"
)

// ErrTokenInvalid marks an explicit rejection of a bearer token by the
// gateway, as opposed to a transport failure. Session revalidation
// treats the two very differently.
var ErrTokenInvalid = errors.New("token rejected by gateway")

// APIError is a structured rejection from the gateway. Message is the
// backend-provided text and is surfaced to the user verbatim.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("gateway error (%d)", e.Status)
}

// Client talks to the gateway REST API. All money logic lives behind
// it; the dashboard only relays requests with the caller's bearer token.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	body := map[string]string{"identifier": identifier, "password": secret}
	var out LoginResult
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Verify2FA(ctx context.Context, tempToken, code string) (*LoginResult, error) {
	body := map[string]string{"temp_token": tempToken, "code": code}
	var out LoginResult
	if err := c.do(ctx, "verify_2fa", http.MethodPost, "/auth/2fa/verify", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout", token, nil, nil)
}

// Register submits signup data, as multipart form data when KYC
// documents are attached and as plain JSON otherwise.
func (c *Client) Register(ctx context.Context, data RegisterData, documents []Document) (*LoginResult, error) {
	var out LoginResult
	if len(documents) == 0 {
		if err := c.do(ctx, "register", http.MethodPost, "/auth/register", "", data, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal register data: %w", err)
	}
	if err := w.WriteField("data", string(payload)); err != nil {
		return nil, fmt.Errorf("write register field: %w", err)
	}
	for _, doc := range documents {
		part, err := w.CreateFormFile(doc.Field, doc.Filename)
		if err != nil {
			return nil, fmt.Errorf("create document part: %w", err)
		}
		if _, err := part.Write(doc.Content); err != nil {
			return nil, fmt.Errorf("write document part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/register", &buf)
	if err != nil {
		return nil, fmt.Errorf("build register request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	if err := c.send(req, "register", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context, token string) (*Session, error) {
	var out Session
	if err := c.do(ctx, "profile", http.MethodGet, "/auth/profile", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyToken asks the gateway whether a persisted token is still
// valid. An explicit 401/403 comes back as ErrTokenInvalid; anything
// else (timeout, 5xx, garbage body) comes back as a plain error so the
// caller can tell a dead token from a bad network day.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	err := c.do(ctx, "verify_token", http.MethodGet, "/auth/verify", token, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		return fmt.Errorf("%w: %s", ErrTokenInvalid, apiErr.Message)
	}
	return err
}

func (c *Client) GenerateDeposit(ctx context.Context, token string, req DepositRequest) (*Charge, error) {
	var out Charge
	if err := c.do(ctx, "generate_deposit", http.MethodPost, "/pix/deposits", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DepositStatus(ctx context.Context, token, transactionID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	path := "/pix/deposits/" + url.PathEscape(transactionID) + "/status"
	if err := c.do(ctx, "deposit_status", http.MethodGet, path, token, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) Balance(ctx context.Context, token string) (*Balance, error) {
	var out Balance
	if err := c.do(ctx, "balance", http.MethodGet, "/account/balance", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Transactions(ctx context.Context, token string, query TransactionQuery) ([]Transaction, string, error) {
	q := url.Values{}
	if query.Status != "" {
		q.Set("status", query.Status)
	}
	if query.Type != "" {
		q.Set("type", query.Type)
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Cursor != "" {
		q.Set("cursor", query.Cursor)
	}
	path := "/transactions"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out struct {
		Transactions []Transaction `json:"transactions"`
		NextCursor   string        `json:"next_cursor"`
	}
	if err := c.do(ctx, "transactions", http.MethodGet, path, token, nil, &out); err != nil {
		return nil, "", err
	}
	return out.Transactions, out.NextCursor, nil
}

func (c *Client) TransactionSummary(ctx context.Context, token string) (*TransactionSummary, error) {
	var out TransactionSummary
	if err := c.do(ctx, "transaction_summary", http.MethodGet, "/transactions/summary", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JourneyLevels(ctx context.Context, token string) ([]JourneyLevel, error) {
	var out struct {
		Levels []JourneyLevel `json:"levels"`
	}
	if err := c.do(ctx, "journey_levels", http.MethodGet, "/journey/levels", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Levels, nil
}

// do issues a JSON request and decodes the response into out. Non-2xx
// responses become *APIError with the backend message when the body
// parses, and a generic one when it does not.
func (c *Client) do(ctx context.Context, operation, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.send(req, operation, out)
}

func (c *Client) send(req *http.Request, operation string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	metrics.UpstreamRequestCount.WithLabelValues(operation, status).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err := json.Unmarshal(raw, apiErr); err != nil {
			// Unparseable body: fall back to the generic message.
			apiErr = &APIError{Status: resp.StatusCode, Code: "UPSTREAM_ERROR"}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
