// Package upload sends wizard step data to the analysis backend.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/verte-zerg/emiwiz/internal/model"
)

// Defaults used when the configuration leaves them unset.
const (
	DefaultBaseURL = "http://localhost:5003"
	DefaultUserID  = "1"
	DefaultTimeout = 60 * time.Second
)

// Backend endpoints.
const (
	EndpointClassification   = "/upload/vehicle_classification"
	EndpointPenetration      = "/upload/penetration_rate"
	EndpointTrafficVolume    = "/upload/traffic_volume"
	EndpointProjectedTraffic = "/upload/projected_traffic"
	EndpointProcessTraffic   = "/process/traffic"
	EndpointTrafficPlot      = "/plot/traffic"
)

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransactionStore keeps the session correlation token between uploads.
type TransactionStore interface {
	TransactionID(ctx context.Context) (string, error)
	SetTransactionID(ctx context.Context, id string) error
}

// AuditLog records every backend call.
type AuditLog interface {
	RecordUpload(ctx context.Context, rec model.UploadRecord) (int64, error)
}

// HTTPError reports a non-2xx backend response.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s returned %d", e.Endpoint, e.StatusCode)
}

// Response is the decoded JSON body of an upload call.
type Response struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	BaseURL      string
	UserID       string
	Client       HTTPClient
	Transactions TransactionStore
	Audit        AuditLog
}

// Coordinator builds and sends upload requests.
type Coordinator struct {
	baseURL      string
	userID       string
	client       HTTPClient
	transactions TransactionStore
	audit        AuditLog
	now          func() time.Time

	// seq orders requests; committed is the seq of the reply whose id is stored.
	mu        sync.Mutex
	seq       uint64
	committed uint64
}

// New returns a Coordinator, filling unset options with defaults.
func New(opts Options) *Coordinator {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userID := opts.UserID
	if userID == "" {
		userID = DefaultUserID
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	transactions := opts.Transactions
	if transactions == nil {
		transactions = NewMemoryTransactions("")
	}
	return &Coordinator{
		baseURL:      baseURL,
		userID:       userID,
		client:       client,
		transactions: transactions,
		audit:        opts.Audit,
		now:          time.Now,
	}
}

// BaseURL returns the backend root the coordinator posts to.
func (c *Coordinator) BaseURL() string {
	return c.baseURL
}

// CurrentTransactionID returns the stored transaction id, falling back to the default.
func (c *Coordinator) CurrentTransactionID(ctx context.Context) string {
	id, err := c.transactions.TransactionID(ctx)
	if err != nil || strings.TrimSpace(id) == "" {
		return model.DefaultTransactionID
	}
	return id
}

func (c *Coordinator) send(ctx context.Context, endpoint, txID, contentType string, body []byte) (Response, error) {
	seq := c.nextSeq()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.record(ctx, endpoint, txID, 0, err)
		return Response{}, fmt.Errorf("failed to post %s: %w", endpoint, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort body close.
			_ = cerr
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(ctx, endpoint, txID, resp.StatusCode, err)
		return Response{}, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: errorMessage(data)}
		c.record(ctx, endpoint, txID, resp.StatusCode, herr)
		return Response{}, herr
	}

	out, err := decodeResponse(data)
	if err != nil {
		c.record(ctx, endpoint, txID, resp.StatusCode, err)
		return Response{}, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	if usableTransactionID(out.TransactionID) {
		if err := c.commitTransaction(ctx, seq, out.TransactionID); err != nil {
			c.record(ctx, endpoint, txID, resp.StatusCode, err)
			return out, fmt.Errorf("failed to store transaction id: %w", err)
		}
	}
	c.record(ctx, endpoint, txID, resp.StatusCode, nil)
	return out, nil
}

func (c *Coordinator) nextSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// commitTransaction stores id unless a reply to a later request was already stored.
func (c *Coordinator) commitTransaction(ctx context.Context, seq uint64, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.committed {
		return nil
	}
	if err := c.transactions.SetTransactionID(ctx, id); err != nil {
		return err
	}
	c.committed = seq
	return nil
}

func (c *Coordinator) record(ctx context.Context, endpoint, txID string, status int, err error) {
	if c.audit == nil {
		return
	}
	rec := model.UploadRecord{
		Endpoint:      endpoint,
		TransactionID: txID,
		Status:        status,
		CreatedAt:     c.now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if _, aerr := c.audit.RecordUpload(context.WithoutCancel(ctx), rec); aerr != nil {
		// Best-effort audit.
		_ = aerr
	}
}

func usableTransactionID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != "none"
}

func decodeResponse(data []byte) (Response, error) {
	var out Response
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return out, err
	}
	if v, ok := fields["transaction_id"]; ok && v != nil {
		out.TransactionID = fmt.Sprint(v)
	}
	if v, ok := fields["message"].(string); ok {
		out.Message = v
	}
	return out, nil
}

func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// IsHTTPError reports whether err carries a backend status response.
func IsHTTPError(err error) (*HTTPError, bool) {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr, true
	}
	return nil, false
}

// MemoryTransactions is an in-process TransactionStore.
type MemoryTransactions struct {
	mu sync.Mutex
	id string
}

// NewMemoryTransactions returns a store seeded with id.
func NewMemoryTransactions(id string) *MemoryTransactions {
	return &MemoryTransactions{id: id}
}

// TransactionID returns the current id or the default.
func (m *MemoryTransactions) TransactionID(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		return model.DefaultTransactionID, nil
	}
	return m.id, nil
}

// SetTransactionID replaces the current id.
func (m *MemoryTransactions) SetTransactionID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}
