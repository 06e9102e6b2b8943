package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

const (
	refundPaymentsPath = "/refund-payments"
	refundPaymentPath  = "/refund-payments/{id}"

	// IdempotencyKeyHeader carries a per-request key so the backend can
	// collapse retried transition requests.
	IdempotencyKeyHeader = "Idempotency-Key"
)

// Loader fetches the complete current record set. It is called once per
// activation and never retries on its own.
type Loader interface {
	Load(ctx context.Context) ([]refunds.Record, error)
}

// PatchPayload is the body of PATCH /refund-payments/{id}.
type PatchPayload struct {
	Status   refunds.Status   `json:"status"`
	Comment  string           `json:"comment,omitempty"`
	Decision refunds.Decision `json:"decision,omitempty"`
}

// Client talks to the refund-payments REST backend.
type Client struct {
	http   *resty.Client
	newKey func() string
	log    *zap.Logger
}

// NewClient returns a Client for baseURL. token, when set, is sent as a
// bearer token on every request.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &Client{http: rc, newKey: uuid.NewString, log: zap.NewNop()}
}

// WithLogger sets the logger used to report skipped snapshot rows.
func (c *Client) WithLogger(log *zap.Logger) *Client {
	c.log = logger.OrNop(log)
	return c
}

// Load implements Loader with GET /refund-payments. Rows that do not decode
// are logged and skipped so one bad row cannot block hydration.
func (c *Client) Load(ctx context.Context) ([]refunds.Record, error) {
	var rows []json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&rows).
		Get(refundPaymentsPath)
	if err != nil {
		return nil, newNetworkError("list", err)
	}
	if !resp.IsSuccess() {
		return nil, &NetworkError{Op: "list", StatusCode: resp.StatusCode(), Err: ErrUnexpectedStatus}
	}

	records := make([]refunds.Record, 0, len(rows))
	for i, row := range rows {
		var rec refunds.Record
		if err := json.Unmarshal(row, &rec); err != nil {
			c.log.Warn("skipping undecodable snapshot row",
				zap.Int("index", i), zap.String("id", rowID(row)), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// rowID extracts the id of a row that failed to decode as a whole.
func rowID(row json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(row, &head)
	return head.ID
}

// PatchRefundPayment issues PATCH /refund-payments/{id}. A nil error means
// the backend accepted the transition; the resulting record arrives later as
// an updated event.
func (c *Client) PatchRefundPayment(ctx context.Context, id string, payload PatchPayload) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetHeader("Content-Type", "application/json").
		SetHeader(IdempotencyKeyHeader, c.newKey()).
		SetBody(payload).
		Patch(refundPaymentPath)
	if err != nil {
		return newNetworkError("patch", err)
	}
	if !resp.IsSuccess() {
		return &NetworkError{Op: "patch", StatusCode: resp.StatusCode(), Err: ErrUnexpectedStatus}
	}
	return nil
}
