// Package stripe implements the payment.Gateway and payment.EventVerifier
// interfaces against a Stripe-compatible card processor API.
package stripe

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/valyxa/storefront/internal/domain/payment"
)

// ClientConfig configures the processor API client.
type ClientConfig struct {
	// BaseURL of the processor API. Defaults to the public Stripe endpoint;
	// tests and the integration suite point it at a stub.
	BaseURL string
	// SecretKey authenticates API calls.
	SecretKey string
	// Timeout bounds every processor call. Intent creation sits on the
	// checkout hot path, so this must stay small. Defaults to 10s.
	Timeout time.Duration
}

// Client talks to the processor over its form-encoded HTTP API.
type Client struct {
	http      *http.Client
	baseURL   string
	secretKey string
}

var _ payment.Gateway = (*Client)(nil)

// NewClient creates a processor API client with a bounded request timeout.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
	}
}

// CreateIntent opens a payment intent for the order total in minor currency
// units. The Idempotency-Key header is derived from the order ID, so a
// retried call for the same order returns the original intent instead of
// opening a second one.
func (c *Client) CreateIntent(ctx context.Context, req payment.CreateIntentRequest) (*payment.Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(payment.MinorUnits(req.Amount), 10))
	form.Set("currency", req.Currency)
	form.Set("metadata[order_id]", req.OrderID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build intent request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Idempotency-Key", "order-"+req.OrderID)

	return c.do(httpReq)
}

// GetIntent fetches an existing payment intent by its reference.
func (c *Client) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/payment_intents/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build intent request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(httpReq)
}

// do executes the request and decodes the intent. Transport failures,
// timeouts, and non-2xx responses all surface as payment.ErrGateway; the
// caller decides whether to re-drive the flow, nothing retries here.
func (c *Client) do(req *http.Request) (*payment.Intent, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrGateway, "call processor: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(payment.ErrGateway, "read processor response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(payment.ErrGateway, "processor returned %d: %s",
			resp.StatusCode, truncate(body, 256))
	}

	intent, err := decodeIntent(body)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrGateway, "decode processor response: %v", err)
	}
	return intent, nil
}

// decodeIntent extracts the intent fields from a processor JSON body.
func decodeIntent(data []byte) (*payment.Intent, error) {
	var intent payment.Intent
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Str()
			intent.ID = v
			return err
		case "client_secret":
			v, err := d.Str()
			intent.ClientSecret = v
			return err
		case "amount":
			v, err := d.Int64()
			intent.AmountMinor = v
			return err
		case "currency":
			v, err := d.Str()
			intent.Currency = v
			return err
		case "status":
			v, err := d.Str()
			intent.Status = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if intent.ID == "" {
		return nil, errors.New("missing intent id")
	}
	return &intent, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
