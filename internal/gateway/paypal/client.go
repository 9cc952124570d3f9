// Package paypal implements payment.Gateway on top of the PayPal Orders v2
// and Payments v2 REST APIs.
package paypal

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// SandboxURL is the PayPal sandbox API root.
const SandboxURL = "https://api-m.sandbox.paypal.com"

// maxDiagnostic bounds how much of an error body is kept.
const maxDiagnostic = 4 << 10

var _ payment.Gateway = (*Client)(nil)

// Options configures a Client.
type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// BrandName is shown to the payer on the approval page.
	BrandName string

	// HTTPClient is used as is when set. Otherwise a client with an
	// instrumented transport is created.
	HTTPClient     *http.Client
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Client is a stateless PayPal API client. Every call obtains a fresh
// access token.
type Client struct {
	base   *url.URL
	id     string
	secret string
	brand  string
	http   *http.Client
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = SandboxURL
	}
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("client id and secret are required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		var topts []otelhttp.Option
		if opts.TracerProvider != nil {
			topts = append(topts, otelhttp.WithTracerProvider(opts.TracerProvider))
		}
		if opts.MeterProvider != nil {
			topts = append(topts, otelhttp.WithMeterProvider(opts.MeterProvider))
		}
		hc = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, topts...),
			Timeout:   30 * time.Second,
		}
	}

	return &Client{
		base:   base,
		id:     opts.ClientID,
		secret: opts.ClientSecret,
		brand:  opts.BrandName,
		http:   hc,
	}, nil
}

// OpenIntent creates a CAPTURE-intent order and returns its id.
func (c *Client) OpenIntent(ctx context.Context, req payment.IntentRequest) (string, error) {
	const op = "open intent"
	if err := payment.CheckBreakdown(req); err != nil {
		return "", &payment.GatewayError{Op: op, Err: err}
	}

	body, err := c.call(ctx, op, "/v2/checkout/orders", encodeOrder(req, c.brand))
	if err != nil {
		return "", err
	}
	o, err := decodeOrder(body)
	if err != nil {
		return "", &payment.GatewayError{Op: op, Err: errors.Wrap(err, "decode order"), Diagnostic: diagnostic(body)}
	}
	if o.ID == "" {
		return "", &payment.GatewayError{Op: op, Err: errors.New("empty order id"), Diagnostic: diagnostic(body)}
	}
	return o.ID, nil
}

// Capture captures an approved order.
func (c *Client) Capture(ctx context.Context, intentID string) (*payment.CaptureResult, error) {
	const op = "capture"
	body, err := c.call(ctx, op, "/v2/checkout/orders/"+url.PathEscape(intentID)+"/capture", nil)
	if err != nil {
		return nil, err
	}
	res, err := decodeCapture(body)
	if err != nil {
		return nil, &payment.GatewayError{Op: op, Err: errors.Wrap(err, "decode capture"), Diagnostic: diagnostic(body)}
	}
	if res.IntentID == "" {
		res.IntentID = intentID
	}
	if res.Completed() && res.CaptureID == "" {
		return nil, &payment.GatewayError{Op: op, Err: errors.New("completed without capture id"), Diagnostic: diagnostic(body)}
	}
	return res, nil
}

// Refund fully refunds a capture.
func (c *Client) Refund(ctx context.Context, captureID string) error {
	_, err := c.call(ctx, "refund", "/v2/payments/captures/"+url.PathEscape(captureID)+"/refund", []byte("{}"))
	return err
}

// call authenticates and POSTs body to path, returning the response body of
// a 2xx response.
func (c *Client) call(ctx context.Context, op, path string, body []byte) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		var ge *payment.GatewayError
		if errors.As(err, &ge) {
			return nil, err
		}
		return nil, &payment.GatewayError{Op: "authenticate", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, &payment.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	return c.do(req, op)
}

// token obtains an access token with the client credentials grant.
func (c *Client) token(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/oauth2/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.id, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, "authenticate")
	if err != nil {
		return "", err
	}
	token, err := decodeToken(body)
	if err != nil {
		return "", errors.Wrap(err, "decode token")
	}
	if token == "" {
		return "", errors.New("empty access token")
	}
	return token, nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &payment.GatewayError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &payment.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &payment.GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
			Diagnostic: diagnostic(body),
		}
	}
	return body, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func diagnostic(body []byte) string {
	if len(body) > maxDiagnostic {
		body = body[:maxDiagnostic]
	}
	return string(bytes.TrimSpace(body))
}
