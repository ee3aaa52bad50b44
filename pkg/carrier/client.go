package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teleos-scientific/tlink-backend/pkg/config"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
	"github.com/teleos-scientific/tlink-backend/pkg/logger"
	"github.com/teleos-scientific/tlink-backend/pkg/metrics"
)

var (
	errBaseURLRequired = errors.New("carrier base url is required")
	errAccountRequired = errors.New("carrier account number is required")
	errTokensRequired  = errors.New("carrier token source is required")
	errLoggerRequired  = errors.New("carrier logger is required")
)

// Client wraps the carrier REST API with centralized auth, timeouts, metrics,
// and error mapping. Every call runs under an explicit deadline; a deadline
// hit surfaces as CARRIER_TIMEOUT, anything else the carrier rejects as
// CARRIER_ERROR with the carrier's own code and message preserved.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	accountNumber string
	tokens        TokenSource
	timeout       time.Duration
	logger        *logger.Logger
	metrics       *metrics.CarrierMetrics
}

// NewClient initializes the carrier wrapper and its OAuth token cache.
func NewClient(ctx context.Context, cfg config.CarrierConfig, logg *logger.Logger, m *metrics.CarrierMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.AccountNumber) == "" {
		return nil, errAccountRequired
	}

	httpClient := &http.Client{}
	tokens, err := NewTokenCache(OAuthFetch(httpClient, baseURL, cfg.ClientID, cfg.ClientSecret), cfg.TokenSkew)
	if err != nil {
		return nil, err
	}

	c := &Client{
		httpClient:    httpClient,
		baseURL:       baseURL,
		accountNumber: cfg.AccountNumber,
		tokens:        tokens,
		timeout:       cfg.RequestTimeout,
		logger:        logg,
		metrics:       m,
	}

	logg.Info(ctx, "carrier client initialized")
	return c, nil
}

// NewClientWithTokens builds a client around an externally supplied token
// source, used by tests to substitute a fake.
func NewClientWithTokens(cfg config.CarrierConfig, tokens TokenSource, logg *logger.Logger, m *metrics.CarrierMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if tokens == nil {
		return nil, errTokensRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	return &Client{
		httpClient:    &http.Client{},
		baseURL:       baseURL,
		accountNumber: cfg.AccountNumber,
		tokens:        tokens,
		timeout:       cfg.RequestTimeout,
		logger:        logg,
		metrics:       m,
	}, nil
}

type carrierErrorBody struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) post(ctx context.Context, operation, path string, body any, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.doPost(ctx, path, body, out)
	c.metrics.Observe(operation, time.Since(start), err)
	return err
}

func (c *Client) doPost(ctx context.Context, path string, body any, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return c.mapTransportError(err, "acquire carrier token")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode carrier request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build carrier request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.mapTransportError(err, "carrier request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.mapAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "decode carrier response")
		}
	}
	return nil
}

func (c *Client) mapTransportError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeCarrierTimeout, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeCarrier, err, message)
}

func (c *Client) mapAPIError(resp *http.Response) error {
	var body carrierErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)

	message := fmt.Sprintf("carrier returned %d", resp.StatusCode)
	details := map[string]any{"http_status": resp.StatusCode}
	if len(body.Errors) > 0 {
		message = body.Errors[0].Message
		details["carrier_code"] = body.Errors[0].Code
		details["carrier_message"] = body.Errors[0].Message
	}

	return pkgerrors.New(pkgerrors.CodeCarrier, message).WithDetails(details)
}
