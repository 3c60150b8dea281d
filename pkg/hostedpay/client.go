// Package hostedpay talks to a generic hosted payment page provider over
// JSON/HTTP. Providers redirect the payer back and post a signed notification
// carrying the transaction id supplied at link creation.
package hostedpay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/merakilabs/marketplace-backend/pkg/config"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

const linksPath = "/v1/payment-links"

var errBaseURLRequired = errors.New("hostedpay base url is required")

// LinkRequest is the body sent to the provider.
type LinkRequest struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description,omitempty"`
	SuccessURL    string `json:"success_url,omitempty"`
	FailureURL    string `json:"failure_url,omitempty"`
}

// Link is the provider response.
type Link struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Client struct {
	http *resty.Client
	logg *logger.Logger
}

func NewClient(cfg config.HostedPayConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		httpClient.SetAuthToken(key)
	}
	return &Client{http: httpClient, logg: logg}, nil
}

// CreateLink registers a payment page. The transaction id doubles as the
// idempotency key so provider-side retries never create a second page.
func (c *Client) CreateLink(ctx context.Context, req LinkRequest) (*Link, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	var out Link
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.TransactionID).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post(linksPath)
	if err != nil {
		c.logError(ctx, req, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hostedpay create link failed")
	}
	if resp.IsError() {
		cause := fmt.Errorf("hostedpay status %d: %s %s", resp.StatusCode(), failure.Code, failure.Message)
		c.logError(ctx, req, cause)
		return nil, pkgerrors.Wrap(codeForStatus(resp.StatusCode()), cause, "hostedpay create link rejected")
	}
	if out.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "hostedpay returned an empty payment link")
	}

	if c.logg != nil {
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"transaction_id": req.TransactionID,
			"link_id":        out.ID,
		}), "hostedpay link created")
	}
	return &out, nil
}

func (c *Client) logError(ctx context.Context, req LinkRequest, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Error(c.logg.WithField(ctx, "transaction_id", req.TransactionID), "hostedpay create link", err)
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}
