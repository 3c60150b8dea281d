// Package square creates hosted Square payment links for marketplace orders.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/merakilabs/marketplace-backend/pkg/config"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// PaymentLink is the part of a Square payment link the marketplace keeps.
type PaymentLink struct {
	ID      string
	URL     string
	OrderID string
}

// Client wraps the Square SDK for one location.
type Client struct {
	sdk         *sqclient.Client
	environment string
	locationID  string
	logg        *logger.Logger
}

// NewClient checks the credentials are present and reports every missing
// setting at once. It makes no network call.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	var problems []error
	if logg == nil {
		problems = append(problems, errors.New("square logger is required"))
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if env == "" {
		env = sandboxEnv
	}
	if _, ok := baseURLs[env]; !ok {
		problems = append(problems, fmt.Errorf("square environment must be %q or %q, got %q", sandboxEnv, productionEnv, env))
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		problems = append(problems, errors.New("square access token is required"))
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		problems = append(problems, errors.New("square location id is required"))
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}

	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return &Client{
		sdk:         sqclient.NewClient(sqoption.WithBaseURL(baseURLs[env]), sqoption.WithToken(token)),
		environment: env,
		locationID:  location,
		logg:        logg,
	}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreatePaymentLink creates a quick-pay checkout page for one amount. A
// blank params.IdempotencyKey gets a random one.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*PaymentLink, error) {
	if params.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment link amount must be positive")
	}
	key := idempotencyKey("payment_link", params.IdempotencyKey)
	ctx = c.logg.WithFields(ctx, map[string]any{
		"square_op":       "create_payment_link",
		"location_id":     c.locationID,
		"amount_minor":    params.AmountMinor,
		"currency":        params.Currency,
		"idempotency_key": key,
	})

	resp, err := c.sdk.Checkout.PaymentLinks.Create(ctx, params.toSquareRequest(key, c.locationID))
	if err != nil {
		mapped := mapError("create payment link", err)
		c.logg.Error(ctx, "square request failed", mapped)
		return nil, mapped
	}

	link := resp.GetPaymentLink()
	if link == nil || deref(link.GetURL()) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned an empty payment link")
	}
	out := &PaymentLink{
		ID:      deref(link.GetID()),
		URL:     deref(link.GetURL()),
		OrderID: deref(link.GetOrderID()),
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"payment_link_id": out.ID,
		"square_order_id": out.OrderID,
	}), "square payment link created")
	return out, nil
}

func idempotencyKey(prefix, provided string) string {
	if provided = strings.TrimSpace(provided); provided != "" {
		return provided
	}
	return prefix + "-" + uuid.NewString()
}

// mapError turns an SDK failure into a pkgerrors code. A reused idempotency
// key is a conflict; rejected credentials are ours, so a dependency failure.
func mapError(op string, err error) error {
	msg := "square " + op + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	code := codeForStatus(apiErr.StatusCode)
	for _, detail := range squareErrors(apiErr) {
		switch {
		case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, msg)
		case detail.Category == sq.ErrorCategoryAuthenticationError:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

// squareErrors decodes the `errors` array the SDK keeps as the wrapped error
// text. Unparseable bodies yield nothing.
func squareErrors(apiErr *sqcore.APIError) []sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body) != nil {
		return nil
	}
	return body.Errors
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
