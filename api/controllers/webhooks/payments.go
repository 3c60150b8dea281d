// Package webhooks receives signed payment gateway notifications.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/api/validators"
	"github.com/merakilabs/marketplace-backend/internal/reconciliation"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

const (
	SignatureHeader = "X-Payment-Signature"

	statusSuccess = "success"
	statusFailed  = "failed"

	maxPayloadBytes = 64 << 10
)

// PaymentNotification is the body a gateway posts for one transaction.
type PaymentNotification struct {
	TransactionID uuid.UUID        `json:"transactionId" validate:"required"`
	Status        string           `json:"status" validate:"required,oneof=success failed"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
}

type ackResponse struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Acknowledged  bool      `json:"acknowledged"`
	Duplicate     bool      `json:"duplicate"`
	Mismatch      bool      `json:"mismatch"`
}

// Payments verifies the HMAC-SHA256 signature of the raw body and hands the
// notification to the reconciler. Replays and amount mismatches are
// acknowledged with 200 so the gateway stops retrying; a mismatch waits for
// manual review.
func Payments(svc reconciliation.Service, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		if strings.TrimSpace(secret) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if !ValidSignature(payload, secret, r.Header.Get(SignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid payment signature"))
			return
		}

		var event PaymentNotification
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode notification"))
			return
		}
		event.Status = strings.ToLower(strings.TrimSpace(event.Status))
		if err := validators.ValidateStruct(&event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithTransactionID(ctx, event.TransactionID.String())
		}

		notification := reconciliation.Notification{TransactionID: event.TransactionID, Amount: event.Amount}
		switch event.Status {
		case statusSuccess:
			_, err = svc.OnSuccess(ctx, notification)
		case statusFailed:
			_, err = svc.OnFailure(ctx, notification)
		}

		ack := ackResponse{
			TransactionID: event.TransactionID,
			Acknowledged:  true,
			Duplicate:     pkgerrors.IsCode(err, pkgerrors.CodeDuplicateNotification),
			Mismatch:      pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch),
		}
		if err != nil && !ack.Duplicate && !ack.Mismatch {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			switch {
			case ack.Mismatch:
				logg.Warn(ctx, "payment notification held for review: "+err.Error())
			case ack.Duplicate:
				logg.Info(ctx, "payment notification replayed")
			default:
				logg.Info(ctx, "payment notification processed")
			}
		}
		responses.WriteSuccess(w, ack)
	}
}

// ValidSignature reports whether header is the hex HMAC-SHA256 of payload.
func ValidSignature(payload []byte, secret, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(strings.ToLower(header)))
}

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
