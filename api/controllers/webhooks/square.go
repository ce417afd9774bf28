package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/angelmondragon/paylink-backend/api/responses"
	"github.com/angelmondragon/paylink-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

const signatureHeader = "X-Square-Hmacsha256-Signature"

type reconciler interface {
	Apply(ctx context.Context, event *reconcile.Event) (*reconcile.Result, error)
}

type signatureSource interface {
	WebhookSigningSecret() string
	WebhookNotificationURL() string
}

// SquareWebhook ingests Square payment and refund callbacks. Square retries
// until it sees a 2xx, so anything we cannot act on yet returns an error and
// anything permanently unprocessable is acknowledged.
func SquareWebhook(rec reconciler, signer signatureSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if rec == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}
		if signer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(signatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook signature missing"))
			return
		}
		if !validSignature(payload, signer.WebhookSigningSecret(), signer.WebhookNotificationURL(), signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "invalid webhook signature"))
			return
		}

		event, err := reconcile.ParseSquareEvent(payload, time.Now().UTC())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := rec.Apply(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"callback_type": result.CallbackType,
			"duplicate":     result.Duplicate,
			"skipped":       result.Skipped,
		})
	}
}

// Square signs the notification URL concatenated with the raw body using
// HMAC-SHA256 and base64-encodes the digest.
func validSignature(payload []byte, secret, notificationURL, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
