package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/paylink-backend/api/responses"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

type contextKey string

const (
	ctxTenantID contextKey = "tenant_id"
	ctxActorID  contextKey = "actor_id"

	tenantIDHeader = "X-Tenant-Id"
	actorIDHeader  = "X-Actor-Id"
)

// TenantContext requires a tenant identifier on every request and stashes it,
// along with the optional actor identifier, for downstream handlers.
func TenantContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(tenantIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant header required"))
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant id"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxTenantID, tenantID.String())
			if actor := strings.TrimSpace(r.Header.Get(actorIDHeader)); actor != "" {
				actorID, parseErr := uuid.Parse(actor)
				if parseErr != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid actor id"))
					return
				}
				ctx = context.WithValue(ctx, ctxActorID, actorID.String())
			}
			if logg != nil {
				ctx = logg.WithField(ctx, "tenant_id", tenantID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxTenantID).(string); ok {
		return v
	}
	return ""
}

func ActorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxActorID).(string); ok {
		return v
	}
	return ""
}

// WithTenantID injects the tenant identifier into the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTenantID, tenantID)
}

// WithActorID injects the acting user identifier into the context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActorID, actorID)
}
