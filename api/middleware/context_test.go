package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTenantContextRecorder(t *testing.T) (http.Handler, *bool, *string, *string) {
	t.Helper()
	called := false
	var tenantID, actorID string
	handler := TenantContext(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		tenantID = TenantIDFromContext(r.Context())
		actorID = ActorIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return handler, &called, &tenantID, &actorID
}

func TestTenantContextStoresIdentifiers(t *testing.T) {
	handler, called, gotTenant, gotActor := newTenantContextRecorder(t)
	tenant := uuid.NewString()
	actor := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-Id", tenant)
	req.Header.Set("X-Actor-Id", actor)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if !*called {
		t.Fatal("handler not reached")
	}
	if *gotTenant != tenant {
		t.Fatalf("tenant id not propagated, got %q", *gotTenant)
	}
	if *gotActor != actor {
		t.Fatalf("actor id not propagated, got %q", *gotActor)
	}
}

func TestTenantContextActorIsOptional(t *testing.T) {
	handler, called, _, gotActor := newTenantContextRecorder(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-Id", uuid.NewString())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if !*called {
		t.Fatal("handler not reached")
	}
	if *gotActor != "" {
		t.Fatalf("expected empty actor id, got %q", *gotActor)
	}
}

func TestTenantContextRejectsMissingTenant(t *testing.T) {
	handler, called, _, _ := newTenantContextRecorder(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if *called {
		t.Fatal("handler must not run without a tenant")
	}
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTenantContextRejectsMalformedTenant(t *testing.T) {
	handler, called, _, _ := newTenantContextRecorder(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-Id", "not-a-uuid")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if *called {
		t.Fatal("handler must not run with a malformed tenant")
	}
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTenantContextRejectsMalformedActor(t *testing.T) {
	handler, called, _, _ := newTenantContextRecorder(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-Id", uuid.NewString())
	req.Header.Set("X-Actor-Id", "not-a-uuid")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if *called {
		t.Fatal("handler must not run with a malformed actor")
	}
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
