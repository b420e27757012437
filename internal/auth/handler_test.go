package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestMux wires the auth routes the way the application does, plus a
// guarded probe endpoint that echoes the authenticated user id.
func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	issuer, err := NewIssuer(testSecret, "", "", 0)
	if err != nil {
		t.Fatalf("NewIssuer returned error: %v", err)
	}

	store := NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	service := NewService(newFakeUserStore(), store, issuer)
	handler := NewHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", handler.Register)
	mux.HandleFunc("POST /auth/login", handler.Login)
	mux.HandleFunc("POST /auth/refresh", handler.Refresh)
	mux.HandleFunc("POST /auth/logout", handler.Logout)
	mux.Handle("GET /whoami", Middleware(issuer, service, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"userId": UserID(r.Context())})
	})))

	return mux
}

func doJSON(t *testing.T, mux http.Handler, method, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeAuthResponse(t *testing.T, rec *httptest.ResponseRecorder) authResponse {
	t.Helper()

	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return resp
}

func TestAuthFlow(t *testing.T) {
	mux := newTestMux(t)

	// Register a new account.
	rec := doJSON(t, mux, http.MethodPost, "/auth/register", registerRequest{
		Email:     "ana@example.com",
		Password:  "secret1",
		FirstName: "Ana",
		LastName:  "A",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register: unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	registered := decodeAuthResponse(t, rec)
	if registered.UserID == "" || registered.Token == "" || registered.RefreshToken == "" {
		t.Fatalf("register: incomplete response %+v", registered)
	}

	// Login with the right password.
	rec = doJSON(t, mux, http.MethodPost, "/auth/login", loginRequest{
		Email:    "ana@example.com",
		Password: "secret1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	session := decodeAuthResponse(t, rec)
	if session.UserID != registered.UserID {
		t.Fatalf("login returned a different user: %q vs %q", session.UserID, registered.UserID)
	}

	// Wrong password is a 400 with the generic message.
	rec = doJSON(t, mux, http.MethodPost, "/auth/login", loginRequest{
		Email:    "ana@example.com",
		Password: "wrong-password",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad login: unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid email or password") {
		t.Fatalf("bad login: unexpected body %s", rec.Body.String())
	}

	// The guarded endpoint accepts the access token.
	rec = doJSON(t, mux, http.MethodGet, "/whoami", nil, map[string]string{
		"Authorization": "Bearer " + session.Token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("whoami: unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), session.UserID) {
		t.Fatalf("whoami: expected user id in body, got %s", rec.Body.String())
	}

	// Refresh rotates the refresh token.
	rec = doJSON(t, mux, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: session.RefreshToken}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	rotated := decodeAuthResponse(t, rec)
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatalf("refresh: expected a new refresh token")
	}

	// The consumed token is rejected with a 401.
	rec = doJSON(t, mux, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: session.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh: unexpected status %d", rec.Code)
	}

	// Logout revokes the access token and drops the refresh entry.
	rec = doJSON(t, mux, http.MethodPost, "/auth/logout", logoutRequest{
		Token:        rotated.Token,
		RefreshToken: rotated.RefreshToken,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	// The revoked token no longer passes the guard even though its signature
	// and expiry are still valid.
	rec = doJSON(t, mux, http.MethodGet, "/whoami", nil, map[string]string{
		"Authorization": "Bearer " + rotated.Token,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked whoami: unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "revoked") {
		t.Fatalf("revoked whoami: unexpected body %s", rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: rotated.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: unexpected status %d", rec.Code)
	}
}

func TestRegisterRejectsDuplicateAndInvalidInput(t *testing.T) {
	mux := newTestMux(t)

	payload := registerRequest{Email: "ana@example.com", Password: "secret1", FirstName: "Ana", LastName: "A"}
	if rec := doJSON(t, mux, http.MethodPost, "/auth/register", payload, nil); rec.Code != http.StatusOK {
		t.Fatalf("register: unexpected status %d", rec.Code)
	}

	rec := doJSON(t, mux, http.MethodPost, "/auth/register", payload, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register: unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already registered") {
		t.Fatalf("duplicate register: unexpected body %s", rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPost, "/auth/register", registerRequest{
		Email:     "short@example.com",
		Password:  "12345",
		FirstName: "Ana",
		LastName:  "A",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "at least 6 characters") {
		t.Fatalf("short password: unexpected body %s", rec.Body.String())
	}
}

func TestHandlersRejectMalformedJSON(t *testing.T) {
	mux := newTestMux(t)

	for _, path := range []string{"/auth/register", "/auth/login", "/auth/refresh", "/auth/logout"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status %d", path, rec.Code)
		}
	}

	// Unknown fields are rejected too.
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.c","password":"secret1","extra":true}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: unexpected status %d", rec.Code)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	mux := newTestMux(t)

	// Logging out with no tokens, unknown tokens, or repeatedly always
	// reports success.
	for _, payload := range []logoutRequest{
		{},
		{Token: "never-issued", RefreshToken: "never-issued"},
		{Token: "never-issued", RefreshToken: "never-issued"},
	} {
		rec := doJSON(t, mux, http.MethodPost, "/auth/logout", payload, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("logout: unexpected status %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "logged out") {
			t.Fatalf("logout: unexpected body %s", rec.Body.String())
		}
	}
}

func TestMiddlewareRejectsBadAuthorization(t *testing.T) {
	mux := newTestMux(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tc := range cases {
		headers := map[string]string{}
		if tc.header != "" {
			headers["Authorization"] = tc.header
		}
		rec := doJSON(t, mux, http.MethodGet, "/whoami", nil, headers)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: unexpected status %d", tc.name, rec.Code)
		}
	}
}

func TestRateLimitedLoginEndpoint(t *testing.T) {
	mux := newTestMux(t)
	limiter := NewRateLimiter(3, time.Minute)

	outer := http.NewServeMux()
	outer.Handle("POST /auth/login", limiter.Middleware(mux))

	do := func() *httptest.ResponseRecorder {
		return doJSON(t, outer, http.MethodPost, "/auth/login", loginRequest{
			Email:    "nobody@example.com",
			Password: "wrong-password",
		}, map[string]string{"X-Forwarded-For": "203.0.113.7"})
	}

	// Failed logins count against the window.
	for i := 0; i < 3; i++ {
		if rec := do(); rec.Code != http.StatusBadRequest {
			t.Fatalf("request %d: unexpected status %d", i+1, rec.Code)
		}
	}

	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the ceiling, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a Retry-After header")
	}
}
