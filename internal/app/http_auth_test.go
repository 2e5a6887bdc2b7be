package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"kampus/api/internal/store"
)

func doRequest(t *testing.T, h http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func doJSON(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	return doRequest(t, h, method, path, token, reader)
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, h, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ok := decodeMap(t, rr)["ok"]; ok != true {
		t.Fatalf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	svc, env := newTestService(t)
	h := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, h, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	env.store.pingErr = errBoom
	rr = doJSON(t, h, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	payload := decodeMap(t, rr)
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload["status"])
	}
	checks := payload["checks"].(map[string]any)
	database := checks["database"].(map[string]any)
	if database["error"] != "boom" {
		t.Fatalf("expected database error boom, got %v", database["error"])
	}
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, h, http.MethodPost, "/api/auth/signup", "",
		`{"email":"Zeynep@Kampus.edu.tr","password":"parola123","displayName":"Zeynep Kaya","unit":"Fizik"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	signup := decodeMap(t, rr)
	verifyToken, _ := signup["devVerificationToken"].(string)
	if verifyToken == "" {
		t.Fatalf("expected devVerificationToken without SMTP, got %v", signup)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/signin", "", `{"email":"zeynep@kampus.edu.tr","password":"parola123"}`)
	if rr.Code != http.StatusForbidden || decodeMap(t, rr)["code"] != "EMAIL_NOT_VERIFIED" {
		t.Fatalf("unverified signin: got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/verify-email", "", `{"token":"`+verifyToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/signin", "", `{"email":"zeynep@kampus.edu.tr","password":"yanlis"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/signin", "", `{"email":"zeynep@kampus.edu.tr","password":"parola123"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	signin := decodeMap(t, rr)
	accessToken, _ := signin["accessToken"].(string)
	refreshToken, _ := signin["refreshToken"].(string)
	if accessToken == "" || refreshToken == "" {
		t.Fatalf("expected tokens, got %v", signin)
	}
	if signin["role"] != store.RoleUser {
		t.Fatalf("expected role user, got %v", signin["role"])
	}

	rr = doJSON(t, h, http.MethodGet, "/api/session", accessToken, "")
	session := decodeMap(t, rr)
	if session["authenticated"] != true || session["unit"] != "Fizik" {
		t.Fatalf("unexpected session payload: %v", session)
	}
}

func TestSignUpRejectsDuplicateAndInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHTTPServer(svc, "*").Handler()

	body := `{"email":"ali@kampus.edu.tr","password":"parola123","displayName":"Ali","unit":"Kimya"}`
	if rr := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", body); rr.Code != http.StatusCreated {
		t.Fatalf("first signup: got %d", rr.Code)
	}
	rr := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", body)
	if rr.Code != http.StatusConflict || decodeMap(t, rr)["code"] != "EMAIL_EXISTS" {
		t.Fatalf("duplicate signup: got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/signup", "", `{"email":"veli@kampus.edu.tr","password":"123","displayName":"Veli","unit":"Kimya"}`)
	if rr.Code != http.StatusUnprocessableEntity || decodeMap(t, rr)["code"] != "VALIDATION_ERROR" {
		t.Fatalf("short password: got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/signup", "", `{"email":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid body: expected 400, got %d", rr.Code)
	}
}

func TestAdminEmailSignsUpAsAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, h, http.MethodPost, "/api/auth/signup", "",
		`{"email":"`+testAdminEmail+`","password":"parola123","displayName":"Yönetici","unit":"Rektörlük"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: got %d body=%s", rr.Code, rr.Body.String())
	}
	if role := decodeMap(t, rr)["role"]; role != store.RoleAdmin {
		t.Fatalf("expected admin role, got %v", role)
	}
}

func TestBootstrapPromotesExistingAdmin(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	if err := env.store.CreateUser(ctx, store.User{ID: "u-admin", Email: testAdminEmail, Role: store.RoleUser}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	user, _ := env.store.GetUserByID(ctx, "u-admin")
	if user.Role != store.RoleAdmin {
		t.Fatalf("expected admin role, got %q", user.Role)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, env := newTestService(t)
	h := NewHTTPServer(svc, "*").Handler()
	session := addUser(t, svc, env, "Deniz", store.RoleUser)

	rr := doJSON(t, h, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+session.RefreshToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	if payload["refreshToken"] == session.RefreshToken || payload["userName"] != "Deniz" {
		t.Fatalf("unexpected refresh payload: %v", payload)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+session.RefreshToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", rr.Code)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	svc, env := newTestService(t)
	h := NewHTTPServer(svc, "*").Handler()
	session := addUser(t, svc, env, "Deniz", store.RoleUser)

	if rr := doJSON(t, h, http.MethodGet, "/api/profile", session.Token, ""); rr.Code != http.StatusOK {
		t.Fatalf("profile before logout: got %d", rr.Code)
	}
	rr := doJSON(t, h, http.MethodPost, "/api/session/logout", session.Token, `{"refreshToken":"`+session.RefreshToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: got %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodGet, "/api/profile", session.Token, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("profile after logout: expected 401, got %d", rr.Code)
	}
	rr = doJSON(t, h, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+session.RefreshToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", rr.Code)
	}
}

func TestPasswordResetRevokesSessions(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, h, http.MethodPost, "/api/auth/signup", "",
		`{"email":"ece@kampus.edu.tr","password":"parola123","displayName":"Ece","unit":"Tarih"}`)
	verifyToken := decodeMap(t, rr)["devVerificationToken"].(string)
	doJSON(t, h, http.MethodPost, "/api/auth/verify-email", "", `{"token":"`+verifyToken+`"}`)
	rr = doJSON(t, h, http.MethodPost, "/api/auth/signin", "", `{"email":"ece@kampus.edu.tr","password":"parola123"}`)
	refreshToken := decodeMap(t, rr)["refreshToken"].(string)

	rr = doJSON(t, h, http.MethodPost, "/api/auth/reset-password/request", "", `{"email":"yok@kampus.edu.tr"}`)
	if _, ok := decodeMap(t, rr)["devResetToken"]; ok || rr.Code != http.StatusOK {
		t.Fatalf("unknown email: got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/reset-password/request", "", `{"email":"ece@kampus.edu.tr"}`)
	resetToken, _ := decodeMap(t, rr)["devResetToken"].(string)
	if resetToken == "" {
		t.Fatalf("expected devResetToken, got %s", rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/reset-password", "", `{"token":"`+resetToken+`","newPassword":"yeniparola"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, h, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refreshToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after reset: expected 401, got %d", rr.Code)
	}
	rr = doJSON(t, h, http.MethodPost, "/api/auth/reset-password", "", `{"token":"`+resetToken+`","newPassword":"baskaparola"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("reused reset token: expected 400, got %d", rr.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHTTPServer(svc, "*").Handler()

	for _, path := range []string{"/api/reports", "/api/profile", "/api/map/markers", "/api/preferences"} {
		if rr := doJSON(t, h, http.MethodGet, path, "", ""); rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, rr.Code)
		}
		if rr := doJSON(t, h, http.MethodGet, path, "not-a-token", ""); rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s with bad token: expected 401, got %d", path, rr.Code)
		}
	}
}
