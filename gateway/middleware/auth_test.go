package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "gateway-test-secret"

var testCaller = ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func callerEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(caller.Hex()))
	})
}

func TestAuthenticatorExtractsCaller(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "p2pescrow"}, nil)
	handler := auth.Middleware()(callerEcho(t))

	token := signToken(t, jwt.MapClaims{
		"sub": testCaller.Hex(),
		"iss": "p2pescrow",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/offers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Body.String() != testCaller.Hex() {
		t.Fatalf("unexpected caller %q", res.Body.String())
	}
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "p2pescrow"}, nil)
	handler := auth.Middleware()(callerEcho(t))

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "wrong issuer", header: "Bearer " + signToken(t, jwt.MapClaims{"sub": testCaller.Hex(), "iss": "other"})},
		{name: "expired", header: "Bearer " + signToken(t, jwt.MapClaims{
			"sub": testCaller.Hex(),
			"iss": "p2pescrow",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{name: "subject not an address", header: "Bearer " + signToken(t, jwt.MapClaims{"sub": "alice", "iss": "p2pescrow"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/offers", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", res.Code)
			}
		})
	}
}

func TestAuthenticatorEnforcesScopes(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	handler := auth.Middleware("escrow:admin")(callerEcho(t))

	plain := signToken(t, jwt.MapClaims{"sub": testCaller.Hex(), "scope": "escrow:trade"})
	req := httptest.NewRequest(http.MethodPost, "/v1/disputes/x/jurors", nil)
	req.Header.Set("Authorization", "Bearer "+plain)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without admin scope, got %d", res.Code)
	}

	admin := signToken(t, jwt.MapClaims{"sub": testCaller.Hex(), "scope": []interface{}{"escrow:trade", "escrow:admin"}})
	req.Header.Set("Authorization", "Bearer "+admin)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin scope, got %d", res.Code)
	}
}

func TestAuthenticatorDisabledTrustsDevHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: false, DevCallerHeader: "X-Caller-Address"}, nil)
	handler := auth.Middleware()(callerEcho(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/offers", nil)
	req.Header.Set("X-Caller-Address", testCaller.Hex())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Body.String() != testCaller.Hex() {
		t.Fatalf("expected dev caller, got %q", res.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/offers", nil)
	req.Header.Set("X-Caller-Address", "not-an-address")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected no caller for malformed header, got %d", res.Code)
	}
}

func TestAuthenticatorOptionalPaths(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		Enabled:        true,
		HMACSecret:     testSecret,
		OptionalPaths:  []string{"/v1/offers/"},
		AllowAnonymous: true,
	}, nil)
	handler := auth.Middleware()(callerEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/offers/abc", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected anonymous access, got %d", res.Code)
	}
}
