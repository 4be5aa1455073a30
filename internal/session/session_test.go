package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func requestWithCookies(t *testing.T, rec *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestCreateAndParseRoundTrip(t *testing.T) {
	m := NewManager("topsecret")

	rec := httptest.NewRecorder()
	sid, err := m.Create(rec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sid == "" {
		t.Fatal("Create returned empty session id")
	}

	got, ok := m.Parse(requestWithCookies(t, rec))
	if !ok {
		t.Fatal("Parse rejected a freshly issued cookie")
	}
	if got != sid {
		t.Fatalf("Parse returned %q, want %q", got, sid)
	}
}

func TestParseRejectsTamperedCookie(t *testing.T) {
	m := NewManager("topsecret")

	rec := httptest.NewRecorder()
	if _, err := m.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	c := rec.Result().Cookies()[0]

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: c.Name, Value: "forged-sid." + strings.SplitN(c.Value, ".", 2)[1]})
	if _, ok := m.Parse(r); ok {
		t.Fatal("Parse accepted a cookie with a swapped session id")
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	issuer := NewManager("secret-a")
	verifier := NewManager("secret-b")

	rec := httptest.NewRecorder()
	if _, err := issuer.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := verifier.Parse(requestWithCookies(t, rec)); ok {
		t.Fatal("Parse accepted a cookie signed with a different secret")
	}
}

func TestParseRejectsMissingOrMalformedCookie(t *testing.T) {
	m := NewManager("topsecret")

	if _, ok := m.Parse(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Fatal("Parse accepted a request without a cookie")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: "no-signature-part"})
	if _, ok := m.Parse(r); ok {
		t.Fatal("Parse accepted a cookie without a signature")
	}
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewManager("topsecret")

	rec := httptest.NewRecorder()
	sid, err := m.Create(rec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r := requestWithCookies(t, rec)

	if !m.VerifyCSRF(r, m.CSRFToken(sid)) {
		t.Fatal("VerifyCSRF rejected the token derived from the request's own session")
	}
	if m.VerifyCSRF(r, m.CSRFToken("other-session")) {
		t.Fatal("VerifyCSRF accepted a token derived from a different session")
	}
	if m.VerifyCSRF(r, "") {
		t.Fatal("VerifyCSRF accepted an empty token")
	}
	if m.VerifyCSRF(httptest.NewRequest(http.MethodPost, "/", nil), m.CSRFToken(sid)) {
		t.Fatal("VerifyCSRF accepted a request without a session cookie")
	}
}

func TestClearExpiresCookie(t *testing.T) {
	m := NewManager("topsecret")

	rec := httptest.NewRecorder()
	m.Clear(rec)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	if cookies[0].Value != "" {
		t.Fatalf("cleared cookie still has value %q", cookies[0].Value)
	}
	if cookies[0].Expires.Unix() > 0 {
		t.Fatal("cleared cookie is not expired")
	}
}

func TestMiddlewareAttachesSession(t *testing.T) {
	m := NewManager("topsecret")

	rec := httptest.NewRecorder()
	sid, err := m.Create(rec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var got string
	var ok bool
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), requestWithCookies(t, rec))
	if !ok || got != sid {
		t.Fatalf("middleware context session = %q, %v; want %q, true", got, ok, sid)
	}

	ok = true
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if ok {
		t.Fatal("middleware attached a session for a cookieless request")
	}
}
