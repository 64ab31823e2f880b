package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/live-interpreter/backend/internal/service/translation"
)

type stubTranslator struct {
	lastReq translation.Request
	calls   int
	result  string
	err     error
}

func (s *stubTranslator) Translate(ctx context.Context, req translation.Request) (translation.Result, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return translation.Result{}, s.err
	}
	return translation.Result{Text: s.result}, nil
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

func doJSON(t *testing.T, router http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, payload
}

func TestTranslateSuccess(t *testing.T) {
	stub := &stubTranslator{result: "こんにちは"}
	router := newRouter(New(stub, Config{RequireCredential: true}))

	rec, payload := doJSON(t, router, `{"text":["Hello"],"source_lang":"EN","target_lang":"JA","subscription_key":"k"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	translations, ok := payload["translations"].([]any)
	if !ok || len(translations) != 1 {
		t.Fatalf("translations = %#v", payload["translations"])
	}
	if text := translations[0].(map[string]any)["text"]; text != "こんにちは" {
		t.Errorf("text = %v", text)
	}
	if stub.lastReq.Text != "Hello" || stub.lastReq.Credential != "k" || stub.lastReq.SourceLang != "EN" {
		t.Errorf("request = %+v", stub.lastReq)
	}
}

func TestTranslateValidation(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		error   string
		details string
	}{
		{"missing key", `{"text":["Hello"]}`, "Missing API key", "subscription_key is required"},
		{"empty text", `{"text":[],"subscription_key":"k"}`, "Invalid request", "text array is required"},
		{"blank text", `{"text":["   "],"subscription_key":"k"}`, "Invalid request", "text array is required"},
		{"missing text", `{"subscription_key":"k"}`, "Invalid request", "text array is required"},
		{"bad json", `{"text":`, "Invalid request", "request body must be JSON"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubTranslator{}
			router := newRouter(New(stub, Config{RequireCredential: true}))

			rec, payload := doJSON(t, router, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if payload["error"] != tc.error || payload["details"] != tc.details {
				t.Errorf("payload = %v", payload)
			}
			if stub.calls != 0 {
				t.Errorf("translator called %d times", stub.calls)
			}
		})
	}
}

func TestTranslateRejectsOversizedBody(t *testing.T) {
	stub := &stubTranslator{}
	router := newRouter(New(stub, Config{RequireCredential: true}))

	body := `{"text":["` + strings.Repeat("a", maxRequestBytes) + `"],"subscription_key":"k"}`
	rec, payload := doJSON(t, router, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if payload["details"] != "request body too large" {
		t.Errorf("payload = %v", payload)
	}
	if stub.calls != 0 {
		t.Errorf("translator called %d times", stub.calls)
	}
}

func TestTranslateUsesConfiguredKey(t *testing.T) {
	stub := &stubTranslator{result: "ok"}
	router := newRouter(New(stub, Config{DefaultKey: "server-key", RequireCredential: true}))

	rec, _ := doJSON(t, router, `{"text":["Hello"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if stub.lastReq.Credential != "server-key" {
		t.Errorf("credential = %q", stub.lastReq.Credential)
	}
}

func TestTranslateWithoutCredentialRequirement(t *testing.T) {
	stub := &stubTranslator{result: "ok"}
	router := newRouter(New(stub, Config{}))

	rec, _ := doJSON(t, router, `{"text":["Hello"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTranslateUpstreamErrorPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401000,"message":"invalid key"}}`))
	}))
	defer upstream.Close()

	client, err := translation.NewClient(translation.Config{Variant: translation.VariantPreview, Endpoint: upstream.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	router := newRouter(New(client, Config{RequireCredential: true}))

	rec, payload := doJSON(t, router, `{"text":["Hello"],"subscription_key":"bad"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if payload["error"] != "Translation failed" {
		t.Errorf("error = %v", payload["error"])
	}
	details, ok := payload["details"].(map[string]any)
	if !ok {
		t.Fatalf("details should embed upstream JSON, got %#v", payload["details"])
	}
	if inner := details["error"].(map[string]any); inner["message"] != "invalid key" {
		t.Errorf("details = %v", details)
	}
}

func TestTranslateTransportFailure(t *testing.T) {
	stub := &stubTranslator{err: &translation.TransportError{Err: io.ErrUnexpectedEOF}}
	router := newRouter(New(stub, Config{}))

	rec, payload := doJSON(t, router, `{"text":["Hello"]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if payload["details"] != io.ErrUnexpectedEOF.Error() {
		t.Errorf("details = %v", payload["details"])
	}
}

func TestTranslateUnavailable(t *testing.T) {
	router := newRouter(New(nil, Config{}))

	rec, _ := doJSON(t, router, `{"text":["Hello"]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	router := newRouter(New(nil, Config{}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"status":"ok"`)) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
