package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/mbenali/signbridge/internal/animation"
	"github.com/mbenali/signbridge/internal/auth"
	"github.com/mbenali/signbridge/internal/auth/ceremony"
	"github.com/mbenali/signbridge/internal/facematch"
	"github.com/mbenali/signbridge/internal/health"
	"github.com/mbenali/signbridge/internal/lexicon"
	"github.com/mbenali/signbridge/internal/observe"
	"github.com/mbenali/signbridge/internal/server"
	"github.com/mbenali/signbridge/internal/sign"
	"github.com/mbenali/signbridge/internal/storage"
	"github.com/mbenali/signbridge/pkg/provider/faceembed"
	faceembedmock "github.com/mbenali/signbridge/pkg/provider/faceembed/mock"
	sttmock "github.com/mbenali/signbridge/pkg/provider/stt/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func capture(payload string) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

// testEnv is a Server over in-memory collaborators, mounted on an
// httptest.Server.
type testEnv struct {
	srv         *httptest.Server
	store       *storage.MemStore
	encoder     *faceembedmock.Encoder
	transcriber *sttmock.Transcriber
	auth        *auth.Authenticator
}

func (e *testEnv) URL() string { return e.srv.URL }

// newTestEnv wires the full stack: a small sign lexicon, a clip library
// with one animation, in-memory stores, a mock face encoder, and a mock
// transcriber.
func newTestEnv(t *testing.T, opts ...server.Option) *testEnv {
	t.Helper()

	mapping := map[string][]lexicon.Asset{
		"hello": {{Kind: lexicon.AssetImage, Image: []byte("hello-jpeg")}},
		"world": {{Kind: lexicon.AssetImage, Image: []byte("world-jpeg")}},
		"salam": {{Kind: lexicon.AssetClip, Clip: "salam"}},
	}
	handle := lexicon.NewHandle(lexicon.New(mapping))
	resolver := sign.NewResolver(handle)

	clipsDir := t.TempDir()
	clip := []byte(`{"frames":[[0,0,0]]}`)
	if err := os.WriteFile(filepath.Join(clipsDir, "salam.json"), clip, 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	store := storage.NewMemStore()
	encoder := &faceembedmock.Encoder{
		EncodeResult:    []faceembed.Face{{Embedding: []float32{1, 0, 0}}},
		DimensionsValue: 3,
		ModelIDValue:    "mock",
	}
	verifier, err := facematch.NewVerifier(encoder, store, store, t.TempDir())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	engine, err := ceremony.NewEngine(ceremony.Config{
		RPID:          "signbridge.example",
		RPDisplayName: "SignBridge",
		RPOrigins:     []string{"https://signbridge.example"},
	}, ceremony.NewMemoryStore(), store, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tokens, err := auth.NewTokenIssuer([]byte(strings.Repeat("k", 32)), 0)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	authn, err := auth.New(store, store, verifier, engine, tokens, discardLogger())
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}

	transcriber := &sttmock.Transcriber{ModelIDValue: "mock"}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	s, err := server.New(server.Deps{
		Resolver:    resolver,
		Clips:       animation.NewLibrary(clipsDir),
		Transcriber: transcriber,
		Auth:        authn,
		Verifier:    verifier,
		Complaints:  store,
		Events:      store,
		Auditor:     store,
		Health:      health.New(health.Lexicon(handle.Index())),
	}, append([]server.Option{server.WithLogger(discardLogger()), server.WithMetrics(metrics)}, opts...)...)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	return &testEnv{srv: ts, store: store, encoder: encoder, transcriber: transcriber, auth: authn}
}

// postJSON issues a POST with a JSON body and optional bearer token.
func (e *testEnv) postJSON(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func jsonBody(t *testing.T, body any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// signUpAndSignIn registers an account and returns its session token.
func (e *testEnv) signUpAndSignIn(t *testing.T, email, username string) (storage.Account, string) {
	t.Helper()
	account, err := e.auth.SignUp(context.Background(), auth.SignUpRequest{
		Email:           email,
		Username:        username,
		FullName:        "Test User",
		Password:        "hunter2hunter2",
		PasswordConfirm: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	session, err := e.auth.PasswordSignIn(context.Background(), email, "hunter2hunter2")
	if err != nil {
		t.Fatalf("PasswordSignIn: %v", err)
	}
	return account, session.Token
}

// superuserToken creates a superuser account directly in the store and
// signs it in.
func (e *testEnv) superuserToken(t *testing.T) string {
	t.Helper()
	account, err := e.auth.SignUp(context.Background(), auth.SignUpRequest{
		Email:           "admin@example.com",
		Username:        "admin",
		Password:        "hunter2hunter2",
		PasswordConfirm: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	account.Superuser = true
	if err := e.store.UpdateAccount(context.Background(), account); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	session, err := e.auth.PasswordSignIn(context.Background(), "admin", "hunter2hunter2")
	if err != nil {
		t.Fatalf("PasswordSignIn: %v", err)
	}
	return session.Token
}

func TestNew_RequiresCoreDeps(t *testing.T) {
	if _, err := server.New(server.Deps{}); err == nil {
		t.Fatal("New with empty deps: want error, got nil")
	}
}

func TestSigns(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/signs", "", map[string]string{"text": "Hello xyzzy world"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[struct {
		Results []struct {
			Word string `json:"word"`
			Kind string `json:"kind"`
			Ref  string `json:"ref"`
		} `json:"results"`
	}](t, resp)

	if len(body.Results) != 2 {
		t.Fatalf("results = %d, want 2 (unknown word dropped)", len(body.Results))
	}
	if body.Results[0].Word != "hello" || body.Results[1].Word != "world" {
		t.Errorf("words = %q, %q; want hello, world", body.Results[0].Word, body.Results[1].Word)
	}
	if body.Results[0].Kind != "image" {
		t.Errorf("kind = %q, want image", body.Results[0].Kind)
	}
	if !strings.HasPrefix(body.Results[0].Ref, "data:image/jpeg;base64,") {
		t.Errorf("ref = %q, want base64 data URL", body.Results[0].Ref)
	}
}

func TestSigns_TransliteratesArabic(t *testing.T) {
	env := newTestEnv(t)

	// "سلام" transliterates to "slam"; the fuzzy tier maps it to "salam".
	resp := env.postJSON(t, "/api/signs", "", map[string]string{"text": "سلام"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[struct {
		Results []struct {
			Word string `json:"word"`
			Kind string `json:"kind"`
		} `json:"results"`
	}](t, resp)
	if len(body.Results) != 1 || body.Results[0].Kind != "clip" {
		t.Fatalf("results = %+v, want one clip entry", body.Results)
	}
}

func TestSigns_RejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/signs", "", map[string]string{"text": "hi", "bogus": "x"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAnimation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/animation/salam", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("clip body is not valid JSON: %q", data)
	}

	resp = env.get(t, "/api/animation/unknown", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown clip status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := env.get(t, path, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/metrics", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", resp.StatusCode)
	}
}
