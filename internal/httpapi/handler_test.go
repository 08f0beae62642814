package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/louisbranch/memimg/internal/bank"
	"github.com/louisbranch/memimg/internal/memimg"
	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/storage/memory"
	"github.com/louisbranch/memimg/internal/platform/metrics"
)

func newBankHandler(t *testing.T, opts ...Option) (*Handler[*bank.Bank], *memory.Store) {
	t.Helper()
	registry, err := bank.NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	store := memory.New()
	img, err := memimg.New(context.Background(), bank.New(), store, registry)
	if err != nil {
		t.Fatalf("new image: %v", err)
	}
	h, err := New(img, opts...)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h, store
}

func mutationPath(mutationType event.Type) string {
	return MutationsPath + string(mutationType)
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seed(t *testing.T, h http.Handler) {
	t.Helper()
	for _, step := range []struct{ path, body string }{
		{mutationPath(bank.TypeCreateAccount), `{"id":"janet","name":"Janet Doe"}`},
		{mutationPath(bank.TypeDeposit), `{"account_id":"janet","amount":90}`},
		{mutationPath(bank.TypeCreateAccount), `{"id":"john","name":"John Doe"}`},
		{mutationPath(bank.TypeDeposit), `{"account_id":"john","amount":50}`},
	} {
		rec := do(t, h, http.MethodPost, step.path, MediaTypeJSON, step.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("POST %s = %d: %s", step.path, rec.Code, rec.Body.String())
		}
	}
}

func TestNewRequiresImage(t *testing.T) {
	if _, err := New[*bank.Bank](nil); err == nil {
		t.Fatal("expected error for nil image")
	}
}

func TestMutationReturnsEncodedResult(t *testing.T) {
	h, store := newBankHandler(t)
	rec := do(t, h, http.MethodPost, mutationPath(bank.TypeCreateAccount), MediaTypeJSON, `{"id":"janet","name":"Janet Doe"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", got)
	}
	var view bank.AccountView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if diff := cmp.Diff(bank.AccountView{ID: "janet", Name: "Janet Doe"}, view); diff != "" {
		t.Fatalf("account mismatch (-want +got):\n%s", diff)
	}
	if len(store.Events()) != 1 {
		t.Fatalf("events = %d, want 1", len(store.Events()))
	}
}

func TestYAMLRequestAndResponse(t *testing.T) {
	h, _ := newBankHandler(t)
	seed(t, h)
	rec := do(t, h, http.MethodPost, mutationPath(bank.TypeTransfer), MediaTypeYAML,
		"from_account_id: janet\nto_account_id: john\namount: 20\n",
		"Accept", MediaTypeYAML)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var result bank.TransferResult
	if err := yaml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := bank.TransferResult{
		From: bank.AccountView{ID: "janet", Name: "Janet Doe", Balance: 70},
		To:   bank.AccountView{ID: "john", Name: "John Doe", Balance: 70},
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("transfer mismatch (-want +got):\n%s", diff)
	}
}

func TestFailuresMapToStatus(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		headers     []string
		status      int
		contains    string
	}{
		{
			name:        "insufficient funds",
			method:      http.MethodPost,
			path:        mutationPath(bank.TypeTransfer),
			contentType: MediaTypeJSON,
			body:        `{"from_account_id":"janet","to_account_id":"john","amount":91}`,
			status:      http.StatusBadRequest,
			contains:    "Application error: executing mutation bank.transfer",
		},
		{
			name:        "unknown account",
			method:      http.MethodPost,
			path:        mutationPath(bank.TypeDeposit),
			contentType: MediaTypeJSON,
			body:        `{"account_id":"nobody","amount":1}`,
			status:      http.StatusNotFound,
			contains:    "no such account: nobody",
		},
		{
			name:        "duplicate account",
			method:      http.MethodPost,
			path:        mutationPath(bank.TypeCreateAccount),
			contentType: MediaTypeJSON,
			body:        `{"id":"janet","name":"Janet Again"}`,
			status:      http.StatusConflict,
		},
		{
			name:        "unknown mutation",
			method:      http.MethodPost,
			path:        MutationsPath + "bank.rob",
			contentType: MediaTypeJSON,
			body:        `{}`,
			status:      http.StatusNotFound,
			contains:    `unknown mutation type "bank.rob"`,
		},
		{
			name:        "unknown query",
			method:      http.MethodPost,
			path:        QueriesPath + "bank.secrets",
			contentType: MediaTypeJSON,
			status:      http.StatusNotFound,
		},
		{
			name:        "unsupported content type",
			method:      http.MethodPost,
			path:        mutationPath(bank.TypeDeposit),
			contentType: "application/xml",
			body:        `<deposit/>`,
			status:      http.StatusUnsupportedMediaType,
			contains:    "no codec for content type application/xml",
		},
		{
			name:        "not acceptable",
			method:      http.MethodPost,
			path:        QueriesPath + bank.QueryListAccounts,
			contentType: MediaTypeJSON,
			headers:     []string{"Accept", "image/png"},
			status:      http.StatusNotAcceptable,
		},
		{
			name:        "malformed body",
			method:      http.MethodPost,
			path:        mutationPath(bank.TypeDeposit),
			contentType: MediaTypeJSON,
			body:        `{"account_id":`,
			status:      http.StatusBadRequest,
			contains:    "decoding application/json request body",
		},
		{
			name:        "unknown field",
			method:      http.MethodPost,
			path:        mutationPath(bank.TypeDeposit),
			contentType: MediaTypeJSON,
			body:        `{"account_id":"janet","amount":1,"memo":"x"}`,
			status:      http.StatusBadRequest,
		},
		{
			name:   "plain text body",
			method: http.MethodPost,
			path:   mutationPath(bank.TypeDeposit),
			body:   "janet 10",
			status: http.StatusBadRequest,
		},
		{
			name:   "method not allowed",
			method: http.MethodGet,
			path:   mutationPath(bank.TypeDeposit),
			status: http.StatusMethodNotAllowed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store := newBankHandler(t)
			seed(t, h)
			before := len(store.Events())

			rec := do(t, h, tt.method, tt.path, tt.contentType, tt.body, tt.headers...)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.contains != "" && !strings.Contains(rec.Body.String(), tt.contains) {
				t.Fatalf("body %q does not contain %q", rec.Body.String(), tt.contains)
			}
			if got := len(store.Events()); got != before {
				t.Fatalf("events = %d, want %d", got, before)
			}
		})
	}
}

func TestQueries(t *testing.T) {
	h, _ := newBankHandler(t)
	seed(t, h)

	rec := do(t, h, http.MethodPost, QueriesPath+bank.QueryAccountByID, MediaTypeJSON, `{"id":"john"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var view bank.AccountView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Balance != 50 {
		t.Fatalf("balance = %d, want 50", view.Balance)
	}

	rec = do(t, h, http.MethodPost, QueriesPath+bank.QueryListAccounts, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var views []bank.AccountView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 || views[0].ID != "janet" || views[1].ID != "john" {
		t.Fatalf("accounts = %+v", views)
	}
}

func TestPlainTextQueryIsLocalized(t *testing.T) {
	h, _ := newBankHandler(t)
	for _, step := range []struct{ path, body string }{
		{mutationPath(bank.TypeCreateAccount), `{"id":"janet","name":"Janet Doe"}`},
		{mutationPath(bank.TypeDeposit), `{"account_id":"janet","amount":1500000}`},
	} {
		if rec := do(t, h, http.MethodPost, step.path, MediaTypeJSON, step.body); rec.Code != http.StatusOK {
			t.Fatalf("POST %s = %d: %s", step.path, rec.Code, rec.Body.String())
		}
	}
	tests := []struct {
		language string
		want     string
	}{
		{language: "", want: "1,500,000\n"},
		{language: "en-US", want: "1,500,000\n"},
		{language: "es", want: "1.500.000\n"},
	}
	for _, tt := range tests {
		t.Run("lang "+tt.language, func(t *testing.T) {
			headers := []string{"Accept", MediaTypeText}
			if tt.language != "" {
				headers = append(headers, "Accept-Language", tt.language)
			}
			rec := do(t, h, http.MethodPost, QueriesPath+bank.QueryTotalBalance, "", "", headers...)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if rec.Body.String() != tt.want {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestTypesListsRegisteredOperations(t *testing.T) {
	h, _ := newBankHandler(t)
	rec := do(t, h, http.MethodGet, TypesPath, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var types Types
	if err := json.Unmarshal(rec.Body.Bytes(), &types); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(types.Mutations) != 4 || len(types.Queries) != 3 {
		t.Fatalf("types = %+v", types)
	}
}

func TestRequestIDs(t *testing.T) {
	h, _ := newBankHandler(t, WithIDGenerator(func() string { return "generated" }))

	rec := do(t, h, http.MethodGet, HealthPath, "", "")
	if got := rec.Header().Get(RequestIDHeader); got != "generated" {
		t.Fatalf("request id = %q, want generated", got)
	}
	rec = do(t, h, http.MethodGet, HealthPath, "", "", RequestIDHeader, "client-7")
	if got := rec.Header().Get(RequestIDHeader); got != "client-7" {
		t.Fatalf("request id = %q, want client-7", got)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newBankHandler(t)
	rec := do(t, h, http.MethodGet, HealthPath, "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	registry, err := bank.NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	img, err := memimg.New(context.Background(), bank.New(), memory.New(), registry, memimg.WithMetrics(collector))
	if err != nil {
		t.Fatalf("new image: %v", err)
	}
	h, err := New(img, WithGatherer(reg))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	seed(t, h)

	rec := do(t, h, http.MethodGet, MetricsPath, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `memimg_mutations_total{outcome="committed",type="bank.deposit"} 2`) {
		t.Fatalf("metrics missing mutation counter:\n%s", rec.Body.String())
	}

	h, _ = newBankHandler(t)
	if rec := do(t, h, http.MethodGet, MetricsPath, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without gatherer = %d, want 404", rec.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	h, _ := newBankHandler(t, WithMaxBodyBytes(16))
	rec := do(t, h, http.MethodPost, mutationPath(bank.TypeCreateAccount), MediaTypeJSON, `{"id":"janet","name":"Janet Doe"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "exceeds 16 bytes") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestFailuresAreLoggedWithRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h, _ := newBankHandler(t, WithLogger(zap.New(core)))
	do(t, h, http.MethodPost, MutationsPath+"bank.rob", MediaTypeJSON, `{}`, RequestIDHeader, "req-1")

	entries := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(entries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["path"] != MutationsPath+"bank.rob" {
		t.Fatalf("fields = %v", fields)
	}
}
