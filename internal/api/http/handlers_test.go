package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/api/middleware"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/attemptlog"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/orchestrator"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/sandbox"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/resilience"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeGenerator struct {
	out *orchestrator.Outcome
	err error
	got orchestrator.Request
}

func (f *fakeGenerator) Run(_ context.Context, req orchestrator.Request) (*orchestrator.Outcome, error) {
	f.got = req
	return f.out, f.err
}

type fakePreviewer struct {
	res *sandbox.PreviewResult
	err error
}

func (f *fakePreviewer) Preview(context.Context, string) (*sandbox.PreviewResult, error) {
	return f.res, f.err
}

func setupRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/sandbox", h.SandboxPage)
	router.POST("/api/compile", h.Compile)
	router.POST("/api/chat/generate", h.Generate)
	router.POST("/api/preview", h.Preview)
	router.POST("/api/log/runtime-error", h.LogRuntimeError)
	router.POST("/api/log/compile-error", h.LogCompileError)
	router.POST("/api/logs", h.StreamLogs)
	return router
}

func do(router http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const validSource = "export default function App() { return <div>hi</div>; }"

func TestRootAndHealth(t *testing.T) {
	h := NewHandlers(&fakeGenerator{}, compiler.New(nil), nil).WithMetrics(monitoring.NewMetrics())
	router := setupRouter(h)

	w := do(router, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "online", decode(t, w)["status"])

	w = do(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, false, body["preview"])
	assert.Contains(t, body, "uptime_seconds")
}

func TestSandboxPage(t *testing.T) {
	router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), nil))

	w := do(router, http.MethodGet, "/sandbox", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "sandbox allow-scripts", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, sandbox.Page(), w.Body.Bytes())
}

func TestCompile(t *testing.T) {
	router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), nil))

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		errContains string
	}{
		{name: "raw source", contentType: "text/plain", body: validSource, status: http.StatusOK},
		{name: "json source", contentType: "application/json", body: `{"code":"export default function App() { return <p/>; }"}`, status: http.StatusOK},
		{name: "sniffed json", body: `{"code":"export default function App() { return <p/>; }"}`, status: http.StatusOK},
		{name: "undefined identifier", contentType: "text/plain", body: "export default function App(){ return <div>{intent}</div>; }", status: http.StatusUnprocessableEntity, errContains: "intent"},
		{name: "unsupported import", contentType: "text/plain", body: "import x from 'left-pad';\nexport default function App() { return <div>{x}</div>; }", status: http.StatusUnprocessableEntity, errContains: "left-pad"},
		{name: "empty", contentType: "text/plain", body: "  \n", status: http.StatusBadRequest, errContains: msgCodeRequired},
		{name: "json without code", contentType: "application/json", body: `{}`, status: http.StatusBadRequest, errContains: msgCodeRequired},
		{name: "malformed json", contentType: "application/json", body: `{"code":`, status: http.StatusBadRequest, errContains: msgCodeRequired},
		{name: "too long", contentType: "text/plain", body: strings.Repeat("a", compiler.MaxSourceBytes+1), status: http.StatusRequestEntityTooLarge, errContains: msgCodeTooLong},
		{name: "body over cap", contentType: "text/plain", body: strings.Repeat("a", maxCompileBody+1), status: http.StatusRequestEntityTooLarge, errContains: msgCodeTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/compile", tt.contentType, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			var resp CompileResponse
			require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
			if tt.status == http.StatusOK {
				assert.True(t, resp.Success)
				assert.NotEmpty(t, resp.Code)
				assert.Empty(t, resp.Error)
				return
			}
			assert.False(t, resp.Success)
			assert.Empty(t, resp.Code)
			assert.Contains(t, resp.Error, tt.errContains)
			if tt.status == http.StatusUnprocessableEntity {
				assert.NotEmpty(t, resp.Diagnostics)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	success := &orchestrator.Outcome{
		Source:      validSource,
		Executable:  "compiled",
		Explanation: "A greeting.",
		Profile:     orchestrator.ProfileLively,
		Attempts:    []attemptlog.Attempt{{Number: 1, Outcome: attemptlog.OutcomeSuccess}},
	}

	tests := []struct {
		name   string
		body   string
		out    *orchestrator.Outcome
		err    error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "success",
			body:   `{"messages":[{"role":"user","content":"say hi"}]}`,
			out:    success,
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				msg := body["message"].(map[string]any)
				assert.Equal(t, "assistant", msg["role"])
				assert.Equal(t, "A greeting.", msg["content"])
				assert.Equal(t, validSource, msg["code"])
				assert.Equal(t, "LIVELY", body["style"])
				assert.EqualValues(t, 1, body["attempts"])
				assert.NotEmpty(t, body["request_id"])
			},
		},
		{
			name: "retries exhausted",
			body: `{"messages":[{"role":"user","content":"chart"}]}`,
			err: &orchestrator.GenerationError{
				Friendly:  "Please try again.",
				Technical: "Line 1, Col 1: 'x' is not defined",
			},
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Please try again.", body["error"])
				assert.Equal(t, "Line 1, Col 1: 'x' is not defined", body["technicalError"])
			},
		},
		{
			name:   "circuit open",
			body:   `{"messages":[{"role":"user","content":"chart"}]}`,
			err:    resilience.ErrCircuitOpen,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "deadline",
			body:   `{"messages":[{"role":"user","content":"chart"}]}`,
			err:    context.DeadlineExceeded,
			status: http.StatusGatewayTimeout,
		},
		{
			name:   "unexpected",
			body:   `{"messages":[{"role":"user","content":"chart"}]}`,
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
		},
		{
			name:   "no messages",
			body:   `{"messages":[]}`,
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Messages are required", body["error"])
			},
		},
		{
			name:   "malformed",
			body:   `not json`,
			status: http.StatusBadRequest,
		},
		{
			name:   "bad role",
			body:   `{"messages":[{"role":"robot","content":"hi"}]}`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{out: tt.out, err: tt.err}
			router := setupRouter(NewHandlers(gen, compiler.New(nil), nil))

			w := do(router, http.MethodPost, "/api/chat/generate", "application/json", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.check != nil {
				tt.check(t, decode(t, w))
			}
		})
	}
}

func TestGeneratePassesRequest(t *testing.T) {
	gen := &fakeGenerator{out: &orchestrator.Outcome{Profile: orchestrator.ProfileProfessional}}
	router := setupRouter(NewHandlers(gen, compiler.New(nil), nil))

	w := do(router, http.MethodPost, "/api/chat/generate", "application/json",
		`{"messages":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}],"current_code":"old"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Len(t, gen.got.Messages, 2)
	assert.Equal(t, "old", gen.got.CurrentCode)
	assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), gen.got.RequestID.String())
}

func TestGenerateRequestValidate(t *testing.T) {
	msgs := make([]orchestrator.Message, 51)
	for i := range msgs {
		msgs[i] = orchestrator.Message{Role: "user", Content: "x"}
	}

	tests := []struct {
		name    string
		req     GenerateRequest
		wantErr bool
	}{
		{"valid", GenerateRequest{Messages: msgs[:1]}, false},
		{"empty", GenerateRequest{}, true},
		{"too many", GenerateRequest{Messages: msgs}, true},
		{"empty content", GenerateRequest{Messages: []orchestrator.Message{{Role: "user"}}}, true},
		{"code too large", GenerateRequest{Messages: msgs[:1], CurrentCode: strings.Repeat("x", 101*1024)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), nil))
		w := do(router, http.MethodPost, "/api/preview", "text/plain", validSource)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("mounted", func(t *testing.T) {
		prev := &fakePreviewer{res: &sandbox.PreviewResult{
			Message:  sandbox.Message{Type: sandbox.TypeExecutionReady},
			Markup:   "<div>hi</div>",
			Duration: 3 * time.Millisecond,
		}}
		router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), nil).WithPreviewer(prev))

		w := do(router, http.MethodPost, "/api/preview", "text/plain", validSource)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp PreviewResponse
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "<div>hi</div>", resp.Markup)
		assert.InDelta(t, 3.0, resp.Duration, 0.001)
	})

	t.Run("execution error", func(t *testing.T) {
		prev := &fakePreviewer{res: &sandbox.PreviewResult{
			Message: sandbox.Message{Type: sandbox.TypeExecutionError, Message: "boom"},
		}}
		router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), nil).WithPreviewer(prev))

		w := do(router, http.MethodPost, "/api/preview", "text/plain", validSource)
		require.Equal(t, http.StatusOK, w.Code)
		var resp PreviewResponse
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "boom", resp.Message.Message)
	})

	t.Run("compile failure", func(t *testing.T) {
		router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), nil).WithPreviewer(&fakePreviewer{}))
		w := do(router, http.MethodPost, "/api/preview", "text/plain", "export default function App(){ return <div>{intent}</div>; }")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("timeout", func(t *testing.T) {
		prev := &fakePreviewer{err: sandbox.ErrTimeout}
		router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), nil).WithPreviewer(prev))
		w := do(router, http.MethodPost, "/api/preview", "text/plain", validSource)
		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	})
}

func TestLogRuntimeError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), zap.New(core)))

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"nested", `{"error":{"message":"x is not defined","stack":"at App"},"code":"src"}`, http.StatusOK, "x is not defined"},
		{"flat", `{"type":"runtime","message":"boom","line":3,"column":7}`, http.StatusOK, "boom"},
		{"missing message", `{"code":"src"}`, http.StatusBadRequest, ""},
		{"malformed", `[`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := logs.Len()
			w := do(router, http.MethodPost, "/api/log/runtime-error", "application/json", tt.body)
			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				assert.Equal(t, before, logs.Len())
				return
			}
			entries := logs.All()[before:]
			require.Len(t, entries, 1)
			assert.Equal(t, zap.WarnLevel, entries[0].Level)
			assert.Equal(t, tt.message, entries[0].ContextMap()["message"])
		})
	}
}

func TestLogCompileError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), zap.New(core)))

	long := strings.Repeat("é", 400)
	w := do(router, http.MethodPost, "/api/log/compile-error", "application/json",
		`{"error":"Unexpected token","code":"`+long+`","processedCode":"p"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, logs.Len())

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "Unexpected token", fields["error"])
	assert.Equal(t, preview(long), fields["code_preview"])

	w = do(router, http.MethodPost, "/api/log/compile-error", "application/json", `{"code":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := setupRouter(NewHandlers(&fakeGenerator{}, compiler.New(nil), zap.New(core)))

	body := `{"source":"ui","entries":[
		{"id":"1","level":"error","message":"render failed","context":{"component":"Chart","attempt":2}},
		{"id":"2","level":"info","message":"mounted"}]}`
	w := do(router, http.MethodPost, "/api/logs", "application/json", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["entries_received"])

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[0].Level)
	assert.Equal(t, "Chart", logs.All()[0].ContextMap()["component"])

	w = do(router, http.MethodPost, "/api/logs", "application/json", `{"source":"cli","entries":[{"message":"x"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(router, http.MethodPost, "/api/logs", "application/json", `{"source":"ui","entries":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreviewTruncation(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	got := preview(strings.Repeat("ab", 400))
	assert.Len(t, got, codePreviewLen+3)
	assert.True(t, strings.HasSuffix(got, "..."))

	// multi-byte runes are not split
	got = preview(strings.Repeat("é", 300))
	assert.True(t, strings.HasSuffix(got, "é..."))
	assert.True(t, bytes.Equal([]byte(got), []byte(strings.Repeat("é", codePreviewLen/2)+"...")))
}

func TestMetricsAggregator(t *testing.T) {
	metrics := monitoring.NewMetrics()
	agg := NewMetricsAggregator(metrics).
		AddSource("relay", func() any { return map[string]int{"sessions": 2} })

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics/json", agg.GetAggregatedMetrics)

	w := do(router, http.MethodGet, "/metrics/json", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 0, summary["compile_success_rate"])
	assert.Contains(t, body["latency"], monitoring.SeriesCompile)
	assert.Equal(t, map[string]any{"relay": map[string]any{"sessions": float64(2)}}, body["components"])

	assert.Equal(t, 0.25, ratio(1, 4))
	assert.Equal(t, 0.75, successRate(1, 4))
	assert.Zero(t, successRate(0, 0))
}
