package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/sentineld/internal/config"
	"github.com/haasonsaas/sentineld/internal/costledger"
	"github.com/haasonsaas/sentineld/internal/cron"
	"github.com/haasonsaas/sentineld/internal/gateway"
	"github.com/haasonsaas/sentineld/internal/heartbeat"
	"github.com/haasonsaas/sentineld/internal/observability"
	providerpkg "github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/internal/session"
	"github.com/haasonsaas/sentineld/internal/tool"
	"github.com/haasonsaas/sentineld/pkg/model"
)

type echoProvider struct{ reply string }

func (p *echoProvider) Name() string           { return "echo" }
func (p *echoProvider) ModelName() string      { return "echo-model" }
func (p *echoProvider) Dialect() model.Dialect { return model.DialectA }

func (p *echoProvider) Chat(ctx context.Context, messages []model.Message, opts providerpkg.ChatOptions) (*providerpkg.ChatResult, error) {
	return &providerpkg.ChatResult{Content: p.reply, StopReason: providerpkg.StopEndTurn}, nil
}

func (p *echoProvider) Stream(ctx context.Context, messages []model.Message, opts providerpkg.ChatOptions) <-chan providerpkg.StreamChunk {
	ch := make(chan providerpkg.StreamChunk)
	close(ch)
	return ch
}

type memCreds struct{ values map[string]string }

func newMemCreds() *memCreds { return &memCreds{values: map[string]string{}} }

func (m *memCreds) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.values))
	for k := range m.values {
		names = append(names, k)
	}
	return names, nil
}

func (m *memCreds) Set(ctx context.Context, name, value string) error {
	m.values[name] = value
	return nil
}

func (m *memCreds) Delete(ctx context.Context, name string) error {
	delete(m.values, name)
	return nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	ledger, err := costledger.New(filepath.Join(dir, "costs.json"), clock)
	require.NoError(t, err)

	echo := &echoProvider{reply: "ack"}
	reg := providerpkg.NewRegistry(map[model.Role]providerpkg.Provider{
		model.RoleDefault: echo,
		model.RoleQuick:   echo,
		model.RoleRouter:  echo,
	})
	toolReg := tool.NewRegistry()
	sessStore := session.NewStore(dir)
	engine := session.NewEngine(reg, toolReg, ledger, sessStore, nil)
	engine.Clock = clock

	cronStore := cron.NewStore(dir)
	sched, err := cron.New(cronStore, engine)
	require.NoError(t, err)

	cfg := config.Default()
	cfgStore := config.NewStore(cfg)

	pipeline := &heartbeat.Pipeline{
		InboxDir:      filepath.Join(dir, "inbox"),
		IdleHourStart: cfg.Heartbeat.IdleHourStart,
		IdleHourEnd:   cfg.Heartbeat.IdleHourEnd,
		IdleAfter:     time.Duration(cfg.Heartbeat.IdleAfterMinutes) * time.Minute,
		Providers:     reg,
		Sessions:      engine,
		State:         heartbeat.NewStateStore(dir),
		Audit:         heartbeat.NewAuditStore(dir),
		Clock:         clock,
	}

	return &Handler{
		Config:         cfgStore,
		Sessions:       engine,
		SessionStore:   sessStore,
		Tools:          toolReg,
		Ledger:         ledger,
		Heartbeat:      pipeline,
		HeartbeatState: pipeline.State,
		HeartbeatAudit: pipeline.Audit,
		Cron:           sched,
		Log:            gateway.NewLogRing(),
		Creds:          newMemCreds(),
		ChatRole:       model.RoleDefault,
		StartedAt:      now,
		Clock:          clock,
	}
}

func doRequest(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleStatusReturnsBudgetAndUptime(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "budget")
	require.Contains(t, body, "today")
}

func TestHandleConfigGetAndPost(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	cfg.Heartbeat.IntervalSeconds = 42

	rec = doRequest(t, mux, http.MethodPost, "/api/config", cfg)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 42, h.Config.Get().Heartbeat.IntervalSeconds)
}

func TestHandleChatNewCreatesEmptySession(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodPost, "/api/chat/new", map[string]string{"session_id": "panel-test"})
	require.Equal(t, http.StatusOK, rec.Code)

	sess, err := h.SessionStore.Load("panel-test")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Empty(t, sess.Messages)
}

func TestHandleSessionGetRejectsPathTraversal(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/api/sessions/..%2F..%2Fetc%2Fpasswd", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSessionGetReturnsNotFoundForMissingSession(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/api/sessions/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSessionListReturnsSavedSessions(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	doRequest(t, mux, http.MethodPost, "/api/chat/new", map[string]string{"session_id": "listed"})

	rec := doRequest(t, mux, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	require.Contains(t, ids, "listed")
}

func TestHandleCostsReturnsAllDays(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/api/costs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var days map[string]costledger.DayBucket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &days))
}

func TestHandleCronsListsRegisteredJobs(t *testing.T) {
	h := newTestHandler(t)
	require.NoError(t, h.Cron.RegisterJob(&model.CronJob{ID: "job-1", Schedule: "* * * * *", Enabled: true}))
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/api/crons", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "job-1")
}

func TestHandleCredsRoundTrip(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodPost, "/api/creds/anthropic", map[string]string{"value": "sk-test"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/api/creds/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "anthropic")

	rec = doRequest(t, mux, http.MethodDelete, "/api/creds/anthropic", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCapabilitiesReportsToolCount(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/api/capabilities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointExposesCountersWhenConfigured(t *testing.T) {
	h := newTestHandler(t)
	h.Metrics = observability.NewMetrics()
	mux := NewMux(h)

	doRequest(t, mux, http.MethodGet, "/api/status", nil)

	rec := doRequest(t, mux, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "sentineld_gateway_http_requests_total")
}

func TestMetricsEndpointAbsentWhenNotConfigured(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanelRoutesOpenWithoutConfiguredPassphrase(t *testing.T) {
	h := newTestHandler(t)
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPanelRequiresSessionCookieOncePassphraseConfigured(t *testing.T) {
	h := newTestHandler(t)
	h.Auth = NewAuth("hunter2")
	mux := NewMux(h)

	rec := doRequest(t, mux, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/login", map[string]string{"passphrase": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/login", map[string]string{"passphrase": "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/status", strings.NewReader(""))
	req.AddCookie(cookies[0])
	authed := httptest.NewRecorder()
	mux.ServeHTTP(authed, req)
	require.Equal(t, http.StatusOK, authed.Code)
}
