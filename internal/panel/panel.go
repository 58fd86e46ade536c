// Package panel implements the loopback-only HTTP control surface (spec
// §6). Every route returns JSON; routing uses stdlib http.ServeMux rather
// than a third-party router (see DESIGN.md for why).
//
// Grounded on internal/web/api.go of the teacher repo: handler-per-route
// methods on a shared Handler, a jsonResponse/jsonError helper pair, and
// JSON request decoding with a body-size cap and unknown-field rejection.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/sentineld/internal/config"
	"github.com/haasonsaas/sentineld/internal/costledger"
	"github.com/haasonsaas/sentineld/internal/cron"
	"github.com/haasonsaas/sentineld/internal/gateway"
	"github.com/haasonsaas/sentineld/internal/heartbeat"
	"github.com/haasonsaas/sentineld/internal/observability"
	"github.com/haasonsaas/sentineld/internal/session"
	"github.com/haasonsaas/sentineld/internal/tool"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// maxRequestBodyBytes bounds decoded request bodies (grounded on the
// teacher's maxAPIRequestBodyBytes in internal/web/api.go).
const maxRequestBodyBytes = 1 << 20

// CredentialStore is the narrow contract the creds endpoints need. No
// concrete implementation ships with this module (credential storage is a
// Non-goal per spec §1); wire a real vault-backed implementation at the
// call site.
type CredentialStore interface {
	List(ctx context.Context) ([]string, error)
	Set(ctx context.Context, name, value string) error
	Delete(ctx context.Context, name string) error
}

// Handler wires every subsystem the panel surfaces.
type Handler struct {
	Config         *config.Store
	Sessions       *session.Engine
	SessionStore   *session.Store
	Tools          *tool.Registry
	Ledger         *costledger.Ledger
	Heartbeat      *heartbeat.Pipeline
	HeartbeatState *heartbeat.StateStore
	HeartbeatAudit *heartbeat.AuditStore
	Cron           *cron.Scheduler
	Log            *gateway.LogRing
	Creds          CredentialStore
	ChatRole       model.Role
	StartedAt      time.Time
	Clock          func() time.Time

	// Metrics, when set, exposes /metrics (SPEC_FULL §10: "gateway request
	// counts... on an internal /metrics endpoint bound to loopback alongside
	// the HTTP panel") and drives the GatewayHTTPRequests counter.
	Metrics *observability.Metrics

	// Auth, when set with a non-empty Passphrase, gates every route but
	// /api/login and /metrics behind a signed session cookie (SPEC_FULL §10:
	// golang-jwt/jwt/v5 "signs and verifies the HTTP panel's local session
	// cookie"). Nil or a blank passphrase leaves the panel unauthenticated.
	Auth *Auth
}

// NewMux registers every spec §6 route plus /api/login and, when configured,
// /metrics, then layers auth (outermost) and request metrics middleware.
func NewMux(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/gateway", h.handleGateway)
	mux.HandleFunc("/api/gateway/log", h.handleGatewayLog)
	mux.HandleFunc("/api/config", h.handleConfig)
	mux.HandleFunc("/api/creds/", h.handleCreds)
	mux.HandleFunc("/api/sessions", h.handleSessionList)
	mux.HandleFunc("/api/sessions/", h.handleSessionGet)
	mux.HandleFunc("/api/chat/new", h.handleChatNew)
	mux.HandleFunc("/api/chat/context", h.handleChatContext)
	mux.HandleFunc("/api/chat", h.handleChat)
	mux.HandleFunc("/api/heartbeat/run", h.handleHeartbeatRun)
	mux.HandleFunc("/api/heartbeat/audit", h.handleHeartbeatAudit)
	mux.HandleFunc("/api/costs", h.handleCosts)
	mux.HandleFunc("/api/crons", h.handleCrons)
	mux.HandleFunc("/api/capabilities", h.handleCapabilities)
	mux.HandleFunc("/api/skills", h.handleSkills)
	mux.HandleFunc("/api/custom-tools", h.handleCustomTools)
	mux.HandleFunc("/api/login", h.handleLogin)
	if h.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	return requireAuth(withMetrics(mux, h.Metrics), h.Auth)
}

// withMetrics wraps mux so every request increments GatewayHTTPRequests by
// route and status class, a no-op passthrough when m is nil.
func withMetrics(mux http.Handler, m *observability.Metrics) http.Handler {
	if m == nil {
		return mux
	}
	return instrument(mux, m)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(next http.Handler, m *observability.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		statusClass := strconv.Itoa(rec.status/100) + "xx"
		m.GatewayHTTPRequests.WithLabelValues(r.URL.Path, statusClass).Inc()
	})
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return false
	}
	return true
}

// sessionIDPattern guards against path traversal in /api/sessions/:id
// (spec §6: "with path-traversal guard").
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validSessionID(id string) bool {
	return id != "" && !strings.Contains(id, "..") && path.Base(id) == id && sessionIDPattern.MatchString(id)
}

// handleStatus implements GET /api/status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cfg := h.Config.Get()
	budget := h.Ledger.BudgetCheck(cfg.Session.DailyLimitUsd, cfg.Session.WarnThresholdUsd)
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": h.now().Sub(h.StartedAt).Seconds(),
		"budget":         budget,
		"today":          h.Ledger.Today(),
	})
}

// handleGateway implements GET /api/gateway.
func (h *Handler) handleGateway(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"started_at": h.StartedAt.Format(time.RFC3339),
	})
}

// handleGatewayLog implements GET /api/gateway/log.
func (h *Handler) handleGatewayLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.Log.Snapshot())
}

// handleConfig implements GET|POST /api/config; a POST hot-reloads every
// subscriber (spec §6: "hot-reload on change") through config.Store.Set.
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.Config.Get())
	case http.MethodPost:
		var cfg config.Config
		if !decodeJSON(w, r, &cfg) {
			return
		}
		h.Config.Set(cfg)
		writeJSON(w, http.StatusOK, cfg)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCreds implements GET|POST|DELETE /api/creds/:name.
func (h *Handler) handleCreds(w http.ResponseWriter, r *http.Request) {
	if h.Creds == nil {
		writeError(w, http.StatusNotImplemented, "no credential store configured")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/creds/")

	switch r.Method {
	case http.MethodGet:
		if name != "" {
			writeError(w, http.StatusNotFound, "use GET /api/creds/ to list names")
			return
		}
		names, err := h.Creds.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, names)
	case http.MethodPost:
		if name == "" {
			writeError(w, http.StatusBadRequest, "credential name is required")
			return
		}
		var body struct {
			Value string `json:"value"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if err := h.Creds.Set(r.Context(), name, body.Value); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case http.MethodDelete:
		if name == "" {
			writeError(w, http.StatusBadRequest, "credential name is required")
			return
		}
		if err := h.Creds.Delete(r.Context(), name); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSessionList implements GET /api/sessions.
func (h *Handler) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ids, err := h.SessionStore.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// handleSessionGet implements GET /api/sessions/:id.
func (h *Handler) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if !validSessionID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := h.SessionStore.Load(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleChatNew implements POST /api/chat/new.
func (h *Handler) handleChatNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &body) {
			return
		}
	}
	if body.SessionID == "" || !validSessionID(body.SessionID) {
		writeError(w, http.StatusBadRequest, "a valid session_id is required")
		return
	}
	role := h.ChatRole
	if role == "" {
		role = model.RoleDefault
	}
	sess, err := h.Sessions.Load(body.SessionID, role, model.SessionLimits{}, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sess.Messages = nil
	sess.Contexts = nil
	if err := h.SessionStore.Save(sess); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleChatContext implements POST /api/chat/context, replacing a
// session's loaded context set (spec §4.4's "loaded contexts").
func (h *Handler) handleChatContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		SessionID string   `json:"session_id"`
		Contexts  []string `json:"contexts"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if !validSessionID(body.SessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := h.SessionStore.Load(body.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	sess.Contexts = body.Contexts
	if err := h.SessionStore.Save(sess); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleHeartbeatRun implements POST /api/heartbeat/run (manual trigger).
func (h *Handler) handleHeartbeatRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.Heartbeat.Tick(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHeartbeatAudit implements GET /api/heartbeat/audit.
func (h *Handler) handleHeartbeatAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	records, err := h.HeartbeatAudit.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleCosts implements GET /api/costs.
func (h *Handler) handleCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.Ledger.All())
}

// handleCrons implements GET /api/crons.
func (h *Handler) handleCrons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobs := h.Cron.Jobs()
	type jobView struct {
		*model.CronJob
		Executions []model.JobExecution `json:"executions"`
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView{CronJob: j, Executions: h.Cron.Executions(j.ID)})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleCapabilities implements GET /api/capabilities: a summary of what
// this daemon instance can currently do (spec §4.4's "capabilities
// summary" composer section, surfaced read-only here too).
func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cfg := h.Config.Get()
	roles := make([]string, 0, len(cfg.LLM.Roles))
	for role := range cfg.LLM.Roles {
		roles = append(roles, role)
	}
	channels := make([]string, 0, len(cfg.Channels))
	for _, c := range cfg.Channels {
		channels = append(channels, c.Kind)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roles":    roles,
		"channels": channels,
		"tools":    len(h.Tools.All()),
	})
}

// handleSkills implements GET /api/skills. Skill authoring has no
// dedicated module in this daemon's scope (spec §4.4 names only a "skills
// index" composer section); this reports an empty index until one exists.
func (h *Handler) handleSkills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, []string{})
}

// handleCustomTools implements GET /api/custom-tools, reporting both
// registered user-supplied tools and quarantined failures (spec §4.2).
func (h *Handler) handleCustomTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var custom []model.ToolDescriptor
	for _, d := range h.Tools.All() {
		if !d.Builtin {
			custom = append(custom, d.AsModel())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tools":       custom,
		"quarantined": h.Tools.Quarantined(),
	})
}
