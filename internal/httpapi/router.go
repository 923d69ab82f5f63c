// Package httpapi is the local control surface: engine start/stop,
// draft review, and read-only stats over the shared ledger.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"starling/internal/config"
	"starling/internal/model"
	"starling/internal/store/ledger"
	"starling/internal/validate"
)

// Runner is the engine-subprocess lifecycle the control endpoints drive.
type Runner interface {
	Start() (pid int, started bool, err error)
	Stop(ctx context.Context) error
	Running() (bool, int)
}

// Generator produces replacement text for a draft on request.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Dependencies struct {
	Cfg     config.Config
	Ledger  *ledger.DB
	Runner  Runner
	Gen     Generator
	Version string
}

type router struct {
	deps  Dependencies
	check *validate.Checker
}

func NewRouter(deps Dependencies) http.Handler {
	rt := &router{deps: deps, check: validate.New(deps.Cfg.Validation)}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/api/info", rt.handleInfo)
	mux.HandleFunc("/control/start", rt.handleControlStart)
	mux.HandleFunc("/control/stop", rt.handleControlStop)
	mux.HandleFunc("/control/status", rt.handleControlStatus)
	mux.HandleFunc("/api/drafts", rt.handleDrafts)
	mux.HandleFunc("/api/drafts/approve", rt.handleDraftApprove)
	mux.HandleFunc("/api/drafts/reject", rt.handleDraftReject)
	mux.HandleFunc("/api/drafts/regenerate", rt.handleDraftRegenerate)
	mux.HandleFunc("/api/stats", rt.handleStats)
	mux.HandleFunc("/api/trends", rt.handleTrends)
	mux.HandleFunc("/api/actions", rt.handleActions)
	return mux
}

func (rt *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":              "starling",
		"version":           rt.deps.Version,
		"handle":            rt.deps.Cfg.Account.Handle,
		"approval_required": rt.deps.Cfg.Content.ApprovalRequired,
	})
}

func (rt *router) handleControlStart(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.deps.Runner == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine control not configured"})
		return
	}
	pid, started, err := rt.deps.Runner.Start()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": true, "started": started, "pid": pid})
}

func (rt *router) handleControlStop(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.deps.Runner == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine control not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), 15*time.Second)
	defer cancel()
	if err := rt.deps.Runner.Stop(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

func (rt *router) handleControlStatus(w http.ResponseWriter, req *http.Request) {
	running, pid := false, 0
	if rt.deps.Runner != nil {
		running, pid = rt.deps.Runner.Running()
	}
	now := time.Now()
	lastHour, err := rt.deps.Ledger.CountActionsSince(req.Context(), model.KindReply, now.Add(-time.Hour))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	today, err := rt.deps.Ledger.CountsForDay(req.Context(), rt.deps.Ledger.DayKey(now))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":           running,
		"pid":               pid,
		"replies_last_hour": lastHour,
		"actions_today":     today,
	})
}

func (rt *router) handleStats(w http.ResponseWriter, req *http.Request) {
	drafts, err := rt.deps.Ledger.DraftStatusCounts(req.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	now := time.Now()
	today, err := rt.deps.Ledger.CountsForDay(req.Context(), rt.deps.Ledger.DayKey(now))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drafts": drafts,
		"today":  today,
		"limits": rt.deps.Cfg.Admission.DailyLimits,
	})
}

func (rt *router) handleTrends(w http.ResponseWriter, req *http.Request) {
	trs, err := rt.deps.Ledger.RecentTrends(req.Context(), queryLimit(req, 20))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(trs))
	for _, tr := range trs {
		items = append(items, map[string]any{
			"id":              tr.ID,
			"topic":           tr.Topic,
			"summary":         tr.Summary,
			"source":          tr.Source,
			"created_at_unix": tr.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (rt *router) handleActions(w http.ResponseWriter, req *http.Request) {
	recs, err := rt.deps.Ledger.RecentActions(req.Context(), queryLimit(req, 50))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		items = append(items, map[string]any{
			"id":              rec.ID,
			"kind":            string(rec.Kind),
			"target_id":       rec.TargetID,
			"target_author":   rec.TargetAuthor,
			"detail":          rec.Detail,
			"created_at_unix": rec.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func queryLimit(req *http.Request, def int) int {
	raw := strings.TrimSpace(req.URL.Query().Get("limit"))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
