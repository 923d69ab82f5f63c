package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"starling/internal/compose"
	"starling/internal/logging"
	"starling/internal/model"
	"starling/internal/store/ledger"
)

type draftIDRequest struct {
	ID string `json:"id"`
}

func (rt *router) handleDrafts(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	status := strings.TrimSpace(req.URL.Query().Get("status"))
	switch status {
	case "", model.DraftPending, model.DraftApproved, model.DraftPosted, model.DraftRejected, model.DraftFailed:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown status %q", status)})
		return
	}
	drafts, err := rt.deps.Ledger.DraftsByStatus(req.Context(), status, queryLimit(req, 50))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(drafts))
	for _, d := range drafts {
		items = append(items, draftToMap(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (rt *router) handleDraftApprove(w http.ResponseWriter, req *http.Request) {
	rt.transitionDraft(w, req, model.DraftApproved, []string{model.DraftPending})
}

func (rt *router) handleDraftReject(w http.ResponseWriter, req *http.Request) {
	rt.transitionDraft(w, req, model.DraftRejected, []string{model.DraftPending, model.DraftApproved})
}

// transitionDraft moves a draft to status when its current status is in from.
func (rt *router) transitionDraft(w http.ResponseWriter, req *http.Request, status string, from []string) {
	id, ok := rt.decodeDraftID(w, req)
	if !ok {
		return
	}
	d, err := rt.deps.Ledger.Draft(req.Context(), id)
	if err != nil {
		rt.draftError(w, err)
		return
	}
	allowed := false
	for _, s := range from {
		if d.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("draft is %s, not %s", d.Status, strings.Join(from, " or ")),
		})
		return
	}
	if err := rt.deps.Ledger.UpdateDraftStatus(req.Context(), id, status, time.Now()); err != nil {
		rt.draftError(w, err)
		return
	}
	logging.Info("draft_status_changed", map[string]any{"draft_id": id, "status": status})
	d.Status = status
	writeJSON(w, http.StatusOK, draftToMap(d))
}

func (rt *router) handleDraftRegenerate(w http.ResponseWriter, req *http.Request) {
	id, ok := rt.decodeDraftID(w, req)
	if !ok {
		return
	}
	if rt.deps.Gen == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "generation not configured"})
		return
	}
	d, err := rt.deps.Ledger.Draft(req.Context(), id)
	if err != nil {
		rt.draftError(w, err)
		return
	}
	if d.Status != model.DraftPending && d.Status != model.DraftRejected {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("draft is %s, not pending or rejected", d.Status),
		})
		return
	}
	system := compose.SystemPrompt(rt.deps.Cfg.Persona)
	text, err := rt.deps.Gen.Complete(req.Context(), system, rt.promptFor(d))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if ok, reason := rt.checkDraftText(req, d.Kind, text); !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": fmt.Sprintf("regenerated text rejected: %s", reason),
		})
		return
	}
	now := time.Now()
	if err := rt.deps.Ledger.UpdateDraftText(req.Context(), id, text, now); err != nil {
		rt.draftError(w, err)
		return
	}
	if d.Status != model.DraftPending {
		if err := rt.deps.Ledger.UpdateDraftStatus(req.Context(), id, model.DraftPending, now); err != nil {
			rt.draftError(w, err)
			return
		}
	}
	logging.Info("draft_regenerated", map[string]any{"draft_id": id, "kind": string(d.Kind)})
	d.Text = text
	d.Status = model.DraftPending
	writeJSON(w, http.StatusOK, draftToMap(d))
}

func (rt *router) promptFor(d model.Draft) string {
	v := rt.deps.Cfg.Validation
	switch d.Kind {
	case model.KindReply:
		return compose.ReplyPrompt(d.TargetAuthor, d.SourceText, v.MaxReplyLen)
	case model.KindQuote:
		return compose.QuotePrompt(d.TargetAuthor, d.SourceText, v.MaxPostLen)
	case model.KindThread:
		return compose.ThreadPrompt(d.SourceText, 4, v.MaxReplyLen)
	default:
		return compose.PostPrompt(d.SourceText, v.MaxPostLen)
	}
}

// checkDraftText validates regenerated text against the same rules the
// engine applies, including recent-output history from the ledger.
func (rt *router) checkDraftText(req *http.Request, kind model.ActionKind, text string) (bool, string) {
	history, err := rt.deps.Ledger.RecentHistory(req.Context(), rt.deps.Cfg.Validation.HistoryWindow)
	if err != nil {
		history = nil
	}
	if kind == model.KindThread {
		parts := compose.ParseThread(text, 0)
		if len(parts) == 0 {
			return false, "empty"
		}
		for _, part := range parts {
			if ok, reason := rt.check.Check(part, kind, history); !ok {
				return false, reason
			}
		}
		return true, ""
	}
	return rt.check.Check(text, kind, history)
}

func (rt *router) decodeDraftID(w http.ResponseWriter, req *http.Request) (string, bool) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return "", false
	}
	var body draftIDRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return "", false
	}
	id := strings.TrimSpace(body.ID)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return "", false
	}
	return id, true
}

func (rt *router) draftError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "draft not found"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func draftToMap(d model.Draft) map[string]any {
	out := map[string]any{
		"id":              d.ID,
		"kind":            string(d.Kind),
		"target_id":       d.TargetID,
		"target_author":   d.TargetAuthor,
		"source_text":     d.SourceText,
		"text":            d.Text,
		"status":          d.Status,
		"created_at_unix": d.CreatedAt.Unix(),
		"updated_at_unix": d.UpdatedAt.Unix(),
	}
	if !d.PostedAt.IsZero() {
		out["posted_at_unix"] = d.PostedAt.Unix()
	}
	return out
}
