package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/alma-cli/internal/governance"
	"github.com/sells-group/alma-cli/internal/model"
)

const maxBodyBytes = 1 << 20

type listResponse struct {
	Items []model.Intervention `json:"items"`
	Total int                  `json:"total"`
}

type linksRequest struct {
	IDs []string `json:"ids"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type consentRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.InterventionFilter{
		ConsentLevel: model.ConsentLevel(q.Get("consent_level")),
		ReviewStatus: model.ReviewStatus(q.Get("review_status")),
		Type:         q.Get("type"),
		Geography:    splitList(q["geography"]),
	}

	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	items, total, err := h.gov.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var req governance.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	iv, err := h.gov.Create(r.Context(), req, actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, iv)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	iv, err := h.gov.GetByID(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	var req governance.UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")

	iv, err := h.gov.Update(r.Context(), req, actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.gov.SubmitForReview)
}

func (h *handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.gov.Approve)
}

func (h *handler) publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.gov.Publish)
}

// transition runs a status change and responds with the stored record.
func (h *handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID string) error) {
	id := chi.URLParam(r, "id")
	if err := fn(r.Context(), id, actor(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	iv, err := h.gov.GetByID(r.Context(), id, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (h *handler) links(kind model.LinkKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req linksRequest
		if !decodeBody(w, r, &req) {
			return
		}

		id := chi.URLParam(r, "id")
		var err error
		switch kind {
		case model.LinkOutcomes:
			err = h.gov.LinkOutcomes(r.Context(), id, req.IDs)
		case model.LinkEvidence:
			err = h.gov.LinkEvidence(r.Context(), id, req.IDs)
		default:
			err = h.gov.LinkContexts(r.Context(), id, req.IDs)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handler) checkConsent(w http.ResponseWriter, r *http.Request) {
	action := model.PermittedUse(r.URL.Query().Get("action"))
	res, err := h.gov.CheckPermission(r.Context(), chi.URLParam(r, "id"), action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) recordConsent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	entry, err := h.gov.RecordConsent(r.Context(), chi.URLParam(r, "id"), actor(r), req.ExpiresAt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handler) revokeConsent(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if err := h.gov.RevokeConsent(r.Context(), chi.URLParam(r, "id"), actor(r), req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) usage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.UsageFilter{Action: model.UsageAction(q.Get("action"))}

	var err error
	if f.Since, err = timeParam(q.Get("since")); err != nil {
		writeBadRequest(w, "since must be an RFC 3339 timestamp")
		return
	}
	if f.Until, err = timeParam(q.Get("until")); err != nil {
		writeBadRequest(w, "until must be an RFC 3339 timestamp")
		return
	}

	entries, err := h.gov.UsageHistory(r.Context(), chi.URLParam(r, "id"), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// statusFor maps a governance error kind to an HTTP status.
func statusFor(kind governance.Kind) int {
	switch kind {
	case governance.KindNotFound:
		return http.StatusNotFound
	case governance.KindValidation, governance.KindMissingCulturalAuthority:
		return http.StatusUnprocessableEntity
	case governance.KindInvalidStatusForUpdate, governance.KindInvalidStatusForTransition:
		return http.StatusConflict
	case governance.KindConsentNotGranted:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var gerr *governance.Error
	if errors.As(err, &gerr) {
		writeJSON(w, statusFor(gerr.Kind), errorResponse{
			Error:  gerr.Error(),
			Kind:   string(gerr.Kind),
			Reason: gerr.Reason,
		})
		return
	}

	h.log.Error("api: request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func timeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// splitList accepts both repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
