package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/ledger-monitor/internal/ledger"
	"github.com/afroash/ledger-monitor/internal/models"
	"github.com/afroash/ledger-monitor/internal/poll"
	"github.com/afroash/ledger-monitor/internal/setpoint"
)

// APIHandler serves the JSON API
type APIHandler struct {
	mon    Monitor
	logger zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(mon Monitor, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		mon:    mon,
		logger: logger,
	}
}

// HandleSnapshot returns the current view-model
func (api *APIHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.mon.Snapshot())
}

// HandleRefresh runs a manual poll cycle and returns the resulting snapshot.
func (api *APIHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	err := api.mon.RefreshNow()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, api.mon.Snapshot())
	case errors.Is(err, poll.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, poll.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "stopped", err.Error())
	default:
		api.logger.Warn().Err(err).Msg("Manual refresh failed")
		writeError(w, statusFor(err), codeFor(err), err.Error())
	}
}

// ConnectResponse is returned by HandleConnect
type ConnectResponse struct {
	Identity string `json:"identity"`
	Status   string `json:"status"`
}

// HandleConnect establishes the ledger connection
func (api *APIHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	id, err := api.mon.Connect(r.Context())
	if err != nil {
		writeError(w, statusFor(err), codeFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ConnectResponse{Identity: id, Status: api.mon.Snapshot().Status})
}

// SetpointEditRequest stages either a single field or a whole range.
// Values may be JSON strings, kept as typed until commit, or numbers.
type SetpointEditRequest struct {
	Field     string          `json:"field,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Dimension string          `json:"dimension,omitempty"`
	Min       json.RawMessage `json:"min,omitempty"`
	Max       json.RawMessage `json:"max,omitempty"`
}

// HandleStageSetpoint updates the pending buffer
func (api *APIHandler) HandleStageSetpoint(w http.ResponseWriter, r *http.Request) {
	var req SetpointEditRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if (req.Field == "") == (req.Dimension == "") {
		writeError(w, http.StatusBadRequest, "bad_request", "provide either field or dimension")
		return
	}
	if err := api.stage(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, api.mon.Snapshot().Pending)
}

func (api *APIHandler) stage(req SetpointEditRequest) error {
	if req.Field != "" {
		edit, err := setpoint.DecodeEdit(req.Value)
		if err != nil {
			return err
		}
		return api.mon.StageSetpointEdit(req.Field, edit)
	}

	min, err := setpoint.DecodeEdit(req.Min)
	if err != nil {
		return err
	}
	max, err := setpoint.DecodeEdit(req.Max)
	if err != nil {
		return err
	}
	return api.mon.StageSetpointRange(req.Dimension, min, max)
}

// CommitResponse reports the applied setpoints and any fields that kept
// their previous value.
type CommitResponse struct {
	Setpoints models.Setpoints `json:"setpoints"`
	Errors    []FieldError     `json:"errors,omitempty"`
}

// FieldError describes a staged value rejected at commit
type FieldError struct {
	Field   string `json:"field"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

// HandleCommitSetpoints applies the pending buffer
func (api *APIHandler) HandleCommitSetpoints(w http.ResponseWriter, r *http.Request) {
	sp, err := api.mon.CommitSetpoints()
	resp := CommitResponse{Setpoints: sp}
	for _, e := range flatten(err) {
		var pe *setpoint.ParseError
		if errors.As(e, &pe) {
			resp.Errors = append(resp.Errors, FieldError{Field: string(pe.Field), Text: pe.Text, Message: pe.Error()})
			continue
		}
		resp.Errors = append(resp.Errors, FieldError{Message: e.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRefreshes lists recent poll cycles. since and until (RFC3339)
// restrict the listing to a time window; either may be omitted.
func (api *APIHandler) HandleRefreshes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if s := q.Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed <= 0 || parsed > 1000 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	since, err := parseTimeParam(q.Get("since"), time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "since: "+err.Error())
		return
	}
	until, err := parseTimeParam(q.Get("until"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "until: "+err.Error())
		return
	}
	if until.Before(since) {
		writeError(w, http.StatusBadRequest, "bad_request", "until must not be before since")
		return
	}

	var recs []*models.RefreshRecord
	if q.Has("since") || q.Has("until") {
		recs, err = api.mon.RefreshesBetween(since, until, limit)
	} else {
		recs, err = api.mon.Refreshes(limit)
	}
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to read refresh journal")
		writeError(w, http.StatusInternalServerError, "journal", "failed to read refresh journal")
		return
	}
	if recs == nil {
		recs = []*models.RefreshRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func parseTimeParam(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, v)
}

// HandleJournalStats returns refresh journal statistics
func (api *APIHandler) HandleJournalStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := api.mon.JournalStats()
	if !ok {
		writeError(w, http.StatusNotFound, "journal_disabled", "refresh journal is disabled")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HealthResponse is returned by HandleHealth
type HealthResponse struct {
	Status     string        `json:"status"`
	Connection ledger.Status `json:"connection"`
	Uptime     string        `json:"uptime"`
	Version    string        `json:"version"`
}

// HandleHealth reports liveness. It never touches the ledger.
func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snap := api.mon.Snapshot()
	resp := HealthResponse{Status: "ok", Connection: snap.Connection}
	if snap.Monitor != nil {
		resp.Uptime = snap.Monitor.Uptime().Truncate(time.Second).String()
		resp.Version = snap.Monitor.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	var connErr *ledger.ConnectionError
	var fetchErr *ledger.FetchError
	switch {
	case errors.Is(err, ledger.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &connErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) string {
	var connErr *ledger.ConnectionError
	var fetchErr *ledger.FetchError
	switch {
	case errors.Is(err, ledger.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.As(err, &connErr):
		return "connection_error"
	case errors.As(err, &fetchErr):
		return "fetch_error"
	default:
		return "internal"
	}
}

// flatten expands an errors.Join result.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, models.ErrorMessage{Code: code, Message: msg})
}
