package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/reiteradas/internal/analytics"
	"github.com/rpattn/reiteradas/internal/auth"
	"github.com/rpattn/reiteradas/internal/domain"
	"github.com/rpattn/reiteradas/internal/progress"
)

// ClearConfirmation must be sent to wipe every collection.
const ClearConfirmation = "CONFIRMAR"

const maxUploadBytes = 32 << 20

// Handler exposes uploads, history and queries over HTTP.
type Handler struct {
	service *Service
	mux     *http.ServeMux
}

// NewHTTPHandler routes the /api endpoints to the service.
func NewHTTPHandler(service *Service) http.Handler {
	h := &Handler{service: service, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/uploads", h.handleUpload)
	h.mux.HandleFunc("GET /api/uploads", h.handleHistory)
	h.mux.HandleFunc("GET /api/uploads/{id}/status", h.handleStatus)
	h.mux.HandleFunc("DELETE /api/uploads/{id}", h.handleDelete)
	h.mux.HandleFunc("POST /api/admin/clear", h.handleClear)
	h.mux.HandleFunc("GET /api/records", h.handleRecords)
	h.mux.HandleFunc("GET /api/rankings", h.handleRankings)
	h.mux.HandleFunc("GET /api/feeders", h.handleFeeders)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := auth.EnforceAdmin(r.Context()); err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid form data: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file required: %w", err))
		return
	}
	defer file.Close()

	uploadedBy := strings.TrimSpace(r.FormValue("uploadedBy"))
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Email != "" {
		uploadedBy = identity.Email
	}

	uploadID, err := h.service.Upload(r.Context(), Request{
		UploadID:   r.FormValue("uploadId"),
		Territory:  r.FormValue("regional"),
		FileName:   header.Filename,
		FileType:   header.Header.Get("Content-Type"),
		UploadedBy: uploadedBy,
		Data:       file,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"uploadId": uploadID})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), domain.Territory(r.URL.Query().Get("regional")))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := auth.EnforceAdmin(r.Context()); err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}
	result := h.service.DeleteUpload(r.Context(), r.PathValue("id"))
	if !result.Success {
		writeJSON(w, statusFor(result.Err), result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type clearPayload struct {
	Confirm string `json:"confirm"`
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := auth.EnforceAdmin(r.Context()); err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}
	var payload clearPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if strings.TrimSpace(payload.Confirm) != ClearConfirmation {
		writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be %q", ClearConfirmation))
		return
	}

	result := h.service.ClearAll(r.Context())
	if !result.Success {
		writeJSON(w, statusFor(result.Err), result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	docs, err := h.service.Records(r.Context(), filter)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleRankings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	query := r.URL.Query()
	opts := analytics.Options{}
	if opts.Top, err = optionalInt(query.Get("top")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid top: %w", err))
		return
	}
	if opts.MinCount, err = optionalInt(query.Get("min")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid min: %w", err))
		return
	}
	opts.WithOccurrences = query.Get("occurrences") == "true"

	entries, err := h.service.Rankings(r.Context(), filter, query.Get("field"), opts)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleFeeders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	counts, err := h.service.Feeders(r.Context(), filter)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func parseFilter(r *http.Request) (domain.RecordFilter, error) {
	query := r.URL.Query()
	filter := domain.RecordFilter{
		Territory: domain.Territory(query.Get("regional")),
		From:      strings.TrimSpace(query.Get("from")),
		To:        strings.TrimSpace(query.Get("to")),
	}
	limit, err := optionalInt(query.Get("limit"))
	if err != nil {
		return filter, fmt.Errorf("invalid limit: %w", err)
	}
	filter.Limit = limit
	return filter, nil
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errors.New("must not be negative")
	}
	return value, nil
}

func statusFor(err error) int {
	var validation *ValidationError
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, progress.ErrUnknownUpload):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	}
	var fatal *FatalStoreError
	if errors.As(err, &fatal) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
