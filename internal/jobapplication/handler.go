package jobapplication

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"jobtrack/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

// appliedDateSlack tolerates small client clock drift on "not in the future".
const appliedDateSlack = 5 * time.Minute

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}

	applications, err := h.repo.List(r.Context(), auth.UserID(r.Context()), filter)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list job applications")
		return
	}

	writeJSON(w, http.StatusOK, applications)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}

	app, err := h.repo.GetByID(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "job application not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load job application")
		return
	}

	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	app, err := h.repo.Create(r.Context(), auth.UserID(r.Context()), input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create job application")
		return
	}

	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	app, err := h.repo.Update(r.Context(), auth.UserID(r.Context()), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "job application not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update job application")
		return
	}

	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}

	if err := h.repo.Delete(r.Context(), auth.UserID(r.Context()), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "job application not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete job application")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}

	input, ok := parseNoteInput(w, r)
	if !ok {
		return
	}

	note, err := h.repo.AddNote(r.Context(), auth.UserID(r.Context()), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "job application not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to add note")
		return
	}

	writeJSON(w, http.StatusOK, note)
}

func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	noteID := r.PathValue("noteId")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}
	if _, err := uuid.Parse(noteID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}

	if err := h.repo.DeleteNote(r.Context(), auth.UserID(r.Context()), id, noteID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete note")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseListFilter(w http.ResponseWriter, r *http.Request) (ListFilter, bool) {
	query := r.URL.Query()
	filter := ListFilter{
		Status: strings.TrimSpace(query.Get("status")),
		Search: strings.TrimSpace(query.Get("search")),
	}

	if filter.Status != "" && !validStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "unknown status")
		return ListFilter{}, false
	}

	var ok bool
	if filter.From, ok = parseDateParam(w, query, "from"); !ok {
		return ListFilter{}, false
	}
	if filter.To, ok = parseDateParam(w, query, "to"); !ok {
		return ListFilter{}, false
	}

	return filter, true
}

func parseDateParam(w http.ResponseWriter, query url.Values, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return nil, true
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed, true
		}
	}

	writeError(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp or a date")
	return nil, false
}

func parseInput(w http.ResponseWriter, r *http.Request) (ApplicationInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input ApplicationInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return ApplicationInput{}, false
	}

	input.Company = strings.TrimSpace(input.Company)
	input.Position = strings.TrimSpace(input.Position)
	input.Location = strings.TrimSpace(input.Location)
	input.Status = strings.TrimSpace(input.Status)
	input.Source = strings.TrimSpace(input.Source)
	input.JobPostingURL = strings.TrimSpace(input.JobPostingURL)
	input.Notes = strings.TrimSpace(input.Notes)

	if input.Company == "" || input.Position == "" {
		writeError(w, http.StatusBadRequest, "company and position are required")
		return ApplicationInput{}, false
	}
	if !utf8.ValidString(input.Company) || len(input.Company) > 200 {
		writeError(w, http.StatusBadRequest, "company is invalid")
		return ApplicationInput{}, false
	}
	if !utf8.ValidString(input.Position) || len(input.Position) > 200 {
		writeError(w, http.StatusBadRequest, "position is invalid")
		return ApplicationInput{}, false
	}
	if len(input.Notes) > 5000 {
		writeError(w, http.StatusBadRequest, "notes are too long")
		return ApplicationInput{}, false
	}

	if input.Status == "" {
		input.Status = StatusApplied
	}
	if !validStatus(input.Status) {
		writeError(w, http.StatusBadRequest, "unknown status")
		return ApplicationInput{}, false
	}

	if input.AppliedDate.IsZero() {
		input.AppliedDate = time.Now().UTC()
	}
	if input.AppliedDate.After(time.Now().UTC().Add(appliedDateSlack)) {
		writeError(w, http.StatusBadRequest, "appliedDate cannot be in the future")
		return ApplicationInput{}, false
	}

	if input.ExpectedSalary != nil && *input.ExpectedSalary < 0 {
		writeError(w, http.StatusBadRequest, "expectedSalary must be >= 0")
		return ApplicationInput{}, false
	}

	if input.JobPostingURL != "" {
		parsed, err := url.ParseRequestURI(input.JobPostingURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			writeError(w, http.StatusBadRequest, "jobPostingUrl must be a valid http(s) link")
			return ApplicationInput{}, false
		}
	}

	return input, true
}

func parseNoteInput(w http.ResponseWriter, r *http.Request) (NoteInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input NoteInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return NoteInput{}, false
	}

	input.Content = strings.TrimSpace(input.Content)
	input.Type = strings.TrimSpace(input.Type)

	if input.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return NoteInput{}, false
	}
	if !utf8.ValidString(input.Content) || len(input.Content) > 5000 {
		writeError(w, http.StatusBadRequest, "content is invalid")
		return NoteInput{}, false
	}

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
