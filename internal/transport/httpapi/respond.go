package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

const maxBodyBytes = 1 << 20

// envelope — общий формат ответа.
type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// pageEnvelope — формат постраничного ответа, который ожидает клиент.
type pageEnvelope struct {
	Data        interface{} `json:"data"`
	CurrentPage int         `json:"currentPage"`
	TotalPages  int         `json:"totalPages"`
	TotalItems  int         `json:"totalItems"`
}

func newPageEnvelope(data interface{}, page domain.Page, total int) pageEnvelope {
	page = page.Normalize()
	return pageEnvelope{
		Data:        data,
		CurrentPage: page.Number,
		TotalPages:  page.TotalPages(total),
		TotalItems:  total,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		h.logger.WithError(err).Warn("failed to write HTTP response")
	}
}

func (h *Handler) ok(w http.ResponseWriter, code int, message string, data interface{}) {
	h.writeJSON(w, code, envelope{Status: "success", Message: message, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, code int, message string, details map[string]string) {
	env := envelope{Status: "error", Message: message}
	if len(details) > 0 {
		env.Details = details
	}
	h.writeJSON(w, code, env)
}

// writeError сопоставляет доменную ошибку HTTP-статусу.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	entry := h.logger.WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": code,
	}).WithError(err)

	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
		h.fail(w, code, "internal error", nil)
		return
	}
	entry.Debug("request rejected")

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		h.fail(w, code, "validation failed", verr.Details)
		return
	}
	var merr *domain.MergeRejectedError
	if errors.As(err, &merr) {
		h.fail(w, code, err.Error(), map[string]string{merr.Field: merr.Reason})
		return
	}
	h.fail(w, code, err.Error(), nil)
}

func statusFor(err error) int {
	var cascade *domain.CascadeError
	switch {
	case errors.As(err, &cascade), errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrUnresolvedReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrMergeRejected),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrCartEmpty),
		errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderVersionConflict),
		errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// decode читает JSON-тело и, если dst — структура с тегами validate, проверяет его.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid request body", toDetails(err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return true
		}
		h.fail(w, http.StatusBadRequest, "validation failed", toDetails(err))
		return false
	}
	return true
}
