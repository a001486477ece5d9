package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

const problemTypeBase = "https://api.nexus.ru/errors/"

// Problem is an RFC 7807 error body.
type Problem struct {
	Type      string            `json:"type,omitempty"`
	Title     string            `json:"title"`
	Status    int               `json:"status"`
	Detail    string            `json:"detail"`
	Timestamp time.Time         `json:"timestamp"`
	Errors    map[string]string `json:"errors,omitempty"`
}

var errMalformedBody = errors.New("malformed request body")

func problemFor(err error) Problem {
	p := Problem{Timestamp: time.Now().UTC()}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		p.Status = http.StatusBadRequest
		p.Title = "Validation Error"
		p.Detail = "Validation failed"
		p.Errors = verr.Fields
	case errors.Is(err, errMalformedBody):
		p.Status = http.StatusBadRequest
		p.Title = "Malformed Request"
		p.Detail = err.Error()
	case errors.Is(err, domain.ErrNotFound):
		p.Status = http.StatusNotFound
		p.Title = "Resource Not Found"
		p.Type = problemTypeBase + "not-found"
		p.Detail = err.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		p.Status = http.StatusConflict
		p.Title = "Not enough in stock"
		p.Type = problemTypeBase + "insufficient-stock"
		p.Detail = err.Error()
	case errors.Is(err, domain.ErrConflict):
		p.Status = http.StatusConflict
		p.Title = "Resource Conflict"
		p.Type = problemTypeBase + "conflict"
		p.Detail = "The resource has been updated by another user. Please refresh and try again."
	default:
		p.Status = http.StatusInternalServerError
		p.Title = "Internal Server Error"
		p.Detail = "An unexpected error occurred"
	}
	return p
}

func writeProblem(w http.ResponseWriter, err error) {
	p := problemFor(err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	json.NewEncoder(w).Encode(p)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Join(errMalformedBody, err)
	}
	return nil
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
