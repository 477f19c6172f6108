package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/audit"
	"loanadmin.org/internal/cascade"
	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/store"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeBody decodes the request or writes a 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeServiceError maps the domain error classes onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var incomplete *cascade.IncompleteError
	switch {
	case errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrDanglingReference),
		errors.Is(err, cascade.ErrUnknownOption),
		errors.Is(err, cascade.ErrNoSuchLevel),
		errors.As(err, &incomplete):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrHasDependents),
		errors.Is(err, store.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		obs.Logger().WithFields(map[string]any{
			"request_id": audit.RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err.Error(),
		}).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeCreated(w http.ResponseWriter, location string, v any) {
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusCreated, v)
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, fmt.Errorf("limit must be between %d and %d", min, max)
	}
	return val, nil
}
