package route

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/model"
	"learnadoodle/src-server/utils"
)

type FamilyCtxKeyType string

const (
	FamilyCtxKey   FamilyCtxKeyType = "family"
	FamilyIDHeader string           = "X-Family-ID"
)

// the family a request acts for, with its calendar session
type familySession struct {
	ID    string
	Store *calendar.CacheStore
}

func FamilyMiddleware(as *utils.AppState, next func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		familyID := strings.TrimSpace(r.Header.Get(FamilyIDHeader))
		if familyID == "" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("X-Family-ID header not found"))
			return
		}

		store, err := as.GetCacheStore(r.Context(), familyID)
		switch {
		case errors.Is(err, model.ErrFamilyNotFound):
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Family not found"))
			return
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't open the family calendar"))
			slog.Error("can't open the family calendar", "familyID", familyID, "error", err)
			return
		}

		ctx := context.WithValue(r.Context(), FamilyCtxKey, familySession{ID: familyID, Store: store})
		next(w, r.WithContext(ctx))
	}
}

func familyFromCtx(w http.ResponseWriter, r *http.Request) (familySession, bool) {
	family, ok := r.Context().Value(FamilyCtxKey).(familySession)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Can't get family from middleware"))
	}
	return family, ok
}

type errorRespBody struct {
	Error   string           `json:"error"`
	EventID string           `json:"eventId,omitempty"`
	Fields  []calendar.Field `json:"fields,omitempty"`
}

// Map calendar errors onto status codes: validation 400, placeholder 422,
// not found 404, rejected write 409, failed month load 503.
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr  *calendar.ValidationError
		placeholderErr *calendar.PlaceholderEventError
		rejectedErr    *calendar.MutationRejected
		fetchErr       *calendar.FetchError
	)
	switch {
	case errors.As(err, &validationErr):
		body := errorRespBody{Error: validationErr.Error(), EventID: validationErr.EventID}
		if validationErr.Field != "" {
			body.Fields = []calendar.Field{validationErr.Field}
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &placeholderErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorRespBody{Error: placeholderErr.Error(), EventID: placeholderErr.EventID})
	case errors.As(err, &rejectedErr):
		writeJSON(w, http.StatusConflict, errorRespBody{
			Error:   rejectedErr.UserMessage(),
			EventID: rejectedErr.EventID,
			Fields:  rejectedErr.Fields,
		})
	case errors.Is(err, calendar.ErrEventNotFound),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrFamilyNotFound):
		writeJSON(w, http.StatusNotFound, errorRespBody{Error: err.Error()})
	case errors.As(err, &fetchErr):
		slog.Warn("month load failed", "month", fetchErr.Key, "error", fetchErr.Err)
		writeJSON(w, http.StatusServiceUnavailable, errorRespBody{Error: "The calendar couldn't be loaded, please try again"})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorRespBody{Error: "The database took too long to answer"})
	default:
		slog.Error("unexpected error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorRespBody{Error: "Something went wrong"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	bodyJson, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Can't marshal response body"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(bodyJson)
}

func decodeBody(w http.ResponseWriter, r *http.Request, body any) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Invalid request body"))
		return false
	}
	return true
}
