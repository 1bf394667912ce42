package route

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/ical"
	"learnadoodle/src-server/model"
	"learnadoodle/src-server/utils"
)

// months in a feed, starting with the current one
const ICAL_FEED_MONTHS = 3

func Ical(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /ical/{family_id}", func(w http.ResponseWriter, r *http.Request) {
		familyID := r.PathValue("family_id")

		familyModel, err := as.Store.GetFamily(r.Context(), familyID)
		switch {
		case errors.Is(err, model.ErrFamilyNotFound):
			http.Error(w, "Family not found", http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		store, err := as.GetCacheStore(r.Context(), familyID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// the export covers the whole family; a session narrowed to one
		// child is read around, not through
		if store.Filters().ChildID != "" {
			store = calendar.NewCacheStore(as.Store, calendar.Options{
				Location: store.Location(),
				Filters:  calendar.Filters{FamilyID: familyID},
			})
		}

		// feed the cached months, loading the ones still missing
		feed := ical.NewFeed(familyModel.Name, store.Location())
		key := calendar.MonthKeyFromTime(time.Now().In(store.Location()))
		for range ICAL_FEED_MONTHS {
			view, err := store.EnsureLoaded(r.Context(), key)
			if err != nil {
				writeError(w, err)
				return
			}
			feed.AddView(view)
			key = key.Next()
		}

		icalString, err := feed.String()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, icalString); err != nil {
			slog.Warn("can't write to response", "where", "route/ical.go", "err", err)
		}
	})
}
