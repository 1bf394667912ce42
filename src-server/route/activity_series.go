package route

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/model"
	"learnadoodle/src-server/utils"
)

// reload the months of dates that are currently in use
func refreshLoadedMonths(r *http.Request, family familySession, dates []string) {
	seen := make(map[calendar.MonthKey]bool)
	for _, date := range dates {
		key, err := calendar.MonthKeyOf(date)
		if err != nil || seen[key] {
			continue
		}
		seen[key] = true
		if family.Store.State(key) == calendar.NotLoaded {
			continue
		}
		if err := family.Store.RefreshMonth(r.Context(), key); err != nil {
			slog.Warn("series saved but a month didn't reload", "familyID", family.ID, "month", key, "error", err)
		}
	}
}

func ActivitySeries(muxer *http.ServeMux, as *utils.AppState) {
	type CreateSeriesReqBody struct {
		Kind            calendar.Kind `json:"kind"`
		Title           string        `json:"title"`
		Description     string        `json:"description"`
		ChildID         string        `json:"childId"`
		TrackID         string        `json:"trackId"`
		ActivityID      string        `json:"activityId"`
		Assignees       []string      `json:"assignees"`
		StartDate       string        `json:"startDate"`
		ScheduledTime   string        `json:"scheduledTime"`
		DurationMinutes *int          `json:"durationMinutes"`
		RRule           string        `json:"rrule"`
	}

	type CreateSeriesRespBody struct {
		SeriesID string   `json:"seriesId"`
		IDs      []string `json:"ids"`
	}

	// expand a recurrence rule into one event per occurrence
	muxer.HandleFunc("POST /calendar/activity-series", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			var reqBody CreateSeriesReqBody
			if !decodeBody(w, r, &reqBody) {
				return
			}
			startDate, err := utils.ParseNaturalDate(as.When, reqBody.StartDate, time.Now().In(family.Store.Location()))
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Can't understand the start date"))
				return
			}
			if strings.TrimSpace(reqBody.RRule) == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a recurrence rule"))
				return
			}
			kind := reqBody.Kind
			if kind == "" {
				kind = calendar.KindActivity
			}

			series := model.ActivitySeries{
				FamilyID:        family.ID,
				ChildID:         reqBody.ChildID,
				Kind:            kind,
				Title:           utils.CleanupString(reqBody.Title),
				Description:     reqBody.Description,
				TrackID:         reqBody.TrackID,
				ActivityID:      reqBody.ActivityID,
				Assignees:       reqBody.Assignees,
				StartDate:       startDate,
				ScheduledTime:   reqBody.ScheduledTime,
				DurationMinutes: reqBody.DurationMinutes,
				RRule:           reqBody.RRule,
			}
			dates, err := series.Occurrences()
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(err.Error()))
				return
			}
			seriesID, ids, err := as.Store.InsertActivitySeries(r.Context(), series)
			if err != nil {
				writeError(w, err)
				return
			}

			refreshLoadedMonths(r, family, dates)
			writeJSON(w, http.StatusCreated, CreateSeriesRespBody{SeriesID: seriesID, IDs: ids})
		}))

	type DeleteSeriesRespBody struct {
		Removed int64 `json:"removed"`
	}

	// remove the occurrences dated on or after ?from= (default: all of them)
	muxer.HandleFunc("DELETE /calendar/activity-series/{id}", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			from := r.URL.Query().Get("from")
			var fromKey calendar.MonthKey
			if from != "" {
				var err error
				if fromKey, err = calendar.MonthKeyOf(from); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					w.Write([]byte("Invalid from date"))
					return
				}
			}

			removed, err := as.Store.DeleteActivitySeries(r.Context(), family.ID, r.PathValue("id"), from)
			if err != nil {
				writeError(w, err)
				return
			}

			dates := make([]string, 0)
			for _, key := range family.Store.Cache().Keys() {
				first, _ := key.DateRange()
				if from == "" || !key.Before(fromKey) {
					dates = append(dates, first)
				}
			}
			refreshLoadedMonths(r, family, dates)
			writeJSON(w, http.StatusOK, DeleteSeriesRespBody{Removed: removed})
		}))
}
