package route

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/utils"
)

// the displayed month, or this month in the family's timezone
func currentMonth(store *calendar.CacheStore) calendar.MonthKey {
	if key, ok := store.DisplayedMonth(); ok {
		return key
	}
	return calendar.MonthKeyFromTime(time.Now().In(store.Location()))
}

// year and month (1-12) as sent by the web client
func parseMonth(year, month int) (calendar.MonthKey, bool) {
	key, err := calendar.NewMonthKey(year, month-1)
	return key, err == nil
}

type monthRespBody struct {
	Year     int                 `json:"year"`
	Month    int                 `json:"month"`
	State    calendar.LoadState  `json:"state"`
	Days     calendar.FlatView   `json:"days"`
	Children []calendar.ChildRef `json:"children"`
}

func newMonthRespBody(store *calendar.CacheStore, key calendar.MonthKey) monthRespBody {
	children := store.Children()
	if children == nil {
		children = make([]calendar.ChildRef, 0)
	}
	return monthRespBody{
		Year:     key.Year,
		Month:    key.Month + 1,
		State:    store.State(key),
		Days:     store.GetFlatView(key),
		Children: children,
	}
}

func Calendar(muxer *http.ServeMux, as *utils.AppState) {
	// get one month, loading it on demand; it becomes the displayed month
	muxer.HandleFunc("GET /calendar/month", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}

			query := r.URL.Query()
			year, yearErr := strconv.Atoi(query.Get("year"))
			month, monthErr := strconv.Atoi(query.Get("month"))
			key, valid := parseMonth(year, month)
			if yearErr != nil || monthErr != nil || !valid {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a year and a month between 1 and 12"))
				return
			}
			if query.Has("childId") {
				family.Store.SetChildFilter(strings.TrimSpace(query.Get("childId")))
			}

			family.Store.SetDisplayedMonth(key)
			if _, err := family.Store.EnsureLoaded(r.Context(), key); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, newMonthRespBody(family.Store, key))
		}))

	type RefreshReqBody struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}

	// reload one month, or the displayed month when none is given
	muxer.HandleFunc("POST /calendar/refresh", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			var reqBody RefreshReqBody
			if r.ContentLength != 0 && !decodeBody(w, r, &reqBody) {
				return
			}

			key := currentMonth(family.Store)
			if reqBody.Year != 0 || reqBody.Month != 0 {
				var valid bool
				if key, valid = parseMonth(reqBody.Year, reqBody.Month); !valid {
					w.WriteHeader(http.StatusBadRequest)
					w.Write([]byte("Please provide a year and a month between 1 and 12"))
					return
				}
			}
			if err := family.Store.RefreshMonth(r.Context(), key); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, newMonthRespBody(family.Store, key))
		}))

	type RefreshForPatchReqBody struct {
		PreviousDate string `json:"previousDate"`
		NewDate      string `json:"newDate"`
	}

	// reload whatever an edit made elsewhere may have touched
	muxer.HandleFunc("POST /calendar/refresh-for-patch", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			var reqBody RefreshForPatchReqBody
			if !decodeBody(w, r, &reqBody) {
				return
			}
			if err := family.Store.RefreshForPatch(r.Context(), reqBody.PreviousDate, reqBody.NewDate); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))

	type EventRespBody struct {
		Event calendar.Event `json:"event"`
	}

	// apply an edit optimistically and answer once the database settled it
	muxer.HandleFunc("PATCH /calendar/event/{id}", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			eventID := r.PathValue("id")
			var patch calendar.Patch
			if !decodeBody(w, r, &patch) {
				return
			}

			cmd, err := family.Store.ApplyFieldChange(r.Context(), eventID, patch, calendar.Callbacks{})
			if err != nil {
				writeError(w, err)
				return
			}
			if err := cmd.Wait(r.Context()); err != nil {
				writeError(w, err)
				return
			}

			if newDate, moved := cmd.Forward().DateChange(); moved {
				previousDate := ""
				if cmd.Rollback().ScheduledDate != nil {
					previousDate = *cmd.Rollback().ScheduledDate
				}
				if err := family.Store.RefreshForPatch(r.Context(), previousDate, newDate); err != nil {
					writeError(w, err)
					return
				}
			}
			writeJSON(w, http.StatusOK, EventRespBody{Event: cmd.Applied()})
		}))

	type CreateEventReqBody struct {
		calendar.NewEvent
		// ISO date or something like "next monday"
		Date string `json:"date"`
	}

	type IDRespBody struct {
		ID string `json:"id"`
	}

	// create a new event, the success response is the event ID
	muxer.HandleFunc("POST /calendar/create-event", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			var reqBody CreateEventReqBody
			if !decodeBody(w, r, &reqBody) {
				return
			}

			record := reqBody.NewEvent
			if reqBody.Date != "" {
				date, err := utils.ParseNaturalDate(as.When, reqBody.Date, time.Now().In(family.Store.Location()))
				if err != nil {
					w.WriteHeader(http.StatusBadRequest)
					w.Write([]byte("Can't understand the date"))
					return
				}
				record.ScheduledDate = date
			}
			record.Title = utils.CleanupString(record.Title)

			id, err := family.Store.CreateEvent(r.Context(), record)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, IDRespBody{ID: id})
		}))

	muxer.HandleFunc("DELETE /calendar/event/{id}", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			if err := family.Store.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))

	ActivitySeries(muxer, as)
}
