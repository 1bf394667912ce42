package route

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/model"
	"learnadoodle/src-server/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type testServer struct {
	as       *utils.AppState
	muxer    *http.ServeMux
	familyID string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	for _, key := range []string{"CONFIG_FILE", "AUTO_COMPLETE_THRESHOLD", "PLACEHOLDER_ID_PREFIX", "MUTATION_TIMEOUT"} {
		t.Setenv(key, "")
	}
	t.Setenv("TIMEZONE", "UTC")
	config, err := utils.NewConfig()
	require.NoError(t, err)

	rawDB, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	rawDB.SetMaxOpenConns(1)
	as, err := utils.NewAppState(config, rawDB)
	require.NoError(t, err)
	t.Cleanup(as.GracefulShutdown)

	muxer := http.NewServeMux()
	Family(muxer, as)
	Calendar(muxer, as)
	Ical(muxer, as)
	srv := &testServer{as: as, muxer: muxer}

	resp := srv.do(t, "POST", "/family", map[string]string{"name": "lovelace"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	srv.familyID = created.ID
	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if s.familyID != "" {
		req.Header.Set(FamilyIDHeader, s.familyID)
	}
	resp := httptest.NewRecorder()
	s.muxer.ServeHTTP(resp, req)
	return resp
}

func (s *testServer) createLesson(t *testing.T, date, clock string) string {
	t.Helper()
	resp := s.do(t, "POST", "/calendar/create-event", map[string]any{
		"title":           "math lesson",
		"date":            date,
		"scheduledTime":   clock,
		"durationMinutes": 30,
		"trackId":         "track-1",
		"activityId":      "activity-1",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	return created.ID
}

func (s *testServer) month(t *testing.T, year, month int) monthRespBody {
	t.Helper()
	resp := s.do(t, "GET", "/calendar/month?year="+strconv.Itoa(year)+"&month="+strconv.Itoa(month), nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body monthRespBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestFamilyHeaderRequired(t *testing.T) {
	srv := newTestServer(t)

	srv.familyID = ""
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, "GET", "/calendar/month?year=2025&month=8", nil).Code)

	srv.familyID = "nobody"
	assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/calendar/month?year=2025&month=8", nil).Code)
}

func TestChildren(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, "POST", "/family/child", map[string]string{"id": "kid-a", "name": "ada"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = srv.do(t, "GET", "/family/children", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var children []calendar.ChildRef
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &children))
	assert.Equal(t, []calendar.ChildRef{{ID: "kid-a", Name: "Ada"}}, children)
}

func TestDeleteFamily(t *testing.T) {
	srv := newTestServer(t)
	srv.createLesson(t, "2025-08-05", "09:00")
	srv.month(t, 2025, 8)

	assert.Equal(t, http.StatusNoContent, srv.do(t, "DELETE", "/family", nil).Code)
	// the session went with it, so the family is gone for every route
	assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/calendar/month?year=2025&month=8", nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/ical/"+srv.familyID, nil).Code)
}

func TestGetMonth(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createLesson(t, "2025-08-05", "9:00 AM")

	body := srv.month(t, 2025, 8)
	assert.Equal(t, 8, body.Month)
	assert.Equal(t, calendar.Loaded, body.State)
	require.Len(t, body.Days["2025-08-05"], 1)
	ev := body.Days["2025-08-05"][0]
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, "Math lesson", ev.Title)
	assert.Equal(t, "09:00", ev.ScheduledTime)
	assert.Equal(t, "09:30", ev.FinishTime)

	for _, query := range []string{"year=2025&month=13", "year=2025", "month=0&year=2025", "year=x&month=1"} {
		assert.Equal(t, http.StatusBadRequest, srv.do(t, "GET", "/calendar/month?"+query, nil).Code, query)
	}
}

func TestPatchEvent(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createLesson(t, "2025-08-05", "09:00")
	srv.month(t, 2025, 8)

	resp := srv.do(t, "PATCH", "/calendar/event/"+id, map[string]any{
		"status":        "completed",
		"scheduledTime": "14:00",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body struct {
		Event calendar.Event `json:"event"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, calendar.StatusCompleted, body.Event.Status)
	assert.Equal(t, "14:30", body.Event.FinishTime)

	eventModel := new(model.Event)
	require.NoError(t, srv.as.BunDB.NewSelect().Model(eventModel).Where("id = ?", id).Scan(context.Background()))
	assert.Equal(t, "completed", eventModel.Status)
}

func TestPatchEventErrors(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createLesson(t, "2025-08-05", "09:00")
	srv.month(t, 2025, 8)

	assert.Equal(t, http.StatusBadRequest,
		srv.do(t, "PATCH", "/calendar/event/"+id, map[string]any{"title": "  "}).Code)
	assert.Equal(t, http.StatusBadRequest,
		srv.do(t, "PATCH", "/calendar/event/"+id, map[string]any{}).Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		srv.do(t, "PATCH", "/calendar/event/fallback-1", map[string]any{"title": "x"}).Code)
	assert.Equal(t, http.StatusNotFound,
		srv.do(t, "PATCH", "/calendar/event/missing", map[string]any{"title": "x"}).Code)

	// deleted behind the cache's back, so the write is refused and undone
	_, err := srv.as.BunDB.NewDelete().Model((*model.Event)(nil)).Where("id = ?", id).Exec(context.Background())
	require.NoError(t, err)
	resp := srv.do(t, "PATCH", "/calendar/event/"+id, map[string]any{"status": "skipped"})
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	var body errorRespBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, []calendar.Field{calendar.FieldStatus}, body.Fields)

	store, err := srv.as.GetCacheStore(context.Background(), srv.familyID)
	require.NoError(t, err)
	ev, _, ok := store.Cache().Find(id)
	require.True(t, ok)
	assert.Equal(t, calendar.StatusPlanned, ev.Status)
}

func TestPatchEventAcrossMonths(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createLesson(t, "2025-08-29", "09:00")
	srv.month(t, 2025, 8)

	resp := srv.do(t, "PATCH", "/calendar/event/"+id, map[string]any{"scheduledDate": "2025-09-03"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	assert.Empty(t, srv.month(t, 2025, 8).Days)
	sep := srv.month(t, 2025, 9)
	require.Len(t, sep.Days["2025-09-03"], 1)
	assert.Equal(t, id, sep.Days["2025-09-03"][0].ID)
}

func TestCreateAndDeleteEvent(t *testing.T) {
	srv := newTestServer(t)
	srv.month(t, 2025, 8)

	id := srv.createLesson(t, "2025-08-12", "10:00")
	// the loaded month is reloaded on create
	store, err := srv.as.GetCacheStore(context.Background(), srv.familyID)
	require.NoError(t, err)
	_, _, ok := store.Cache().Find(id)
	assert.True(t, ok)

	resp := srv.do(t, "POST", "/calendar/create-event", map[string]any{"title": "Math", "date": "2025-08-12"})
	assert.Equal(t, http.StatusBadRequest, resp.Code, "a lesson needs a track")
	resp = srv.do(t, "POST", "/calendar/create-event", map[string]any{"title": "Math", "date": "someday maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	assert.Equal(t, http.StatusNoContent, srv.do(t, "DELETE", "/calendar/event/"+id, nil).Code)
	assert.Empty(t, srv.month(t, 2025, 8).Days)
	assert.Equal(t, http.StatusNotFound, srv.do(t, "DELETE", "/calendar/event/"+id, nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, srv.do(t, "DELETE", "/calendar/event/fallback-2", nil).Code)
}

func TestRefresh(t *testing.T) {
	srv := newTestServer(t)
	srv.month(t, 2025, 8)

	// written directly, the cache doesn't know yet
	duration := 30
	_, err := srv.as.Store.InsertEvent(context.Background(), calendar.NewEvent{
		FamilyID:        srv.familyID,
		Kind:            calendar.KindActivity,
		Title:           "Field trip",
		ScheduledDate:   "2025-08-20",
		DurationMinutes: &duration,
		TrackID:         "track-1",
		ActivityID:      "activity-1",
	})
	require.NoError(t, err)

	resp := srv.do(t, "POST", "/calendar/refresh", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body monthRespBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Len(t, body.Days["2025-08-20"], 1)

	resp = srv.do(t, "POST", "/calendar/refresh-for-patch", map[string]string{
		"previousDate": "2025-08-20",
		"newDate":      "2025-09-01",
	})
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = srv.do(t, "POST", "/calendar/refresh", map[string]int{"year": 2025, "month": 0})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestActivitySeries(t *testing.T) {
	srv := newTestServer(t)
	srv.month(t, 2025, 8)

	resp := srv.do(t, "POST", "/calendar/activity-series", map[string]any{
		"title":           "piano",
		"trackId":         "track-music",
		"activityId":      "activity-piano",
		"startDate":       "2025-08-05",
		"scheduledTime":   "16:00",
		"durationMinutes": 60,
		"rrule":           "FREQ=WEEKLY;BYDAY=TU;COUNT=4",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var created struct {
		SeriesID string   `json:"seriesId"`
		IDs      []string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.Len(t, created.IDs, 4)

	aug := srv.month(t, 2025, 8)
	require.Len(t, aug.Days["2025-08-26"], 1)
	assert.Equal(t, "Piano", aug.Days["2025-08-26"][0].Title)

	resp = srv.do(t, "DELETE", "/calendar/activity-series/"+created.SeriesID+"?from=2025-08-15", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"removed":2}`, resp.Body.String())
	assert.Len(t, srv.month(t, 2025, 8).Days, 2)

	resp = srv.do(t, "POST", "/calendar/activity-series", map[string]any{
		"title":     "piano",
		"startDate": "2025-08-05",
		"rrule":     "FREQ=NEVER",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIcalFeed(t *testing.T) {
	srv := newTestServer(t)
	today := time.Now().UTC().Format("2006-01-02")
	id := srv.createLesson(t, today, "09:00")
	familyID := srv.familyID

	// the feed is public, no header needed
	srv.familyID = ""
	resp := srv.do(t, "GET", "/ical/nobody", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = srv.do(t, "GET", "/ical/"+familyID, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Body.String(), "X-WR-CALNAME:Lovelace\r\n")
	assert.Contains(t, resp.Body.String(), "UID:"+id+"@learnadoodle\r\n")
}

func TestIcalFeedIgnoresChildFilter(t *testing.T) {
	srv := newTestServer(t)
	for _, child := range []map[string]string{{"id": "kid-a", "name": "ada"}, {"id": "kid-b", "name": "byron"}} {
		require.Equal(t, http.StatusCreated, srv.do(t, "POST", "/family/child", child).Code)
	}
	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	ids := make([]string, 0, 2)
	for _, childID := range []string{"kid-a", "kid-b"} {
		resp := srv.do(t, "POST", "/calendar/create-event", map[string]any{
			"title":      "math lesson",
			"date":       today,
			"childId":    childID,
			"trackId":    "track-1",
			"activityId": "activity-1",
		})
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
		var created struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
		ids = append(ids, created.ID)
	}

	// the web client narrows its session to one child
	query := "/calendar/month?year=" + strconv.Itoa(now.Year()) + "&month=" + strconv.Itoa(int(now.Month())) + "&childId=kid-a"
	resp := srv.do(t, "GET", query, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body monthRespBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Days[today], 1)

	resp = srv.do(t, "GET", "/ical/"+srv.familyID, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	for _, id := range ids {
		assert.Contains(t, resp.Body.String(), "UID:"+id+"@learnadoodle\r\n")
	}

	// the session keeps its filter
	assert.Equal(t, "kid-a", srv.month(t, now.Year(), int(now.Month())).Days[today][0].ChildID)
}
