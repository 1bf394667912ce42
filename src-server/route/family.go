package route

import (
	"log/slog"
	"net/http"
	"strings"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/model"
	"learnadoodle/src-server/utils"

	"github.com/google/uuid"
)

func Family(muxer *http.ServeMux, as *utils.AppState) {
	type UpsertFamilyReqBody struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Timezone string `json:"timezone"`
	}

	type IDRespBody struct {
		ID string `json:"id"`
	}

	// create or rename a family, the success response is the family ID
	muxer.HandleFunc("POST /family", func(w http.ResponseWriter, r *http.Request) {
		var reqBody UpsertFamilyReqBody
		if !decodeBody(w, r, &reqBody) {
			return
		}
		familyModel := model.Family{
			ID:       strings.TrimSpace(reqBody.ID),
			Name:     utils.CleanupString(reqBody.Name),
			Timezone: strings.TrimSpace(reqBody.Timezone),
		}
		if familyModel.ID == "" {
			familyModel.ID = uuid.NewString()
		}
		if familyModel.Name == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Please provide a family name"))
			return
		}
		if err := familyModel.Upsert(r.Context(), as.BunDB); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error()))
			return
		}
		// the timezone may have changed
		as.DropCacheStore(familyModel.ID)

		writeJSON(w, http.StatusCreated, IDRespBody{ID: familyModel.ID})
	})

	// remove the family with its children, events and schedule overrides
	muxer.HandleFunc("DELETE /family", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			if err := as.Store.DeleteFamily(r.Context(), family.ID); err != nil {
				writeError(w, err)
				return
			}
			as.DropCacheStore(family.ID)
			w.WriteHeader(http.StatusNoContent)
		}))

	type UpsertChildReqBody struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	muxer.HandleFunc("POST /family/child", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			var reqBody UpsertChildReqBody
			if !decodeBody(w, r, &reqBody) {
				return
			}
			childModel := model.Child{
				ID:       strings.TrimSpace(reqBody.ID),
				FamilyID: family.ID,
				Name:     utils.CleanupString(reqBody.Name),
			}
			if childModel.ID == "" {
				childModel.ID = uuid.NewString()
			}
			if childModel.Name == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide the child's name"))
				return
			}
			if err := childModel.Upsert(r.Context(), as.BunDB); err != nil {
				writeError(w, err)
				return
			}

			// the children list rides along with month loads
			if key := currentMonth(family.Store); family.Store.State(key) != calendar.NotLoaded {
				if err := family.Store.RefreshMonth(r.Context(), key); err != nil {
					slog.Warn("child saved but its month didn't reload", "familyID", family.ID, "month", key, "error", err)
				}
			}
			writeJSON(w, http.StatusCreated, IDRespBody{ID: childModel.ID})
		}))

	muxer.HandleFunc("GET /family/children", FamilyMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			family, ok := familyFromCtx(w, r)
			if !ok {
				return
			}
			if _, err := family.Store.EnsureLoaded(r.Context(), currentMonth(family.Store)); err != nil {
				writeError(w, err)
				return
			}
			children := family.Store.Children()
			if children == nil {
				children = make([]calendar.ChildRef, 0)
			}
			writeJSON(w, http.StatusOK, children)
		}))
}
