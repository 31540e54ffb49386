package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/voicecrm/internal/crm"
	"github.com/kalambet/voicecrm/internal/storage"
)

func handleListHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Store.ListInteractions(r.Context())
		if err != nil {
			deps.Log.WithRequest(r).WithError(err).Error("listing history failed")
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}

		entries, err := crm.ToHistory(recs)
		if err != nil {
			deps.Log.WithRequest(r).WithError(err).Error("mapping history failed")
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

func handleCreateHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := readPayload(w, r)
		if !ok {
			return
		}

		rec, err := crm.NewInteraction(p)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "building record: %v", err)
			return
		}
		if err := deps.Store.CreateInteraction(r.Context(), &rec); err != nil {
			deps.Log.WithRequest(r).WithError(err).Error("creating record failed")
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save record: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":     crm.TagID(rec.ID),
			"status": "created",
		})
	}
}

func handleUpdateHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordID(w, r)
		if !ok {
			return
		}
		p, ok := readPayload(w, r)
		if !ok {
			return
		}

		err := deps.Store.UpdateInteraction(r.Context(), id, func(rec *storage.Interaction) error {
			crm.ApplyUpdate(rec, p)
			return nil
		})
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Record not found")
			return
		}
		if err != nil {
			deps.Log.WithRequest(r).WithError(err).Error("updating record failed")
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update record: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
	}
}

func handleDeleteHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordID(w, r)
		if !ok {
			return
		}

		err := deps.Store.DeleteInteraction(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Record not found")
			return
		}
		if err != nil {
			deps.Log.WithRequest(r).WithError(err).Error("deleting record failed")
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete record: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := crm.ParseTaggedID(chi.URLParam(r, "record_id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return 0, false
	}
	return id, true
}

func readPayload(w http.ResponseWriter, r *http.Request) (crm.RecordPayload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		uploadError(w, err)
		return crm.RecordPayload{}, false
	}
	p, err := crm.ParsePayload(body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return crm.RecordPayload{}, false
	}
	return p, true
}
