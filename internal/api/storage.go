package api

import (
	"net/http"
	"time"

	"github.com/kalambet/stylelens/internal/storage"
)

// StorageInspector reports what the server has persisted.
type StorageInspector interface {
	AppliedMigrations() ([]int, error)
	ListSlots() ([]storage.Slot, error)
}

type StorageResponse struct {
	SchemaVersion int        `json:"schemaVersion"`
	Migrations    []int      `json:"migrations"`
	Slots         []SlotInfo `json:"slots"`
}

// SlotInfo describes one persisted slot without its contents.
type SlotInfo struct {
	Key       string    `json:"key"`
	Bytes     int       `json:"bytes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func handleGetStorage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Storage == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "storage inspection not available")
			return
		}
		versions, err := deps.Storage.AppliedMigrations()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading migrations: %v", err)
			return
		}
		slots, err := deps.Storage.ListSlots()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing slots: %v", err)
			return
		}

		resp := StorageResponse{Migrations: versions, Slots: make([]SlotInfo, 0, len(slots))}
		if resp.Migrations == nil {
			resp.Migrations = []int{}
		}
		if n := len(versions); n > 0 {
			resp.SchemaVersion = versions[n-1]
		}
		for _, sl := range slots {
			resp.Slots = append(resp.Slots, SlotInfo{Key: sl.Key, Bytes: len(sl.Value), UpdatedAt: sl.UpdatedAt})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
