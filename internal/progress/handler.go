package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2beens/workoutsync/internal/localcache"
	"github.com/2beens/workoutsync/internal/telemetry/tracing"
	"github.com/2beens/workoutsync/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type progressSynchronizer interface {
	Card(id string) (Card, bool)
	FinishWorkout(ctx context.Context, id string) (Card, error)
	RecordStatistics(ctx context.Context, stat StatData) error
	Settings(ctx context.Context) (*Settings, error)
}

type Handler struct {
	synchronizer progressSynchronizer
}

func NewHandler(synchronizer progressSynchronizer) *Handler {
	return &Handler{
		synchronizer: synchronizer,
	}
}

// SetupRoutes registers the handler routes on router.
func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/cards/{id}", handler.HandleGetCard).Methods("GET").Name("get-card")
	router.HandleFunc("/workouts/{id}/complete", handler.HandleCompleteWorkout).Methods("POST").Name("complete-workout")
	router.HandleFunc("/statistics", handler.HandleRecordStatistics).Methods("POST").Name("record-statistics")
	router.HandleFunc("/settings", handler.HandleGetSettings).Methods("GET").Name("get-settings")
}

func (handler *Handler) HandleGetCard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	card, found := handler.synchronizer.Card(id)
	if !found {
		http.Error(w, "card not found", http.StatusNotFound)
		return
	}
	pkg.WriteJSON(w, card, http.StatusOK)
}

func (handler *Handler) HandleCompleteWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.completeWorkout")
	defer span.End()

	id := mux.Vars(r)["id"]
	card, err := handler.synchronizer.FinishWorkout(ctx, id)
	if err != nil {
		log.Errorf("complete workout [%s]: %s", id, err)
		writeError(w, err)
		return
	}

	log.Debugf("workout [%s] completed", id)
	pkg.WriteJSON(w, card, http.StatusOK)
}

func (handler *Handler) HandleRecordStatistics(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.recordStatistics")
	defer span.End()

	var stat StatData
	if err := json.NewDecoder(r.Body).Decode(&stat); err != nil {
		log.Tracef("record statistics, unmarshal json params: %s", err)
		http.Error(w, "invalid statistics", http.StatusBadRequest)
		return
	}

	if err := handler.synchronizer.RecordStatistics(ctx, stat); err != nil {
		log.Errorf("record statistics: %s", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (handler *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.getSettings")
	defer span.End()

	settings, err := handler.synchronizer.Settings(ctx)
	if err != nil {
		log.Errorf("get settings: %s", err)
		writeError(w, err)
		return
	}
	if settings == nil {
		http.Error(w, "settings not found", http.StatusNotFound)
		return
	}
	pkg.WriteJSON(w, settings, http.StatusOK)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCardNotFound):
		http.Error(w, "card not found", http.StatusNotFound)
	case errors.Is(err, localcache.ErrConflict):
		http.Error(w, "document changed concurrently, try again", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
