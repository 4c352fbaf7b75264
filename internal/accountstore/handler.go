package accountstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/2beens/workoutsync/internal/telemetry/tracing"
	"github.com/2beens/workoutsync/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=accountstore_test

type documentRepo interface {
	GetField(ctx context.Context, userID, field string) (json.RawMessage, error)
	UpsertField(ctx context.Context, userID, field string, document json.RawMessage) error
	MergeFields(ctx context.Context, userID string, fields map[string]json.RawMessage) error
}

const maxBodyBytes = 1 << 20

var allowedFields = map[string]bool{
	FieldUserSettings:   true,
	FieldWorkoutProgram: true,
}

type Handler struct {
	repo documentRepo
}

func NewHandler(repo documentRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/users/{id}/settings", handler.HandleGetSettings).Methods("GET").Name("get-settings")
	router.HandleFunc("/users/{id}/program", handler.HandleGetProgram).Methods("GET").Name("get-program")
	router.HandleFunc("/users/{id}/program", handler.HandlePutProgram).Methods("PUT").Name("put-program")
	router.HandleFunc("/users/{id}", handler.HandleUpdateUser).Methods("PATCH", "PUT").Name("update-user")
}

func (handler *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	handler.getField(w, r, FieldUserSettings)
}

func (handler *Handler) HandleGetProgram(w http.ResponseWriter, r *http.Request) {
	handler.getField(w, r, FieldWorkoutProgram)
}

func (handler *Handler) getField(w http.ResponseWriter, r *http.Request, field string) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accountstore.getField")
	defer span.End()

	userID := mux.Vars(r)["id"]
	document, err := handler.repo.GetField(ctx, userID, field)
	if errors.Is(err, ErrDocumentNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Errorf("get [%s] for user [%s]: %s", field, userID, err)
		http.Error(w, "failed to get document", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, document, http.StatusOK)
}

func (handler *Handler) HandlePutProgram(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accountstore.putProgram")
	defer span.End()

	userID := mux.Vars(r)["id"]
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) || len(body) == 0 || body[0] != '[' {
		http.Error(w, "program must be a json array", http.StatusBadRequest)
		return
	}

	if err := handler.repo.UpsertField(ctx, userID, FieldWorkoutProgram, body); err != nil {
		log.Errorf("put program for user [%s]: %s", userID, err)
		http.Error(w, "failed to store program", http.StatusInternalServerError)
		return
	}

	log.Debugf("program stored for user [%s]", userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateUser accepts {field: document, ...}. Each named field is
// replaced in full, for PATCH and PUT alike.
func (handler *Handler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accountstore.updateUser")
	defer span.End()

	userID := mux.Vars(r)["id"]
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&fields); err != nil {
		log.Tracef("update user, unmarshal json params: %s", err)
		http.Error(w, "invalid user update", http.StatusBadRequest)
		return
	}
	if len(fields) == 0 {
		http.Error(w, "no fields to update", http.StatusBadRequest)
		return
	}
	for field, document := range fields {
		if !allowedFields[field] {
			http.Error(w, "unknown field: "+field, http.StatusBadRequest)
			return
		}
		if bytes.Equal(bytes.TrimSpace(document), []byte("null")) {
			http.Error(w, "null document for field: "+field, http.StatusBadRequest)
			return
		}
	}

	if err := handler.repo.MergeFields(ctx, userID, fields); err != nil {
		log.Errorf("update user [%s]: %s", userID, err)
		http.Error(w, "failed to update user", http.StatusInternalServerError)
		return
	}

	log.Debugf("user [%s] updated with %d fields", userID, len(fields))
	w.WriteHeader(http.StatusNoContent)
}
