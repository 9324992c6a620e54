package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"pagewatch/internal/config"
	"pagewatch/internal/notify"
	"pagewatch/internal/types"
)

// NotifyJobPublisher is the narrow publisher interface the ingress needs.
// Nil when the deployment runs the pipeline inline.
type NotifyJobPublisher interface {
	Publish(ctx context.Context, job *types.NotifyJob) error
}

// Server holds the ingress dependencies and builds the router.
type Server struct {
	Engine    *notify.Engine
	Publisher NotifyJobPublisher
	Notify    config.NotifyConfig
	Logger    *slog.Logger

	validate *validator.Validate
}

// NewServer creates the ingress server.
func NewServer(engine *notify.Engine, publisher NotifyJobPublisher, cfg config.NotifyConfig, logger *slog.Logger) *Server {
	return &Server{
		Engine:    engine,
		Publisher: publisher,
		Notify:    cfg,
		Logger:    logger,
		validate:  validator.New(),
	}
}

// Router builds the chi handler chain for the ingress.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer(s.Logger))
	r.Use(RequestID)
	r.Use(RequestLogger(s.Logger))

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/changes", s.handleChange)

	return r
}

// changeEventRequest is the wire shape of a change submission.
type changeEventRequest struct {
	ActorID        string    `json:"actor_id" validate:"required"`
	Namespace      string    `json:"namespace"`
	Key            string    `json:"key" validate:"required"`
	EditedAt       time.Time `json:"edited_at" validate:"required"`
	Summary        string    `json:"summary"`
	Minor          bool      `json:"minor"`
	RevisionID     string    `json:"revision_id" validate:"required"`
	PrevRevisionID string    `json:"prev_revision_id"`
	PageStatus     string    `json:"page_status" validate:"required"`
}

// handleChange accepts one change event. Depending on deployment
// configuration the pipeline runs inline (200) or is enqueued for the
// worker (202). Validation failures and unrecognized page statuses are 400s
// either way; nothing downstream has run yet.
func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	var req changeEventRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	if err := s.validate.Struct(&req); err != nil {
		details := map[string]any{}
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"change event failed validation",
			err,
			details,
		))
		return
	}

	event := &types.ChangeEvent{
		ActorID:        types.UserID(req.ActorID),
		Document:       types.DocumentID{Namespace: req.Namespace, Key: req.Key},
		EditedAt:       req.EditedAt.UTC(),
		Summary:        req.Summary,
		Minor:          req.Minor,
		RevisionID:     req.RevisionID,
		PrevRevisionID: req.PrevRevisionID,
		Status:         types.PageStatus(req.PageStatus),
	}

	ctx := r.Context()

	if s.Notify.DeferDispatch && s.Publisher != nil {
		job := &types.NotifyJob{
			Event:  *event,
			Roster: s.Notify.RosterIDs(),
		}
		if err := s.Publisher.Publish(ctx, job); err != nil {
			Error(w, r, err)
			return
		}
		JSON(w, r, http.StatusAccepted, APIResponse{Data: map[string]string{
			"status": "enqueued",
			"job_id": job.JobID,
		}})
		return
	}

	if err := s.Engine.NotifyOnChange(ctx, event, nil, s.Notify.RosterIDs()); err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{
		"status": "processed",
	}})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"status": "ok"}})
}
