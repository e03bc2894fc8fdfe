package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/minara-ai/minara/internal/api"
	"github.com/minara-ai/minara/internal/auth"
	"github.com/minara-ai/minara/internal/middleware"
	"github.com/minara-ai/minara/internal/nats"
	"github.com/minara-ai/minara/internal/quota"
	"github.com/minara-ai/minara/internal/users"
)

type Handler struct {
	enforcer  *quota.Enforcer
	userSvc   *users.Service
	publisher *nats.Publisher
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewHandler(enforcer *quota.Enforcer, userSvc *users.Service, publisher *nats.Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		enforcer:  enforcer,
		userSvc:   userSvc,
		publisher: publisher,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Completion accepts a chat turn, charges the estimated cost against the
// caller's quota, and hands the turn to assistant workers over JetStream.
// Charging happens before the hand-off: a turn that would bust a ceiling is
// rejected without ever reaching a worker.
func (h *Handler) Completion(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	units := EstimateUnits(req.Message, req.MaxTokens)

	if err := h.enforcer.EnforceAndRecord(r.Context(), userID, units, true); err != nil {
		api.HandleError(w, quota.MapError(err))
		return
	}

	user, err := h.userSvc.GetByID(r.Context(), userID)
	if err != nil || user == nil {
		h.logger.Error("loading user after enforcement", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	requestID := middleware.GetRequestID(r.Context())
	if requestID == "" {
		requestID = uuid.New().String()
	}

	task := nats.ChatTask{
		RequestID:      requestID,
		UserID:         userID,
		OrganizationID: user.OrganizationID,
		Message:        req.Message,
		EstimatedUnits: units,
		SubmittedAt:    time.Now(),
	}
	if err := h.publisher.PublishChatTask(r.Context(), task); err != nil {
		// Quota was already charged. Workers never saw the turn, so surface
		// the failure rather than pretending it was queued.
		h.logger.Error("publishing chat task", "error", err, "request_id", requestID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.logger.Info("chat turn accepted",
		"request_id", requestID, "user_id", userID, "estimated_units", units)

	api.JSON(w, http.StatusAccepted, CompletionAccepted{
		RequestID:      requestID,
		EstimatedUnits: units,
		Status:         "queued",
	})
}
