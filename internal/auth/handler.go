package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/minara-ai/minara/internal/api"
	"github.com/minara-ai/minara/internal/users"
)

type Handler struct {
	authSvc  *Service
	userSvc  *users.Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(authSvc *Service, userSvc *users.Service, logger *slog.Logger) *Handler {
	return &Handler{
		authSvc:  authSvc,
		userSvc:  userSvc,
		validate: validator.New(),
		logger:   logger,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	exists, err := h.userSvc.ExistsByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("checking email availability", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if exists {
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	user, err := h.userSvc.Create(r.Context(), req.Email, hash, req.Name)
	if err != nil {
		h.logger.Error("creating user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	pair, err := h.authSvc.IssueTokens(r.Context(), user.ID.String(), user.Email, user.Role)
	if err != nil {
		h.logger.Error("issuing tokens", "error", err, "user_id", user.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, pair)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	user, err := h.userSvc.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("loading user by email", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil || !user.IsActive {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	if err := CheckPassword(req.Password, user.PasswordHash); err != nil {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	pair, err := h.authSvc.IssueTokens(r.Context(), user.ID.String(), user.Email, user.Role)
	if err != nil {
		h.logger.Error("issuing tokens", "error", err, "user_id", user.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userIDStr, err := h.authSvc.ConsumeRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenRevoked) {
			api.HandleError(w, api.ErrInvalidToken)
			return
		}
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	// Re-issue from current account data so role or email changes made
	// since login take effect on the next access token.
	user, err := h.userSvc.GetByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("loading user for refresh", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil || !user.IsActive {
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	pair, err := h.authSvc.IssueTokens(r.Context(), user.ID.String(), user.Email, user.Role)
	if err != nil {
		h.logger.Error("issuing tokens", "error", err, "user_id", user.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetUserClaims(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.RevokeAll(r.Context(), claims.UserID); err != nil {
		h.logger.Error("revoking refresh tokens", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "logged out")
}
