package orgs

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/minara-ai/minara/internal/api"
	"github.com/minara-ai/minara/internal/auth"
	"github.com/minara-ai/minara/internal/users"
)

type Handler struct {
	repo     Repository
	userSvc  *users.Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(repo Repository, userSvc *users.Service, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		userSvc:  userSvc,
		validate: validator.New(),
		logger:   logger,
	}
}

// headOrg resolves the caller's organization, enforcing the head role.
// Returns nil after writing the error response if the caller may not manage
// an organization.
func (h *Handler) headOrg(w http.ResponseWriter, r *http.Request) *Organization {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return nil
	}
	if claims.Role != users.RoleOrgHead && claims.Role != users.RoleAdmin {
		api.HandleError(w, api.ErrForbidden)
		return nil
	}

	headID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return nil
	}

	org, err := h.repo.GetByHead(r.Context(), headID)
	if err != nil {
		h.logger.Error("loading organization by head", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return nil
	}
	if org == nil {
		api.HandleError(w, api.NewNotFoundError("no organization for this account"))
		return nil
	}
	return org
}

func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org := h.headOrg(w, r)
	if org == nil {
		return
	}
	api.JSON(w, http.StatusOK, org)
}

func (h *Handler) ListQuotaRequests(w http.ResponseWriter, r *http.Request) {
	org := h.headOrg(w, r)
	if org == nil {
		return
	}

	requests, err := h.repo.ListPendingRequests(r.Context(), org.ID)
	if err != nil {
		h.logger.Error("listing quota requests", "error", err, "org_id", org.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if requests == nil {
		requests = []QuotaRequest{}
	}
	api.JSON(w, http.StatusOK, requests)
}

type resolveRequest struct {
	Action string `json:"action" validate:"required,oneof=approve deny"`
}

// ResolveQuotaRequest approves or denies a pending member request. Approval
// also writes the requested limit onto the member as their org-assigned
// monthly budget.
func (h *Handler) ResolveQuotaRequest(w http.ResponseWriter, r *http.Request) {
	org := h.headOrg(w, r)
	if org == nil {
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request id"))
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	qr, err := h.repo.GetQuotaRequest(r.Context(), requestID)
	if err != nil {
		h.logger.Error("loading quota request", "error", err, "request_id", requestID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if qr == nil {
		api.HandleError(w, api.NewNotFoundError("quota request not found"))
		return
	}

	member, err := h.userSvc.GetByID(r.Context(), qr.UserID)
	if err != nil {
		h.logger.Error("loading request owner", "error", err, "user_id", qr.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if member == nil || member.OrganizationID == nil || *member.OrganizationID != org.ID {
		api.HandleError(w, api.ErrForbidden)
		return
	}

	status := RequestDenied
	if req.Action == "approve" {
		status = RequestApproved
	}

	resolved, err := h.repo.ResolveQuotaRequest(r.Context(), requestID, status, org.HeadUserID)
	if err != nil {
		h.logger.Error("resolving quota request", "error", err, "request_id", requestID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !resolved {
		api.HandleError(w, api.NewConflictError("quota request already resolved"))
		return
	}

	if status == RequestApproved {
		limit := qr.RequestedLimit
		if err := h.userSvc.SetMemberQuota(r.Context(), qr.UserID, &limit); err != nil {
			h.logger.Error("applying approved quota", "error", err, "user_id", qr.UserID)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
	}

	h.logger.Info("quota request resolved",
		"request_id", requestID, "status", status, "org_id", org.ID)
	api.JSONMessage(w, http.StatusOK, "quota request "+status)
}

type setMemberQuotaRequest struct {
	// nil clears the org override and returns the member to tier limits.
	MonthlyLimit *int64 `json:"monthly_limit" validate:"omitempty,min=0"`
}

func (h *Handler) SetMemberQuota(w http.ResponseWriter, r *http.Request) {
	org := h.headOrg(w, r)
	if org == nil {
		return
	}

	memberID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user id"))
		return
	}

	var req setMemberQuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	member, err := h.userSvc.GetByID(r.Context(), memberID)
	if err != nil {
		h.logger.Error("loading member", "error", err, "user_id", memberID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if member == nil || member.OrganizationID == nil || *member.OrganizationID != org.ID {
		api.HandleError(w, api.NewNotFoundError("member not found in organization"))
		return
	}

	if err := h.userSvc.SetMemberQuota(r.Context(), memberID, req.MonthlyLimit); err != nil {
		h.logger.Error("setting member quota", "error", err, "user_id", memberID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.logger.Info("member quota updated", "user_id", memberID, "org_id", org.ID)
	api.JSONMessage(w, http.StatusOK, "member quota updated")
}

type createQuotaRequest struct {
	RequestedLimit int64  `json:"requested_limit" validate:"required,min=1"`
	Reason         string `json:"reason" validate:"max=500"`
}

// CreateQuotaRequest lets an organization member ask the head for a larger
// monthly budget.
func (h *Handler) CreateQuotaRequest(w http.ResponseWriter, r *http.Request) {
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

	user, err := h.userSvc.GetByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("loading user", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	if user.OrganizationID == nil {
		api.HandleError(w, api.NewBadRequestError("quota requests require organization membership"))
		return
	}

	var req createQuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	qr := &QuotaRequest{
		UserID:         userID,
		RequestedLimit: req.RequestedLimit,
		Reason:         req.Reason,
		Status:         RequestPending,
	}
	if err := h.repo.InsertQuotaRequest(r.Context(), qr); err != nil {
		h.logger.Error("creating quota request", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, qr)
}
