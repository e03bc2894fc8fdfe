package quota

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/minara-ai/minara/internal/api"
	"github.com/minara-ai/minara/internal/auth"
	"github.com/minara-ai/minara/internal/orgs"
	"github.com/minara-ai/minara/internal/users"
)

// Handler provides HTTP handlers for usage visibility endpoints.
type Handler struct {
	userSvc *users.Service
	orgRepo orgs.Repository
	ledgers *LedgerRepository
	limits  *LimitTable
}

// NewHandler creates a new usage Handler.
func NewHandler(userSvc *users.Service, orgRepo orgs.Repository, ledgers *LedgerRepository, limits *LimitTable) *Handler {
	return &Handler{
		userSvc: userSvc,
		orgRepo: orgRepo,
		ledgers: ledgers,
		limits:  limits,
	}
}

// GetMyUsage returns the authenticated user's consumption and effective
// limits across both axes, plus the organization aggregate for members.
func (h *Handler) GetMyUsage(w http.ResponseWriter, r *http.Request) {
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
	if err != nil || user == nil {
		slog.Error("usage: loading user", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	tier, limits := h.limits.Lookup(user.Tier)
	ledger, err := h.ledgers.GetOrCreate(r.Context(), user.ID, tier, limits)
	if err != nil {
		slog.Error("usage: loading ledger", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	status := UsageStatus{
		Regime:        RegimeTier,
		Tier:          ledger.Tier,
		TokensUsed:    ledger.TokenUsage,
		TokensLimit:   ledger.LimitTokens,
		MessagesUsed:  ledger.MessageCount,
		MessagesLimit: ledger.LimitMessages,
		LastReset:     &ledger.LastReset,
	}
	if user.OrgManaged() {
		status.Regime = RegimeOrganization
		status.TokensUsed = user.QuotaUsed
		status.TokensLimit = *user.QuotaMonthlyLimit
	}

	if user.OrganizationID != nil {
		org, err := h.orgRepo.GetByID(r.Context(), *user.OrganizationID)
		if err != nil {
			slog.Error("usage: loading organization", "error", err, "org_id", *user.OrganizationID)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		if org != nil {
			status.OrgUsed = &org.UsageUsed
			status.OrgLimit = &org.UsageTotalLimit
		}
	}

	api.JSON(w, http.StatusOK, status)
}

// MapError translates enforcement errors into API errors so each ceiling
// keeps its own status code and remediation message.
func MapError(err error) *api.AppError {
	switch {
	case errors.Is(err, ErrNegativeUnits):
		return api.NewBadRequestError(ErrNegativeUnits.Error())
	case errors.Is(err, ErrOrgQuotaExceeded):
		return api.ErrOrgQuotaExceeded
	case errors.Is(err, ErrQuotaExceeded):
		return api.ErrQuotaExceeded
	case errors.Is(err, ErrMessageLimitExceeded):
		return api.ErrMessageLimit
	case errors.Is(err, ErrAccountInconsistent):
		return api.ErrAccountData
	default:
		return api.ErrInternalServer
	}
}
