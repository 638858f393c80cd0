package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/utils"
	"go.uber.org/zap"
)

// TokenService is the logic behind the token and verify endpoints
type TokenService interface {
	ExchangeCode(ctx context.Context, provider models.ProviderID, code string) (*models.UserSession, error)
	RefreshTokens(ctx context.Context, provider models.ProviderID, refreshToken, userID string) (*models.TokenSet, error)
	VerifyToken(ctx context.Context, provider models.ProviderID, tokens *models.TokenSet) (bool, error)
}

// Handler handles the token service HTTP requests
type Handler struct {
	service TokenService
}

// NewHandler creates a new Handler instance
func NewHandler(service TokenService) *Handler {
	return &Handler{service: service}
}

// HandleToken handles POST /oauth/token for both the code exchange and the refresh path
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", "", http.StatusBadRequest)
		return
	}

	if req.IsRefresh() {
		h.handleRefresh(w, r, &req)
		return
	}

	if req.Code == "" || req.Provider == "" || req.State == "" {
		writeError(w, "Missing required parameters", "", http.StatusBadRequest)
		return
	}
	provider, ok := models.ParseProviderID(req.Provider)
	if !ok {
		writeError(w, "Invalid provider", "", http.StatusBadRequest)
		return
	}

	session, err := h.service.ExchangeCode(r.Context(), provider, req.Code)
	if err != nil {
		logger.Error("OAuth flow failed", logger.Provider(req.Provider), zap.Error(err))
		switch {
		case errors.Is(err, autherr.ErrInvalidProvider):
			writeError(w, "Invalid provider", "", http.StatusBadRequest)
		case errors.Is(err, autherr.ErrMissingParameters):
			writeError(w, "Missing required parameters", "", http.StatusBadRequest)
		case errors.Is(err, autherr.ErrTokenExchangeFailed):
			writeError(w, "Token exchange failed", autherr.Detail(err), http.StatusBadRequest)
		case errors.Is(err, autherr.ErrProfileFetchFailed):
			writeError(w, "Failed to fetch user profile", autherr.Detail(err), http.StatusBadRequest)
		default:
			writeError(w, "Internal server error", "", http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJSON(w, session)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request, req *models.TokenRequest) {
	provider, ok := models.ParseProviderID(req.Provider)
	if !ok {
		writeError(w, "Invalid provider", "", http.StatusBadRequest)
		return
	}

	tokens, err := h.service.RefreshTokens(r.Context(), provider, req.RefreshToken, req.UserID)
	if err != nil {
		logger.Warn("Refresh token request failed", logger.Provider(req.Provider), logger.UserID(req.UserID), zap.Error(err))
		switch {
		case errors.Is(err, autherr.ErrNotFound):
			writeError(w, "User not found for token refresh", "", http.StatusNotFound)
		case errors.Is(err, autherr.ErrInvalidProvider):
			writeError(w, "Invalid provider", "", http.StatusBadRequest)
		case errors.Is(err, autherr.ErrRefreshFailed) && !errors.Is(err, autherr.ErrTransport):
			writeError(w, "Refresh token failed", autherr.Detail(err), http.StatusBadRequest)
		default:
			writeError(w, "Internal server error", "", http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJSON(w, models.RefreshResponse{
		Tokens:  *tokens,
		Success: true,
		Message: "Token refreshed successfully",
	})
}

// HandleVerify handles POST /oauth/verify
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", "", http.StatusBadRequest)
		return
	}
	if req.AccessToken == "" || req.TokenType == "" || req.Provider == "" {
		writeError(w, "Missing required parameters", "", http.StatusBadRequest)
		return
	}
	provider, ok := models.ParseProviderID(req.Provider)
	if !ok {
		writeError(w, "Invalid provider", "", http.StatusBadRequest)
		return
	}

	valid, err := h.service.VerifyToken(r.Context(), provider, &models.TokenSet{
		AccessToken: req.AccessToken,
		TokenType:   req.TokenType,
	})
	if err != nil {
		logger.Error("Token verification error", logger.Provider(req.Provider), zap.Error(err))
		writeError(w, "Internal server error", "", http.StatusInternalServerError)
		return
	}

	if !valid {
		utils.WriteJSONStatus(w, http.StatusUnauthorized, models.VerifyResponse{Valid: false})
		return
	}
	utils.WriteJSON(w, models.VerifyResponse{Valid: true})
}

func writeError(w http.ResponseWriter, message, details string, status int) {
	utils.WriteJSONStatus(w, status, models.ErrorResponse{Error: message, Details: details})
}
