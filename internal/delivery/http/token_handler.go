package http

import (
	"encoding/json"
	"net/http"
	"time"

	"tracker-backend/internal/repository"
	"tracker-backend/internal/usecase"
)

// TokenHandler manages the device tokens trigger alerts are pushed to.
type TokenHandler struct {
	tokenRepo *repository.TokenRepository
	notifier  *usecase.NotificationService
	now       func() time.Time
}

func NewTokenHandler(tokenRepo *repository.TokenRepository, notifier *usecase.NotificationService) *TokenHandler {
	return &TokenHandler{
		tokenRepo: tokenRepo,
		notifier:  notifier,
		now:       time.Now,
	}
}

type RegisterTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type TokenResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func (h *TokenHandler) decode(w http.ResponseWriter, r *http.Request) (RegisterTokenRequest, bool) {
	var req RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body"), "")
		return req, false
	}
	if req.Token == "" {
		writeError(w, badRequest("token is required"), "")
		return req, false
	}
	return req, true
}

// HandleRegisterToken handles POST /api/notifications/register
func (h *TokenHandler) HandleRegisterToken(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Platform == "" {
		req.Platform = "android"
	}

	h.tokenRepo.RegisterToken(req.Token, req.Platform, h.now().UTC())
	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Token registered successfully",
		Count:   h.tokenRepo.GetTokenCount(),
	})
}

// HandleUnregisterToken handles POST /api/notifications/unregister
func (h *TokenHandler) HandleUnregisterToken(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	h.tokenRepo.UnregisterToken(req.Token)
	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Token unregistered successfully",
		Count:   h.tokenRepo.GetTokenCount(),
	})
}

// HandleGetTokenCount handles GET /api/notifications/count
func (h *TokenHandler) HandleGetTokenCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Token count retrieved",
		Count:   h.tokenRepo.GetTokenCount(),
	})
}

// HandleSendTest handles POST /api/notifications/test
func (h *TokenHandler) HandleSendTest(w http.ResponseWriter, r *http.Request) {
	count, err := h.notifier.SendTest(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), TokenResponse{
			Success: false,
			Message: "Failed to send notification: " + err.Error(),
			Count:   count,
		})
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Test notification sent",
		Count:   count,
	})
}
