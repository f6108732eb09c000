package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/idman/internal/identity"
	"github.com/hitoshi/idman/internal/middleware"
	"github.com/hitoshi/idman/internal/model"
)

// IdentityServiceInterface は本人確認ハンドラーが必要とするサービスインターフェース。
type IdentityServiceInterface interface {
	// StartVerification は本人確認フローを開始する。
	StartVerification(ctx context.Context, userID string) (*identity.StartResult, error)
	// GetStatus は本人確認の現在状態を取得する。
	GetStatus(ctx context.Context, userID string) (*identity.StatusResult, error)
}

// IdentityHandler は本人確認のHTTPハンドラー。
type IdentityHandler struct {
	service IdentityServiceInterface
}

// NewIdentityHandler はIdentityHandlerを生成する。
func NewIdentityHandler(service IdentityServiceInterface) *IdentityHandler {
	return &IdentityHandler{service: service}
}

// StartVerification は本人確認フローを開始する。
// POST /identity/start
func (h *IdentityHandler) StartVerification(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("authentication required"))
		return
	}

	result, err := h.service.StartVerification(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetStatus は本人確認の現在状態を返す。
// GET /identity/status
func (h *IdentityHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("authentication required"))
		return
	}

	result, err := h.service.GetStatus(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
