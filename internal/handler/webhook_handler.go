package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/idman/internal/identity"
	"github.com/hitoshi/idman/internal/metrics"
	"github.com/hitoshi/idman/internal/middleware"
	"github.com/hitoshi/idman/internal/model"
)

// stripeSignatureHeader はStripeが署名を載せるリクエストヘッダー名。
const stripeSignatureHeader = "Stripe-Signature"

// maxWebhookBodySize はWebhookボディの最大サイズ（バイト）。
const maxWebhookBodySize = 1 << 20 // 1MiB

// WebhookEngine は署名検証済みイベントを処理するインターフェース。
type WebhookEngine interface {
	HandleWebhook(ctx context.Context, event *identity.WebhookEvent) error
}

// SignatureVerifier はStripe-Signatureヘッダーの検証インターフェース。
type SignatureVerifier interface {
	Validate(rawBody []byte, signatureHeader string) bool
}

// WebhookMetrics はWebhookイベントの処理結果を記録するインターフェース。
type WebhookMetrics interface {
	RecordWebhookEvent(disposition string)
}

// WebhookHandler はStripe WebhookのHTTPハンドラー。
type WebhookHandler struct {
	engine   WebhookEngine
	verifier SignatureVerifier
	metrics  WebhookMetrics // nil可
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(engine WebhookEngine, verifier SignatureVerifier, m WebhookMetrics) *WebhookHandler {
	return &WebhookHandler{
		engine:   engine,
		verifier: verifier,
		metrics:  m,
	}
}

// HandleWebhook はStripeからのWebhook配信を受け付ける。
// POST /stripe/webhooks
//
// 署名は受信したボディの生バイト列に対して検証する。
// 本人確認セッション以外のイベントは署名検証なしで受領応答のみ返す。
// 処理エラー時は500を返し、Stripeの再送に委ねる。
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		slog.Error("failed to read webhook body", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	var event identity.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		slog.Warn("failed to decode webhook event", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	// 本人確認セッション以外のイベントは処理対象外。受領だけ返す。
	if !event.IsVerificationSessionEvent() {
		slog.Info("ignoring webhook event outside verification scope",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
		)
		h.recordEvent(metrics.WebhookIgnored)
		writeWebhookReceived(w)
		return
	}

	if !h.verifier.Validate(rawBody, r.Header.Get(stripeSignatureHeader)) {
		slog.Warn("webhook signature validation failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
		)
		h.recordEvent(metrics.WebhookUnauthorized)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("invalid webhook signature"))
		return
	}

	if err := h.engine.HandleWebhook(r.Context(), &event); err != nil {
		slog.Error("failed to process webhook event",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
		h.recordEvent(metrics.WebhookFailed)
		middleware.WriteInternalServerError(w)
		return
	}

	h.recordEvent(metrics.WebhookAccepted)
	writeWebhookReceived(w)
}

func (h *WebhookHandler) recordEvent(disposition string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(disposition)
	}
}

// writeWebhookReceived はStripeに対する受領応答を書き込む。
func writeWebhookReceived(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
