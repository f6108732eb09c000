package identity

import "strings"

// verificationSessionEventPrefix は本人確認セッション関連イベントのtypeプレフィックス。
const verificationSessionEventPrefix = "identity.verification_session"

// SessionSnapshot はWebhookイベントに埋め込まれた外部セッションのスナップショット。
type SessionSnapshot struct {
	ID                     string            `json:"id"`
	Status                 string            `json:"status"`
	Metadata               map[string]string `json:"metadata"`
	LastError              *SnapshotError    `json:"last_error"`
	LastVerificationReport string            `json:"last_verification_report"`
}

// SnapshotError はイベントに含まれる直近エラーの要約。
type SnapshotError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// WebhookEvent はプロバイダーから受信するWebhookイベント。
// 既知の形はdata.objectにセッションスナップショットを持つ。
// 未知のtypeのイベントもこの型に安全にデコードでき、単に処理対象外となる。
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object SessionSnapshot `json:"object"`
	} `json:"data"`
}

// IsVerificationSessionEvent はこのイベントが本人確認セッション関連かどうかを返す。
// trueのイベントのみ署名検証と照合処理の対象になる。
func (e *WebhookEvent) IsVerificationSessionEvent() bool {
	return strings.HasPrefix(e.Type, verificationSessionEventPrefix)
}
