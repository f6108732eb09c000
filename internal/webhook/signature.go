// Package webhook はStripe Webhook署名の検証を提供する。
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Verifier はStripe-Signatureヘッダーの検証器。
// 署名は受信したボディの生バイト列をそのまま対象とするため、
// パース後に再シリアライズしたボディを渡してはならない。
type Verifier struct {
	secret    string
	tolerance time.Duration

	// now はテストで時刻を固定するためのフック。
	now func() time.Time
}

// NewVerifier はVerifierを生成する。
// toleranceが正の場合、署名タイムスタンプが現在時刻からtoleranceを超えて
// ずれたリクエストをリプレイとして拒否する。0で無効化できる。
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Validate は署名ヘッダーがボディとシークレットに対して正当かどうかを検証する。
// 失敗時は理由に関わらずfalseを返し、決してpanicやエラーを返さない（フェイルクローズ）。
// シークレット未設定、ヘッダー不正、タイムスタンプ超過、ダイジェスト不一致はすべてfalse。
func (v *Verifier) Validate(rawBody []byte, signatureHeader string) bool {
	if v.secret == "" {
		slog.Error("webhook secret is not configured")
		return false
	}

	timestamp, signature, ok := parseSignatureHeader(signatureHeader)
	if !ok {
		slog.Warn("malformed stripe signature header")
		return false
	}

	if v.tolerance > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			slog.Warn("invalid timestamp in stripe signature header")
			return false
		}
		diff := v.now().Sub(time.Unix(ts, 0))
		if diff < 0 {
			diff = -diff
		}
		if diff > v.tolerance {
			slog.Warn("stripe signature timestamp outside tolerance",
				slog.Duration("diff", diff),
			)
			return false
		}
	}

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)

	return hmac.Equal(expected, mac.Sum(nil))
}

// parseSignatureHeader は"t=<unix秒>,v1=<hex署名>"形式のヘッダーを分解する。
// tとv1の両方が存在しない場合はok=falseを返す。v1が複数ある場合は最初の値を使う。
func parseSignatureHeader(header string) (timestamp, signature string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			if timestamp == "" {
				timestamp = value
			}
		case "v1":
			if signature == "" {
				signature = value
			}
		}
	}

	if timestamp == "" || signature == "" {
		return "", "", false
	}
	return timestamp, signature, true
}
