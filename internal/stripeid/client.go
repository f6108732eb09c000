// Package stripeid はStripe Identity APIの薄い呼び出し境界を提供する。
package stripeid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

// 外部本人確認セッションのステータス。語彙はStripe Identityが定義する。
const (
	StatusRequiresInput = "requires_input"
	StatusProcessing    = "processing"
	StatusVerified      = "verified"
	StatusCanceled      = "canceled"
)

// SessionLastError はセッションに記録された直近のエラー。
type SessionLastError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// VerificationSession は外部本人確認セッションのスナップショット。
// ClientSecretは完了前のセッションでのみ意味を持つ。
type VerificationSession struct {
	ID                     string            `json:"id"`
	Status                 string            `json:"status"`
	ClientSecret           string            `json:"client_secret"`
	LastError              *SessionLastError `json:"last_error"`
	LastVerificationReport string            `json:"last_verification_report"`
	Metadata               map[string]string `json:"metadata"`
}

// ReportDOB はレポートに含まれる生年月日。
type ReportDOB struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

// ReportAddress はレポートに含まれる住所。
type ReportAddress struct {
	Country string `json:"country"`
}

// ReportDocument は書類から抽出された本人情報。
// 各フィールドはレポートに存在しない場合がある。
type ReportDocument struct {
	DOB       *ReportDOB     `json:"dob"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Address   *ReportAddress `json:"address"`
}

// VerificationReport は確認完了後に発行される抽出結果レポート。
type VerificationReport struct {
	ID       string          `json:"id"`
	Document *ReportDocument `json:"document"`
}

// CreateSessionParams はセッション作成時のオプション。
type CreateSessionParams struct {
	UserID          string
	RequireSelfie   bool
	RequireIDNumber bool
}

// allowedDocumentTypes は受け付ける書類種別の固定セット。
var allowedDocumentTypes = []string{"driving_license", "passport", "id_card"}

// ClientConfig はStripe Identityクライアントの設定。
type ClientConfig struct {
	APIKey  string
	Timeout time.Duration

	// テスト用にオーバーライド可能なURL
	BaseURL string
}

// Client はStripe Identity APIのHTTPクライアント。
// APIキーを保持するため、構築済みインスタンスをDIで受け渡す。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient はClientを生成する。
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// CreateVerificationSession はdocumentタイプの本人確認セッションを作成する。
// metadata.user_idにアプリケーションのユーザーIDを埋め込み、
// Webhookイベントからユーザーを逆引きできるようにする。
func (c *Client) CreateVerificationSession(ctx context.Context, params CreateSessionParams) (*VerificationSession, error) {
	data := url.Values{}
	data.Set("type", "document")
	data.Set("metadata[user_id]", params.UserID)
	for _, docType := range allowedDocumentTypes {
		data.Add("options[document][allowed_types][]", docType)
	}
	data.Set("options[document][require_id_number]", strconv.FormatBool(params.RequireIDNumber))
	data.Set("options[document][require_matching_selfie]", strconv.FormatBool(params.RequireSelfie))

	session := &VerificationSession{}
	if err := c.postForm(ctx, "/v1/identity/verification_sessions", data, session); err != nil {
		return nil, fmt.Errorf("failed to create verification session: %w", err)
	}
	return session, nil
}

// RetrieveVerificationSession は既存セッションの現在の状態を取得する。
func (c *Client) RetrieveVerificationSession(ctx context.Context, sessionID string) (*VerificationSession, error) {
	session := &VerificationSession{}
	if err := c.get(ctx, "/v1/identity/verification_sessions/"+url.PathEscape(sessionID), session); err != nil {
		return nil, fmt.Errorf("failed to retrieve verification session: %w", err)
	}
	return session, nil
}

// RetrieveVerificationReport は確認レポートを取得する。
func (c *Client) RetrieveVerificationReport(ctx context.Context, reportID string) (*VerificationReport, error) {
	report := &VerificationReport{}
	if err := c.get(ctx, "/v1/identity/verification_reports/"+url.PathEscape(reportID), report); err != nil {
		return nil, fmt.Errorf("failed to retrieve verification report: %w", err)
	}
	return report, nil
}

// postForm はフォームエンコードのPOSTリクエストを送信し、レスポンスをoutにデコードする。
func (c *Client) postForm(ctx context.Context, path string, data url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, out)
}

// get はGETリクエストを送信し、レスポンスをoutにデコードする。
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, out)
}

// stripeErrorResponse はStripeのエラーレスポンス形式。
type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp stripeErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return fmt.Errorf("stripe api error (status %d, code %s): %s",
				resp.StatusCode, errResp.Error.Code, errResp.Error.Message)
		}
		return fmt.Errorf("stripe api error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}
