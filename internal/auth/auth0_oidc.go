package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Auth0Config はAuth0 OIDCプロバイダーの設定。
// AuthURL等は省略時にDomainから導出される。
type Auth0Config struct {
	Domain       string // 例: example.auth0.com
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Audience     string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	LogoutURL   string
}

// Auth0Provider はAuth0によるOIDC認証を提供する。
type Auth0Provider struct {
	config Auth0Config
}

// NewAuth0Provider はAuth0Providerを生成する。
func NewAuth0Provider(config Auth0Config) *Auth0Provider {
	base := "https://" + config.Domain
	if config.AuthURL == "" {
		config.AuthURL = base + "/authorize"
	}
	if config.TokenURL == "" {
		config.TokenURL = base + "/oauth/token"
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = base + "/userinfo"
	}
	if config.LogoutURL == "" {
		config.LogoutURL = base + "/v2/logout"
	}
	return &Auth0Provider{config: config}
}

// GetLoginURL はAuth0の認可URLを生成する。
// スコープにはopenid email profileを含む。
func (p *Auth0Provider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"state":         {state},
	}
	if p.config.Audience != "" {
		params.Set("audience", p.config.Audience)
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// GetLogoutURL はAuth0側のセッションも破棄するログアウトURLを生成する。
func (p *Auth0Provider) GetLogoutURL(returnTo string) string {
	params := url.Values{
		"client_id": {p.config.ClientID},
		"returnTo":  {returnTo},
	}
	return p.config.LogoutURL + "?" + params.Encode()
}

// auth0TokenResponse はAuth0のトークンエンドポイントのレスポンス。
type auth0TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// auth0UserInfo はAuth0のユーザー情報エンドポイントのレスポンス。
type auth0UserInfo struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *Auth0Provider) ExchangeCode(ctx context.Context, code string) (*OIDCUserInfo, error) {
	// 1. 認可コードをアクセストークンに交換
	tokenResp, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	userInfo, err := p.fetchUserInfo(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	return &OIDCUserInfo{
		Sub:        userInfo.Sub,
		Email:      userInfo.Email,
		Name:       userInfo.Name,
		GivenName:  userInfo.GivenName,
		FamilyName: userInfo.FamilyName,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *Auth0Provider) exchangeToken(ctx context.Context, code string) (*auth0TokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp auth0TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

// fetchUserInfo はアクセストークンでAuth0のユーザー情報を取得する。
func (p *Auth0Provider) fetchUserInfo(ctx context.Context, accessToken string) (*auth0UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo auth0UserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if userInfo.Sub == "" {
		return nil, fmt.Errorf("empty sub in user info response")
	}

	return &userInfo, nil
}

// compile-time interface check
var _ OIDCProvider = (*Auth0Provider)(nil)
