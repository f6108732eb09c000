package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/idman/internal/model"
)

// JWKSet はJWKSエンドポイントのレスポンス。
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWK はRSA署名鍵のJSON Web Key表現。
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// TokenValidatorConfig はBearerトークン検証の設定。
type TokenValidatorConfig struct {
	Domain   string // 例: example.auth0.com
	Audience string

	FetchTimeout time.Duration // JWKS取得のタイムアウト
	CacheTTL     time.Duration // 鍵キャッシュの有効期間

	// テスト用にオーバーライド可能なURL
	JWKSURL string
}

// TokenValidator はAuth0が発行したRS256アクセストークンを検証する。
// 署名鍵はAuth0のJWKSエンドポイントから取得し、TTL付きでキャッシュする。
type TokenValidator struct {
	config     TokenValidatorConfig
	issuer     string
	httpClient *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewTokenValidator はTokenValidatorを生成する。
func NewTokenValidator(config TokenValidatorConfig) *TokenValidator {
	if config.JWKSURL == "" {
		config.JWKSURL = "https://" + config.Domain + "/.well-known/jwks.json"
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 5 * time.Second
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 10 * time.Minute
	}
	return &TokenValidator{
		config:     config,
		issuer:     "https://" + config.Domain + "/",
		httpClient: &http.Client{Timeout: config.FetchTimeout},
		keys:       map[string]*rsa.PublicKey{},
	}
}

// ValidateToken はBearerトークンを検証し、subクレームを返す。
// 署名、有効期限、issuer、audienceのいずれかが不正ならUnauthorizedを返す。
func (v *TokenValidator) ValidateToken(ctx context.Context, tokenString string) (string, error) {
	keyFunc := func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("no kid found in token header")
		}
		return v.publicKey(ctx, kid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, keyFunc, opts...)
	if err != nil {
		return "", model.NewUnauthorizedError("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", model.NewUnauthorizedError("invalid token claims")
	}

	return claims.Subject, nil
}

// publicKey はkidに対応する署名鍵を返す。
// キャッシュが期限切れ、または未知のkidの場合はJWKSを再取得する。
func (v *TokenValidator) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, found := v.keys[kid]
	fresh := time.Since(v.fetchedAt) < v.config.CacheTTL
	v.mu.RUnlock()

	if found && fresh {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	key, found = v.keys[kid]
	v.mu.RUnlock()

	if !found {
		return nil, fmt.Errorf("no matching key found for kid %q", kid)
	}
	return key, nil
}

// refreshKeys はJWKSエンドポイントから鍵セットを取得し直す。
func (v *TokenValidator) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.JWKSURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create jwks request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jwks request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read jwks response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch failed with status %d", resp.StatusCode)
	}

	var set JWKSet
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("failed to parse jwks response: %w", err)
	}

	keys := map[string]*rsa.PublicKey{}
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || jwk.Kid == "" {
			continue
		}
		key, err := jwkToPublicKey(jwk)
		if err != nil {
			// 壊れた鍵はスキップし、残りの鍵は使う
			continue
		}
		keys[jwk.Kid] = key
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	return nil
}

// jwkToPublicKey はJWKのn/eからrsa.PublicKeyを復元する。
func jwkToPublicKey(jwk JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
