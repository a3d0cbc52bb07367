// Package feishu reads and appends rows of a Feishu (Lark) spreadsheet
// through the open API.
package feishu

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"resty.dev/v3"

	"hkconnectrates/internal/fetcher"
	"hkconnectrates/internal/ratelimit"
)

const (
	tokenPath = "/open-apis/auth/v3/tenant_access_token/internal"

	// tokens are refreshed this long before Feishu says they expire
	tokenExpiryMargin = 5 * time.Minute
)

// TokenResponse represents the tenant_access_token endpoint reply
type TokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"` // seconds
}

// TokenSource exchanges an app id and secret for a tenant access token and
// caches it until shortly before it expires.
type TokenSource struct {
	appID     string
	appSecret string
	client    *resty.Client
	limiter   *ratelimit.Limiter
	now       func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource creates a token source for the given app credentials
func NewTokenSource(appID, appSecret string, client *resty.Client, limiter *ratelimit.Limiter) *TokenSource {
	return &TokenSource{
		appID:     appID,
		appSecret: appSecret,
		client:    client,
		limiter:   limiter,
		now:       time.Now,
	}
}

// Token returns a valid tenant access token, requesting a new one if needed
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}

	if err := s.limiter.Wait(ctx, ratelimit.APIFeishu); err != nil {
		return "", fetcher.ClassifyTransportError(err)
	}

	var result TokenResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(map[string]string{
			"app_id":     s.appID,
			"app_secret": s.appSecret,
		}).
		SetResult(&result).
		Post(tokenPath)

	if err := fetcher.CheckResponse(resp, err); err != nil {
		return "", fmt.Errorf("failed to obtain tenant access token: %w", err)
	}

	if result.Code != 0 {
		return "", fmt.Errorf("failed to obtain tenant access token: %w", fetcher.NewAPIError(result.Code, result.Msg))
	}

	if result.TenantAccessToken == "" {
		return "", fmt.Errorf("failed to obtain tenant access token: %w",
			fetcher.NewValidationError("tenant_access_token not found in response"))
	}

	s.token = result.TenantAccessToken
	s.expires = s.now().Add(time.Duration(result.Expire)*time.Second - tokenExpiryMargin)

	slog.Debug("obtained feishu tenant access token", "expires_in", result.Expire)

	return s.token, nil
}
