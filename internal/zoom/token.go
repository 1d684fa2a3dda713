package zoom

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tokenExpirySkew refreshes slightly early so a token never expires
// mid-request.
const tokenExpirySkew = 30 * time.Second

// TokenManager acquires and caches the server-to-server OAuth access
// token. The cache lives on the instance and refresh is guarded by one
// mutex so concurrent callers cannot trigger redundant exchanges.
type TokenManager struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewTokenManager creates a token manager for the account credentials in cfg.
func NewTokenManager(cfg Config, logger *zap.Logger) *TokenManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Token returns a valid access token, exchanging credentials when the
// cached one is absent or about to expire.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessToken != "" && time.Now().Add(tokenExpirySkew).Before(m.expiresAt) {
		return m.accessToken, nil
	}
	return m.refreshLocked(ctx)
}

// Invalidate drops the cached token so the next Token call performs a
// fresh exchange. Callers use it for the single forced refresh after a 401.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.accessToken = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (m *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"account_credentials"},
		"account_id": {m.cfg.AccountID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(m.cfg.ClientID + ":" + m.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token exchange failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned empty access token")
	}

	m.accessToken = tr.AccessToken
	m.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	m.logger.Debug("access token refreshed", zap.Int("expires_in", tr.ExpiresIn))
	return m.accessToken, nil
}
