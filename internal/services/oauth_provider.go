package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/procur/backend/internal/config"
	"github.com/procur/backend/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// OAuthProviderService wraps the Google sign-in flow. Tokens are exchanged
// server-side; the handler layer maps the resulting profile onto a local
// account.
type OAuthProviderService struct {
	Cfg *config.Config
}

func NewOAuthProviderService(cfg *config.Config) *OAuthProviderService {
	return &OAuthProviderService{Cfg: cfg}
}

// SSOProfile is the provider-agnostic identity returned after a successful
// token exchange.
type SSOProfile struct {
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarURL      *string
	EmailVerified  bool
}

type OAuthState struct {
	Nonce     string
	ExpiresAt time.Time
}

func (s *OAuthProviderService) GoogleConfig() (*oauth2.Config, error) {
	if !s.Cfg.SSO.Google.Enabled {
		return nil, errors.New("google oauth is not enabled")
	}
	return &oauth2.Config{
		ClientID:     s.Cfg.SSO.Google.ClientID,
		ClientSecret: s.Cfg.SSO.Google.ClientSecret,
		RedirectURL:  s.Cfg.SSO.Google.RedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}, nil
}

func (s *OAuthProviderService) GenerateState() (*OAuthState, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, err
	}
	return &OAuthState{
		Nonce:     base64.URLEncoding.EncodeToString(nonceBytes),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}, nil
}

func (s *OAuthProviderService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	oauthCfg, err := s.GoogleConfig()
	if err != nil {
		return nil, err
	}

	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		logger.Warn("oauth_exchange_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, errors.New("failed to exchange code for token")
	}

	return token, nil
}

func (s *OAuthProviderService) GetUserInfo(ctx context.Context, token *oauth2.Token) (*SSOProfile, error) {
	oauthCfg, err := s.GoogleConfig()
	if err != nil {
		return nil, err
	}
	client := oauthCfg.Client(ctx, token)

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google api returned status %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		VerifiedEmail bool   `json:"verified_email"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	if data.ID == "" || data.Email == "" {
		return nil, errors.New("google profile is missing id or email")
	}

	profile := &SSOProfile{
		ProviderUserID: data.ID,
		Email:          data.Email,
		DisplayName:    data.Name,
		EmailVerified:  data.VerifiedEmail,
	}
	if data.Picture != "" {
		profile.AvatarURL = &data.Picture
	}
	return profile, nil
}
