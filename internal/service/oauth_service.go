package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/observability"
	"gamelog-backend/internal/repository"
)

type OAuthUserInfo struct {
	ProviderUserID string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Picture        string `json:"picture"`
	EmailVerified  bool   `json:"verified_email"`
}

type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error)
}

type googleProvider struct {
	cfg *oauth2.Config
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) OAuthProvider {
	return &googleProvider{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}}
}

func (p *googleProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *googleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.cfg.Exchange(ctx, code)
}

func (p *googleProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error) {
	client := p.cfg.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status: %d", resp.StatusCode)
	}
	var info OAuthUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	if info.ProviderUserID == "" || info.Email == "" {
		return nil, errors.New("missing required userinfo fields")
	}
	return &info, nil
}

// OAuthService resolves a provider callback code to a local user record,
// creating or linking the account as needed. Everything the provider says is
// treated as verified identity; everything local (tokens, lockout) stays with
// the session manager.
type OAuthService struct {
	provider OAuthProvider
	users    repository.UserRepository
}

func NewOAuthService(provider OAuthProvider, users repository.UserRepository) *OAuthService {
	return &OAuthService{provider: provider, users: users}
}

func (s *OAuthService) AuthCodeURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

func (s *OAuthService) HandleGoogleCallback(ctx context.Context, code string) (*domain.User, error) {
	token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	info, err := s.provider.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if !info.EmailVerified {
		return nil, errors.New("google email not verified")
	}
	return s.upsertUser(ctx, info)
}

func (s *OAuthService) upsertUser(ctx context.Context, info *OAuthUserInfo) (*domain.User, error) {
	user, err := s.users.FindByGoogleID(info.ProviderUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	// Existing local account with the same verified email gets linked.
	user, err = s.users.FindByEmail(info.Email)
	if err == nil {
		if err := s.users.UpdateFields(user.ID, map[string]any{
			"google_id":  info.ProviderUserID,
			"avatar_url": info.Picture,
		}); err != nil {
			return nil, err
		}
		user.GoogleID = &info.ProviderUserID
		user.AvatarURL = info.Picture
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	username := strings.TrimSpace(info.Name)
	if username == "" {
		username = strings.SplitN(info.Email, "@", 2)[0]
	}
	user = &domain.User{
		Email:     info.Email,
		Username:  username,
		GoogleID:  &info.ProviderUserID,
		AvatarURL: info.Picture,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	observability.Audit(ctx, "auth.user.created", "success", "oauth_google", observability.SeverityLow,
		"email", observability.MaskEmail(user.Email),
	)
	return user, nil
}

func ClassifyOAuthError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "userinfo status:"):
		return "userinfo_status"
	case strings.Contains(msg, "missing required userinfo fields"):
		return "invalid_userinfo"
	case strings.Contains(msg, "oauth2:"):
		return "oauth2_exchange"
	default:
		return "other"
	}
}
