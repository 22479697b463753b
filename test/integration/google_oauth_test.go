package integration

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"gamelog-backend/internal/security"
	"gamelog-backend/internal/service"
)

type oauthProviderStub struct {
	exchangeErr error
	info        *service.OAuthUserInfo
	infoErr     error
}

func (s *oauthProviderStub) AuthCodeURL(state string) string {
	return "https://accounts.example/oauth?state=" + url.QueryEscape(state)
}

func (s *oauthProviderStub) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	return &oauth2.Token{AccessToken: "provider-token"}, nil
}

func (s *oauthProviderStub) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*service.OAuthUserInfo, error) {
	return s.info, s.infoErr
}

func noRedirectClient(ts *authTestServer) *http.Client {
	return &http.Client{
		Jar: ts.Client.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestGoogleLoginRedirectsWithSignedState(t *testing.T) {
	ts := newAuthTestServerWithOptions(t, authTestServerOptions{
		oauthProvider: &oauthProviderStub{},
	})

	resp, err := noRedirectClient(ts).Get(ts.URL + "/api/v1/auth/google/login")
	if err != nil {
		t.Fatalf("google login: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", resp.StatusCode)
	}

	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil || location.Query().Get("state") == "" {
		t.Fatalf("redirect location %q has no state", resp.Header.Get("Location"))
	}
	cookie := assertCookieProps(t, resp, security.OAuthStateCookieName, security.OAuthStateCookiePath, true)
	if !security.VerifyState(cookie.Value, location.Query().Get("state"), testStateSecret) {
		t.Fatal("state cookie does not sign the redirect state")
	}
}

func TestGoogleCallbackCompletesLogin(t *testing.T) {
	ts := newAuthTestServerWithOptions(t, authTestServerOptions{
		oauthProvider: &oauthProviderStub{info: &service.OAuthUserInfo{
			ProviderUserID: "google-123",
			Email:          "player@example.com",
			Name:           "Player One",
			EmailVerified:  true,
		}},
	})

	client := noRedirectClient(ts)
	resp, err := client.Get(ts.URL + "/api/v1/auth/google/login")
	if err != nil {
		t.Fatalf("google login: %v", err)
	}
	_ = resp.Body.Close()
	location, _ := url.Parse(resp.Header.Get("Location"))
	state := location.Query().Get("state")

	resp2, env := doJSON(t, ts.Client, http.MethodGet, ts.URL+"/api/v1/auth/google/callback?state="+url.QueryEscape(state)+"&code=ok", nil, nil)
	if resp2.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("callback: status=%d error=%+v", resp2.StatusCode, env.Error)
	}
	login := decodeLogin(t, env)
	if login.User.Email != "player@example.com" {
		t.Fatalf("user email = %q", login.User.Email)
	}

	resp3, env3 := doJSON(t, ts.Client, http.MethodGet, ts.URL+"/api/v1/me", nil, bearer(login.AccessToken))
	if resp3.StatusCode != http.StatusOK || !env3.Success {
		t.Fatalf("me after oauth login: status=%d error=%+v", resp3.StatusCode, env3.Error)
	}
}

func TestGoogleCallbackRejectsBadState(t *testing.T) {
	ts := newAuthTestServerWithOptions(t, authTestServerOptions{
		oauthProvider: &oauthProviderStub{},
	})

	// No prior /google/login, so no state cookie exists.
	resp, env := doJSON(t, ts.Client, http.MethodGet, ts.URL+"/api/v1/auth/google/callback?state=forged&code=ok", nil, nil)
	if resp.StatusCode != http.StatusBadRequest || env.Error == nil || env.Error.Code != "INVALID_OAUTH_STATE" {
		t.Fatalf("forged state: status=%d error=%+v", resp.StatusCode, env.Error)
	}
}

func TestGoogleCallbackExchangeFailure(t *testing.T) {
	ts := newAuthTestServerWithOptions(t, authTestServerOptions{
		oauthProvider: &oauthProviderStub{exchangeErr: errors.New(`oauth2: "invalid_grant"`)},
	})

	client := noRedirectClient(ts)
	resp, err := client.Get(ts.URL + "/api/v1/auth/google/login")
	if err != nil {
		t.Fatalf("google login: %v", err)
	}
	_ = resp.Body.Close()
	location, _ := url.Parse(resp.Header.Get("Location"))
	state := location.Query().Get("state")

	events := captureAuditEvents(t, func() {
		resp2, env := doJSON(t, ts.Client, http.MethodGet, ts.URL+"/api/v1/auth/google/callback?state="+url.QueryEscape(state)+"&code=bad", nil, nil)
		if resp2.StatusCode != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "OAUTH_FAILED" {
			t.Fatalf("exchange failure: status=%d error=%+v", resp2.StatusCode, env.Error)
		}
	})
	requireAuditEvent(t, events, "auth.oauth.callback", "failure", "oauth2_exchange")
}

func TestGoogleEndpointsDisabledWithoutProvider(t *testing.T) {
	ts := newAuthTestServer(t)
	resp, env := doJSON(t, ts.Client, http.MethodGet, ts.URL+"/api/v1/auth/google/login", nil, nil)
	if resp.StatusCode != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("disabled provider: status=%d error=%+v", resp.StatusCode, env.Error)
	}
}
