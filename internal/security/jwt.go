package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gamelog-backend/internal/domain"
)

const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the shared claim shape for access and refresh tokens. Both kinds
// are signed with the same secret and verified by the same routine; the
// token_type claim is the only thing preventing cross-use, so every consumer
// must check it after Parse.
type Claims struct {
	TokenType string `json:"token_type"`
	Email     string `json:"email"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into the user primary key.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token subject: %w", err)
	}
	return uint(id), nil
}

type TokenCodec struct {
	issuer     string
	audience   string
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenCodec(issuer, audience, secret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		issuer:     issuer,
		audience:   audience,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *TokenCodec) IssueAccess(user *domain.User) (string, error) {
	return c.sign(Claims{
		TokenType: TokenKindAccess,
		Email:     user.Email,
		Username:  user.Username,
	}, user.ID, c.accessTTL)
}

// IssueRefresh deliberately omits the username: refresh tokens carry the
// minimum claims needed to mint a new access token.
func (c *TokenCodec) IssueRefresh(user *domain.User) (string, error) {
	return c.sign(Claims{
		TokenType: TokenKindRefresh,
		Email:     user.Email,
	}, user.ID, c.refreshTTL)
}

func (c *TokenCodec) sign(claims Claims, userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Audience:  []string{c.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Parse verifies signature, issuer, audience and expiry in one step. It does
// not consult the revocation ledger and it does not check token_type; both
// are the caller's responsibility, which keeps the codec a pure function.
func (c *TokenCodec) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithAudience(c.audience))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExpiryOf decodes a token without verifying it and returns the embedded
// expiry. The revocation ledger uses it to age out blacklist entries; ok is
// false when the token cannot be decoded at all.
func (c *TokenCodec) ExpiryOf(raw string) (time.Time, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// BearerToken extracts the token from an Authorization header value. A
// missing or malformed header returns ok=false rather than an error: "no
// credential supplied" and "credential supplied but invalid" are distinct
// outcomes for the gate.
func BearerToken(headerValue string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(headerValue), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(headerValue[7:])
	if token == "" {
		return "", false
	}
	return token, true
}
