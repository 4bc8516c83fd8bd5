package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token claim constants. The audience is deliberately distinct per token
// kind so an access token can never be replayed as a refresh token and
// vice versa.
const (
	tokenIssuer     = "clocked"
	audienceAccess  = "clocked-users"
	audienceRefresh = "clocked-refresh"
)

// ErrTokenReused marks presentation of an already-revoked refresh token.
// It matches ErrRefreshTokenInvalid under errors.Is, but lets callers
// treat the reuse as a compromise signal (logged, counted).
var ErrTokenReused = fmt.Errorf("%w: reuse of revoked token", ErrRefreshTokenInvalid)

// AccessClaims are the signed claims carried by an access token.
// Access tokens are never persisted; a valid signature is the credential.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email  string `json:"email"`
	Handle string `json:"handle"`
}

// RefreshClaims are the signed claims carried by a refresh token.
// TokenID references the persisted RefreshToken record; the registered ID
// (jti) carries the per-record secret whose hash is stored alongside it.
type RefreshClaims struct {
	jwt.RegisteredClaims
	TokenID string `json:"tid"`
}

// TokenPair is an access + refresh token pair returned on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime, seconds
}

// UserStore is the account lookup the Authority needs during rotation.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// AuthorityConfig contains token signing settings.
type AuthorityConfig struct {
	// Secret signs both token kinds (HS256).
	Secret string

	// AccessTTL is the access token lifetime. Default 15 minutes.
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime. Default 7 days.
	RefreshTTL time.Duration
}

// Default token lifetimes.
const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Authority issues, verifies, rotates and revokes credentials.
//
// Access tokens are pure signed claims (no I/O on issue or verify).
// Refresh tokens are signed claims backed by a revocable persisted record;
// verification hits the store. All methods are safe for concurrent use.
type Authority struct {
	tokens TokenRepository
	users  UserStore
	secret []byte

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthority creates a token Authority backed by the given stores.
func NewAuthority(tokens TokenRepository, users UserStore, cfg AuthorityConfig) *Authority {
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}

	return &Authority{
		tokens:     tokens,
		users:      users,
		secret:     []byte(cfg.Secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccessToken creates a signed access token for a user.
// No I/O; cannot fail for a well-formed user.
func (a *Authority) IssueAccessToken(user *User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{audienceAccess},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
		},
		Email:  user.Email,
		Handle: user.Handle,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken validates an access token and returns its claims.
// Signature, issuer, audience and expiry are all checked; any failure
// is terminal for this call.
func (a *Authority) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, a.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(audienceAccess),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}

// IssueRefreshToken persists a new refresh token record for the user and
// returns the signed token referencing it.
func (a *Authority) IssueRefreshToken(ctx context.Context, userID string) (string, error) {
	record, secret, err := a.newRefreshRecord(userID)
	if err != nil {
		return "", err
	}

	if err := a.tokens.Create(ctx, record); err != nil {
		return "", fmt.Errorf("persisting refresh token: %w", err)
	}

	return a.signRefreshToken(record, secret)
}

// VerifyRefreshToken validates a refresh token and returns its backing record.
//
// It checks the signature and claims first, then loads the record and
// requires it to be unrevoked, unexpired, and to match the token's secret.
// A revoked record fails with ErrTokenReused.
func (a *Authority) VerifyRefreshToken(ctx context.Context, tokenString string) (*RefreshToken, error) {
	claims, err := a.parseRefreshClaims(tokenString)
	if err != nil {
		return nil, err
	}

	record, err := a.tokens.GetByID(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown token id", ErrRefreshTokenInvalid)
	}

	if HashToken(claims.ID) != record.SecretHash {
		return nil, fmt.Errorf("%w: secret mismatch", ErrRefreshTokenInvalid)
	}
	if record.UserID != claims.Subject {
		return nil, fmt.Errorf("%w: subject mismatch", ErrRefreshTokenInvalid)
	}
	if record.Revoked {
		return nil, ErrTokenReused
	}
	if !record.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: token expired", ErrRefreshTokenInvalid)
	}

	return record, nil
}

// IssuePair issues a fresh access + refresh token pair for a user.
// Used on login (magic link verification).
func (a *Authority) IssuePair(ctx context.Context, user *User) (*TokenPair, error) {
	access, err := a.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refresh, err := a.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(a.accessTTL.Seconds()),
	}, nil
}

// Rotate exchanges a refresh token for a brand-new token pair.
//
// The presented token's record is consumed and the replacement created in
// a single transaction, so a refresh token is never usable twice even
// under concurrent refresh attempts: the loser of the race gets
// ErrTokenReused.
func (a *Authority) Rotate(ctx context.Context, tokenString string) (*TokenPair, error) {
	record, err := a.VerifyRefreshToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: account missing", ErrRefreshTokenInvalid)
	}

	newRecord, secret, err := a.newRefreshRecord(user.ID)
	if err != nil {
		return nil, err
	}

	if err := a.tokens.Rotate(ctx, record.ID, newRecord); err != nil {
		return nil, err
	}

	access, err := a.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refresh, err := a.signRefreshToken(newRecord, secret)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(a.accessTTL.Seconds()),
	}, nil
}

// Revoke marks a single refresh token record as revoked. Idempotent.
func (a *Authority) Revoke(ctx context.Context, tokenID string) error {
	return a.tokens.Revoke(ctx, tokenID)
}

// RevokeAllForUser revokes every refresh token owned by the user.
// Used for logout-everywhere and suspected compromise.
func (a *Authority) RevokeAllForUser(ctx context.Context, userID string) error {
	return a.tokens.RevokeAllForUser(ctx, userID)
}

// newRefreshRecord builds an unsaved record plus its raw secret.
func (a *Authority) newRefreshRecord(userID string) (*RefreshToken, string, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, "", err
	}

	record := &RefreshToken{
		UserID:     userID,
		SecretHash: HashToken(secret),
		ExpiresAt:  time.Now().Add(a.refreshTTL),
	}
	return record, secret, nil
}

// signRefreshToken signs the claims referencing a persisted record.
func (a *Authority) signRefreshToken(record *RefreshToken, secret string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   record.UserID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{audienceRefresh},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
			ID:        secret,
		},
		TokenID: record.ID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

// parseRefreshClaims validates the signed portion of a refresh token.
func (a *Authority) parseRefreshClaims(tokenString string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, a.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(audienceRefresh),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshTokenInvalid, err)
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return nil, ErrRefreshTokenInvalid
	}

	if claims.TokenID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrRefreshTokenInvalid)
	}

	return claims, nil
}

func (a *Authority) keyFunc(_ *jwt.Token) (any, error) {
	return a.secret, nil
}

// secretBytes is the size of generated token secrets (256-bit).
const secretBytes = 32

// generateSecret creates a cryptographically random token secret.
func generateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw tokens and secrets are never stored - only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
