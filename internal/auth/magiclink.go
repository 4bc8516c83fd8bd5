package auth

import (
	"context"
	"fmt"
	"time"
)

// defaultMagicLinkTTL is the magic link lifetime when none is configured.
const defaultMagicLinkTTL = 15 * time.Minute

// EmailStore is the account lookup the issuer needs before minting a link.
type EmailStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// MagicLinkIssuer issues and single-use-verifies passwordless login tokens.
//
// Delivery of the raw token (email send) is the caller's concern; this
// component only mints and consumes records. Requesting a link for an
// unknown email fails with ErrUserNotFound, which confirms account
// existence to the caller - acceptable only behind rate limiting.
type MagicLinkIssuer struct {
	links MagicLinkRepository
	users EmailStore
	ttl   time.Duration
}

// NewMagicLinkIssuer creates an issuer with the given link lifetime.
func NewMagicLinkIssuer(links MagicLinkRepository, users EmailStore, ttl time.Duration) *MagicLinkIssuer {
	if ttl <= 0 {
		ttl = defaultMagicLinkTTL
	}
	return &MagicLinkIssuer{
		links: links,
		users: users,
		ttl:   ttl,
	}
}

// RequestLink mints a single-use login token for the account registered
// under the email. The raw token is returned for out-of-band delivery;
// only its hash is persisted.
func (i *MagicLinkIssuer) RequestLink(ctx context.Context, email string) (string, error) {
	if _, err := i.users.GetByEmail(ctx, email); err != nil {
		return "", err
	}

	raw, err := generateSecret()
	if err != nil {
		return "", err
	}

	link := &MagicLink{
		TokenHash: HashToken(raw),
		Email:     email,
		ExpiresAt: time.Now().Add(i.ttl),
	}
	if err := i.links.Create(ctx, link); err != nil {
		return "", fmt.Errorf("persisting magic link: %w", err)
	}

	return raw, nil
}

// Verify consumes a magic link token and returns the associated email.
//
// The mark-used is atomic at the store level, so concurrent verifications
// of the same token cannot both succeed. A missing, expired, or already
// used token fails with ErrMagicLinkInvalid; the caller cannot tell which,
// on purpose.
func (i *MagicLinkIssuer) Verify(ctx context.Context, raw string) (string, error) {
	link, err := i.links.Consume(ctx, HashToken(raw))
	if err != nil {
		return "", err
	}
	return link.Email, nil
}
