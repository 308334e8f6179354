package client

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// fileTokenSource reads a JWT from disk on every call. The signature is not
// verified here; the server does that. Only the expiry is inspected so an
// expired token fails before any request is made.
type fileTokenSource struct {
	path string
	now  func() time.Time
}

// NewFileTokenSource returns a token source backed by the JWT stored at path.
// Tokens are reused until they expire, then the file is read again, which
// picks up a token refreshed by another process.
func NewFileTokenSource(path string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &fileTokenSource{path: path, now: time.Now})
}

func (s *fileTokenSource) Token() (*oauth2.Token, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read token file: %w", common.ErrInvalidToken, err)
	}
	raw := strings.TrimSpace(string(b))
	if raw == "" {
		return nil, common.ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if claims.ExpiresAt != nil {
		tok.Expiry = claims.ExpiresAt.Time
		if !tok.Expiry.After(s.now()) {
			return nil, common.ErrTokenExpired
		}
	}
	return tok, nil
}
