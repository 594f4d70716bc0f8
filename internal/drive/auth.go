package drive

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
	"golang.org/x/sync/singleflight"

	"github.com/nytimes/library-sub000/internal/logging"
)

const (
	driveScope     = "https://www.googleapis.com/auth/drive.readonly"
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

// TokenProvider acquires service-account credentials for the drive API.
// Concurrent first-time acquisitions are coalesced into one token request;
// the token is then cached and refreshed transparently for the process
// lifetime.
type TokenProvider struct {
	cfg *jwt.Config

	sf  singleflight.Group
	mu  sync.Mutex
	tok *oauth2.Token
}

// NewTokenProvider builds a provider from service-account credentials.
// subject optionally names a user to impersonate.
func NewTokenProvider(clientEmail string, privateKey []byte, subject string) (*TokenProvider, error) {
	if clientEmail == "" || len(privateKey) == 0 {
		return nil, fmt.Errorf("service account email and private key are required")
	}
	return &TokenProvider{
		cfg: &jwt.Config{
			Email:      clientEmail,
			PrivateKey: privateKey,
			Scopes:     []string{driveScope},
			TokenURL:   googleTokenURL,
			Subject:    subject,
		},
	}, nil
}

// Token implements oauth2.TokenSource with single-flight acquisition.
func (p *TokenProvider) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	tok := p.tok
	p.mu.Unlock()
	if tok.Valid() {
		return tok, nil
	}

	v, err, _ := p.sf.Do("token", func() (interface{}, error) {
		p.mu.Lock()
		tok := p.tok
		p.mu.Unlock()
		if tok.Valid() {
			return tok, nil
		}

		logging.Debug("acquiring drive API token")
		fresh, err := p.cfg.TokenSource(context.Background()).Token()
		if err != nil {
			return nil, fmt.Errorf("acquire token: %w", err)
		}

		p.mu.Lock()
		p.tok = fresh
		p.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}
