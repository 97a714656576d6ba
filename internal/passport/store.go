// Session passport store of Berserk.
// Owns the current login identity and acts as the token provider for the
// global channel and the REST layer.

package passport

import (
	"strconv"
	"sync"
	"time"

	"Berserk/internal/entity"
	"Berserk/internal/errors"
	"Berserk/pkg/log"

	"github.com/golang-jwt/jwt/v4"
)

// Provider is the token provider interface consumed by the sync core.
type Provider interface {
	// Token returns the current session token, or AuthMissing if the user
	// is logged out or the token has expired.
	Token() (string, error)
	// UserID returns the logged-in user's id, 0 when logged out.
	// The reconciliation engine needs it to recognize its own socket echoes.
	UserID() int
}

// Store holds the session passport for the lifetime of a login.
type Store struct {
	mu      sync.RWMutex
	current *entity.Passport
	expiry  time.Time
	logger  log.Logger
}

// Returns a new empty passport store.
func NewStore(logger log.Logger) *Store {
	return &Store{logger: logger}
}

// Set installs a passport after a successful login.
// The user id and expiry are read out of the JWT claims. The signature is
// NOT verified here, the server did that when it issued the token.
func (s *Store) Set(p entity.Passport) error {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(p.Token, &claims)
	if err != nil {
		s.logger.Error().Err(err).Msg("Couldn't decode passport token claims")
		return errors.AuthMissing("The session token is not a valid JWT.")
	}
	// The server puts the user id into the sub claim as a string
	if p.ID == 0 && claims.Subject != "" {
		id, converr := strconv.Atoi(claims.Subject)
		if converr != nil {
			s.logger.Error().Err(converr).Msg("Passport token sub claim is not numeric")
			return errors.AuthMissing("The session token carries no user id.")
		}
		p.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &p
	if claims.ExpiresAt != nil {
		s.expiry = claims.ExpiresAt.Time
	} else {
		s.expiry = time.Time{}
	}
	s.logger.Info().Msgf("Passport set for brawler %d (%s)", p.ID, p.DisplayName)
	return nil
}

// Clear drops the passport on logout. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.expiry = time.Time{}
}

// Token returns the current session token as required by Provider.
func (s *Store) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Token == "" {
		return "", errors.AuthMissing("")
	}
	if !s.expiry.IsZero() && time.Now().After(s.expiry) {
		return "", errors.AuthMissing("The session token has expired.")
	}
	return s.current.Token, nil
}

// UserID returns the logged-in user's id as required by Provider.
func (s *Store) UserID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.ID
}

// Current returns a copy of the passport, ok reports whether one is set.
func (s *Store) Current() (entity.Passport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return entity.Passport{}, false
	}
	return *s.current, true
}
