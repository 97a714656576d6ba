// Passport store tests in Berserk.

package passport

import (
	"os"
	"testing"
	"time"

	"Berserk/internal/entity"
	"Berserk/internal/errors"
	"Berserk/pkg/log"

	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during passport testing.
var logger log.Logger

// Sets up resources before testing the passport store in Berserk.
func setup() {
	// Load test.env
	enverr := godotenv.Load("../../config/test.env")
	if enverr != nil {
		// Error during loading test.env, abort test run immediately
		os.Exit(4)
	}
	logger = log.New(os.Getenv("VERSION"))
}

func TestMain(m *testing.M) {
	// Setting up Resources
	setup()
	// Running the tests
	testExitCode := m.Run()
	// Exit
	os.Exit(testExitCode)
}

// Helper to issue a signed token the way the server does, sub carries the
// user id as a string.
func issueToken(t *testing.T, sub string, expiresIn time.Duration) string {
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	assert.NoError(t, err)
	return token
}

func TestStoreExtractsUserIDFromClaims(t *testing.T) {
	store := NewStore(logger)

	err := store.Set(entity.Passport{Token: issueToken(t, "7", time.Hour), DisplayName: "Guts"})
	assert.NoError(t, err)
	assert.Equal(t, 7, store.UserID())

	token, terr := store.Token()
	assert.NoError(t, terr)
	assert.NotEmpty(t, token)
}

func TestStoreRejectsMalformedToken(t *testing.T) {
	store := NewStore(logger)

	err := store.Set(entity.Passport{Token: "not-a-jwt"})
	assert.Error(t, err)
	assert.Equal(t, errors.CodeAuthMissing, errors.ErrCode(err))
	assert.Equal(t, 0, store.UserID())
}

func TestStoreExpiredTokenIsAuthMissing(t *testing.T) {
	store := NewStore(logger)

	err := store.Set(entity.Passport{Token: issueToken(t, "7", -time.Minute)})
	assert.NoError(t, err)

	_, terr := store.Token()
	assert.Error(t, terr)
	assert.Equal(t, errors.CodeAuthMissing, errors.ErrCode(terr))
}

func TestStoreClear(t *testing.T) {
	store := NewStore(logger)
	assert.NoError(t, store.Set(entity.Passport{Token: issueToken(t, "7", time.Hour)}))

	store.Clear()
	// Clearing twice is harmless
	store.Clear()

	_, terr := store.Token()
	assert.Equal(t, errors.CodeAuthMissing, errors.ErrCode(terr))
	_, ok := store.Current()
	assert.False(t, ok)
}

func TestStoreKeepsExplicitID(t *testing.T) {
	store := NewStore(logger)

	// The login response already carries the id, the claims don't override it
	err := store.Set(entity.Passport{ID: 42, Token: issueToken(t, "7", time.Hour)})
	assert.NoError(t, err)
	assert.Equal(t, 42, store.UserID())
}
