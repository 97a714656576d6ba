// REST client tests in Berserk.

package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"Berserk/internal/entity"
	"Berserk/internal/errors"
	"Berserk/pkg/log"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during REST client testing.
var logger log.Logger

// Global context
var ctx context.Context = context.Background()

// fakePassport is a stub token provider for a logged-in test user.
type fakePassport struct{}

func (fakePassport) Token() (string, error) {
	return "test-token", nil
}

func (fakePassport) UserID() int {
	return 3
}

// Sets up resources before testing the REST client in Berserk.
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

func TestAddCommentReturnsServerRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/comment/9", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		payload := entity.AddComment{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "hi", payload.Content)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(entity.MissionComment{
			ID: 501, MissionID: 9, BrawlerID: 3, Content: payload.Content,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, fakePassport{}, logger)
	comment, err := client.AddComment(ctx, 9, "hi")
	assert.NoError(t, err)
	assert.Equal(t, 501, comment.ID)
	assert.Equal(t, 9, comment.MissionID)
}

func TestAddCommentServerErrorIsSendFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, fakePassport{}, logger)
	_, err := client.AddComment(ctx, 9, "hi")
	assert.Error(t, err)
	assert.Equal(t, errors.CodeSendFailed, errors.ErrCode(err))
}

func TestAddCommentValidatesContent(t *testing.T) {
	client := NewClient("http://localhost:0", fakePassport{}, logger)

	// An empty message never leaves the client
	_, err := client.AddComment(ctx, 9, "")
	assert.Error(t, err)
	assert.Equal(t, errors.CodeInternal, errors.ErrCode(err))
}

func TestNotificationOperations(t *testing.T) {
	var markedRead, markedAll, cleared bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications":
			json.NewEncoder(w).Encode([]entity.Notification{
				{ID: 1, Type: "mission_started", IsRead: false},
				{ID: 2, Type: "friend_request", IsRead: true},
			})
		case r.Method == http.MethodPatch && r.URL.Path == "/api/notifications/1/read":
			markedRead = true
		case r.Method == http.MethodPatch && r.URL.Path == "/api/notifications/mark-all-read":
			markedAll = true
		case r.Method == http.MethodDelete && r.URL.Path == "/api/notifications":
			cleared = true
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, fakePassport{}, logger)

	notifications, err := client.Notifications(ctx)
	assert.NoError(t, err)
	assert.Len(t, notifications, 2)

	assert.NoError(t, client.MarkNotificationRead(ctx, 1))
	assert.NoError(t, client.MarkAllNotificationsRead(ctx))
	assert.NoError(t, client.ClearNotifications(ctx))
	assert.True(t, markedRead)
	assert.True(t, markedAll)
	assert.True(t, cleared)
}

func TestUnauthorizedIsAuthMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, fakePassport{}, logger)
	_, err := client.Notifications(ctx)
	assert.Error(t, err)
	assert.Equal(t, errors.CodeAuthMissing, errors.ErrCode(err))
}
