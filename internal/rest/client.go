// REST collaborator of the sync core.
// Issues the authenticated HTTP calls whose responses carry the
// server-assigned records used to confirm optimistic sends.

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"Berserk/internal/entity"
	"Berserk/internal/errors"
	"Berserk/internal/passport"
	"Berserk/pkg/log"

	"github.com/asaskevich/govalidator"
)

// Client calls the Berserk REST API with the session token attached.
type Client struct {
	baseURL string
	tokens  passport.Provider
	http    *http.Client
	logger  log.Logger
}

// Returns a new REST client rooted at baseURL, e.g. http://localhost:8000.
func NewClient(baseURL string, tokens passport.Provider, logger log.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// AddComment posts one message to a mission room and returns the
// server-assigned record, the REST acknowledgement of an optimistic send.
func (c *Client) AddComment(ctx context.Context, missionID int, content string) (entity.MissionComment, error) {
	comment := entity.MissionComment{}
	payload := entity.AddComment{Content: content}
	if valerr := c.validate(payload); valerr != nil {
		return comment, valerr
	}
	url := fmt.Sprintf("%s/api/comment/%d", c.baseURL, missionID)
	if err := c.do(ctx, http.MethodPost, url, payload, &comment); err != nil {
		return comment, errors.SendFailed("")
	}
	return comment, nil
}

// Comments fetches the full message history of a mission room.
func (c *Client) Comments(ctx context.Context, missionID int) ([]entity.MissionComment, error) {
	comments := []entity.MissionComment{}
	url := fmt.Sprintf("%s/api/comment/%d", c.baseURL, missionID)
	if err := c.do(ctx, http.MethodGet, url, nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// ClearComments deletes the message history of a mission room.
// The server broadcasts a clear_chat frame to everyone in the room.
func (c *Client) ClearComments(ctx context.Context, missionID int) error {
	url := fmt.Sprintf("%s/api/comment/%d", c.baseURL, missionID)
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

// SendPrivateMessage sends one direct message and returns the
// server-assigned record.
func (c *Client) SendPrivateMessage(ctx context.Context, receiverID int, content string) (entity.PrivateMessage, error) {
	msg := entity.PrivateMessage{}
	payload := entity.AddPrivateMessage{ReceiverID: receiverID, Content: content}
	if valerr := c.validate(payload); valerr != nil {
		return msg, valerr
	}
	url := fmt.Sprintf("%s/api/chat", c.baseURL)
	if err := c.do(ctx, http.MethodPost, url, payload, &msg); err != nil {
		return msg, errors.SendFailed("")
	}
	return msg, nil
}

// Notifications fetches the persisted notification history.
func (c *Client) Notifications(ctx context.Context) ([]entity.Notification, error) {
	notifications := []entity.Notification{}
	url := fmt.Sprintf("%s/api/notifications", c.baseURL)
	if err := c.do(ctx, http.MethodGet, url, nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int) error {
	url := fmt.Sprintf("%s/api/notifications/%d/read", c.baseURL, id)
	return c.do(ctx, http.MethodPatch, url, nil, nil)
}

// MarkAllNotificationsRead marks every notification as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/notifications/mark-all-read", c.baseURL)
	return c.do(ctx, http.MethodPatch, url, nil, nil)
}

// ClearNotifications deletes the notification history.
func (c *Client) ClearNotifications(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/notifications", c.baseURL)
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

// validate checks a request payload against its validation-tags.
func (c *Client) validate(payload interface{}) error {
	_, valerr := govalidator.ValidateStruct(payload)
	if valerr != nil {
		verrs := valerr.(govalidator.Errors).Errors()
		return errors.GenerateValidationError(verrs)
	}
	return nil
}

// do issues one authenticated request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, merr := json.Marshal(body)
		if merr != nil {
			c.logger.Error().Err(merr).Msgf("Couldn't encode request body for %s %s", method, url)
			return errors.InternalError("")
		}
		reader = bytes.NewReader(encoded)
	}

	req, rerr := http.NewRequestWithContext(ctx, method, url, reader)
	if rerr != nil {
		c.logger.Error().Err(rerr).Msgf("Couldn't build request for %s %s", method, url)
		return errors.InternalError("")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, terr := c.tokens.Token()
	if terr != nil {
		// No session, surfaced as AuthMissing
		return terr
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, derr := c.http.Do(req)
	if derr != nil {
		c.logger.Error().Err(derr).Msgf("Request %s %s failed", method, url)
		return errors.InternalError("")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error().Msgf("Request %s %s returned status %d", method, url, resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized {
			return errors.AuthMissing("The server rejected the session token.")
		}
		return errors.InternalError(fmt.Sprintf("The server returned status %d.", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if decerr := json.NewDecoder(resp.Body).Decode(out); decerr != nil {
		c.logger.Error().Err(decerr).Msgf("Couldn't decode response of %s %s", method, url)
		return errors.InternalError("")
	}
	return nil
}
