// Package remote implements the control-protocol client for the external
// conferencing servers. Requests are HTTP GETs against the server's /api
// endpoint, signed with a SHA-1 checksum of the action name, the query
// string and the server's shared secret; responses are XML envelopes with a
// SUCCESS/FAILED return code.
package remote

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meetfleet/pkg/log"
	"meetfleet/pkg/models"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	actionGetMeetings   = "getMeetings"
	actionGetAPIVersion = "getApiVersion"
	actionEnd           = "end"
	actionCreate        = "create"

	returncodeSuccess = "SUCCESS"

	messageKeyNotFound = "notFound"
)

// Client talks the control protocol to one server at a time. It is
// stateless and safe for concurrent use across servers.
type Client struct {
	http    *retryablehttp.Client
	timeout time.Duration
}

// NewClient creates a control client. Retries apply only to
// connection-level failures; protocol-level failures are never retried.
func NewClient(timeout time.Duration, retryMax int, retryWaitMin, retryWaitMax time.Duration) *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.Logger = nil
	client.CheckRetry = connectionOnlyRetryPolicy
	return &Client{http: client, timeout: timeout}
}

// connectionOnlyRetryPolicy retries when no response was received at all.
// A response, whatever its status, is handed back so the protocol layer can
// classify it instead of being retried into a generic error.
func connectionOnlyRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp reports the final error itself
	}
	return false, nil
}

// CreateParams carries the inputs of a create call.
type CreateParams struct {
	MeetingID string
	Name      string
	Record    bool
}

// ListMeetings asks a server for its live meeting list. Disabled servers
// short-circuit locally with ErrServerDisabled; draining servers are still
// polled so their drain progress can be observed.
func (c *Client) ListMeetings(ctx context.Context, server *models.Server) ([]models.RemoteMeeting, error) {
	if server.Status == models.ServerDisabled {
		return nil, ErrServerDisabled
	}

	var resp meetingsResponse
	if err := c.call(ctx, server, actionGetMeetings, nil, &resp); err != nil {
		return nil, err
	}

	meetings := make([]models.RemoteMeeting, 0, len(resp.Meetings))
	for _, m := range resp.Meetings {
		remote := models.RemoteMeeting{
			MeetingID:             m.MeetingID,
			ParticipantCount:      m.ParticipantCount,
			ListenerCount:         m.ListenerCount,
			VoiceParticipantCount: m.VoiceParticipantCount,
			VideoCount:            m.VideoCount,
		}
		for _, a := range m.Attendees {
			remote.Attendees = append(remote.Attendees, models.RemoteAttendee{
				Ref:  DecodeAttendeeRef(a.UserID),
				Name: a.FullName,
			})
		}
		meetings = append(meetings, remote)
	}
	return meetings, nil
}

// GetVersion asks a server for its software version.
func (c *Client) GetVersion(ctx context.Context, server *models.Server) (string, error) {
	if server.Status == models.ServerDisabled {
		return "", ErrServerDisabled
	}

	var resp versionResponse
	if err := c.call(ctx, server, actionGetAPIVersion, nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// EndMeeting force-ends one meeting on a server. It works regardless of the
// server's administrative status: the panic drain disables a server first
// and then ends its meetings.
func (c *Client) EndMeeting(ctx context.Context, server *models.Server, meetingID string) error {
	params := url.Values{}
	params.Set("meetingID", meetingID)

	var resp endResponse
	err := c.call(ctx, server, actionEnd, params, &resp)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.MessageKey == messageKeyNotFound {
		return fmt.Errorf("%w: %s", ErrMeetingNotFound, meetingID)
	}
	return err
}

// CreateMeeting starts a new meeting on a server. Disabled and draining
// servers are refused locally; the balancer should never have picked them.
func (c *Client) CreateMeeting(ctx context.Context, server *models.Server, p CreateParams) (*models.CreateAck, error) {
	switch server.Status {
	case models.ServerDisabled:
		return nil, ErrServerDisabled
	case models.ServerDraining:
		return nil, ErrServerDraining
	}

	params := url.Values{}
	params.Set("meetingID", p.MeetingID)
	params.Set("name", p.Name)
	if p.Record {
		params.Set("record", "true")
	}

	var resp createResponse
	if err := c.call(ctx, server, actionCreate, params, &resp); err != nil {
		return nil, err
	}
	return &models.CreateAck{MeetingID: resp.MeetingID, InternalID: resp.InternalMeetingID}, nil
}

// call performs one signed control request and decodes the XML envelope.
func (c *Client) call(ctx context.Context, server *models.Server, action string, params url.Values, out responseEnvelope) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := signedURL(server, action, params)
	req, err := retryablehttp.NewRequestWithContext(reqCtx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeoutOrConnectionError(err) {
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return fmt.Errorf("control request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Str("server", server.URL).Msg("Failed to close control response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeoutOrConnectionError(err) {
			return fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
		}
		return fmt.Errorf("reading response: %w", err)
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return &APIError{MessageKey: "malformedResponse", Message: err.Error()}
	}

	if rc := out.returncode(); rc != returncodeSuccess {
		key, msg := out.failure()
		return &APIError{MessageKey: key, Message: msg}
	}
	return nil
}

// maxResponseBytes bounds a control response. Meeting lists are small; a
// multi-megabyte response indicates a misbehaving endpoint.
const maxResponseBytes = 8 << 20

// signedURL builds the checksum-signed request URL for an action.
func signedURL(server *models.Server, action string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()

	sum := sha1.Sum([]byte(action + query + server.Secret))
	checksum := hex.EncodeToString(sum[:])

	base := strings.TrimRight(server.URL, "/")
	if query != "" {
		return base + "/api/" + action + "?" + query + "&checksum=" + checksum
	}
	return base + "/api/" + action + "?checksum=" + checksum
}

// isTimeoutOrConnectionError reports whether err is a transport-level
// failure as opposed to a protocol-level rejection.
func isTimeoutOrConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
