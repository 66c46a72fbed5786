package remote

import (
	"strconv"
	"strings"

	"meetfleet/pkg/models"
)

const (
	userRefPrefix  = "u-"
	guestRefPrefix = "g-"
)

// EncodeUserRef builds the attendee identifier a registered user joins with.
func EncodeUserRef(userID int64) string {
	return userRefPrefix + strconv.FormatInt(userID, 10)
}

// EncodeGuestRef builds the attendee identifier a guest session joins with.
func EncodeGuestRef(sessionID string) string {
	return guestRefPrefix + sessionID
}

// DecodeAttendeeRef parses a reported attendee identifier. Identifiers are
// "u-<local user id>" for registered users and "g-<session id>" for guests;
// anything else decodes as RefUnknown and is surfaced as an anomaly by the
// attendance reconciler.
func DecodeAttendeeRef(raw string) models.AttendeeRef {
	switch {
	case strings.HasPrefix(raw, userRefPrefix):
		id, err := strconv.ParseInt(raw[len(userRefPrefix):], 10, 64)
		if err != nil {
			return models.AttendeeRef{Kind: models.RefUnknown, Raw: raw}
		}
		return models.AttendeeRef{Kind: models.RefUser, UserID: id, Raw: raw}
	case strings.HasPrefix(raw, guestRefPrefix):
		session := raw[len(guestRefPrefix):]
		if session == "" {
			return models.AttendeeRef{Kind: models.RefUnknown, Raw: raw}
		}
		return models.AttendeeRef{Kind: models.RefGuest, SessionID: session, Raw: raw}
	default:
		return models.AttendeeRef{Kind: models.RefUnknown, Raw: raw}
	}
}
