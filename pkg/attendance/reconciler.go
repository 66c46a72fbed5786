// Package attendance computes the join/leave session delta between the
// locally recorded open attendee sessions of a meeting and the live
// attendee list reported by its server. It holds no state and performs no
// I/O; the caller persists the returned delta.
package attendance

import (
	"strconv"
	"time"

	"meetfleet/pkg/models"
)

// Delta is the set of session changes one reconciliation produced.
// Opens are new rows to insert; Closes are existing row IDs whose leave
// timestamp must be stamped with the poll time.
type Delta struct {
	Opens  []models.MeetingAttendee
	Closes []int64
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.Opens) == 0 && len(d.Closes) == 0
}

// AnomalyKind classifies a non-fatal attendee record problem.
type AnomalyKind int

const (
	// UnknownUserReference means a live attendee's user id does not
	// resolve to a local user. The attendee is skipped.
	UnknownUserReference AnomalyKind = iota
	// UnknownPrefix means the attendee identifier encoding was not
	// recognized. The attendee is skipped.
	UnknownPrefix
)

// Anomaly is a recoverable oddity found while matching attendees. Anomalies
// are reported to the caller for logging and never abort a cycle.
type Anomaly struct {
	Kind      AnomalyKind
	MeetingID string
	Raw       string
	Name      string
}

// sessionKey produces the identity under which sessions are matched:
// registered users match by user id, guests by display name plus session id.
func sessionKey(userID *int64, name, sessionID string) string {
	if userID != nil {
		return "u\x00" + strconv.FormatInt(*userID, 10)
	}
	return "g\x00" + name + "\x00" + sessionID
}

// Reconcile matches the previously open sessions of a meeting against the
// live attendee list and returns the delta to persist. knownUser reports
// whether a local user id exists; attendees referencing unknown users are
// skipped and reported as anomalies rather than recorded.
//
// The computation is idempotent: feeding the same live list twice yields an
// empty delta the second time. A session that disappears and reappears
// between polls is closed and reopened as a new row; closed sessions are
// never resurrected.
func Reconcile(meetingID string, open []models.MeetingAttendee, live []models.RemoteAttendee, knownUser func(int64) bool, now time.Time) (Delta, []Anomaly) {
	var delta Delta
	var anomalies []Anomaly

	openByKey := make(map[string]*models.MeetingAttendee, len(open))
	for i := range open {
		a := &open[i]
		openByKey[sessionKey(a.UserID, a.Name, a.SessionID)] = a
	}

	seen := make(map[string]bool, len(live))
	for _, a := range live {
		var key string
		var userID *int64

		switch a.Ref.Kind {
		case models.RefUser:
			if knownUser == nil || !knownUser(a.Ref.UserID) {
				anomalies = append(anomalies, Anomaly{
					Kind:      UnknownUserReference,
					MeetingID: meetingID,
					Raw:       a.Ref.Raw,
					Name:      a.Name,
				})
				continue
			}
			id := a.Ref.UserID
			userID = &id
			key = sessionKey(userID, "", "")
		case models.RefGuest:
			key = sessionKey(nil, a.Name, a.Ref.SessionID)
		default:
			anomalies = append(anomalies, Anomaly{
				Kind:      UnknownPrefix,
				MeetingID: meetingID,
				Raw:       a.Ref.Raw,
				Name:      a.Name,
			})
			continue
		}

		if seen[key] {
			continue
		}
		seen[key] = true

		if _, ok := openByKey[key]; ok {
			continue
		}

		delta.Opens = append(delta.Opens, models.MeetingAttendee{
			MeetingID: meetingID,
			UserID:    userID,
			Name:      a.Name,
			SessionID: a.Ref.SessionID,
			Join:      now,
		})
	}

	for key, session := range openByKey {
		if !seen[key] {
			delta.Closes = append(delta.Closes, session.ID)
		}
	}

	return delta, anomalies
}
