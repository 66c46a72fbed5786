package attendance

import (
	"strconv"
	"testing"
	"time"

	"meetfleet/pkg/models"

	"github.com/stretchr/testify/suite"
)

// ReconcilerTestSuite tests the attendance delta computation.
type ReconcilerTestSuite struct {
	suite.Suite
	now       time.Time
	knownUser func(int64) bool
}

func (s *ReconcilerTestSuite) SetupTest() {
	s.now = time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC)
	s.knownUser = func(id int64) bool { return id == 7 || id == 8 }
}

func userRef(id int64) models.AttendeeRef {
	return models.AttendeeRef{Kind: models.RefUser, UserID: id, Raw: "u-" + strconv.FormatInt(id, 10)}
}

func guestRef(session string) models.AttendeeRef {
	return models.AttendeeRef{Kind: models.RefGuest, SessionID: session, Raw: "g-" + session}
}

func openUserSession(id, userID int64) models.MeetingAttendee {
	return models.MeetingAttendee{ID: id, MeetingID: "m1", UserID: &userID}
}

func openGuestSession(id int64, name, session string) models.MeetingAttendee {
	return models.MeetingAttendee{ID: id, MeetingID: "m1", Name: name, SessionID: session}
}

func (s *ReconcilerTestSuite) TestNewAttendeeOpensSession() {
	live := []models.RemoteAttendee{{Ref: userRef(7), Name: "Ada"}}

	delta, anomalies := Reconcile("m1", nil, live, s.knownUser, s.now)

	s.Empty(anomalies)
	s.Empty(delta.Closes)
	s.Require().Len(delta.Opens, 1)
	s.Equal(int64(7), *delta.Opens[0].UserID)
	s.Equal(s.now, delta.Opens[0].Join)
}

func (s *ReconcilerTestSuite) TestDepartedAttendeeClosesSession() {
	open := []models.MeetingAttendee{openUserSession(41, 7)}

	delta, anomalies := Reconcile("m1", open, nil, s.knownUser, s.now)

	s.Empty(anomalies)
	s.Empty(delta.Opens)
	s.Equal([]int64{41}, delta.Closes)
}

func (s *ReconcilerTestSuite) TestMatchedPairProducesNoChange() {
	open := []models.MeetingAttendee{openUserSession(41, 7)}
	live := []models.RemoteAttendee{{Ref: userRef(7), Name: "Ada"}}

	delta, anomalies := Reconcile("m1", open, live, s.knownUser, s.now)

	s.Empty(anomalies)
	s.True(delta.Empty())
}

func (s *ReconcilerTestSuite) TestIdempotentUnderRepeatedPolling() {
	live := []models.RemoteAttendee{
		{Ref: userRef(7), Name: "Ada"},
		{Ref: guestRef("sess-1"), Name: "Guest"},
	}

	first, _ := Reconcile("m1", nil, live, s.knownUser, s.now)
	s.Len(first.Opens, 2)

	// Pretend the opens were persisted, then poll again with the same list.
	var open []models.MeetingAttendee
	for i, o := range first.Opens {
		o.ID = int64(i + 1)
		open = append(open, o)
	}
	second, _ := Reconcile("m1", open, live, s.knownUser, s.now.Add(time.Minute))
	s.True(second.Empty())
}

func (s *ReconcilerTestSuite) TestFlappingClosesAndReopens() {
	open := []models.MeetingAttendee{openGuestSession(9, "Bob", "sess-2")}

	// Gone on this poll: exactly one close.
	gone, _ := Reconcile("m1", open, nil, s.knownUser, s.now)
	s.Equal([]int64{9}, gone.Closes)
	s.Empty(gone.Opens)

	// Back on the next poll with the same session key: exactly one open,
	// never a resurrection of the closed row.
	back, _ := Reconcile("m1", nil, []models.RemoteAttendee{{Ref: guestRef("sess-2"), Name: "Bob"}}, s.knownUser, s.now.Add(time.Minute))
	s.Empty(back.Closes)
	s.Require().Len(back.Opens, 1)
	s.Equal("sess-2", back.Opens[0].SessionID)
}

func (s *ReconcilerTestSuite) TestGuestsDistinguishedBySessionID() {
	open := []models.MeetingAttendee{openGuestSession(1, "Guest", "sess-a")}
	live := []models.RemoteAttendee{
		{Ref: guestRef("sess-a"), Name: "Guest"},
		{Ref: guestRef("sess-b"), Name: "Guest"},
	}

	delta, _ := Reconcile("m1", open, live, s.knownUser, s.now)

	s.Empty(delta.Closes)
	s.Require().Len(delta.Opens, 1)
	s.Equal("sess-b", delta.Opens[0].SessionID)
}

func (s *ReconcilerTestSuite) TestUnknownUserReferenceSkipped() {
	live := []models.RemoteAttendee{{Ref: userRef(999), Name: "Stranger"}}

	delta, anomalies := Reconcile("m1", nil, live, s.knownUser, s.now)

	s.True(delta.Empty())
	s.Require().Len(anomalies, 1)
	s.Equal(UnknownUserReference, anomalies[0].Kind)
	s.Equal("m1", anomalies[0].MeetingID)
}

func (s *ReconcilerTestSuite) TestUnknownPrefixSkipped() {
	live := []models.RemoteAttendee{{
		Ref:  models.AttendeeRef{Kind: models.RefUnknown, Raw: "x-whatever"},
		Name: "Odd",
	}}

	delta, anomalies := Reconcile("m1", nil, live, s.knownUser, s.now)

	s.True(delta.Empty())
	s.Require().Len(anomalies, 1)
	s.Equal(UnknownPrefix, anomalies[0].Kind)
	s.Equal("x-whatever", anomalies[0].Raw)
}

func (s *ReconcilerTestSuite) TestDuplicateLiveEntriesOpenOnce() {
	live := []models.RemoteAttendee{
		{Ref: userRef(7), Name: "Ada"},
		{Ref: userRef(7), Name: "Ada"},
	}

	delta, _ := Reconcile("m1", nil, live, s.knownUser, s.now)
	s.Len(delta.Opens, 1)
}

func TestReconcilerTestSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerTestSuite))
}
