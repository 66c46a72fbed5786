package remote

// responseEnvelope is implemented by every decoded control response so the
// shared call path can check the return code and extract failure details.
type responseEnvelope interface {
	returncode() string
	failure() (messageKey, message string)
}

type baseResponse struct {
	Returncode string `xml:"returncode"`
	MessageKey string `xml:"messageKey"`
	Message    string `xml:"message"`
}

func (r *baseResponse) returncode() string { return r.Returncode }

func (r *baseResponse) failure() (string, string) {
	key := r.MessageKey
	if key == "" {
		key = "unknownError"
	}
	return key, r.Message
}

type xmlAttendee struct {
	UserID   string `xml:"userID"`
	FullName string `xml:"fullName"`
}

type xmlMeeting struct {
	MeetingID             string        `xml:"meetingID"`
	ParticipantCount      int           `xml:"participantCount"`
	ListenerCount         int           `xml:"listenerCount"`
	VoiceParticipantCount int           `xml:"voiceParticipantCount"`
	VideoCount            int           `xml:"videoCount"`
	Attendees             []xmlAttendee `xml:"attendees>attendee"`
}

type meetingsResponse struct {
	baseResponse
	XMLName  struct{}     `xml:"response"`
	Meetings []xmlMeeting `xml:"meetings>meeting"`
}

type versionResponse struct {
	baseResponse
	XMLName struct{} `xml:"response"`
	Version string   `xml:"version"`
}

type endResponse struct {
	baseResponse
	XMLName struct{} `xml:"response"`
}

type createResponse struct {
	baseResponse
	XMLName           struct{} `xml:"response"`
	MeetingID         string   `xml:"meetingID"`
	InternalMeetingID string   `xml:"internalMeetingID"`
}
