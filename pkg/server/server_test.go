package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"meetfleet/pkg/balancer"
	"meetfleet/pkg/models"
	"meetfleet/pkg/poller"
	"meetfleet/pkg/reconciler"
	"meetfleet/pkg/remote"
	"meetfleet/pkg/store"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"
)

// fakeClient is a scripted control client for handler tests.
type fakeClient struct {
	meetings  map[int64][]models.RemoteMeeting
	listErr   map[int64]error
	createErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		meetings: make(map[int64][]models.RemoteMeeting),
		listErr:  make(map[int64]error),
	}
}

func (f *fakeClient) ListMeetings(ctx context.Context, server *models.Server) ([]models.RemoteMeeting, error) {
	if err := f.listErr[server.ID]; err != nil {
		return nil, err
	}
	return f.meetings[server.ID], nil
}

func (f *fakeClient) GetVersion(ctx context.Context, server *models.Server) (string, error) {
	return "2.7.4", nil
}

func (f *fakeClient) EndMeeting(ctx context.Context, server *models.Server, meetingID string) error {
	return nil
}

func (f *fakeClient) CreateMeeting(ctx context.Context, server *models.Server, p remote.CreateParams) (*models.CreateAck, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.CreateAck{MeetingID: p.MeetingID}, nil
}

type ServerTestSuite struct {
	suite.Suite
	tempDir string
	store   *store.Store
	client  *fakeClient
	server  *Server
	ctx     context.Context
}

func (s *ServerTestSuite) SetupSuite() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "server-test-*")
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *ServerTestSuite) TearDownSuite() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

func (s *ServerTestSuite) SetupTest() {
	dbPath := filepath.Join(s.tempDir, "test.db")
	os.Remove(dbPath)

	var err error
	s.store, err = store.NewStore(dbPath)
	s.Require().NoError(err)

	s.client = newFakeClient()
	service := reconciler.New(s.store, s.client, balancer.New(s.store), reconciler.DefaultConfig())
	fleetPoller := poller.New(s.store, service, time.Minute, 2)
	s.server = NewServer(s.store, service, fleetPoller, time.Second)
	s.server.setupRoutes()
}

func (s *ServerTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *ServerTestSuite) newServer(name string) *models.Server {
	srv := &models.Server{Name: name, URL: "https://" + name + ".example.com", Secret: "secret"}
	s.Require().NoError(s.store.CreateServer(s.ctx, srv))
	return srv
}

func (s *ServerTestSuite) jsonRequest(method, path, body string) (*httptest.ResponseRecorder, echo.Context) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return rec, s.server.echo.NewContext(req, rec)
}

func (s *ServerTestSuite) TestHealth() {
	rec, c := s.jsonRequest(http.MethodGet, "/health", "")
	s.Require().NoError(s.server.HealthHandler(c))
	s.Equal(http.StatusOK, rec.Code)
}

func (s *ServerTestSuite) TestListServers() {
	s.newServer("node1")
	s.newServer("node2")

	rec, c := s.jsonRequest(http.MethodGet, "/api/servers", "")
	s.Require().NoError(s.server.ListServersHandler(c))
	s.Equal(http.StatusOK, rec.Code)

	var servers []models.Server
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &servers))
	s.Len(servers, 2)
	s.NotContains(rec.Body.String(), "secret", "shared secret never leaves the API")
}

func (s *ServerTestSuite) TestGetServerNotFound() {
	rec, c := s.jsonRequest(http.MethodGet, "/api/servers/99", "")
	c.SetParamNames("id")
	c.SetParamValues("99")
	s.Require().NoError(s.server.GetServerHandler(c))
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerTestSuite) TestGetServerInvalidID() {
	rec, c := s.jsonRequest(http.MethodGet, "/api/servers/abc", "")
	c.SetParamNames("id")
	c.SetParamValues("abc")
	s.Require().NoError(s.server.GetServerHandler(c))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerTestSuite) TestPanic() {
	srv := s.newServer("node1")
	room := &models.Room{Name: "Planning"}
	s.Require().NoError(s.store.CreateRoom(s.ctx, room))
	meeting := &models.Meeting{ID: "m-1", RoomID: room.ID, ServerID: &srv.ID, Start: time.Now().UTC()}
	s.Require().NoError(s.store.CreateMeeting(s.ctx, meeting))

	id := strconv.FormatInt(srv.ID, 10)
	rec, c := s.jsonRequest(http.MethodPost, "/api/servers/"+id+"/panic", "")
	c.SetParamNames("id")
	c.SetParamValues(id)
	s.Require().NoError(s.server.PanicHandler(c))
	s.Equal(http.StatusOK, rec.Code)

	var result models.PanicResult
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &result))
	s.Equal(1, result.Total)
	s.Equal(1, result.Success)

	got, err := s.store.GetServer(s.ctx, srv.ID)
	s.Require().NoError(err)
	s.Equal(models.ServerDisabled, got.Status)
}

func (s *ServerTestSuite) TestPoll() {
	srv := s.newServer("node1")
	id := strconv.FormatInt(srv.ID, 10)

	rec, c := s.jsonRequest(http.MethodPost, "/api/servers/"+id+"/poll", "")
	c.SetParamNames("id")
	c.SetParamValues(id)
	s.Require().NoError(s.server.PollHandler(c))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "reconciled")
}

func (s *ServerTestSuite) TestStartMeeting() {
	srv := s.newServer("node1")
	pool, err := s.store.CreatePool(s.ctx, "default")
	s.Require().NoError(err)
	s.Require().NoError(s.store.AddServerToPool(s.ctx, pool.ID, srv.ID))
	s.Require().NoError(s.store.ApplyServerCycle(s.ctx, store.CycleUpdate{
		ServerID: srv.ID, Health: models.HealthOnline, Usage: &store.Usage{},
	}))

	room := &models.Room{Name: "Planning"}
	s.Require().NoError(s.store.CreateRoom(s.ctx, room))
	id := strconv.FormatInt(room.ID, 10)

	body := `{"pool_id": ` + strconv.FormatInt(pool.ID, 10) + `}`
	rec, c := s.jsonRequest(http.MethodPost, "/api/rooms/"+id+"/start", body)
	c.SetParamNames("id")
	c.SetParamValues(id)
	s.Require().NoError(s.server.StartMeetingHandler(c))
	s.Equal(http.StatusCreated, rec.Code)

	var meeting models.Meeting
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &meeting))
	s.Equal(srv.ID, *meeting.ServerID)

	// Same room again: conflict.
	rec, c = s.jsonRequest(http.MethodPost, "/api/rooms/"+id+"/start", body)
	c.SetParamNames("id")
	c.SetParamValues(id)
	s.Require().NoError(s.server.StartMeetingHandler(c))
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *ServerTestSuite) TestStartMeetingNoCapacity() {
	srv := s.newServer("node1")
	s.Require().NoError(s.store.SetServerStatus(s.ctx, srv.ID, models.ServerDisabled))
	pool, err := s.store.CreatePool(s.ctx, "default")
	s.Require().NoError(err)
	s.Require().NoError(s.store.AddServerToPool(s.ctx, pool.ID, srv.ID))

	room := &models.Room{Name: "Planning"}
	s.Require().NoError(s.store.CreateRoom(s.ctx, room))
	id := strconv.FormatInt(room.ID, 10)

	body := `{"pool_id": ` + strconv.FormatInt(pool.ID, 10) + `}`
	rec, c := s.jsonRequest(http.MethodPost, "/api/rooms/"+id+"/start", body)
	c.SetParamNames("id")
	c.SetParamValues(id)
	s.Require().NoError(s.server.StartMeetingHandler(c))
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *ServerTestSuite) TestStartMeetingMissingPool() {
	rec, c := s.jsonRequest(http.MethodPost, "/api/rooms/1/start", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("1")
	s.Require().NoError(s.server.StartMeetingHandler(c))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
