package poller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meetfleet/pkg/balancer"
	"meetfleet/pkg/models"
	"meetfleet/pkg/reconciler"
	"meetfleet/pkg/remote"
	"meetfleet/pkg/store"

	"github.com/stretchr/testify/suite"
)

// fakeClient is a concurrency-safe scripted control client.
type fakeClient struct {
	mu       sync.Mutex
	meetings map[int64][]models.RemoteMeeting
	listErr  map[int64]error
	endErr   map[string]error
	ended    []string
	block    chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		meetings: make(map[int64][]models.RemoteMeeting),
		listErr:  make(map[int64]error),
		endErr:   make(map[string]error),
	}
}

func (f *fakeClient) ListMeetings(ctx context.Context, server *models.Server) ([]models.RemoteMeeting, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[server.ID]; err != nil {
		return nil, err
	}
	return f.meetings[server.ID], nil
}

func (f *fakeClient) GetVersion(ctx context.Context, server *models.Server) (string, error) {
	return "2.7.4", nil
}

func (f *fakeClient) EndMeeting(ctx context.Context, server *models.Server, meetingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.endErr[meetingID]; err != nil {
		return err
	}
	f.ended = append(f.ended, meetingID)
	return nil
}

func (f *fakeClient) CreateMeeting(ctx context.Context, server *models.Server, p remote.CreateParams) (*models.CreateAck, error) {
	return &models.CreateAck{MeetingID: p.MeetingID}, nil
}

type PollerTestSuite struct {
	suite.Suite
	tempDir string
	store   *store.Store
	client  *fakeClient
	poller  *FleetPoller
	ctx     context.Context
}

func (s *PollerTestSuite) SetupSuite() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "poller-test-*")
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *PollerTestSuite) TearDownSuite() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

func (s *PollerTestSuite) SetupTest() {
	dbPath := filepath.Join(s.tempDir, "test.db")
	os.Remove(dbPath)

	var err error
	s.store, err = store.NewStore(dbPath)
	s.Require().NoError(err)

	s.client = newFakeClient()
	service := reconciler.New(s.store, s.client, balancer.New(s.store), reconciler.DefaultConfig())
	s.poller = New(s.store, service, time.Minute, 2)
}

func (s *PollerTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *PollerTestSuite) newServer(name string) *models.Server {
	srv := &models.Server{Name: name, URL: "https://" + name + ".example.com", Secret: "secret"}
	s.Require().NoError(s.store.CreateServer(s.ctx, srv))
	return srv
}

func (s *PollerTestSuite) newRunningMeeting(id string, srv *models.Server) *models.Meeting {
	room := &models.Room{Name: "Room " + id}
	s.Require().NoError(s.store.CreateRoom(s.ctx, room))
	m := &models.Meeting{ID: id, RoomID: room.ID, ServerID: &srv.ID, Start: time.Now().UTC()}
	s.Require().NoError(s.store.CreateMeeting(s.ctx, m))
	return m
}

func (s *PollerTestSuite) TestPollAllCoversFleet() {
	s.newServer("node1")
	s.newServer("node2")
	srv3 := s.newServer("node3")
	s.client.listErr[srv3.ID] = remote.ErrUnreachable

	outcomes := s.poller.PollAll(s.ctx)
	s.Require().Len(outcomes, 3)

	byServer := make(map[int64]reconciler.Outcome, len(outcomes))
	for _, o := range outcomes {
		byServer[o.ServerID] = o
	}
	s.Equal(reconciler.OutcomePollFailed, byServer[srv3.ID].Kind,
		"one unreachable server does not abort the pass")
}

func (s *PollerTestSuite) TestInFlightGuardSkipsTick() {
	srv := s.newServer("node1")
	s.client.block = make(chan struct{})

	done := make(chan reconciler.Outcome, 1)
	go func() {
		done <- s.poller.PollOne(s.ctx, srv.ID)
	}()

	// Wait for the first cycle to hold the guard, then try again.
	s.Require().Eventually(func() bool {
		if s.poller.tryAcquire(srv.ID) {
			s.poller.release(srv.ID)
			return false
		}
		return true
	}, time.Second, 5*time.Millisecond)

	outcome := s.poller.PollOne(s.ctx, srv.ID)
	s.Equal(reconciler.OutcomeSkipped, outcome.Kind)

	close(s.client.block)
	first := <-done
	s.Equal(reconciler.OutcomeReconciled, first.Kind)
}

func (s *PollerTestSuite) TestPanicPartialSuccess() {
	srv := s.newServer("node1")
	good := s.newRunningMeeting("m-good", srv)
	bad := s.newRunningMeeting("m-bad", srv)
	s.client.endErr[bad.ID] = errors.New("remote refused")

	result, err := s.poller.Panic(s.ctx, srv.ID)
	s.Require().NoError(err)
	s.Equal(2, result.Total)
	s.Equal(1, result.Success)

	got, err := s.store.GetServer(s.ctx, srv.ID)
	s.Require().NoError(err)
	s.Equal(models.ServerDisabled, got.Status, "server disabled before ends are attempted")

	m, err := s.store.GetMeeting(s.ctx, good.ID)
	s.Require().NoError(err)
	s.NotNil(m.End)

	m, err = s.store.GetMeeting(s.ctx, bad.ID)
	s.Require().NoError(err)
	s.Nil(m.End, "failed end leaves the meeting for the next cycle")
}

func (s *PollerTestSuite) TestPanicRefusedWhileCycleRunning() {
	srv := s.newServer("node1")
	s.Require().True(s.poller.tryAcquire(srv.ID))
	defer s.poller.release(srv.ID)

	_, err := s.poller.Panic(s.ctx, srv.ID)
	s.ErrorIs(err, ErrCycleInProgress)
}

func (s *PollerTestSuite) TestStartStop() {
	s.newServer("node1")
	p := New(s.store, reconciler.New(s.store, s.client, balancer.New(s.store), reconciler.DefaultConfig()),
		50*time.Millisecond, 2)
	p.Start()
	time.Sleep(120 * time.Millisecond)
	p.Stop()

	got, err := s.store.ListServers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(models.HealthOnline, got[0].Health)
}

func TestPollerTestSuite(t *testing.T) {
	suite.Run(t, new(PollerTestSuite))
}
