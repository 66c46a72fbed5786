package health

import (
	"testing"

	"meetfleet/pkg/models"

	"github.com/stretchr/testify/suite"
)

// TrackerTestSuite tests the health state machine.
type TrackerTestSuite struct {
	suite.Suite
	thresholds Thresholds
}

func (s *TrackerTestSuite) SetupTest() {
	s.thresholds = Thresholds{Healthy: 3, Unhealthy: 3}
}

// apply runs a sequence of outcomes and returns the final state and counters.
func (s *TrackerTestSuite) apply(state models.ServerHealth, c Counters, outcomes ...Outcome) (models.ServerHealth, Counters) {
	for _, o := range outcomes {
		state, c = Apply(state, c, o, s.thresholds)
	}
	return state, c
}

func (s *TrackerTestSuite) TestSingleFailureDegradesOnline() {
	state, c := Apply(models.HealthOnline, Counters{}, Failure, s.thresholds)
	s.Equal(models.HealthUnhealthy, state)
	s.Equal(1, c.ErrorCount)
	s.Equal(0, c.RecoverCount)
}

func (s *TrackerTestSuite) TestExactlyNFailuresReachOffline() {
	state, c := s.apply(models.HealthOnline, Counters{}, Failure, Failure)
	s.Equal(models.HealthUnhealthy, state, "one short of the threshold")

	state, c = Apply(state, c, Failure, s.thresholds)
	s.Equal(models.HealthOffline, state)
	s.Equal(3, c.ErrorCount)
}

func (s *TrackerTestSuite) TestOfflineStaysOfflineOnFailure() {
	state, c := s.apply(models.HealthOffline, Counters{ErrorCount: 5}, Failure)
	s.Equal(models.HealthOffline, state)
	s.Equal(6, c.ErrorCount)
}

func (s *TrackerTestSuite) TestSingleSuccessDoesNotClearOffline() {
	state, c := Apply(models.HealthOffline, Counters{ErrorCount: 7}, Success, s.thresholds)
	s.Equal(models.HealthOffline, state)
	s.Equal(0, c.ErrorCount)
	s.Equal(1, c.RecoverCount)
}

func (s *TrackerTestSuite) TestExactlyNSuccessesRecoverOffline() {
	state, c := s.apply(models.HealthOffline, Counters{ErrorCount: 4}, Success, Success)
	s.Equal(models.HealthOffline, state, "one short of the threshold")

	state, c = Apply(state, c, Success, s.thresholds)
	s.Equal(models.HealthOnline, state)
	s.Equal(3, c.RecoverCount)
}

func (s *TrackerTestSuite) TestUnhealthyRecoversThroughThreshold() {
	state, _ := s.apply(models.HealthUnhealthy, Counters{ErrorCount: 1},
		Success, Success, Success)
	s.Equal(models.HealthOnline, state)
}

func (s *TrackerTestSuite) TestInterleavedSuccessResetsErrorCount() {
	// N-1 failures, one success, N-1 failures must never reach offline.
	state, c := s.apply(models.HealthOnline, Counters{},
		Failure, Failure, Success, Failure, Failure)
	s.NotEqual(models.HealthOffline, state)
	s.Equal(2, c.ErrorCount)
}

func (s *TrackerTestSuite) TestInterleavedFailureResetsRecoverCount() {
	state, c := s.apply(models.HealthOffline, Counters{ErrorCount: 3},
		Success, Success, Failure, Success, Success)
	s.Equal(models.HealthOffline, state)
	s.Equal(2, c.RecoverCount)
}

func (s *TrackerTestSuite) TestOnlineSuccessKeepsClimbing() {
	state, c := s.apply(models.HealthOnline, Counters{RecoverCount: 10}, Success)
	s.Equal(models.HealthOnline, state)
	s.Equal(11, c.RecoverCount)
}

func (s *TrackerTestSuite) TestCountersMutuallyExclusive() {
	// Whatever sequence runs, at most one counter is nonzero afterwards.
	outcomes := []Outcome{Failure, Failure, Success, Failure, Success, Success, Success, Failure}
	state, c := models.HealthOnline, Counters{}
	for _, o := range outcomes {
		state, c = Apply(state, c, o, s.thresholds)
		s.False(c.ErrorCount > 0 && c.RecoverCount > 0,
			"both counters nonzero after outcome %v", o)
	}
}

func (s *TrackerTestSuite) TestThresholdOne() {
	t := Thresholds{Healthy: 1, Unhealthy: 1}

	state, _ := Apply(models.HealthOnline, Counters{}, Failure, t)
	s.Equal(models.HealthOffline, state, "unhealthy threshold 1 drops straight to offline")

	state, _ = Apply(models.HealthOffline, Counters{ErrorCount: 1}, Success, t)
	s.Equal(models.HealthOnline, state, "healthy threshold 1 recovers on first success")
}

func TestTrackerTestSuite(t *testing.T) {
	suite.Run(t, new(TrackerTestSuite))
}
