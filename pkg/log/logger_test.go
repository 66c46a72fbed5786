package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

// LoggerTestSuite tests the logger package.
type LoggerTestSuite struct {
	suite.Suite
}

func (s *LoggerTestSuite) TestEventBuilders() {
	s.NotNil(Info())
	s.NotNil(Warn())
	s.NotNil(Error())
	s.NotNil(Debug())
}

func (s *LoggerTestSuite) TestWithComponent() {
	sub := With("poller")
	s.NotNil(sub.Info())
}

func (s *LoggerTestSuite) TestSetDebugMode() {
	SetDebugMode()
	s.Equal(zerolog.DebugLevel, Logger.GetLevel())
}

func TestLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
