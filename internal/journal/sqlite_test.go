package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type JournalSuite struct {
	suite.Suite
	ctx  context.Context
	repo Repository
}

func TestJournalSuite(t *testing.T) {
	suite.Run(t, new(JournalSuite))
}

func (s *JournalSuite) SetupTest() {
	s.ctx = context.Background()
	db, err := Open(filepath.Join(s.T().TempDir(), FileName))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.repo = NewSQLiteRepo(db)
}

var base = time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC)

func (s *JournalSuite) TestRecordAndRecent() {
	a, b := uuid.New(), uuid.New()
	next := base.Add(time.Hour)

	_, err := s.repo.Record(s.ctx, Delivery{ReminderID: a, Title: "first", DueAt: base, FiredAt: base, Success: true})
	s.Require().NoError(err)
	_, err = s.repo.Record(s.ctx, Delivery{ReminderID: b, Title: "second", DueAt: base, FiredAt: base.Add(time.Minute), Error: "no display", Next: &next})
	s.Require().NoError(err)

	ds, err := s.repo.Recent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(ds, 2)

	s.Equal("second", ds[0].Title)
	s.Equal(b, ds[0].ReminderID)
	s.False(ds[0].Success)
	s.Equal("no display", ds[0].Error)
	s.Require().NotNil(ds[0].Next)
	s.True(next.Equal(*ds[0].Next))

	s.Equal("first", ds[1].Title)
	s.True(ds[1].Success)
	s.Nil(ds[1].Next)
	s.True(base.Equal(ds[1].FiredAt))

	ds, err = s.repo.Recent(s.ctx, 1)
	s.Require().NoError(err)
	s.Len(ds, 1)
}

func (s *JournalSuite) TestForReminder() {
	a := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := s.repo.Record(s.ctx, Delivery{ReminderID: a, Title: "a", DueAt: base, FiredAt: base.Add(time.Duration(i) * time.Hour), Success: true})
		s.Require().NoError(err)
	}
	_, err := s.repo.Record(s.ctx, Delivery{ReminderID: uuid.New(), Title: "other", DueAt: base, FiredAt: base, Success: true})
	s.Require().NoError(err)

	ds, err := s.repo.ForReminder(s.ctx, a, 10)
	s.Require().NoError(err)
	s.Len(ds, 3)
	for _, d := range ds {
		s.Equal(a, d.ReminderID)
	}
}

func (s *JournalSuite) TestPrune() {
	for i := 0; i < 4; i++ {
		_, err := s.repo.Record(s.ctx, Delivery{ReminderID: uuid.New(), Title: "x", DueAt: base, FiredAt: base.Add(time.Duration(i) * 24 * time.Hour), Success: true})
		s.Require().NoError(err)
	}

	n, err := s.repo.Prune(s.ctx, base.Add(48*time.Hour))
	s.Require().NoError(err)
	s.Equal(2, n)

	ds, err := s.repo.Recent(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(ds, 2)
}
