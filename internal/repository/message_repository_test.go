package repository_test

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/repository"
	"github.com/Baaaki/parley/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type MessageRepositoryTestSuite struct {
	suite.Suite
	testDB *testutil.TestDatabase
	ctx    context.Context
	repo   *repository.MessageRepository
	convID uuid.UUID
	sender uuid.UUID
}

func (s *MessageRepositoryTestSuite) SetupSuite() {
	s.testDB = testutil.SetupTestDatabase(s.T())
	s.ctx = context.Background()
	s.repo = repository.NewMessageRepository(s.testDB.DB)
}

func (s *MessageRepositoryTestSuite) TearDownSuite() {
	s.testDB.Teardown(s.T())
}

func (s *MessageRepositoryTestSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.testDB.DB)
	// The message log has no foreign keys into the directory.
	s.convID = uuid.New()
	s.sender = uuid.New()
}

func (s *MessageRepositoryTestSuite) appendN(n int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		msg, err := s.repo.Append(s.ctx, s.convID, s.sender, "m", false)
		s.Require().NoError(err)
		ids = append(ids, msg.MessageID)
	}
	return ids
}

func (s *MessageRepositoryTestSuite) TestAppendClearsFlags() {
	msg, err := s.repo.Append(s.ctx, s.convID, s.sender, "hello", true)
	s.Require().NoError(err)

	got, err := s.repo.Get(s.ctx, s.convID, msg.MessageID)
	s.Require().NoError(err)
	s.Equal("hello", got.Text)
	s.Equal(s.sender, got.SenderID)
	s.True(got.HasAttachment)
	s.False(got.IsRead)
	s.False(got.IsEdited)
	s.False(got.IsDeleted)
	s.False(got.IsPinned)
	s.Nil(got.ReadAt)
	s.Nil(got.PinnedBy)
}

func (s *MessageRepositoryTestSuite) TestPageIsNewestFirstAndPartitioned() {
	ids := s.appendN(5)
	_, err := s.repo.Append(s.ctx, uuid.New(), s.sender, "other partition", false)
	s.Require().NoError(err)

	page, err := s.repo.Page(s.ctx, s.convID, nil, 10)
	s.Require().NoError(err)
	s.Require().Len(page, 5)
	for i, msg := range page {
		s.Equal(ids[len(ids)-1-i], msg.MessageID)
	}

	older, err := s.repo.Page(s.ctx, s.convID, &ids[2], 10)
	s.Require().NoError(err)
	s.Require().Len(older, 2)
	s.Equal(ids[1], older[0].MessageID)
	s.Equal(ids[0], older[1].MessageID)

	empty, err := s.repo.Page(s.ctx, s.convID, nil, 0)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *MessageRepositoryTestSuite) TestCursorChainUnderConcurrentAppends() {
	seeded := s.appendN(40)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if _, err := s.repo.Append(s.ctx, s.convID, s.sender, "late", false); err != nil {
				s.T().Errorf("append: %v", err)
				return
			}
		}
	}()

	seen := map[uuid.UUID]bool{}
	var collected []uuid.UUID
	var cursor *uuid.UUID
	for {
		page, err := s.repo.Page(s.ctx, s.convID, cursor, 7)
		s.Require().NoError(err)
		if len(page) == 0 {
			break
		}
		for _, msg := range page {
			s.False(seen[msg.MessageID], "duplicate %s", msg.MessageID)
			seen[msg.MessageID] = true
			collected = append(collected, msg.MessageID)
		}
		last := page[len(page)-1].MessageID
		cursor = &last
	}
	wg.Wait()

	for i := 1; i < len(collected); i++ {
		s.Equal(1, bytes.Compare(collected[i-1][:], collected[i][:]), "pages must be strictly newest-first")
	}
	for _, id := range seeded {
		s.True(seen[id], "message %s missing from cursor chain", id)
	}
}

func (s *MessageRepositoryTestSuite) TestMutationsRequireExistingRow() {
	missing := uuid.Must(uuid.NewV7())

	_, err := s.repo.Get(s.ctx, s.convID, missing)
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.repo.MarkRead(s.ctx, s.convID, missing)
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.repo.Edit(s.ctx, s.convID, missing, "x")
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.repo.SoftDelete(s.ctx, s.convID, missing)
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.repo.Pin(s.ctx, s.convID, missing, s.sender)
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.repo.Unpin(s.ctx, s.convID, missing)
	s.ErrorIs(err, repository.ErrNotFound)

	var count int64
	s.Require().NoError(s.testDB.DB.Model(&models.Message{}).Count(&count).Error)
	s.Zero(count, "no mutation may upsert a row")
}

func (s *MessageRepositoryTestSuite) TestMarkReadTwiceEqualsOnce() {
	id := s.appendN(1)[0]

	first, err := s.repo.MarkRead(s.ctx, s.convID, id)
	s.Require().NoError(err)
	second, err := s.repo.MarkRead(s.ctx, s.convID, id)
	s.Require().NoError(err)

	s.True(first.IsRead)
	s.Require().NotNil(first.ReadAt)
	s.Require().NotNil(second.ReadAt)
	s.True(first.ReadAt.Equal(*second.ReadAt))
	s.Equal(first.IsRead, second.IsRead)
}

func (s *MessageRepositoryTestSuite) TestSoftDeleteKeepsRow() {
	id := s.appendN(1)[0]

	deleted, err := s.repo.SoftDelete(s.ctx, s.convID, id)
	s.Require().NoError(err)
	s.True(deleted.IsDeleted)
	s.NotNil(deleted.DeletedAt)

	got, err := s.repo.Get(s.ctx, s.convID, id)
	s.Require().NoError(err)
	s.True(got.IsDeleted)
	s.Equal("m", got.Text)

	page, err := s.repo.Page(s.ctx, s.convID, nil, 10)
	s.Require().NoError(err)
	s.Len(page, 1)
}

func (s *MessageRepositoryTestSuite) TestEditOverwritesText() {
	id := s.appendN(1)[0]

	_, err := s.repo.Edit(s.ctx, s.convID, id, "first edit")
	s.Require().NoError(err)
	edited, err := s.repo.Edit(s.ctx, s.convID, id, "second edit")
	s.Require().NoError(err)

	s.Equal("second edit", edited.Text)
	s.True(edited.IsEdited)
}

func (s *MessageRepositoryTestSuite) TestPinnedScan() {
	ids := s.appendN(6)
	actor := uuid.New()
	for _, i := range []int{0, 2, 4} {
		_, err := s.repo.Pin(s.ctx, s.convID, ids[i], actor)
		s.Require().NoError(err)
	}
	// Pinning again keeps the original actor and time.
	again, err := s.repo.Pin(s.ctx, s.convID, ids[0], uuid.New())
	s.Require().NoError(err)
	s.Equal(actor, *again.PinnedBy)

	pinned, err := s.repo.Pinned(s.ctx, s.convID, 2)
	s.Require().NoError(err)
	s.Require().Len(pinned, 2)
	s.Equal(ids[4], pinned[0].MessageID)
	s.Equal(ids[2], pinned[1].MessageID)

	_, err = s.repo.Unpin(s.ctx, s.convID, ids[4])
	s.Require().NoError(err)
	pinned, err = s.repo.Pinned(s.ctx, s.convID, 10)
	s.Require().NoError(err)
	s.Len(pinned, 2)
}

func TestMessageRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(MessageRepositoryTestSuite))
}
