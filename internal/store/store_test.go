package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStartFinishGet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.Start(ctx, "web_260201_080000_0001", "web", `{"url":"https://example.com"}`, start))

	sess, err := s.Get(ctx, "web_260201_080000_0001")
	require.NoError(t, err)
	require.Equal(t, "running", sess.Status)
	require.Nil(t, sess.FinishedAt)
	require.True(t, start.Equal(sess.StartedAt))

	require.NoError(t, s.Finish(ctx, "web_260201_080000_0001", Outcome{
		Status: "succeeded", Turns: 4, CostUSD: 0.12, PageID: "p1", PageURL: "https://notion.so/p1",
	}, start.Add(time.Minute)))

	sess, err = s.Get(ctx, "web_260201_080000_0001")
	require.NoError(t, err)
	require.Equal(t, "succeeded", sess.Status)
	require.Equal(t, 4, sess.Turns)
	require.Equal(t, "p1", sess.PageID)
	require.NotNil(t, sess.FinishedAt)
	require.Equal(t, time.Minute, sess.FinishedAt.Sub(sess.StartedAt))
}

func TestGetUnknown(t *testing.T) {
	s := openTemp(t)
	_, err := s.Get(context.Background(), "nope")
	require.True(t, errors.Is(err, ErrNotFound))

	err = s.Finish(context.Background(), "nope", Outcome{Status: "failed"}, time.Now())
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDuplicateStartFails(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, "a", "web", "", time.Now()))
	require.Error(t, s.Start(ctx, "a", "web", "", time.Now()))
}

func TestListNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		module := "web"
		if i%2 == 1 {
			module = "github"
		}
		require.NoError(t, s.Start(ctx, fmt.Sprintf("s%d", i), module, "", base.Add(time.Duration(i)*time.Second)))
	}

	all, err := s.List(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "s4", all[0].ID)
	require.Equal(t, "s2", all[2].ID)

	github, err := s.List(ctx, "github", 0)
	require.NoError(t, err)
	require.Len(t, github, 2)
	require.Equal(t, "s3", github[0].ID)
}

func TestConcurrentWriters(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			errs <- s.Start(ctx, id, "web", "", time.Now())
			errs <- s.Finish(ctx, id, Outcome{Status: "succeeded"}, time.Now())
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, all, 20)
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	s1, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s1.Start(ctx, "x", "web", "", time.Now()))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, path)
	require.NoError(t, err)
	defer s2.Close()
	_, err = s2.Get(ctx, "x")
	require.NoError(t, err)
}
