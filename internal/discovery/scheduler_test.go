package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/offer-ingest/internal/lock"
	"github.com/jonathan/offer-ingest/internal/types"
)

type enqueued struct {
	url    string
	source types.Source
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	items []enqueued
	fail  map[string]bool
}

func (e *recordingEnqueuer) EnqueueURL(_ context.Context, url string, source types.Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail[url] {
		return errors.New("publish timeout")
	}
	e.items = append(e.items, enqueued{url, source})
	return nil
}

func (e *recordingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

func TestScheduler_RunEnqueuesDeduplicated(t *testing.T) {
	enq := &recordingEnqueuer{fail: map[string]bool{"https://x/3": true}}
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewScheduler(nil, enq, nil, time.Minute, zap.New(core))

	job := Job{Source: types.SourcePracuj, Discoverer: Func(func(context.Context) ([]string, error) {
		return []string{"https://x/1", "https://x/2", "https://x/1", "https://x/3"}, nil
	})}

	stats := s.Run(context.Background(), job)
	assert.Equal(t, Stats{Found: 3, Enqueued: 2, Failed: 1}, stats)
	assert.Equal(t, []enqueued{{"https://x/1", types.SourcePracuj}, {"https://x/2", types.SourcePracuj}}, enq.items)

	finished := logs.FilterMessage("discovery run finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "PRACUJ", finished[0].ContextMap()["source"])
	assert.Equal(t, int64(3), finished[0].ContextMap()["found"])
}

func TestScheduler_RunPartialFailureStillEnqueues(t *testing.T) {
	enq := &recordingEnqueuer{}
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewScheduler(nil, enq, nil, time.Minute, zap.New(core))

	boom := errors.New("bot wall")
	stats := s.Run(context.Background(), Job{Source: types.SourceTheProtocol, Discoverer: Func(func(context.Context) ([]string, error) {
		return []string{"https://x/1"}, boom
	})})

	assert.Equal(t, 1, stats.Enqueued)
	assert.ErrorIs(t, stats.Err, boom)
	assert.Equal(t, 1, logs.FilterMessage("discovery run failed").Len())
}

func TestScheduler_RunRecoversPanic(t *testing.T) {
	s := NewScheduler(nil, &recordingEnqueuer{}, nil, time.Minute, zap.NewNop())

	stats := s.Run(context.Background(), Job{Source: types.SourceNoFluff, Discoverer: Func(func(context.Context) ([]string, error) {
		panic("nil map")
	})})
	require.Error(t, stats.Err)
	assert.Contains(t, stats.Err.Error(), "nil map")
}

func TestScheduler_RunSkipsWhenLocked(t *testing.T) {
	locker := lock.NewLocalLocker()
	release, ok, _ := locker.TryLock(context.Background(), "discovery:JUSTJOIN", time.Minute)
	require.True(t, ok)
	defer release()

	called := false
	s := NewScheduler(nil, &recordingEnqueuer{}, locker, time.Minute, zap.NewNop())
	stats := s.Run(context.Background(), Job{Source: types.SourceJustJoin, Discoverer: Func(func(context.Context) ([]string, error) {
		called = true
		return nil, nil
	})})

	assert.True(t, stats.Skipped)
	assert.False(t, called)
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	enq := &recordingEnqueuer{}
	jobs := []Job{
		{Source: types.SourceJustJoin, Schedule: "@every 1h", Discoverer: Func(func(context.Context) ([]string, error) {
			return []string{"https://justjoin.it/job-offer/a"}, nil
		})},
		{Source: types.SourceNoFluff, Schedule: "@every 1h", Discoverer: Func(func(context.Context) ([]string, error) {
			return nil, errors.New("NOFLUFF down")
		})},
	}
	s := NewScheduler(jobs, enq, lock.NewLocalLocker(), time.Minute, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	assert.Equal(t, 1, enq.count(), "one source failing does not block the other")
}

func TestScheduler_StartInvalidSchedule(t *testing.T) {
	s := NewScheduler([]Job{{Source: types.SourcePracuj, Schedule: "every now and then"}}, &recordingEnqueuer{}, nil, time.Minute, zap.NewNop())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRACUJ")
}
