package directory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/backend/backendtest"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/logger"
)

func trainer(id, name, region string) domain.Item {
	return domain.Item{ID: id, Resource: domain.ResourceTrainers, Title: name, Region: region}
}

func TestList_StartLoadsAndFollowsChanges(t *testing.T) {
	fake := backendtest.New()
	fake.AddItem(trainer("trn-1", "김하나", "서울 강남구"))

	l := NewList(fake, domain.Query{Resource: domain.ResourceTrainers}, logger.Discard())
	require.NoError(t, l.Start(context.Background()))
	defer l.Close()

	state := l.Snapshot()
	assert.True(t, state.Loaded)
	assert.False(t, state.Loading)
	require.Len(t, state.Items, 1)

	fake.AddItem(trainer("trn-2", "이두리", "부산"))
	assert.Eventually(t, func() bool {
		return len(l.Snapshot().Items) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestList_RegionQuery(t *testing.T) {
	fake := backendtest.New()
	fake.AddItem(trainer("trn-1", "김하나", "서울 강남구"))
	fake.AddItem(trainer("trn-2", "이두리", "부산"))

	l := NewList(fake, domain.Query{Resource: domain.ResourceTrainers, Region: "서울"}, logger.Discard())
	require.NoError(t, l.Start(context.Background()))
	defer l.Close()

	items := l.Snapshot().Items
	require.Len(t, items, 1)
	assert.Equal(t, "trn-1", items[0].ID)

	require.NoError(t, l.SetQuery(context.Background(), domain.Query{Resource: domain.ResourceTrainers, Region: "부산"}))
	items = l.Snapshot().Items
	require.Len(t, items, 1)
	assert.Equal(t, "trn-2", items[0].ID)
}

func TestList_FailedRefreshKeepsItems(t *testing.T) {
	fake := backendtest.New()
	fake.AddItem(trainer("trn-1", "김하나", "서울"))

	l := NewList(fake, domain.Query{Resource: domain.ResourceTrainers}, logger.Discard())
	require.NoError(t, l.Start(context.Background()))
	defer l.Close()

	fake.SetHooks(backendtest.Hooks{Query: func(context.Context, backend.Query) error {
		return domainerrors.Transient("server down", nil)
	}})
	err := l.Refresh(context.Background())
	assert.ErrorIs(t, err, domainerrors.ErrTransient)

	state := l.Snapshot()
	assert.ErrorIs(t, state.Err, domainerrors.ErrTransient)
	assert.Len(t, state.Items, 1)

	fake.SetHooks(backendtest.Hooks{})
	require.NoError(t, l.Refresh(context.Background()))
	assert.NoError(t, l.Snapshot().Err)
}

func TestList_NotFoundIsEmpty(t *testing.T) {
	fake := backendtest.New()
	fake.SetHooks(backendtest.Hooks{Query: func(context.Context, backend.Query) error {
		return domainerrors.NotFound("no posts")
	}})

	l := NewList(fake, domain.Query{Resource: domain.ResourcePosts}, logger.Discard())
	require.NoError(t, l.Start(context.Background()))
	defer l.Close()

	state := l.Snapshot()
	assert.True(t, state.Loaded)
	assert.NoError(t, state.Err)
	assert.Empty(t, state.Items)
}

func TestList_InitialFailureIsExplicit(t *testing.T) {
	fake := backendtest.New()
	boom := errors.New("boom")
	fake.SetHooks(backendtest.Hooks{Query: func(context.Context, backend.Query) error { return boom }})

	l := NewList(fake, domain.Query{Resource: domain.ResourcePosts}, logger.Discard())
	err := l.Start(context.Background())
	assert.ErrorIs(t, err, boom)

	state := l.Snapshot()
	assert.False(t, state.Loaded)
	assert.ErrorIs(t, state.Err, boom)
	assert.Zero(t, fake.Subscribers(), "stream released after failed initial load")
	assert.NoError(t, l.Close())
}

func TestList_StaleResultDiscardedAfterQueryChange(t *testing.T) {
	fake := backendtest.New()
	fake.AddItem(trainer("trn-1", "김하나", "서울"))
	fake.AddItem(trainer("trn-2", "이두리", "부산"))

	l := NewList(fake, domain.Query{Resource: domain.ResourceTrainers}, logger.Discard())
	require.NoError(t, l.Start(context.Background()))
	defer l.Close()

	release := make(chan struct{})
	var blocked atomic.Bool
	fake.SetHooks(backendtest.Hooks{Query: func(_ context.Context, q backend.Query) error {
		if q.Region == "서울" && blocked.CompareAndSwap(false, true) {
			<-release
		}
		return nil
	}})

	done := make(chan error, 1)
	go func() {
		done <- l.SetQuery(context.Background(), domain.Query{Resource: domain.ResourceTrainers, Region: "서울"})
	}()
	assert.Eventually(t, blocked.Load, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, l.SetQuery(context.Background(), domain.Query{Resource: domain.ResourceTrainers, Region: "부산"}))
	close(release)
	require.NoError(t, <-done)

	items := l.Snapshot().Items
	require.Len(t, items, 1)
	assert.Equal(t, "trn-2", items[0].ID)
}

func TestList_OnChangeSeesLoading(t *testing.T) {
	fake := backendtest.New()
	l := NewList(fake, domain.Query{Resource: domain.ResourceTrainers}, logger.Discard())

	var sawLoading, sawLoaded bool
	l.OnChange(func(s State) {
		if s.Loading {
			sawLoading = true
		}
		if s.Loaded && !s.Loading {
			sawLoaded = true
		}
	})
	require.NoError(t, l.Start(context.Background()))
	defer l.Close()

	assert.True(t, sawLoading)
	assert.True(t, sawLoaded)
}
