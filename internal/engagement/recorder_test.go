package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceskapp/directory/internal/backend/backendtest"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/identity"
	"github.com/ceskapp/directory/internal/logger"
)

const postID = "pst-1"

func setup(t *testing.T) (*Recorder, *backendtest.Fake) {
	t.Helper()
	fake := backendtest.New()
	fake.AddItem(domain.Item{ID: postID, Resource: domain.ResourcePosts, Title: "스쿼트 질문"})

	resolver := identity.NewResolver(fake, identity.NewMemoryStorage(), logger.Discard())
	return NewRecorder(fake, resolver, logger.Discard()), fake
}

func signIn(fake *backendtest.Fake, userID string) {
	fake.SetSession(&domain.Session{UserID: userID})
}

func TestRecorder_RecordIsIdempotent(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, postID, domain.KindLike))
	require.NoError(t, r.Record(ctx, postID, domain.KindLike))

	assert.Equal(t, 1, fake.Records(postID, domain.KindLike))
	state, ok := r.Snapshot(postID)
	require.True(t, ok)
	assert.True(t, state.Liked)
	assert.Equal(t, 1, state.LikeCount)
}

func TestRecorder_ToggleSymmetry(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	before, err := r.Load(ctx, postID)
	require.NoError(t, err)

	present, err := r.Toggle(ctx, postID, domain.KindLike)
	require.NoError(t, err)
	assert.True(t, present)

	present, err = r.Toggle(ctx, postID, domain.KindLike)
	require.NoError(t, err)
	assert.False(t, present)

	after, ok := r.Snapshot(postID)
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Zero(t, fake.Records(postID, domain.KindLike))
}

func TestRecorder_UnrecordMissingIsSuccess(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	assert.NoError(t, r.Unrecord(ctx, postID, domain.KindLike))
	assert.ErrorIs(t, r.Unrecord(ctx, postID, domain.KindView), domainerrors.ErrValidation)
	_, err := r.Toggle(ctx, postID, domain.KindView)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestRecorder_GuestBookmarkDenied(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	_, err := r.Load(ctx, postID)
	require.NoError(t, err)

	var notified int
	r.OnChange(func(string, domain.EngagementState) { notified++ })

	err = r.Record(ctx, postID, domain.KindBookmark)
	assert.ErrorIs(t, err, domainerrors.ErrPermissionDenied)
	_, err = r.Toggle(ctx, postID, domain.KindBookmark)
	assert.ErrorIs(t, err, domainerrors.ErrPermissionDenied)

	assert.Zero(t, fake.Calls("Upsert"))
	assert.Zero(t, notified, "no optimistic flip")
	state, _ := r.Snapshot(postID)
	assert.False(t, state.Bookmarked)
}

func TestRecorder_SignedInBookmark(t *testing.T) {
	r, fake := setup(t)
	signIn(fake, "usr-1")

	present, err := r.Toggle(context.Background(), postID, domain.KindBookmark)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, 1, fake.Records(postID, domain.KindBookmark))
}

func TestRecorder_OptimisticFlipAndRollback(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	_, err := r.Load(ctx, postID)
	require.NoError(t, err)

	inFlight := make(chan struct{})
	release := make(chan struct{})
	fake.SetHooks(backendtest.Hooks{Upsert: func(context.Context, domain.Engagement) error {
		close(inFlight)
		<-release
		return domainerrors.Transient("server down", nil)
	}})

	done := make(chan error, 1)
	go func() { done <- r.Record(ctx, postID, domain.KindLike) }()

	<-inFlight
	optimistic, _ := r.Snapshot(postID)
	assert.True(t, optimistic.Liked)
	assert.Equal(t, 1, optimistic.LikeCount)

	close(release)
	assert.ErrorIs(t, <-done, domainerrors.ErrTransient)

	rolledBack, _ := r.Snapshot(postID)
	assert.False(t, rolledBack.Liked)
	assert.Zero(t, rolledBack.LikeCount)
}

func TestRecorder_LikeCountReReadAfterWrite(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	other := domain.GuestViewer("guest-other")
	_, err := fake.Upsert(ctx, domain.Engagement{ItemID: postID, Viewer: other, Kind: domain.KindLike})
	require.NoError(t, err)

	require.NoError(t, r.Record(ctx, postID, domain.KindLike))
	state, _ := r.Snapshot(postID)
	assert.Equal(t, 2, state.LikeCount)
}

func TestRecorder_QueuedTogglesReEvaluate(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range results {
		wg.Go(func() {
			present, err := r.Toggle(ctx, postID, domain.KindLike)
			assert.NoError(t, err)
			results[i] = present
		})
	}
	wg.Wait()

	assert.ElementsMatch(t, []bool{true, false}, results)
	assert.Zero(t, fake.Records(postID, domain.KindLike))
	assert.Equal(t, 2, fake.Calls("Upsert")+fake.Calls("Delete"))
}

func TestRecorder_ViewsOncePerViewer(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	r.RecordView(ctx, postID)
	r.RecordView(ctx, postID)
	r.Wait()
	assert.Equal(t, 1, fake.Records(postID, domain.KindView))
	assert.Equal(t, 1, fake.Calls("Upsert"))

	// Signing in switches the key space: the same device views again as the user.
	signIn(fake, "usr-1")
	r.RecordView(ctx, postID)
	r.Wait()
	assert.Equal(t, 2, fake.Records(postID, domain.KindView))
}

func TestRecorder_ViewNotifiesListeners(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	_, err := r.Load(ctx, postID)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []domain.EngagementState
	r.OnChange(func(itemID string, state domain.EngagementState) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, postID, itemID)
		seen = append(seen, state)
	})

	r.RecordView(ctx, postID)
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.True(t, seen[0].Viewed)
	state, _ := r.Snapshot(postID)
	assert.True(t, state.Viewed)
}

func TestRecorder_FailedViewRetriesOnNextExposure(t *testing.T) {
	r, fake := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	fake.SetHooks(backendtest.Hooks{Upsert: func(context.Context, domain.Engagement) error {
		return errors.New("offline")
	}})
	r.RecordView(ctx, postID)
	cancel()
	r.Wait()
	assert.Zero(t, fake.Records(postID, domain.KindView))

	fake.SetHooks(backendtest.Hooks{})
	r.RecordView(context.Background(), postID)
	r.Wait()
	assert.Equal(t, 1, fake.Records(postID, domain.KindView))
}

func TestRecorder_IdentitySwitchDropsCache(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, postID, domain.KindLike))
	_, ok := r.Snapshot(postID)
	require.True(t, ok)

	signIn(fake, "usr-1")
	state, err := r.Load(ctx, postID)
	require.NoError(t, err)
	assert.False(t, state.Liked, "the user has not liked it")
	assert.Equal(t, 1, state.LikeCount, "the guest's like still counts")

	r.Invalidate()
	_, ok = r.Snapshot(postID)
	assert.False(t, ok)
}

func TestRecorder_UnresolvableIsReadOnly(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	_, err := fake.Upsert(ctx, domain.Engagement{ItemID: postID, Viewer: domain.GuestViewer("g"), Kind: domain.KindLike})
	require.NoError(t, err)

	fake.SetHooks(backendtest.Hooks{Session: func(context.Context) error {
		return errors.New("auth service down")
	}})

	err = r.Record(ctx, postID, domain.KindLike)
	assert.ErrorIs(t, err, domainerrors.ErrUnresolvable)

	state, err := r.Load(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.LikeCount)
	assert.False(t, state.Liked)

	r.RecordView(ctx, postID)
	r.Wait()
	assert.Zero(t, fake.Records(postID, domain.KindView))
}

func TestRecorder_LateResultFromOldViewerDropped(t *testing.T) {
	r, fake := setup(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fake.SetHooks(backendtest.Hooks{State: func(context.Context, string, domain.Viewer) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		return nil
	}})

	done := make(chan struct{})
	go func() {
		_, _ = r.Load(ctx, postID)
		close(done)
	}()
	<-entered
	r.Invalidate()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("load did not finish")
	}
	_, ok := r.Snapshot(postID)
	assert.False(t, ok)
}
