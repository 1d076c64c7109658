package local

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceskapp/directory/internal/content"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/logger"
	"github.com/ceskapp/directory/internal/service"
	"github.com/ceskapp/directory/internal/sse"
	"github.com/ceskapp/directory/internal/store/sqlite"
	"github.com/ceskapp/directory/internal/validation"
)

type fixture struct {
	backend   *Backend
	directory *service.DirectoryService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log := logger.Discard()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "local.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	manager := sse.NewManager(log)
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)
	t.Cleanup(cancel)
	s.SetEmitter(manager)

	v := validation.New()
	directory := service.NewDirectoryService(s, content.NewProcessor(), v, log)
	engagement := service.NewEngagementService(s, nil, log)

	return &fixture{
		backend:   New(directory, engagement, manager, log, opts...),
		directory: directory,
	}
}

func (f *fixture) trainer(t *testing.T, name, region string) *domain.Trainer {
	t.Helper()
	tr, _, err := f.directory.UpsertTrainer(context.Background(), service.UpsertTrainerRequest{Name: name, Region: region})
	require.NoError(t, err)
	return tr
}

func receive(t *testing.T, ch <-chan domain.Change) domain.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "change stream closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return domain.Change{}
	}
}

func TestBackend_SubscribeChangesRelaysStoreWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.backend.SubscribeChanges(ctx, domain.ResourceTrainers, domain.OpAll)
	require.NoError(t, err)
	defer sub.Close()

	tr := f.trainer(t, "김하나", "서울")

	change := receive(t, sub.Changes())
	assert.Equal(t, domain.ResourceTrainers, change.Resource)
	assert.Equal(t, domain.OpInsert, change.Op)
	assert.Equal(t, tr.ID, change.ItemID)
}

func TestBackend_SubscriptionFiltersByMask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.backend.SubscribeChanges(ctx, domain.ResourceTrainers, domain.MaskDelete)
	require.NoError(t, err)
	defer sub.Close()

	tr := f.trainer(t, "김하나", "서울")
	require.NoError(t, f.directory.DeleteTrainer(ctx, tr.ID))

	change := receive(t, sub.Changes())
	assert.Equal(t, domain.OpDelete, change.Op)
}

func TestBackend_CloseIsIdempotentAndEndsStream(t *testing.T) {
	f := newFixture(t)

	sub, err := f.backend.SubscribeChanges(context.Background(), domain.ResourcePosts, domain.OpAll)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Changes():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
}

func TestBackend_ContextCancelEndsStream(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := f.backend.SubscribeChanges(ctx, domain.ResourcePosts, domain.OpAll)
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Changes():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBackend_EngagementRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.trainer(t, "김하나", "서울")
	viewer := domain.GuestViewer("guest-1")
	e := domain.Engagement{ItemID: tr.ID, Viewer: viewer, Kind: domain.KindLike}

	outcome, err := f.backend.Upsert(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = f.backend.Upsert(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyExists, outcome)

	state, err := f.backend.EngagementState(ctx, tr.ID, viewer)
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.Equal(t, 1, state.LikeCount)

	items, err := f.backend.Query(ctx, domain.Query{Resource: domain.ResourceTrainers, Region: "서울"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].LikeCount)

	outcome, err = f.backend.Delete(ctx, e.Key())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = f.backend.Delete(ctx, e.Key())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotFound, outcome)

	_, err = f.backend.Upsert(ctx, domain.Engagement{ItemID: tr.ID, Viewer: viewer, Kind: domain.KindBookmark})
	assert.ErrorIs(t, err, domainerrors.ErrPermissionDenied)
}

func TestBackend_SessionIdentity(t *testing.T) {
	f := newFixture(t)
	session, err := f.backend.SessionIdentity(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)

	signedIn := newFixture(t, WithSession(func(context.Context) (*domain.Session, error) {
		return &domain.Session{UserID: "usr-1"}, nil
	}))
	session, err = signedIn.backend.SessionIdentity(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "usr-1", session.UserID)
}
