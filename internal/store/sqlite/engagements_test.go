package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceskapp/directory/internal/domain"
	"github.com/ceskapp/directory/internal/store"
)

func like(itemID string, viewer domain.Viewer) domain.Engagement {
	return domain.Engagement{ItemID: itemID, Viewer: viewer, Kind: domain.KindLike, CreatedAt: time.Now()}
}

func TestPutEngagement_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	rec := &recordingEmitter{}
	ctx := context.Background()

	_, err := s.UpsertTrainer(ctx, makeTrainer("trn-1", "김하나", "서울"))
	require.NoError(t, err)
	s.SetEmitter(rec)

	viewer := domain.GuestViewer("guest-a")
	require.NoError(t, s.PutEngagement(ctx, like("trn-1", viewer)))
	assert.ErrorIs(t, s.PutEngagement(ctx, like("trn-1", viewer)), store.ErrAlreadyExists)

	state, err := s.GetEngagementState(ctx, "trn-1", viewer.ID)
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.Equal(t, 1, state.LikeCount)

	assert.Equal(t, []domain.Change{
		{Resource: domain.ResourceEngagements, Op: domain.OpInsert, ItemID: "trn-1"},
	}, rec.all())
}

func TestPutEngagement_UnknownItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.PutEngagement(ctx, like("trn-missing", domain.GuestViewer("guest-a")))
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.PutEngagement(ctx, like("bogus", domain.GuestViewer("guest-a")))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteEngagement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertTrainer(ctx, makeTrainer("trn-1", "김하나", "서울"))
	require.NoError(t, err)

	viewer := domain.AuthenticatedViewer("usr-1")
	require.NoError(t, s.PutEngagement(ctx, like("trn-1", viewer)))

	key := domain.EngagementKey{ItemID: "trn-1", Viewer: viewer, Kind: domain.KindLike}
	require.NoError(t, s.DeleteEngagement(ctx, key))
	assert.ErrorIs(t, s.DeleteEngagement(ctx, key), store.ErrNotFound)

	state, err := s.GetEngagementState(ctx, "trn-1", viewer.ID)
	require.NoError(t, err)
	assert.False(t, state.Liked)
	assert.Zero(t, state.LikeCount)
}

func TestLikeCount_ConcurrentDistinctViewers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertTrainer(ctx, makeTrainer("trn-1", "김하나", "서울"))
	require.NoError(t, err)

	const viewers = 8
	var wg sync.WaitGroup
	for i := range viewers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := domain.GuestViewer(fmt.Sprintf("guest-%d", i))
			// Each viewer races against itself too; exactly one insert wins.
			for range 3 {
				_ = s.PutEngagement(ctx, like("trn-1", v))
			}
		}()
	}
	wg.Wait()

	counts, err := s.LikeCounts(ctx, []string{"trn-1", "trn-2"})
	require.NoError(t, err)
	assert.Equal(t, viewers, counts["trn-1"])
	_, ok := counts["trn-2"]
	assert.False(t, ok)
}

func TestListEngagedItemIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := makeUser(t, s, "usr-1", "a@example.com")
	_, err := s.UpsertTrainer(ctx, makeTrainer("trn-1", "김하나", "서울"))
	require.NoError(t, err)
	require.NoError(t, s.CreatePost(ctx, makePost("pst-1", u.ID, "hello", domain.CategoryFree)))

	viewer := domain.AuthenticatedViewer(u.ID)
	base := time.Now()
	require.NoError(t, s.PutEngagement(ctx, domain.Engagement{
		ItemID: "trn-1", Viewer: viewer, Kind: domain.KindBookmark, CreatedAt: base,
	}))
	require.NoError(t, s.PutEngagement(ctx, domain.Engagement{
		ItemID: "pst-1", Viewer: viewer, Kind: domain.KindBookmark, CreatedAt: base.Add(time.Second),
	}))
	require.NoError(t, s.PutEngagement(ctx, like("trn-1", viewer)))

	ids, err := s.ListEngagedItemIDs(ctx, u.ID, domain.KindBookmark)
	require.NoError(t, err)
	assert.Equal(t, []string{"pst-1", "trn-1"}, ids)

	res, err := s.ItemResource(ctx, "pst-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResourcePosts, res)
}
