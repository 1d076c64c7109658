package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceskapp/directory/internal/backend/backendtest"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/logger"
)

func setupTestIndex(t *testing.T) *TrainerIndex {
	t.Helper()
	index, err := NewTrainerIndex(logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func trainer(id, name, subtitle, region string, likes int) domain.Item {
	return domain.Item{
		ID:        id,
		Resource:  domain.ResourceTrainers,
		Title:     name,
		Subtitle:  subtitle,
		Region:    region,
		LikeCount: likes,
		UpdatedAt: time.Now(),
	}
}

func seed(t *testing.T, index *TrainerIndex) {
	t.Helper()
	docs := []*TrainerDocument{
		NewTrainerDocument(trainer("trn-1", "김하나", "시니어 · 다이어트", "서울 강남구", 3)),
		NewTrainerDocument(trainer("trn-2", "이두리", "주니어 · 재활", "부산 해운대구", 7)),
		NewTrainerDocument(trainer("trn-3", "박세나", "시니어 · 재활", "서울 마포구", 1)),
		NewTrainerDocument(trainer("trn-4", "Alex Kim", "Powerlifting", "대구 중구", 0)),
	}
	require.NoError(t, index.Replace(docs))
}

func hitIDs(r *SearchResult) []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ID
	}
	return ids
}

func TestNewTrainerIndex(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestTrainerIndex_IndexAndDelete(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexDocument(NewTrainerDocument(trainer("trn-1", "김하나", "", "서울", 0))))
	require.NoError(t, index.IndexDocument(NewTrainerDocument(trainer("trn-1", "김하나", "", "서울", 2))))
	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	require.NoError(t, index.DeleteDocument("trn-1"))
	require.NoError(t, index.DeleteDocument("trn-unknown"))
	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestTrainerIndex_ReplaceRemovesStale(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	require.NoError(t, index.Replace([]*TrainerDocument{
		NewTrainerDocument(trainer("trn-2", "이두리", "", "부산", 0)),
	}))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	result, err := index.Search(context.Background(), DefaultSearchParams())
	require.NoError(t, err)
	assert.Equal(t, []string{"trn-2"}, hitIDs(result))
}

func TestSearch_EmptyQueryMatchesAllByRelevanceThenLikes(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	result, err := index.Search(context.Background(), DefaultSearchParams())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), result.Total)
	assert.Equal(t, []string{"trn-2", "trn-1", "trn-3", "trn-4"}, hitIDs(result))
}

func TestSearch_PrefixMatchesAcrossFields(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"name", "김하", []string{"trn-1"}},
		{"district prefix", "강남", []string{"trn-1"}},
		{"specialty", "재활", []string{"trn-2", "trn-3"}},
		{"all terms must match", "재활 서울", []string{"trn-3"}},
		{"case folded latin", "alex", []string{"trn-4"}},
		{"punctuation ignored", "power-", []string{"trn-4"}},
		{"no match", "요가", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultSearchParams()
			params.Query = tt.query
			result, err := index.Search(ctx, params)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, hitIDs(result))
		})
	}
}

func TestSearch_NameRanksAboveOtherFields(t *testing.T) {
	index := setupTestIndex(t)
	require.NoError(t, index.Replace([]*TrainerDocument{
		NewTrainerDocument(trainer("trn-1", "최민", "", "서진동", 0)),
		NewTrainerDocument(trainer("trn-2", "서진", "", "부산", 0)),
	}))

	params := DefaultSearchParams()
	params.Query = "서진"
	result, err := index.Search(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, []string{"trn-2", "trn-1"}, hitIDs(result))
}

func TestSearch_MatchesWordPrefixesOnly(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	params := DefaultSearchParams()
	params.Query = "하나"
	result, err := index.Search(context.Background(), params)
	require.NoError(t, err)
	assert.Empty(t, result.Hits, "하나 is inside 김하나, not a prefix")
}

func TestSearch_RegionFilter(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	params := DefaultSearchParams()
	params.Region = "서울"
	result, err := index.Search(context.Background(), params)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"trn-1", "trn-3"}, hitIDs(result))

	params.Region = "마포"
	params.Query = "재활"
	result, err = index.Search(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, []string{"trn-3"}, hitIDs(result))
}

func TestSearch_HitsCarryDisplayFields(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	params := DefaultSearchParams()
	params.Query = "이두리"
	result, err := index.Search(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)

	hit := result.Hits[0]
	assert.Equal(t, "이두리", hit.Name)
	assert.Equal(t, "주니어 · 재활", hit.Subtitle)
	assert.Equal(t, "부산 해운대구", hit.Region)
	assert.Equal(t, 7, hit.LikeCount)
}

func TestSearch_SortAndPaging(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)
	ctx := context.Background()

	params := DefaultSearchParams()
	params.SortBy = SortLikes
	params.Limit = 2
	result, err := index.Search(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, []string{"trn-2", "trn-1"}, hitIDs(result))
	assert.Equal(t, uint64(4), result.Total)

	params.Offset = 2
	result, err = index.Search(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, []string{"trn-3", "trn-4"}, hitIDs(result))

	params.SortBy = "alphabetical"
	_, err = index.Search(ctx, params)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestSync_FollowsTrainerChanges(t *testing.T) {
	fake := backendtest.New()
	fake.AddItem(trainer("trn-1", "김하나", "", "서울 강남구", 0))
	fake.AddItem(domain.Item{ID: "pst-1", Resource: domain.ResourcePosts, Title: "김하나 후기"})

	index := setupTestIndex(t)
	s, err := StartSync(context.Background(), index, fake, logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "posts are not indexed")

	fake.AddItem(trainer("trn-2", "김두리", "", "부산", 0))
	assert.Eventually(t, func() bool {
		n, _ := index.DocumentCount()
		return n == 2
	}, 2*time.Second, 10*time.Millisecond)

	fake.RemoveItem("trn-1")
	assert.Eventually(t, func() bool {
		n, _ := index.DocumentCount()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
	s.Wait()

	params := DefaultSearchParams()
	params.Query = "김"
	result, err := index.Search(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, []string{"trn-2"}, hitIDs(result))
}

func TestSync_InitialLoadFailure(t *testing.T) {
	fake := backendtest.New()
	fake.SetHooks(backendtest.Hooks{Query: func(context.Context, domain.Query) error {
		return domainerrors.Transient("offline", nil)
	}})

	_, err := StartSync(context.Background(), setupTestIndex(t), fake, logger.Discard())
	assert.ErrorIs(t, err, domainerrors.ErrTransient)
	assert.Zero(t, fake.Subscribers())
}
