package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceskapp/directory/internal/auth"
	"github.com/ceskapp/directory/internal/content"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/ratelimit"
	"github.com/ceskapp/directory/internal/store/sqlite"
	"github.com/ceskapp/directory/internal/validation"
)

type testServices struct {
	store      *sqlite.Store
	auth       *AuthService
	directory  *DirectoryService
	engagement *EngagementService
	tokens     *auth.TokenService
}

func setupServices(t *testing.T) *testServices {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := sqlite.Open(filepath.Join(dir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	keyHex, err := auth.LoadOrGenerateKey(dir)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(keyHex, time.Hour)
	require.NoError(t, err)

	limiter := ratelimit.New(1000, 1000)
	t.Cleanup(limiter.Stop)

	v := validation.New()
	return &testServices{
		store:      s,
		auth:       NewAuthService(s, tokens, v, logger),
		directory:  NewDirectoryService(s, content.NewProcessor(), v, logger),
		engagement: NewEngagementService(s, limiter, logger),
		tokens:     tokens,
	}
}

func (ts *testServices) register(t *testing.T, email string) *AuthResponse {
	t.Helper()
	resp, err := ts.auth.Register(context.Background(), RegisterRequest{
		Email: email, Password: "password123", DisplayName: "코치 " + email,
	})
	require.NoError(t, err)
	return resp
}

func (ts *testServices) trainer(t *testing.T, name, region string) *domain.Trainer {
	t.Helper()
	tr, created, err := ts.directory.UpsertTrainer(context.Background(), UpsertTrainerRequest{
		Name: name, Region: region, Level: "Level 2", Specialty: "재활",
	})
	require.NoError(t, err)
	require.True(t, created)
	return tr
}

func TestAuthService_RegisterLoginVerify(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()

	reg := ts.register(t, "coach@example.com")
	assert.NotEmpty(t, reg.AccessToken)
	assert.True(t, strings.HasPrefix(reg.User.ID, domain.UserIDPrefix+"-"))

	_, err := ts.auth.Register(ctx, RegisterRequest{Email: "COACH@example.com", Password: "password123", DisplayName: "dup"})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)

	login, err := ts.auth.Login(ctx, LoginRequest{Email: "coach@example.com", Password: "password123"})
	require.NoError(t, err)

	session, err := ts.auth.VerifyAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, session.UserID)

	_, err = ts.auth.Login(ctx, LoginRequest{Email: "coach@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = ts.auth.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = ts.auth.VerifyAccessToken(ctx, "v4.local.garbage")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	ts := setupServices(t)

	_, err := ts.auth.Register(context.Background(), RegisterRequest{Email: "bad", Password: "short"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestDirectoryService_ListTrainersByRegion(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()

	seoul := ts.trainer(t, "김하나", "서울 강남구")
	ts.trainer(t, "이두리", "부산 해운대구")

	_, err := ts.engagement.Record(ctx, domain.GuestViewer("guest-a"), seoul.ID, domain.KindLike)
	require.NoError(t, err)

	items, err := ts.directory.ListItems(ctx, domain.Query{Resource: domain.ResourceTrainers, Region: "서울"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, seoul.ID, items[0].ID)
	assert.Equal(t, 1, items[0].LikeCount)
	assert.Equal(t, "Level 2 · 재활", items[0].Subtitle)

	all, err := ts.directory.ListItems(ctx, domain.Query{Resource: domain.ResourceTrainers})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = ts.directory.ListItems(ctx, domain.Query{Resource: domain.ResourceEngagements})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestDirectoryService_UpsertTrainerRejectsForeignID(t *testing.T) {
	ts := setupServices(t)

	_, _, err := ts.directory.UpsertTrainer(context.Background(), UpsertTrainerRequest{ID: "pst-1", Name: "x", Region: "서울"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestDirectoryService_PostLifecycle(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()

	author := ts.register(t, "author@example.com")
	other := ts.register(t, "other@example.com")

	post, err := ts.directory.CreatePost(ctx, author.User.ID, CreatePostRequest{
		Title:    "  스쿼트 질문  ",
		Category: domain.CategoryQuestion,
		Body:     "무릎이 **아파요**\n\n<script>alert(1)</script>",
		Format:   content.FormatMarkdown,
	})
	require.NoError(t, err)
	assert.Equal(t, "스쿼트 질문", post.Title)
	assert.Equal(t, author.User.DisplayName, post.AuthorName)
	assert.NotContains(t, post.ContentHTML, "<script")
	assert.Equal(t, "무릎이 아파요", post.Excerpt)

	detail, err := ts.directory.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Contains(t, detail.ContentMarkdown, "**아파요**")

	_, err = ts.directory.CreatePost(ctx, author.User.ID, CreatePostRequest{Title: "x", Category: "gossip", Body: "y"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = ts.directory.CreatePost(ctx, "", CreatePostRequest{Title: "x", Category: "free", Body: "y"})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	err = ts.directory.DeletePost(ctx, other.User.ID, post.ID)
	assert.ErrorIs(t, err, domainerrors.ErrPermissionDenied)

	require.NoError(t, ts.directory.DeletePost(ctx, author.User.ID, post.ID))

	_, err = ts.directory.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestDirectoryService_ListBookmarks(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()

	user := ts.register(t, "me@example.com")
	viewer := domain.AuthenticatedViewer(user.User.ID)

	tr := ts.trainer(t, "김하나", "서울")
	post, err := ts.directory.CreatePost(ctx, user.User.ID, CreatePostRequest{Title: "후기", Category: domain.CategoryReview, Body: "<p>좋아요</p>"})
	require.NoError(t, err)

	_, err = ts.engagement.Record(ctx, viewer, tr.ID, domain.KindBookmark)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = ts.engagement.Record(ctx, viewer, post.ID, domain.KindBookmark)
	require.NoError(t, err)

	items, err := ts.directory.ListBookmarks(ctx, viewer)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, post.ID, items[0].ID)
	assert.Equal(t, tr.ID, items[1].ID)

	_, err = ts.directory.ListBookmarks(ctx, domain.GuestViewer("guest-a"))
	assert.ErrorIs(t, err, domainerrors.ErrPermissionDenied)
}

func TestEngagementService_IdempotentOutcomes(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()

	tr := ts.trainer(t, "김하나", "서울")
	viewer := domain.GuestViewer("guest-a")

	outcome, err := ts.engagement.Record(ctx, viewer, tr.ID, domain.KindLike)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = ts.engagement.Record(ctx, viewer, tr.ID, domain.KindLike)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyExists, outcome)

	state, err := ts.engagement.State(ctx, viewer, tr.ID)
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.Equal(t, 1, state.LikeCount)

	outcome, err = ts.engagement.Unrecord(ctx, viewer, tr.ID, domain.KindLike)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = ts.engagement.Unrecord(ctx, viewer, tr.ID, domain.KindLike)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotFound, outcome)

	state, err = ts.engagement.State(ctx, viewer, tr.ID)
	require.NoError(t, err)
	assert.False(t, state.Liked)
	assert.Zero(t, state.LikeCount)
}

func TestEngagementService_Rules(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()

	tr := ts.trainer(t, "김하나", "서울")
	guest := domain.GuestViewer("guest-a")

	_, err := ts.engagement.Record(ctx, guest, tr.ID, domain.KindBookmark)
	assert.ErrorIs(t, err, domainerrors.ErrPermissionDenied)

	_, err = ts.engagement.Record(ctx, domain.Viewer{}, tr.ID, domain.KindLike)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	_, err = ts.engagement.Record(ctx, guest, tr.ID, domain.EngagementKind("share"))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = ts.engagement.Unrecord(ctx, guest, tr.ID, domain.KindView)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = ts.engagement.Record(ctx, guest, "trn-missing", domain.KindView)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = ts.engagement.State(ctx, guest, "trn-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestEngagementService_RateLimited(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()

	limiter := ratelimit.New(0.001, 2)
	t.Cleanup(limiter.Stop)
	ts.engagement.limiter = limiter

	tr := ts.trainer(t, "김하나", "서울")
	viewer := domain.GuestViewer("guest-a")

	_, err := ts.engagement.Record(ctx, viewer, tr.ID, domain.KindLike)
	require.NoError(t, err)
	_, err = ts.engagement.Unrecord(ctx, viewer, tr.ID, domain.KindLike)
	require.NoError(t, err)
	_, err = ts.engagement.Record(ctx, viewer, tr.ID, domain.KindLike)
	assert.ErrorIs(t, err, domainerrors.ErrRateLimited)

	// Other viewers are unaffected.
	_, err = ts.engagement.Record(ctx, domain.GuestViewer("guest-b"), tr.ID, domain.KindLike)
	assert.NoError(t, err)
}

func TestEngagementService_ViewsDoNotSpendWriteBudget(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()

	limiter := ratelimit.New(5, 10)
	t.Cleanup(limiter.Stop)
	ts.engagement.limiter = limiter

	viewer := domain.GuestViewer("guest-browser")
	var last *domain.Trainer
	for i := range 20 {
		last = ts.trainer(t, fmt.Sprintf("트레이너 %d", i), "서울")
		outcome, err := ts.engagement.Record(ctx, viewer, last.ID, domain.KindView)
		require.NoError(t, err, "view %d", i)
		assert.Equal(t, domain.OutcomeApplied, outcome)
	}

	outcome, err := ts.engagement.Record(ctx, viewer, last.ID, domain.KindLike)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
}
