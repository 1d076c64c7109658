// Package main seeds a directory database with demo accounts, trainers and posts.
//
// Usage:
//
//	go run ./cmd/seed --data-path ~/directory
//
// Trainers use fixed ids, so running it again updates them in place. Accounts that
// already exist are signed in instead of registered.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ceskapp/directory/internal/auth"
	"github.com/ceskapp/directory/internal/config"
	"github.com/ceskapp/directory/internal/content"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/logger"
	"github.com/ceskapp/directory/internal/service"
	"github.com/ceskapp/directory/internal/store/sqlite"
	"github.com/ceskapp/directory/internal/validation"
)

const demoPassword = "directory-demo-1"

var demoUsers = []service.RegisterRequest{
	{Email: "hana@example.com", Password: demoPassword, DisplayName: "김하나"},
	{Email: "duri@example.com", Password: demoPassword, DisplayName: "이두리"},
	{Email: "minsu@example.com", Password: demoPassword, DisplayName: "박민수"},
}

var demoTrainers = []service.UpsertTrainerRequest{
	{ID: "trn-seed-01", Name: "김하나", Level: "마스터", Specialty: "재활 운동", Region: "서울 강남구", Experience: "12년", Introduction: "무릎과 허리 재활을 전문으로 합니다."},
	{ID: "trn-seed-02", Name: "최서진", Level: "시니어", Specialty: "다이어트", Region: "서울 마포구", Experience: "7년", Introduction: "식단과 유산소를 함께 관리합니다."},
	{ID: "trn-seed-03", Name: "이두리", Level: "시니어", Specialty: "보디빌딩", Region: "부산 해운대구", Experience: "9년", Introduction: "대회 준비반을 운영합니다."},
	{ID: "trn-seed-04", Name: "정유나", Level: "주니어", Specialty: "필라테스", Region: "부산 수영구", Experience: "3년"},
	{ID: "trn-seed-05", Name: "박민수", Level: "시니어", Specialty: "크로스핏", Region: "대구 수성구", Experience: "6년"},
	{ID: "trn-seed-06", Name: "한지우", Level: "주니어", Specialty: "요가", Region: "인천 연수구", Experience: "2년"},
	{ID: "trn-seed-07", Name: "오태양", Level: "마스터", Specialty: "파워리프팅", Region: "대전 유성구", Experience: "15년"},
	{ID: "trn-seed-08", Name: "윤가람", Level: "시니어", Specialty: "체형 교정", Region: "광주 서구", Experience: "8년"},
}

var demoPosts = []struct {
	author int
	req    service.CreatePostRequest
}{
	{0, service.CreatePostRequest{Title: "스쿼트할 때 무릎이 아파요", Category: domain.CategoryQuestion, Body: "깊이 앉으면 **무릎 안쪽**이 아픕니다. 자세 문제일까요?", Format: content.FormatMarkdown}},
	{1, service.CreatePostRequest{Title: "최서진 트레이너 후기", Category: domain.CategoryReview, Body: "<p>석 달 동안 8kg 감량했습니다. <b>강력 추천</b>합니다.</p>", Format: content.FormatHTML}},
	{2, service.CreatePostRequest{Title: "부산 헬스장 추천 부탁드려요", Category: domain.CategoryFree, Body: "해운대 근처로 이사 왔습니다.", Format: content.FormatMarkdown}},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	}).Logger

	db, err := sqlite.Open(cfg.Data.DatabasePath(), log)
	if err != nil {
		return err
	}
	defer db.Close()

	keyHex, err := auth.LoadOrGenerateKey(cfg.Data.BasePath)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(keyHex, cfg.Auth.AccessTokenDuration)
	if err != nil {
		return err
	}

	v := validation.New()
	authSvc := service.NewAuthService(db, tokens, v, log)
	directory := service.NewDirectoryService(db, content.NewProcessor(), v, log)
	engagement := service.NewEngagementService(db, nil, log)

	ctx := context.Background()

	userIDs := make([]string, 0, len(demoUsers))
	for _, req := range demoUsers {
		userID, err := ensureUser(ctx, authSvc, req)
		if err != nil {
			return fmt.Errorf("user %s: %w", req.Email, err)
		}
		userIDs = append(userIDs, userID)
	}

	for _, req := range demoTrainers {
		if _, _, err := directory.UpsertTrainer(ctx, req); err != nil {
			return fmt.Errorf("trainer %s: %w", req.ID, err)
		}
	}

	for _, p := range demoPosts {
		post, err := directory.CreatePost(ctx, userIDs[p.author], p.req)
		if err != nil {
			return fmt.Errorf("post %q: %w", p.req.Title, err)
		}
		// Everyone else likes each post once.
		for i, userID := range userIDs {
			if i == p.author {
				continue
			}
			if _, err := engagement.Record(ctx, domain.AuthenticatedViewer(userID), post.ID, domain.KindLike); err != nil {
				return fmt.Errorf("like %s: %w", post.ID, err)
			}
		}
	}

	for i, trainer := range demoTrainers[:3] {
		viewer := domain.AuthenticatedViewer(userIDs[i%len(userIDs)])
		if _, err := engagement.Record(ctx, viewer, trainer.ID, domain.KindLike); err != nil {
			return fmt.Errorf("like %s: %w", trainer.ID, err)
		}
	}

	log.Info("seed complete",
		slog.Int("users", len(userIDs)),
		slog.Int("trainers", len(demoTrainers)),
		slog.Int("posts", len(demoPosts)),
		slog.String("password", demoPassword),
	)
	return nil
}

func ensureUser(ctx context.Context, authSvc *service.AuthService, req service.RegisterRequest) (string, error) {
	resp, err := authSvc.Register(ctx, req)
	if errors.Is(err, domainerrors.ErrAlreadyExists) {
		resp, err = authSvc.Login(ctx, service.LoginRequest{Email: req.Email, Password: req.Password})
	}
	if err != nil {
		return "", err
	}
	return resp.User.ID, nil
}
