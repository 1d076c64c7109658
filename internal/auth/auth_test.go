package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceskapp/directory/internal/domain"
)

const testKey = "707172737475767778797a7b7c7d7e7f808182838485868788898a8b8c8d8e8f"

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := VerifyPassword(hash, "correct horse battery")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifyPassword("not-a-hash", "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestLoadOrGenerateKey_PersistsKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, first, keyHexSize)

	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFileName), []byte("short"), 0o600))
	_, err = LoadOrGenerateKey(dir)
	assert.Error(t, err)
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc, err := NewTokenService(testKey, time.Hour)
	require.NoError(t, err)

	user := &domain.User{Entity: domain.Entity{ID: "usr-1"}, Email: "coach@example.com", DisplayName: "Coach"}
	token, expires, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, &domain.Session{UserID: "usr-1", Email: "coach@example.com", DisplayName: "Coach"}, claims.Session())
}

func TestTokenService_RejectsExpiredAndForeignTokens(t *testing.T) {
	svc, err := NewTokenService(testKey, time.Minute)
	require.NoError(t, err)

	user := &domain.User{Entity: domain.Entity{ID: "usr-1"}, Email: "a@example.com"}
	token, _, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.VerifyAccessToken(token)
	assert.Error(t, err)

	other, err := NewTokenService(strings.Repeat("ab", 32), time.Minute)
	require.NoError(t, err)
	_, err = other.VerifyAccessToken(token)
	assert.Error(t, err)

	_, err = NewTokenService("abc", time.Minute)
	assert.Error(t, err)
}
