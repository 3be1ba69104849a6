package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicedu/notevault/internal/common"
	"github.com/mosaicedu/notevault/internal/cryptox"
	"github.com/mosaicedu/notevault/internal/logging"
	"github.com/mosaicedu/notevault/internal/server/blob"
	sc "github.com/mosaicedu/notevault/internal/server/config"
	"github.com/mosaicedu/notevault/internal/server/models"
	"github.com/mosaicedu/notevault/internal/server/repositories/repomanager"
)

// newTestVault wires a full service over an in-memory database (with the
// real migrations applied) and a payload directory under t.TempDir.
func newTestVault(t *testing.T, mutate func(cfg *sc.Config)) (*VaultService, *sc.Config, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// The in-memory database exists per connection; a second pooled
	// connection would see an empty schema.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	m := repomanager.NewSQLiteRepositoryManager()
	require.NoError(t, m.RunMigrations(context.Background(), db))

	cfg := &sc.Config{}
	cfg.LoadDefaults()
	cfg.UploadDir = t.TempDir()
	cfg.MaxUploadSize = 1 << 20
	cfg.MaxUserStorage = 1 << 20
	if mutate != nil {
		mutate(cfg)
	}

	log := logging.NewNop()

	var key []byte
	if cfg.EncryptionKey != "" {
		key, err = cryptox.ParseKeyHex(cfg.EncryptionKey)
		require.NoError(t, err)
	}
	store, err := blob.NewStore(blob.Options{
		Dir:           cfg.UploadDir,
		Key:           key,
		Compression:   cfg.Compression,
		ZstdLevel:     cfg.ZstdLevel,
		MaxObjectSize: cfg.MaxUploadSize,
	}, log)
	require.NoError(t, err)

	svc, err := NewVaultService(db, m, store, cfg, log)
	require.NoError(t, err)
	return svc, cfg, db
}

func uploadText(t *testing.T, svc *VaultService, owner, name, visibility, group, content string) *models.StoredObject {
	t.Helper()
	obj, err := svc.Upload(context.Background(), UploadRequest{
		OwnerID:    owner,
		Filename:   name,
		Visibility: visibility,
		GroupID:    group,
		Body:       strings.NewReader(content),
	})
	require.NoError(t, err)
	return obj
}

func downloadAll(t *testing.T, svc *VaultService, actor, id string) []byte {
	t.Helper()
	dl, err := svc.Download(context.Background(), actor, id)
	require.NoError(t, err)
	defer dl.Body.Close()
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	return data
}

func artifactCount(t *testing.T, cfg *sc.Config) int {
	t.Helper()
	entries, err := os.ReadDir(cfg.UploadDir)
	require.NoError(t, err)
	return len(entries)
}

func hexSum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestUpload_StoresAndRecords(t *testing.T) {
	svc, cfg, _ := newTestVault(t, nil)
	content := "thermodynamics cheat sheet\n"

	obj := uploadText(t, svc, "alice", "Chapter 1.txt", "private", "", content)

	assert.NotEmpty(t, obj.ID)
	assert.Equal(t, "alice", obj.OwnerID)
	assert.Equal(t, "Chapter 1.txt", obj.Name)
	assert.Equal(t, int64(len(content)), obj.Size)
	assert.True(t, obj.SizeKnown)
	assert.Equal(t, hexSum(content), obj.ChecksumSHA256)
	assert.Equal(t, "text/plain", obj.ContentType)
	assert.Equal(t, models.VisibilityPrivate, obj.Visibility)
	assert.False(t, obj.LegacyFormat)
	assert.Equal(t, 1, artifactCount(t, cfg))

	got, err := svc.Get(context.Background(), "alice", obj.ID)
	require.NoError(t, err)
	assert.Equal(t, obj.ID, got.ID)

	assert.Equal(t, []byte(content), downloadAll(t, svc, "alice", obj.ID))
}

func TestUpload_SanitizesPath(t *testing.T) {
	svc, _, _ := newTestVault(t, nil)

	obj := uploadText(t, svc, "alice", "../../etc/passwd.txt", "private", "", "not a passwd")
	assert.Equal(t, "passwd.txt", obj.Name)

	obj = uploadText(t, svc, "alice", `C:\homework\week1.txt`, "private", "", "windows path")
	assert.Equal(t, "week1.txt", obj.Name)
}

func TestUpload_RejectsBadInput(t *testing.T) {
	svc, cfg, _ := newTestVault(t, nil)
	ctx := context.Background()

	_, err := svc.Upload(ctx, UploadRequest{OwnerID: "alice", Filename: "tool.exe", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, common.ErrExtensionNotAllowed)

	_, err = svc.Upload(ctx, UploadRequest{OwnerID: "alice", Filename: "", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, common.ErrInvalidName)

	_, err = svc.Upload(ctx, UploadRequest{OwnerID: "alice", Filename: "notes/", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, common.ErrInvalidName)

	_, err = svc.Upload(ctx, UploadRequest{OwnerID: "", Filename: "a.txt", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	assert.Equal(t, 0, artifactCount(t, cfg), "rejected uploads must leave nothing behind")
	list, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpload_ContentTypeGate(t *testing.T) {
	svc, cfg, _ := newTestVault(t, nil)

	zip := string([]byte{0x50, 0x4b, 0x03, 0x04, 0, 0, 0, 0})
	_, err := svc.Upload(context.Background(), UploadRequest{
		OwnerID: "alice", Filename: "archive.txt", Body: strings.NewReader(zip),
	})
	assert.ErrorIs(t, err, common.ErrContentTypeNotAllowed)
	assert.Equal(t, 0, artifactCount(t, cfg))
}

func TestUpload_TooLarge(t *testing.T) {
	svc, cfg, _ := newTestVault(t, func(cfg *sc.Config) {
		cfg.MaxUploadSize = 512
	})

	_, err := svc.Upload(context.Background(), UploadRequest{
		OwnerID: "alice", Filename: "big.txt", Body: strings.NewReader(strings.Repeat("a", 2048)),
	})
	assert.ErrorIs(t, err, common.ErrObjectTooLarge)
	assert.Equal(t, 0, artifactCount(t, cfg))
}

func TestUpload_QuotaPreCheck(t *testing.T) {
	svc, _, _ := newTestVault(t, func(cfg *sc.Config) {
		cfg.MaxUserStorage = 100
		cfg.Compression = false
	})
	ctx := context.Background()

	uploadText(t, svc, "alice", "a.txt", "private", "", strings.Repeat("a", 100))

	_, err := svc.Upload(ctx, UploadRequest{
		OwnerID: "alice", Filename: "b.txt", Body: strings.NewReader("b"),
	})
	assert.ErrorIs(t, err, common.ErrQuotaExceeded, "a full account may not start another upload")

	// Other owners are unaffected.
	uploadText(t, svc, "bob", "c.txt", "private", "", "tiny")
}

func TestUpload_QuotaPostCheck(t *testing.T) {
	svc, cfg, _ := newTestVault(t, func(cfg *sc.Config) {
		cfg.MaxUserStorage = 150
		cfg.Compression = false
	})
	ctx := context.Background()

	uploadText(t, svc, "alice", "a.txt", "private", "", strings.Repeat("a", 100))

	_, err := svc.Upload(ctx, UploadRequest{
		OwnerID: "alice", Filename: "b.txt", Body: strings.NewReader(strings.Repeat("b", 100)),
	})
	assert.ErrorIs(t, err, common.ErrQuotaExceeded)
	assert.Equal(t, 1, artifactCount(t, cfg), "the overshooting payload must be removed")

	list, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDownload_PublicReadableByAnyone(t *testing.T) {
	svc, _, _ := newTestVault(t, nil)
	content := "public study guide"
	obj := uploadText(t, svc, "alice", "guide.txt", "public", "", content)

	assert.Equal(t, []byte(content), downloadAll(t, svc, "", obj.ID), "anonymous read of public object")
	assert.Equal(t, []byte(content), downloadAll(t, svc, "bob", obj.ID))

	dl, err := svc.Download(context.Background(), "bob", obj.ID)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, `attachment; filename="guide.txt"`, dl.ContentDisposition())
	name, value := dl.ChecksumHeader()
	assert.Equal(t, "X-Checksum-SHA256", name)
	assert.Equal(t, hexSum(content), value)
}

func TestDownload_PrivateDeniedToOthers(t *testing.T) {
	svc, _, _ := newTestVault(t, nil)
	obj := uploadText(t, svc, "alice", "diary.txt", "private", "", "secret")
	ctx := context.Background()

	_, err := svc.Download(ctx, "bob", obj.ID)
	assert.ErrorIs(t, err, common.ErrAccessDenied)
	assert.NotErrorIs(t, err, common.ErrNotFound, "denial and absence stay distinct")

	_, err = svc.Download(ctx, "", obj.ID)
	assert.ErrorIs(t, err, common.ErrAccessDenied, "anonymous callers are denied too")

	assert.Equal(t, []byte("secret"), downloadAll(t, svc, "alice", obj.ID))
}

func TestDownload_UnlistedBehavesLikePrivateHere(t *testing.T) {
	svc, _, _ := newTestVault(t, nil)
	obj := uploadText(t, svc, "alice", "draft.txt", "unlisted", "", "draft")

	_, err := svc.Download(context.Background(), "bob", obj.ID)
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	assert.Equal(t, []byte("draft"), downloadAll(t, svc, "alice", obj.ID))
}

func TestList(t *testing.T) {
	svc, _, _ := newTestVault(t, nil)
	a1 := uploadText(t, svc, "alice", "a1.txt", "private", "", "one")
	a2 := uploadText(t, svc, "alice", "a2.txt", "private", "", "two")
	uploadText(t, svc, "bob", "b1.txt", "private", "", "three")

	list, err := svc.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.Contains(t, ids, a1.ID)
	assert.Contains(t, ids, a2.ID)
}

func TestDelete(t *testing.T) {
	svc, cfg, _ := newTestVault(t, nil)
	obj := uploadText(t, svc, "alice", "a.txt", "private", "", "bye")
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "alice", obj.ID))
	assert.Equal(t, 0, artifactCount(t, cfg))

	_, err := svc.Get(ctx, "alice", obj.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, "alice", obj.ID), common.ErrNotFound)
}

func TestDelete_Authorization(t *testing.T) {
	svc, _, _ := newTestVault(t, nil)
	ctx := context.Background()

	private := uploadText(t, svc, "alice", "p.txt", "private", "", "x")
	public := uploadText(t, svc, "alice", "q.txt", "public", "", "y")

	err := svc.Delete(ctx, "bob", private.ID)
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	err = svc.Delete(ctx, "bob", public.ID)
	assert.ErrorIs(t, err, common.ErrAccessDenied, "visibility never grants mutation")
}

func TestDeleteGroup(t *testing.T) {
	svc, cfg, _ := newTestVault(t, nil)
	ctx := context.Background()

	uploadText(t, svc, "alice", "a.txt", "private", "note-1", "one")
	uploadText(t, svc, "alice", "b.txt", "private", "note-1", "two")
	keep := uploadText(t, svc, "alice", "c.txt", "private", "note-2", "three")

	n, err := svc.DeleteGroup(ctx, "alice", "note-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, artifactCount(t, cfg))

	list, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)

	n, err = svc.DeleteGroup(ctx, "alice", "note-1")
	require.NoError(t, err)
	assert.Zero(t, n, "deleting an empty group is a no-op")

	_, err = svc.DeleteGroup(ctx, "alice", "")
	assert.ErrorIs(t, err, common.ErrInvalidName)
}

func TestReplace(t *testing.T) {
	svc, cfg, _ := newTestVault(t, func(cfg *sc.Config) {
		cfg.MaxUserStorage = 150
		cfg.Compression = false
	})
	ctx := context.Background()

	obj := uploadText(t, svc, "alice", "v1.txt", "unlisted", "note-3", strings.Repeat("a", 100))

	// 100 stored + 120 incoming only fits because the replaced payload is
	// credited back.
	replacement := strings.Repeat("b", 120)
	updated, err := svc.Replace(ctx, "alice", obj.ID, strings.NewReader(replacement), "v2.txt")
	require.NoError(t, err)

	assert.Equal(t, obj.ID, updated.ID)
	assert.Equal(t, "v2.txt", updated.Name)
	assert.Equal(t, int64(120), updated.Size)
	assert.Equal(t, hexSum(replacement), updated.ChecksumSHA256)
	assert.NotEqual(t, obj.StorageName, updated.StorageName)
	assert.Equal(t, models.VisibilityUnlisted, updated.Visibility, "visibility survives replacement")
	assert.Equal(t, "note-3", updated.GroupID, "group survives replacement")
	assert.Equal(t, 1, artifactCount(t, cfg), "old payload must be gone")

	assert.Equal(t, []byte(replacement), downloadAll(t, svc, "alice", obj.ID))
}

func TestReplace_QuotaStillBinds(t *testing.T) {
	svc, cfg, _ := newTestVault(t, func(cfg *sc.Config) {
		cfg.MaxUserStorage = 150
		cfg.Compression = false
	})
	ctx := context.Background()

	obj := uploadText(t, svc, "alice", "v1.txt", "private", "", strings.Repeat("a", 100))

	_, err := svc.Replace(ctx, "alice", obj.ID, strings.NewReader(strings.Repeat("b", 200)), "")
	assert.ErrorIs(t, err, common.ErrQuotaExceeded)
	assert.Equal(t, 1, artifactCount(t, cfg), "failed replacement must not leak payloads")

	assert.Equal(t, []byte(strings.Repeat("a", 100)), downloadAll(t, svc, "alice", obj.ID),
		"the original payload must be untouched")
}

func TestReplace_Authorization(t *testing.T) {
	svc, _, _ := newTestVault(t, nil)
	obj := uploadText(t, svc, "alice", "shared.txt", "public", "", "v1")

	_, err := svc.Replace(context.Background(), "bob", obj.ID, strings.NewReader("v2"), "")
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestRename(t *testing.T) {
	svc, _, _ := newTestVault(t, nil)
	obj := uploadText(t, svc, "alice", "old.txt", "private", "", "content")
	ctx := context.Background()

	renamed, err := svc.Rename(ctx, "alice", obj.ID, "submissions/new name.txt")
	require.NoError(t, err)
	assert.Equal(t, "new name.txt", renamed.Name, "directories are stripped")

	got, err := svc.Get(ctx, "alice", obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "new name.txt", got.Name)
	assert.Equal(t, obj.StorageName, got.StorageName, "payload identity is untouched")

	_, err = svc.Rename(ctx, "alice", obj.ID, "tool.exe")
	assert.ErrorIs(t, err, common.ErrExtensionNotAllowed)

	_, err = svc.Rename(ctx, "bob", obj.ID, "mine.txt")
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestUsage(t *testing.T) {
	svc, _, _ := newTestVault(t, func(cfg *sc.Config) {
		cfg.Compression = false
	})

	uploadText(t, svc, "alice", "a.txt", "private", "", strings.Repeat("a", 100))
	uploadText(t, svc, "alice", "b.txt", "private", "", strings.Repeat("b", 50))

	report, err := svc.Usage(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(150), report.Used)
	assert.Equal(t, int64(1<<20), report.Cap)
	assert.Equal(t, 2, report.Objects)

	empty, err := svc.Usage(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.Used)
	assert.Zero(t, empty.Objects)
}
