package objects

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mosaicedu/notevault/internal/common"
	"github.com/mosaicedu/notevault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func mockObject() *models.StoredObject {
	return &models.StoredObject{
		ID:             "id1",
		OwnerID:        "u1",
		Name:           "report.pdf",
		StorageName:    "0011aabb.pdf",
		Size:           2048,
		SizeKnown:      true,
		ChecksumSHA256: "cafe",
		ContentType:    "application/pdf",
		Compressed:     true,
		Encrypted:      false,
		Visibility:     models.VisibilityPrivate,
		GroupID:        "",
		CreatedAt:      time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func TestPostgresCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	obj := mockObject()
	q := `(?s)^\s*INSERT\s+INTO\s+objects\b.*VALUES\s*\(\$1,.*\$13\)`

	mock.ExpectExec(q).
		WithArgs(obj.ID, obj.OwnerID, obj.Name, obj.StorageName, obj.Size, obj.ChecksumSHA256,
			obj.ContentType, obj.Compressed, obj.Encrypted, nil, "private", obj.GroupID, obj.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), obj); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreate_LegacyMarkersBindNulls(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	obj := mockObject()
	obj.SizeKnown = false
	obj.LegacyFormat = true
	q := `(?s)^\s*INSERT\s+INTO\s+objects\b`

	mock.ExpectExec(q).
		WithArgs(obj.ID, obj.OwnerID, obj.Name, obj.StorageName, nil, obj.ChecksumSHA256,
			obj.ContentType, nil, nil, nil, "private", obj.GroupID, obj.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), obj); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+objects\b`).
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), mockObject())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestPostgresGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`^SELECT .* FROM objects WHERE id = \$1$`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostgresListByOwner_ScansNulls(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cols := []string{"id", "owner_id", "name", "storage_name", "size", "checksum_sha256",
		"content_type", "compressed", "encrypted", "nonce", "visibility", "group_id", "created_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("id1", "u1", "a.txt", "a-art.txt", int64(5), "aa", "text/plain", true, false, nil, "public", "", time.Now()).
		AddRow("id2", "u1", "old.txt", "old-art.txt", nil, "bb", "text/plain", nil, nil, nil, "private", "", time.Now())

	mock.ExpectQuery(`^SELECT .* FROM objects WHERE owner_id = \$1 ORDER BY created_at DESC, id$`).
		WithArgs("u1").
		WillReturnRows(rows)

	got, err := repo.ListByOwner(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 rows, got %d", len(got))
	}
	if got[0].LegacyFormat || !got[0].SizeKnown {
		t.Fatalf("first row should be modern: %+v", got[0])
	}
	if got[0].Visibility != models.VisibilityPublic {
		t.Fatalf("want public visibility, got %s", got[0].Visibility)
	}
	if !got[1].LegacyFormat || got[1].SizeKnown {
		t.Fatalf("second row should be legacy: %+v", got[1])
	}
}

func TestPostgresUpdate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	obj := mockObject()
	q := `(?s)^\s*UPDATE\s+objects\s+SET\b.*WHERE id = \$1`

	mock.ExpectExec(q).
		WithArgs(obj.ID, obj.Name, obj.StorageName, obj.Size, obj.ChecksumSHA256, obj.ContentType,
			obj.Compressed, obj.Encrypted, nil, "private", obj.GroupID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), obj); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRename_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^UPDATE objects SET name = \$2 WHERE id = \$1$`).
		WithArgs("missing", "new.txt").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Rename(context.Background(), "missing", "new.txt")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostgresDelete_UnexpectedRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE FROM objects WHERE id = \$1$`).
		WithArgs("id1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.Delete(context.Background(), "id1")
	if err == nil || !regexp.MustCompile(`unexpected rows affected: 2`).MatchString(err.Error()) {
		t.Fatalf("expected unexpected-rows error, got %v", err)
	}
}

func TestPostgresDelete_RowsAffectedErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE FROM objects WHERE id = \$1$`).
		WithArgs("id1").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))

	err := repo.Delete(context.Background(), "id1")
	if err == nil || !regexp.MustCompile(`rows affected error: .*rows-err`).MatchString(err.Error()) {
		t.Fatalf("expected rows-affected error, got %v", err)
	}
}
