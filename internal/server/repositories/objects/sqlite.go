package objects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mosaicedu/notevault/internal/common"
	"github.com/mosaicedu/notevault/internal/dbx"
	"github.com/mosaicedu/notevault/internal/server/models"
)

// SQLiteRepository implements object metadata storage over a dbx.DBTX for
// single-node deployments that run on an embedded database.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, obj *models.StoredObject) error {
	query := `
		INSERT INTO objects (id, owner_id, name, storage_name, size, checksum_sha256, content_type, compressed, encrypted, nonce, visibility, group_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		obj.ID, obj.OwnerID, obj.Name, obj.StorageName, sizeArg(obj), obj.ChecksumSHA256,
		obj.ContentType, flagArg(obj, obj.Compressed), flagArg(obj, obj.Encrypted), obj.Nonce,
		string(obj.Visibility), obj.GroupID, obj.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, obj *models.StoredObject) error {
	query := `
		UPDATE objects SET
			name = ?,
			storage_name = ?,
			size = ?,
			checksum_sha256 = ?,
			content_type = ?,
			compressed = ?,
			encrypted = ?,
			nonce = ?,
			visibility = ?,
			group_id = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		obj.Name, obj.StorageName, sizeArg(obj), obj.ChecksumSHA256, obj.ContentType,
		flagArg(obj, obj.Compressed), flagArg(obj, obj.Encrypted), obj.Nonce,
		string(obj.Visibility), obj.GroupID, obj.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.StoredObject, error) {
	query := `SELECT ` + selectColumns + ` FROM objects WHERE id = ?`
	obj, err := scanStoredObject(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("object %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select object: %w", err)
	}
	return obj, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.StoredObject, error) {
	query := `SELECT ` + selectColumns + ` FROM objects WHERE owner_id = ? ORDER BY created_at DESC, id`
	return r.list(ctx, query, ownerID)
}

func (r *SQLiteRepository) ListByGroup(ctx context.Context, ownerID, groupID string) ([]*models.StoredObject, error) {
	query := `SELECT ` + selectColumns + ` FROM objects WHERE owner_id = ? AND group_id = ? ORDER BY created_at DESC, id`
	return r.list(ctx, query, ownerID, groupID)
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]*models.StoredObject, error) {
	query := `SELECT ` + selectColumns + ` FROM objects ORDER BY created_at, id`
	return r.list(ctx, query)
}

func (r *SQLiteRepository) Rename(ctx context.Context, id, newName string) error {
	query := `UPDATE objects SET name = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, newName, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM objects WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*models.StoredObject, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select objects: %w", err)
	}
	defer rows.Close()

	var result []*models.StoredObject
	for rows.Next() {
		obj, err := scanStoredObject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
