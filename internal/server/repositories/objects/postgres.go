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

// PostgresRepository implements object metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, obj *models.StoredObject) error {
	query := `
		INSERT INTO objects (id, owner_id, name, storage_name, size, checksum_sha256, content_type, compressed, encrypted, nonce, visibility, group_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
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

func (r *PostgresRepository) Update(ctx context.Context, obj *models.StoredObject) error {
	query := `
		UPDATE objects SET
			name = $2,
			storage_name = $3,
			size = $4,
			checksum_sha256 = $5,
			content_type = $6,
			compressed = $7,
			encrypted = $8,
			nonce = $9,
			visibility = $10,
			group_id = $11
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		obj.ID, obj.Name, obj.StorageName, sizeArg(obj), obj.ChecksumSHA256, obj.ContentType,
		flagArg(obj, obj.Compressed), flagArg(obj, obj.Encrypted), obj.Nonce,
		string(obj.Visibility), obj.GroupID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.StoredObject, error) {
	query := `SELECT ` + selectColumns + ` FROM objects WHERE id = $1`
	obj, err := scanStoredObject(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("object %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select object: %w", err)
	}
	return obj, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.StoredObject, error) {
	query := `SELECT ` + selectColumns + ` FROM objects WHERE owner_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) ListByGroup(ctx context.Context, ownerID, groupID string) ([]*models.StoredObject, error) {
	query := `SELECT ` + selectColumns + ` FROM objects WHERE owner_id = $1 AND group_id = $2 ORDER BY created_at DESC, id`
	return r.list(ctx, query, ownerID, groupID)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.StoredObject, error) {
	query := `SELECT ` + selectColumns + ` FROM objects ORDER BY created_at, id`
	return r.list(ctx, query)
}

func (r *PostgresRepository) Rename(ctx context.Context, id, newName string) error {
	query := `UPDATE objects SET name = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, newName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM objects WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.StoredObject, error) {
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

// expectOneRow classifies the outcome of a single-row mutation.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
