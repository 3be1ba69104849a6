// Package objects provides SQL-backed persistence for stored object
// metadata, with PostgreSQL and SQLite implementations over a dbx.DBTX.
//
// Three columns are nullable on purpose: size, compressed and encrypted.
// Rows written by this code always fill them; NULLs only occur in rows
// imported from installations that predate pipeline-flag recording, and
// they surface as SizeKnown=false / LegacyFormat=true on the model.
package objects

import (
	"context"
	"database/sql"

	"github.com/mosaicedu/notevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, obj *models.StoredObject) error
	// Update rewrites the mutable columns of an existing row; identity
	// (id, owner_id, created_at) never changes.
	Update(ctx context.Context, obj *models.StoredObject) error
	GetByID(ctx context.Context, id string) (*models.StoredObject, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.StoredObject, error)
	ListByGroup(ctx context.Context, ownerID, groupID string) ([]*models.StoredObject, error)
	ListAll(ctx context.Context) ([]*models.StoredObject, error)
	Rename(ctx context.Context, id, newName string) error
	Delete(ctx context.Context, id string) error
}

// selectColumns matches the argument order of scanStoredObject.
const selectColumns = `id, owner_id, name, storage_name, size, checksum_sha256, content_type, compressed, encrypted, nonce, visibility, group_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStoredObject(row rowScanner) (*models.StoredObject, error) {
	var (
		o          models.StoredObject
		size       sql.NullInt64
		compressed sql.NullBool
		encrypted  sql.NullBool
		visibility string
	)
	if err := row.Scan(
		&o.ID, &o.OwnerID, &o.Name, &o.StorageName, &size, &o.ChecksumSHA256,
		&o.ContentType, &compressed, &encrypted, &o.Nonce, &visibility, &o.GroupID, &o.CreatedAt,
	); err != nil {
		return nil, err
	}
	o.Size, o.SizeKnown = size.Int64, size.Valid
	o.Compressed, o.Encrypted = compressed.Bool, encrypted.Bool
	o.LegacyFormat = !compressed.Valid || !encrypted.Valid
	o.Visibility = models.ParseVisibility(visibility)
	return &o, nil
}

// sizeArg and flagArg keep the write side symmetric with scanStoredObject:
// a model carrying legacy markers round-trips back to NULLs.
func sizeArg(o *models.StoredObject) any {
	if o.SizeKnown {
		return o.Size
	}
	return nil
}

func flagArg(o *models.StoredObject, v bool) any {
	if o.LegacyFormat {
		return nil
	}
	return v
}
