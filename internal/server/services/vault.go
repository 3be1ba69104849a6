// Package services implements the vault's operations over the repository
// and blob layers: upload admission, guarded reads, mutation, quota
// reporting and full-store verification.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mosaicedu/notevault/internal/common"
	"github.com/mosaicedu/notevault/internal/dbx"
	"github.com/mosaicedu/notevault/internal/logging"
	"github.com/mosaicedu/notevault/internal/server/access"
	"github.com/mosaicedu/notevault/internal/server/blob"
	sc "github.com/mosaicedu/notevault/internal/server/config"
	"github.com/mosaicedu/notevault/internal/server/models"
	"github.com/mosaicedu/notevault/internal/server/quota"
	"github.com/mosaicedu/notevault/internal/server/repositories/repomanager"
)

// VaultService owns the lifecycle of stored objects. All mutations for one
// owner are serialized through the lock registry so that quota admission,
// payload commit and row insertion act as one unit per owner.
type VaultService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  *blob.Store
	ledger *quota.Ledger
	locks  *quota.LockRegistry
	config *sc.Config
	log    logging.Logger
}

func NewVaultService(db *sql.DB, repos repomanager.RepositoryManager, store *blob.Store, config *sc.Config, log logging.Logger) (*VaultService, error) {
	ledger, err := quota.NewLedger(repos.Objects(db), store, config.MaxUserStorage, log)
	if err != nil {
		return nil, err
	}
	return &VaultService{
		db:     db,
		repos:  repos,
		store:  store,
		ledger: ledger,
		locks:  quota.NewLockRegistry(),
		config: config,
		log:    log,
	}, nil
}

// UploadRequest carries one upload. Visibility strings outside the known
// set collapse to private.
type UploadRequest struct {
	OwnerID    string
	Filename   string
	Visibility string
	GroupID    string
	Body       io.Reader
}

// Upload admits, stores and records a new object. On any failure nothing
// remains: neither a payload file nor a metadata row.
func (s *VaultService) Upload(ctx context.Context, req UploadRequest) (*models.StoredObject, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("upload requires an owner: %w", common.ErrAccessDenied)
	}
	name, err := sanitizeFilename(req.Filename)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !s.extAllowed(ext) {
		return nil, fmt.Errorf("%w: %q", common.ErrExtensionNotAllowed, ext)
	}

	mu := s.locks.Owner(req.OwnerID)
	mu.Lock()
	defer mu.Unlock()

	used, err := s.ledger.Admit(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}

	res, err := s.store.Write(ctx, req.Body, ext)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Fits(used, res.Size); err != nil {
		s.removeArtifact(ctx, res.StorageName)
		return nil, err
	}

	obj := &models.StoredObject{
		ID:             uuid.NewString(),
		OwnerID:        req.OwnerID,
		Name:           name,
		StorageName:    res.StorageName,
		Size:           res.Size,
		SizeKnown:      true,
		ChecksumSHA256: res.ChecksumSHA256,
		ContentType:    res.ContentType,
		Compressed:     res.Compressed,
		Encrypted:      res.Encrypted,
		Nonce:          res.Nonce,
		Visibility:     models.ParseVisibility(req.Visibility),
		GroupID:        req.GroupID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repos.Objects(s.db).Create(ctx, obj); err != nil {
		s.removeArtifact(ctx, res.StorageName)
		return nil, err
	}

	s.log.Info(ctx, "object uploaded",
		"object", obj.ID, "owner", obj.OwnerID, "size", obj.Size,
		"content_type", obj.ContentType, "visibility", string(obj.Visibility))
	return obj, nil
}

// Download couples an object's metadata with a verified plaintext stream.
// The caller owns Body and must close it.
type Download struct {
	Object *models.StoredObject
	Body   io.ReadCloser
}

// ContentDisposition renders the attachment header value for this download.
func (d *Download) ContentDisposition() string {
	return fmt.Sprintf("attachment; filename=%q", d.Object.Name)
}

// ChecksumHeader returns the response header advertising the plaintext
// digest, so clients can verify what they received end to end.
func (d *Download) ChecksumHeader() (name, value string) {
	return common.ChecksumHeaderName, d.Object.ChecksumSHA256
}

// Download opens an object for reading on behalf of actorID. The access
// gate runs before any disk read; a caller the gate refuses learns nothing
// about the payload.
func (s *VaultService) Download(ctx context.Context, actorID, objectID string) (*Download, error) {
	obj, err := s.visibleObject(ctx, actorID, objectID)
	if err != nil {
		return nil, err
	}
	body, err := s.store.Open(ctx, obj)
	if err != nil {
		return nil, err
	}
	return &Download{Object: obj, Body: body}, nil
}

// Get returns an object's metadata under the same visibility rule as
// Download.
func (s *VaultService) Get(ctx context.Context, actorID, objectID string) (*models.StoredObject, error) {
	return s.visibleObject(ctx, actorID, objectID)
}

// List returns all objects owned by ownerID, newest first.
func (s *VaultService) List(ctx context.Context, ownerID string) ([]*models.StoredObject, error) {
	return s.repos.Objects(s.db).ListByOwner(ctx, ownerID)
}

// Delete removes an object's row and payload. The row goes first: a crash
// in between leaves an orphan payload, never a row pointing at nothing.
func (s *VaultService) Delete(ctx context.Context, actorID, objectID string) error {
	obj, err := s.mutableObject(ctx, actorID, objectID)
	if err != nil {
		return err
	}

	mu := s.locks.Owner(obj.OwnerID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.repos.Objects(s.db).Delete(ctx, obj.ID); err != nil {
		return err
	}
	s.removeArtifact(ctx, obj.StorageName)

	s.log.Info(ctx, "object deleted", "object", obj.ID, "owner", obj.OwnerID)
	return nil
}

// DeleteGroup removes every object the owner holds in a group. Rows are
// deleted in one transaction; payloads are removed after it commits.
func (s *VaultService) DeleteGroup(ctx context.Context, ownerID, groupID string) (int, error) {
	if groupID == "" {
		return 0, fmt.Errorf("group id required: %w", common.ErrInvalidName)
	}

	mu := s.locks.Owner(ownerID)
	mu.Lock()
	defer mu.Unlock()

	objs, err := s.repos.Objects(s.db).ListByGroup(ctx, ownerID, groupID)
	if err != nil {
		return 0, err
	}
	if len(objs) == 0 {
		return 0, nil
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Objects(tx)
		for _, o := range objs {
			if err := repo.Delete(ctx, o.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, o := range objs {
		s.removeArtifact(ctx, o.StorageName)
	}

	s.log.Info(ctx, "group deleted", "owner", ownerID, "group", groupID, "objects", len(objs))
	return len(objs), nil
}

// Replace stores a new payload for an existing object, keeping its identity
// and visibility. The quota check credits the payload being replaced. The
// old payload is removed only after the row points at the new one.
func (s *VaultService) Replace(ctx context.Context, actorID, objectID string, body io.Reader, newFilename string) (*models.StoredObject, error) {
	obj, err := s.mutableObject(ctx, actorID, objectID)
	if err != nil {
		return nil, err
	}

	name := obj.Name
	if newFilename != "" {
		name, err = sanitizeFilename(newFilename)
		if err != nil {
			return nil, err
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !s.extAllowed(ext) {
		return nil, fmt.Errorf("%w: %q", common.ErrExtensionNotAllowed, ext)
	}

	mu := s.locks.Owner(obj.OwnerID)
	mu.Lock()
	defer mu.Unlock()

	used, err := s.ledger.Usage(ctx, obj.OwnerID)
	if err != nil {
		return nil, err
	}
	used -= s.objectFootprint(ctx, obj)
	if used < 0 {
		used = 0
	}

	res, err := s.store.Write(ctx, body, ext)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Fits(used, res.Size); err != nil {
		s.removeArtifact(ctx, res.StorageName)
		return nil, err
	}

	oldStorageName := obj.StorageName
	updated := *obj
	updated.Name = name
	updated.StorageName = res.StorageName
	updated.Size = res.Size
	updated.SizeKnown = true
	updated.ChecksumSHA256 = res.ChecksumSHA256
	updated.ContentType = res.ContentType
	updated.Compressed = res.Compressed
	updated.Encrypted = res.Encrypted
	updated.Nonce = res.Nonce
	updated.LegacyFormat = false

	if err := s.repos.Objects(s.db).Update(ctx, &updated); err != nil {
		s.removeArtifact(ctx, res.StorageName)
		return nil, err
	}
	s.removeArtifact(ctx, oldStorageName)

	s.log.Info(ctx, "object replaced", "object", updated.ID, "owner", updated.OwnerID, "size", updated.Size)
	return &updated, nil
}

// Rename changes an object's logical filename. The payload and its storage
// name are untouched.
func (s *VaultService) Rename(ctx context.Context, actorID, objectID, newName string) (*models.StoredObject, error) {
	obj, err := s.mutableObject(ctx, actorID, objectID)
	if err != nil {
		return nil, err
	}
	name, err := sanitizeFilename(newName)
	if err != nil {
		return nil, err
	}
	if ext := strings.ToLower(filepath.Ext(name)); !s.extAllowed(ext) {
		return nil, fmt.Errorf("%w: %q", common.ErrExtensionNotAllowed, ext)
	}

	if err := s.repos.Objects(s.db).Rename(ctx, obj.ID, name); err != nil {
		return nil, err
	}
	obj.Name = name
	return obj, nil
}

// UsageReport describes an owner's consumption against the budget.
type UsageReport struct {
	Used    int64
	Cap     int64
	Objects int
}

func (s *VaultService) Usage(ctx context.Context, ownerID string) (*UsageReport, error) {
	objs, err := s.repos.Objects(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	used, err := s.ledger.Usage(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &UsageReport{Used: used, Cap: s.ledger.Cap(), Objects: len(objs)}, nil
}

// visibleObject loads an object and applies the read gate before anything
// touches the payload on disk.
func (s *VaultService) visibleObject(ctx context.Context, actorID, objectID string) (*models.StoredObject, error) {
	obj, err := s.repos.Objects(s.db).GetByID(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if !access.CanRead(obj, actorID) {
		return nil, fmt.Errorf("object %s: %w", objectID, common.ErrAccessDenied)
	}
	return obj, nil
}

// mutableObject loads an object and applies the ownership gate. Visibility
// never grants mutation: a public object is still only the owner's to change.
func (s *VaultService) mutableObject(ctx context.Context, actorID, objectID string) (*models.StoredObject, error) {
	obj, err := s.repos.Objects(s.db).GetByID(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if !access.CanModify(obj, actorID) {
		return nil, fmt.Errorf("object %s: %w", objectID, common.ErrAccessDenied)
	}
	return obj, nil
}

// objectFootprint mirrors the ledger's per-object accounting rule.
func (s *VaultService) objectFootprint(ctx context.Context, obj *models.StoredObject) int64 {
	if obj.SizeKnown {
		return obj.Size
	}
	n, err := s.store.StatSize(obj.StorageName)
	if err != nil {
		s.log.Warn(ctx, "cannot stat legacy artifact, counting zero",
			"object", obj.ID, "storage_name", obj.StorageName)
		return 0
	}
	return n
}

// removeArtifact deletes a payload file, downgrading failure to a warning:
// at every call site the metadata already reflects the removal, so the worst
// outcome is an orphan payload.
func (s *VaultService) removeArtifact(ctx context.Context, storageName string) {
	if err := s.store.Remove(storageName); err != nil {
		s.log.Warn(ctx, "failed to remove payload artifact", "storage_name", storageName, "error", err.Error())
	}
}

func (s *VaultService) extAllowed(ext string) bool {
	if len(s.config.AllowedExtensions) == 0 {
		return true
	}
	for _, a := range s.config.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// sanitizeFilename reduces a client-supplied filename to a safe base name.
func sanitizeFilename(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	// Strip directories whichever separator the client used.
	name = name[strings.LastIndexByte(name, '/')+1:]
	name = name[strings.LastIndexByte(name, '\\')+1:]
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidName, raw)
	}
	return name, nil
}
