// Package quota enforces per-owner storage budgets. Admission is two-phase:
// a cheap pre-check before any payload bytes are accepted, and a binding
// post-check once the true plaintext size is known. Both phases must run
// under the owner's lock from the same LockRegistry, otherwise concurrent
// uploads can jointly overshoot the budget.
package quota

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/mosaicedu/notevault/internal/common"
	"github.com/mosaicedu/notevault/internal/logging"
	"github.com/mosaicedu/notevault/internal/server/models"
)

// LockRegistry hands out one mutex per owner, created on first use. Locks
// are never evicted; the map grows with the number of distinct owners seen
// by this process, which is bounded and small.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// Owner returns the mutex serializing storage mutations for one owner.
// Callers lock it around the whole admit → store → record sequence.
func (r *LockRegistry) Owner(ownerID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[ownerID] = l
	}
	return l
}

// ObjectLister is the slice of the repository the ledger needs.
type ObjectLister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*models.StoredObject, error)
}

// Sizer reports on-disk payload sizes; used only for legacy rows whose
// plaintext size was never recorded.
type Sizer interface {
	StatSize(storageName string) (int64, error)
}

// Ledger computes an owner's storage consumption and admits new uploads
// against a fixed budget.
type Ledger struct {
	objects ObjectLister
	sizes   Sizer
	cap     int64
	log     logging.Logger
}

func NewLedger(objects ObjectLister, sizes Sizer, capBytes int64, log logging.Logger) (*Ledger, error) {
	if capBytes <= 0 {
		return nil, fmt.Errorf("quota ledger: cap must be positive, got %d", capBytes)
	}
	return &Ledger{objects: objects, sizes: sizes, cap: capBytes, log: log}, nil
}

// Cap returns the per-owner budget in bytes.
func (l *Ledger) Cap() int64 {
	return l.cap
}

// Usage sums the plaintext sizes of all objects an owner holds. Rows with a
// recorded size use it directly; legacy rows fall back to the artifact's
// on-disk size, and a legacy row whose artifact is gone counts as zero
// rather than blocking the owner's account on an old inconsistency.
func (l *Ledger) Usage(ctx context.Context, ownerID string) (int64, error) {
	objs, err := l.objects.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("quota usage: %w", err)
	}

	var total int64
	for _, o := range objs {
		if o.SizeKnown {
			total += o.Size
			continue
		}
		n, serr := l.sizes.StatSize(o.StorageName)
		if serr != nil {
			if os.IsNotExist(serr) {
				l.log.Warn(ctx, "legacy object has no artifact, counting zero",
					"object", o.ID, "storage_name", o.StorageName)
				continue
			}
			return 0, fmt.Errorf("%w: stat legacy artifact %s: %v", common.ErrStorage, o.StorageName, serr)
		}
		total += n
	}
	return total, nil
}

// Admit is the pre-check: it refuses new uploads from owners already at or
// over budget and returns the current usage for the post-check. The payload
// size is unknown at this point, so an owner strictly under budget is always
// admitted here and settled in Fits.
func (l *Ledger) Admit(ctx context.Context, ownerID string) (int64, error) {
	used, err := l.Usage(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if used >= l.cap {
		return used, fmt.Errorf("%d of %d bytes used: %w", used, l.cap, common.ErrQuotaExceeded)
	}
	return used, nil
}

// Fits is the post-check: with the incoming plaintext size now known, it
// decides whether the upload stays within budget. used must come from Admit
// under the same owner lock. Filling the budget exactly is allowed.
func (l *Ledger) Fits(used, incoming int64) error {
	if used+incoming > l.cap {
		return fmt.Errorf("%d of %d bytes used, incoming %d: %w", used, l.cap, incoming, common.ErrQuotaExceeded)
	}
	return nil
}
