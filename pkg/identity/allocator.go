package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/quillpress/quill/pkg/invalidate"
	"github.com/quillpress/quill/pkg/models"
)

// Allocator issues public ids. Each collection has its own weight-one
// semaphore which every identity-changing operation holds for its whole
// duration. It is a single-process lock; only one writer process may run
// against a database.
type Allocator struct {
	db          *gorm.DB
	logger      hclog.Logger
	notifier    invalidate.Notifier
	lockTimeout time.Duration

	mu    sync.Mutex
	locks map[models.Collection]*semaphore.Weighted
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithNotifier sets where identity changes are reported.
func WithNotifier(n invalidate.Notifier) Option {
	return func(a *Allocator) {
		if n != nil {
			a.notifier = n
		}
	}
}

// WithLockTimeout bounds how long Lock waits. Zero waits until the caller's
// context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(a *Allocator) {
		a.lockTimeout = d
	}
}

// NewAllocator creates an allocator over db.
func NewAllocator(db *gorm.DB, opts ...Option) *Allocator {
	a := &Allocator{
		db:       db,
		logger:   hclog.NewNullLogger(),
		notifier: invalidate.Nop{},
		locks:    make(map[models.Collection]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("allocator")
	return a
}

// DB returns the database the allocator issues ids against.
func (a *Allocator) DB() *gorm.DB {
	return a.db
}

// Notifier returns the configured invalidation notifier.
func (a *Allocator) Notifier() invalidate.Notifier {
	return a.notifier
}

func (a *Allocator) semaphore(c models.Collection) *semaphore.Weighted {
	a.mu.Lock()
	defer a.mu.Unlock()

	sem, ok := a.locks[c]
	if !ok {
		sem = semaphore.NewWeighted(1)
		a.locks[c] = sem
	}
	return sem
}

// Lock acquires the lock of collection c. The returned release func is safe
// to call more than once.
func (a *Allocator) Lock(ctx context.Context, c models.Collection) (func(), error) {
	if !c.Valid() {
		return nil, &AllocationError{Collection: c, Op: "lock", Err: fmt.Errorf("unknown collection %q", c)}
	}

	if a.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.lockTimeout)
		defer cancel()
	}

	sem := a.semaphore(c)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, &AllocationError{Collection: c, Op: "lock", Err: err}
	}

	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}

// NextID returns the id a new item of c would receive: one more than the
// largest id below ParkingBase held by any item, live or soft-deleted.
func (a *Allocator) NextID(ctx context.Context, c models.Collection) (int, error) {
	release, err := a.Lock(ctx, c)
	if err != nil {
		return 0, err
	}
	defer release()

	return NextIDInTx(ctx, a.db, c)
}

// NextIDInTx scans tx for the next id of c. The caller must hold the lock
// of c.
func NextIDInTx(ctx context.Context, tx *gorm.DB, c models.Collection) (int, error) {
	highest, err := MaxID(ctx, tx, c)
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}

// MaxID returns the largest id of c below ParkingBase, or 0 when there is no
// positive one. The final ids of an unfinished reorder run count as held.
func MaxID(ctx context.Context, tx *gorm.DB, c models.Collection) (int, error) {
	var highest int
	err := tx.WithContext(ctx).
		Model(&models.ContentItem{}).
		Scopes(models.InCollection(c)).
		Where("nid < ?", ParkingBase).
		Select("COALESCE(MAX(nid), 0)").
		Scan(&highest).
		Error
	if err != nil {
		return 0, &AllocationError{Collection: c, Op: "scan", Err: err}
	}
	if highest < 0 {
		highest = 0
	}

	ceiling, err := PlannedCeiling(ctx, tx, c)
	if err != nil {
		return 0, &AllocationError{Collection: c, Op: "scan", Err: err}
	}
	if ceiling > highest {
		highest = ceiling
	}
	return highest, nil
}

// Create assigns item the next id of its collection and inserts it.
func (a *Allocator) Create(ctx context.Context, item *models.ContentItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	release, err := a.Lock(ctx, item.Collection)
	if err != nil {
		return err
	}
	defer release()

	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nid, err := NextIDInTx(ctx, tx, item.Collection)
		if err != nil {
			return err
		}
		item.PublicID = nid
		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("error creating %s: %w", item.Collection, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.logger.Debug("created item",
		"collection", item.Collection,
		"nid", item.PublicID,
	)
	a.notifier.Notify(item.Collection, invalidate.ReasonCreated, item.PublicID)
	return nil
}
