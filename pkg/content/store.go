// Package content implements the identity-relevant part of the content
// lifecycle: create, lookup, soft delete, restore and purge.
package content

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/quillpress/quill/pkg/identity"
	"github.com/quillpress/quill/pkg/invalidate"
	"github.com/quillpress/quill/pkg/models"
)

// ErrNotFound is returned when no item matches.
var ErrNotFound = errors.New("content item not found")

// ErrHeldByReorder is returned when purging an item that an unfinished
// reorder run still has to move.
var ErrHeldByReorder = errors.New("content item is held by an unfinished reorder run")

// Store reads and writes content items through the allocator.
type Store struct {
	alloc    *identity.Allocator
	db       *gorm.DB
	logger   hclog.Logger
	notifier invalidate.Notifier
}

// NewStore creates a store.
func NewStore(alloc *identity.Allocator, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		alloc:    alloc,
		db:       alloc.DB(),
		logger:   logger.Named("content"),
		notifier: alloc.Notifier(),
	}
}

// Create stores a new item on the next free id of its collection.
func (s *Store) Create(ctx context.Context, item *models.ContentItem) error {
	return s.alloc.Create(ctx, item)
}

// Get resolves key against the live items of c. A key is tried as a slug
// first and, when it is numeric, as a public id.
func (s *Store) Get(ctx context.Context, c models.Collection, key string) (*models.ContentItem, error) {
	db := s.db.WithContext(ctx)
	var item models.ContentItem

	if !models.IsNumericSlug(key) {
		err := item.GetBySlug(db, c, key)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s %q: %w", c, key, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("error getting %s %q: %w", c, key, err)
		}
		return &item, nil
	}

	nid, err := strconv.Atoi(key)
	if err != nil || !identity.IsLegitimate(nid) {
		return nil, fmt.Errorf("%s %q: %w", c, key, ErrNotFound)
	}
	err = item.GetByPublicID(db, c, nid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %d: %w", c, nid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting %s %d: %w", c, nid, err)
	}
	return &item, nil
}

// SoftDelete hides the live item of c with id nid. The item keeps its id.
func (s *Store) SoftDelete(ctx context.Context, c models.Collection, nid int) error {
	release, err := s.alloc.Lock(ctx, c)
	if err != nil {
		return err
	}
	defer release()

	res := s.db.WithContext(ctx).
		Model(&models.ContentItem{}).
		Scopes(models.Live(c)).
		Where("nid = ?", nid).
		Updates(map[string]interface{}{"deleted": true, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("error deleting %s %d: %w", c, nid, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %d: %w", c, nid, ErrNotFound)
	}

	s.notifier.Notify(c, invalidate.ReasonDeleted, nid)
	return nil
}

// Restore brings back the most recently deleted item of c with id nid. When
// that id has since been taken the item is given a fresh one. It returns the
// restored item.
func (s *Store) Restore(ctx context.Context, c models.Collection, nid int) (*models.ContentItem, error) {
	release, err := s.alloc.Lock(ctx, c)
	if err != nil {
		return nil, err
	}
	defer release()

	var item models.ContentItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Scopes(models.InCollection(c)).
			Where("nid = ? AND deleted = ?", nid, true).
			Order("updated_at DESC").
			Order("id DESC").
			First(&item).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("deleted %s %d: %w", c, nid, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("error loading deleted %s %d: %w", c, nid, err)
		}

		target := item.PublicID
		ok, err := identity.IsAvailable(ctx, tx, c, target, item.ID)
		if err != nil {
			return err
		}
		if !ok {
			if target, err = identity.NextIDInTx(ctx, tx, c); err != nil {
				return err
			}
			s.logger.Info("restoring onto a fresh id",
				"collection", c,
				"old_nid", item.PublicID,
				"nid", target,
			)
		}

		updates := map[string]interface{}{"deleted": false, "nid": target, "updated_at": time.Now()}
		if item.Slug != nil {
			taken, err := slugTaken(tx, c, *item.Slug, item.ID)
			if err != nil {
				return err
			}
			if taken {
				updates["slug"] = gorm.Expr("NULL")
				item.Slug = nil
			}
		}
		if err := tx.Model(&item).Updates(updates).Error; err != nil {
			return fmt.Errorf("error restoring %s %d: %w", c, nid, err)
		}
		item.PublicID = target
		item.Deleted = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	reason := invalidate.ReasonRestored
	ids := []int{item.PublicID}
	if item.PublicID != nid {
		reason = invalidate.ReasonReassigned
		ids = append(ids, nid)
	}
	s.notifier.Notify(c, reason, ids...)
	return &item, nil
}

// Purge permanently removes the deleted items of c with id nid, freeing the
// id. Live items cannot be purged.
func (s *Store) Purge(ctx context.Context, c models.Collection, nid int) (int64, error) {
	release, err := s.alloc.Lock(ctx, c)
	if err != nil {
		return 0, err
	}
	defer release()

	db := s.db.WithContext(ctx)
	held, err := heldByReorder(db, c, nid)
	if err != nil {
		return 0, err
	}
	if held {
		return 0, fmt.Errorf("deleted %s %d: %w", c, nid, ErrHeldByReorder)
	}

	res := db.
		Scopes(models.InCollection(c)).
		Where("nid = ? AND deleted = ?", nid, true).
		Delete(&models.ContentItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("error purging %s %d: %w", c, nid, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("deleted %s %d: %w", c, nid, ErrNotFound)
	}

	s.notifier.Notify(c, invalidate.ReasonPurged, nid)
	return res.RowsAffected, nil
}

// heldByReorder reports whether a deleted item at nid is a member of the
// pending reorder run of c.
func heldByReorder(db *gorm.DB, c models.Collection, nid int) (bool, error) {
	j, err := models.GetPendingReorderJournal(db, c)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error loading reorder journal: %w", err)
	}
	claimed := j.ClaimedItemIDs()
	if len(claimed) == 0 {
		return false, nil
	}
	var count int64
	err = db.Model(&models.ContentItem{}).
		Scopes(models.InCollection(c)).
		Where("nid = ? AND deleted = ? AND id IN ?", nid, true, claimed).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("error checking %s %d: %w", c, nid, err)
	}
	return count > 0, nil
}

func slugTaken(tx *gorm.DB, c models.Collection, slug string, except uint) (bool, error) {
	var count int64
	err := tx.Model(&models.ContentItem{}).
		Scopes(models.Live(c)).
		Where("slug = ? AND id <> ?", slug, except).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("error checking slug %q: %w", slug, err)
	}
	return count > 0, nil
}
