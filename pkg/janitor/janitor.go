// Package janitor repairs identity invariant violations and clears the
// leftovers of interrupted reorder runs. Violations are reported as counts.
package janitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/quillpress/quill/pkg/identity"
	"github.com/quillpress/quill/pkg/invalidate"
	"github.com/quillpress/quill/pkg/models"
)

// Janitor runs repair operations. Every operation holds the allocator lock
// of the collection it works on.
type Janitor struct {
	alloc    *identity.Allocator
	db       *gorm.DB
	logger   hclog.Logger
	notifier invalidate.Notifier
}

// New creates a janitor.
func New(alloc *identity.Allocator, logger hclog.Logger) *Janitor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Janitor{
		alloc:    alloc,
		db:       alloc.DB(),
		logger:   logger.Named("janitor"),
		notifier: alloc.Notifier(),
	}
}

func (j *Janitor) locked(ctx context.Context, c models.Collection, fn func(tx *gorm.DB) error) error {
	release, err := j.alloc.Lock(ctx, c)
	if err != nil {
		return err
	}
	defer release()

	return j.db.WithContext(ctx).Transaction(fn)
}

// FixNegativeIDs moves every item with a negative id to the next free ids,
// keeping their relative order. It returns the number of items moved.
func (j *Janitor) FixNegativeIDs(ctx context.Context, c models.Collection) (int, error) {
	var moved []int
	err := j.locked(ctx, c, func(tx *gorm.DB) error {
		var items []models.ContentItem
		err := tx.
			Scopes(models.InCollection(c)).
			Where("nid < ?", 0).
			Order("nid ASC").
			Order("id ASC").
			Find(&items).
			Error
		if err != nil {
			return fmt.Errorf("error finding negative ids: %w", err)
		}
		if len(items) == 0 {
			return nil
		}

		highest, err := identity.MaxID(ctx, tx, c)
		if err != nil {
			return err
		}
		for i, item := range items {
			nid := highest + 1 + i
			err := tx.Model(&models.ContentItem{}).
				Where("id = ?", item.ID).
				UpdateColumn("nid", nid).
				Error
			if err != nil {
				return fmt.Errorf("error moving %s %d to %d: %w", c, item.PublicID, nid, err)
			}
			j.logger.Info("reassigned negative id",
				"collection", c,
				"old_nid", item.PublicID,
				"nid", nid,
			)
			moved = append(moved, nid)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	j.notifier.Notify(c, invalidate.ReasonRepaired, moved...)
	return len(moved), nil
}

// CleanupResult reports what CleanupTempIDs did.
type CleanupResult struct {
	// Deleted counts the scratch-range items removed.
	Deleted int `json:"deleted"`

	// Skipped counts the items held by an unfinished reorder run. Resume
	// or abandon the run to settle them.
	Skipped int `json:"skipped"`
}

// CleanupTempIDs permanently deletes every item whose id lies in the
// reserved range. Items that an unfinished reorder run is still moving are
// left in place.
func (j *Janitor) CleanupTempIDs(ctx context.Context, c models.Collection) (*CleanupResult, error) {
	result := &CleanupResult{}
	var purged []int

	err := j.locked(ctx, c, func(tx *gorm.DB) error {
		claimed := make(map[uint]bool)
		run, err := models.GetPendingReorderJournal(tx, c)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("error loading reorder journal: %w", err)
		default:
			for _, id := range run.ClaimedItemIDs() {
				claimed[id] = true
			}
		}

		var items []models.ContentItem
		err = tx.
			Scopes(models.InCollection(c)).
			Where("nid >= ?", identity.ParkingBase).
			Order("nid ASC").
			Find(&items).
			Error
		if err != nil {
			return fmt.Errorf("error finding reserved ids: %w", err)
		}

		var doomed []uint
		for _, item := range items {
			if claimed[item.ID] {
				result.Skipped++
				continue
			}
			doomed = append(doomed, item.ID)
			purged = append(purged, item.PublicID)
		}
		if len(doomed) == 0 {
			return nil
		}
		if err := tx.Where("id IN ?", doomed).Delete(&models.ContentItem{}).Error; err != nil {
			return fmt.Errorf("error deleting reserved ids: %w", err)
		}
		result.Deleted = len(doomed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Deleted > 0 || result.Skipped > 0 {
		j.logger.Info("cleaned up reserved ids",
			"collection", c,
			"deleted", result.Deleted,
			"skipped", result.Skipped,
		)
	}
	j.notifier.Notify(c, invalidate.ReasonPurged, purged...)
	return result, nil
}

// SlugResult reports what CleanupDuplicateSlugs did.
type SlugResult struct {
	Duplicates int `json:"duplicates"` // slugs stripped from later duplicates
	Numeric    int `json:"numeric"`    // purely numeric slugs stripped
}

// Total returns the number of items whose slug was stripped.
func (r *SlugResult) Total() int {
	return r.Duplicates + r.Numeric
}

// CleanupDuplicateSlugs keeps each slug on the earliest created live item
// holding it and strips it from the others. Purely numeric slugs are
// stripped too. Stripped items fall back to id addressing.
func (j *Janitor) CleanupDuplicateSlugs(ctx context.Context, c models.Collection) (*SlugResult, error) {
	result := &SlugResult{}
	var touched []int

	err := j.locked(ctx, c, func(tx *gorm.DB) error {
		var items []models.ContentItem
		err := tx.
			Scopes(models.Live(c)).
			Where("slug IS NOT NULL").
			Order("created_at ASC").
			Order("id ASC").
			Find(&items).
			Error
		if err != nil {
			return fmt.Errorf("error loading slugs: %w", err)
		}

		owners := make(map[string]bool)
		var strip []uint
		for _, item := range items {
			slug := item.SlugValue()
			switch {
			case models.IsNumericSlug(slug) || slug == "":
				result.Numeric++
			case owners[slug]:
				result.Duplicates++
			default:
				owners[slug] = true
				continue
			}
			strip = append(strip, item.ID)
			touched = append(touched, item.PublicID)
		}
		if len(strip) == 0 {
			return nil
		}

		err = tx.Model(&models.ContentItem{}).
			Where("id IN ?", strip).
			Update("slug", gorm.Expr("NULL")).
			Error
		if err != nil {
			return fmt.Errorf("error stripping slugs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Total() > 0 {
		j.logger.Info("stripped slugs",
			"collection", c,
			"duplicates", result.Duplicates,
			"numeric", result.Numeric,
		)
	}
	j.notifier.Notify(c, invalidate.ReasonRepaired, touched...)
	return result, nil
}
