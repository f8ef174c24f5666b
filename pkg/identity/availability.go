package identity

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/quillpress/quill/pkg/models"
)

// PlannedCeiling returns the highest final id of the unfinished reorder run
// of c, or 0 when there is none. Ids up to the ceiling belong to that run
// even while its items sit in the staging band.
func PlannedCeiling(ctx context.Context, tx *gorm.DB, c models.Collection) (int, error) {
	j, err := models.GetPendingReorderJournal(tx.WithContext(ctx), c)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	ceiling := 0
	for _, m := range j.Plan {
		if m.NewID > ceiling {
			ceiling = m.NewID
		}
	}
	return ceiling, nil
}

// IsAvailable reports whether item except may take public id nid in c: the
// id must be legitimate, outside any unfinished reorder plan, and not held by
// another live item. The caller must hold the lock of c.
func IsAvailable(ctx context.Context, tx *gorm.DB, c models.Collection, nid int, except uint) (bool, error) {
	if !IsLegitimate(nid) {
		return false, nil
	}

	ceiling, err := PlannedCeiling(ctx, tx, c)
	if err != nil {
		return false, fmt.Errorf("error reading pending reorder: %w", err)
	}
	if nid <= ceiling {
		return false, nil
	}

	var count int64
	q := tx.WithContext(ctx).
		Model(&models.ContentItem{}).
		Scopes(models.Live(c)).
		Where("nid = ?", nid)
	if except != 0 {
		q = q.Where("id <> ?", except)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("error checking %s id %d: %w", c, nid, err)
	}
	return count == 0, nil
}
