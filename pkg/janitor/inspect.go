package janitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillpress/quill/pkg/identity"
	"github.com/quillpress/quill/pkg/models"
)

// Report lists the identity problems of one collection.
type Report struct {
	Collection     models.Collection `json:"collection"`
	LiveItems      int64             `json:"liveItems"`
	NextID         int               `json:"nextId"`
	NegativeIDs    []int             `json:"negativeIds"`
	ParkedIDs      []int             `json:"parkedIds"`
	DuplicateIDs   []int             `json:"duplicateIds"`
	DuplicateSlugs []string          `json:"duplicateSlugs"`
	NumericSlugs   []string          `json:"numericSlugs"`
	PendingReorder *PendingReorder   `json:"pendingReorder,omitempty"`
}

// PendingReorder describes an unfinished reorder run.
type PendingReorder struct {
	RunID     uuid.UUID            `json:"runId"`
	Status    models.JournalStatus `json:"status"`
	Phase     models.ReorderPhase  `json:"phase"`
	Items     int                  `json:"items"`
	LastError string               `json:"lastError,omitempty"`
}

// Clean reports whether nothing needs repair.
func (r *Report) Clean() bool {
	return len(r.NegativeIDs) == 0 &&
		len(r.ParkedIDs) == 0 &&
		len(r.DuplicateIDs) == 0 &&
		len(r.DuplicateSlugs) == 0 &&
		len(r.NumericSlugs) == 0 &&
		r.PendingReorder == nil
}

// Inspect reports the identity problems of c without changing anything.
func (j *Janitor) Inspect(ctx context.Context, c models.Collection) (*Report, error) {
	report := &Report{Collection: c}

	err := j.locked(ctx, c, func(tx *gorm.DB) error {
		items := tx.Model(&models.ContentItem{})

		if err := items.Session(&gorm.Session{}).Scopes(models.Live(c)).Count(&report.LiveItems).Error; err != nil {
			return fmt.Errorf("error counting items: %w", err)
		}

		next, err := identity.NextIDInTx(ctx, tx, c)
		if err != nil {
			return err
		}
		report.NextID = next

		err = items.Session(&gorm.Session{}).
			Scopes(models.InCollection(c)).
			Where("nid < ?", 0).
			Order("nid ASC").
			Pluck("nid", &report.NegativeIDs).
			Error
		if err != nil {
			return fmt.Errorf("error finding negative ids: %w", err)
		}

		err = items.Session(&gorm.Session{}).
			Scopes(models.InCollection(c)).
			Where("nid >= ?", identity.ParkingBase).
			Order("nid ASC").
			Pluck("nid", &report.ParkedIDs).
			Error
		if err != nil {
			return fmt.Errorf("error finding reserved ids: %w", err)
		}

		err = items.Session(&gorm.Session{}).
			Scopes(models.Live(c)).
			Group("nid").
			Having("COUNT(*) > 1").
			Order("nid ASC").
			Pluck("nid", &report.DuplicateIDs).
			Error
		if err != nil {
			return fmt.Errorf("error finding duplicate ids: %w", err)
		}

		var slugs []string
		err = items.Session(&gorm.Session{}).
			Scopes(models.Live(c)).
			Where("slug IS NOT NULL").
			Order("slug ASC").
			Pluck("slug", &slugs).
			Error
		if err != nil {
			return fmt.Errorf("error loading slugs: %w", err)
		}
		report.DuplicateSlugs, report.NumericSlugs = classifySlugs(slugs)

		run, err := models.GetPendingReorderJournal(tx, c)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("error loading reorder journal: %w", err)
		default:
			report.PendingReorder = &PendingReorder{
				RunID:     run.RunID,
				Status:    run.Status,
				Phase:     run.Phase,
				Items:     len(run.Plan),
				LastError: run.LastError,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// classifySlugs takes sorted slugs and returns those held more than once and
// those that are purely numeric.
func classifySlugs(sorted []string) (duplicates, numeric []string) {
	for i, slug := range sorted {
		if models.IsNumericSlug(slug) {
			if i == 0 || sorted[i-1] != slug {
				numeric = append(numeric, slug)
			}
			continue
		}
		if i > 0 && sorted[i-1] == slug && (len(duplicates) == 0 || duplicates[len(duplicates)-1] != slug) {
			duplicates = append(duplicates, slug)
		}
	}
	return duplicates, numeric
}
