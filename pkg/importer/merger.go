// Package importer merges externally supplied records into a collection.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/quillpress/quill/pkg/identity"
	"github.com/quillpress/quill/pkg/invalidate"
	"github.com/quillpress/quill/pkg/models"
	"github.com/quillpress/quill/pkg/reorder"
)

// Result contains statistics about a merge.
type Result struct {
	Created      int           // Records inserted as new items
	Updated      int           // Records merged into an existing item
	IDReassigned int           // Records whose id was replaced by a fresh one
	IDMapping    map[int]int   // Claimed id -> stored id, for reassigned records
	Errors       []RecordError // Records that could not be merged
}

// Err returns the per-record failures as one error, or nil.
func (r *Result) Err() error {
	var result *multierror.Error
	for i := range r.Errors {
		result = multierror.Append(result, &r.Errors[i])
	}
	return result.ErrorOrNil()
}

// RecordError is the failure of a single record. The rest of the batch is
// unaffected.
type RecordError struct {
	Index int
	Title string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%q): %v", e.Index, e.Title, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Merger reconciles incoming records against stored items.
type Merger struct {
	alloc    *identity.Allocator
	db       *gorm.DB
	logger   hclog.Logger
	notifier invalidate.Notifier
}

// NewMerger creates a merger.
func NewMerger(alloc *identity.Allocator, logger hclog.Logger) *Merger {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Merger{
		alloc:    alloc,
		db:       alloc.DB(),
		logger:   logger.Named("importer"),
		notifier: alloc.Notifier(),
	}
}

type outcome struct {
	updated    bool
	reassigned bool
	ids        []int
}

// Merge merges records into collection c. Per-record failures are collected
// in the result. The returned error is set only when the batch could not
// continue, such as when ctx is done or c has an unfinished reorder run.
func (m *Merger) Merge(ctx context.Context, c models.Collection, records []Record) (*Result, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown collection %q", c)
	}

	result := &Result{IDMapping: make(map[int]int)}
	var touched []int

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		out, err := m.mergeOne(ctx, c, rec)
		if err != nil {
			var allocErr *identity.AllocationError
			if errors.As(err, &allocErr) && allocErr.Op == "lock" {
				return result, err
			}
			if errors.Is(err, reorder.ErrReorderPending) {
				return result, err
			}
			m.logger.Warn("error merging record",
				"collection", c,
				"index", i,
				"title", rec.Title,
				"error", err,
			)
			result.Errors = append(result.Errors, RecordError{Index: i, Title: rec.Title, Err: err})
			continue
		}

		if out.updated {
			result.Updated++
		} else {
			result.Created++
		}
		if out.reassigned {
			result.IDReassigned++
			if rec.ID != 0 {
				result.IDMapping[rec.ID] = out.ids[0]
			}
		}
		touched = append(touched, out.ids...)
	}

	m.logger.Info("merged records",
		"collection", c,
		"records", len(records),
		"created", result.Created,
		"updated", result.Updated,
		"id_reassigned", result.IDReassigned,
		"errors", len(result.Errors),
	)
	m.notifier.Notify(c, invalidate.ReasonImported, touched...)
	return result, nil
}

func (m *Merger) mergeOne(ctx context.Context, c models.Collection, rec Record) (outcome, error) {
	if err := rec.Validate(); err != nil {
		return outcome{}, fmt.Errorf("validation error: %w", err)
	}

	release, err := m.alloc.Lock(ctx, c)
	if err != nil {
		return outcome{}, err
	}
	defer release()

	var out outcome
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Members of an unfinished run may sit outside the regular range
		// where the natural key lookup cannot see them.
		pending, err := models.HasPendingReorder(tx, c)
		if err != nil {
			return fmt.Errorf("error checking reorder state: %w", err)
		}
		if pending {
			return reorder.ErrReorderPending
		}

		existing, err := findByNaturalKey(tx, c, rec.Title)
		if err != nil {
			return err
		}

		var except uint
		if existing != nil {
			except = existing.ID
		}
		slug, err := resolveSlug(tx, c, rec.Slug, except)
		if err != nil {
			return err
		}

		if existing != nil {
			out, err = m.update(ctx, tx, existing, rec, slug)
			return err
		}
		out, err = m.insert(ctx, tx, c, rec, slug)
		return err
	})
	return out, err
}

// update merges rec into the item matched by title. A live match keeps its
// id. A soft-deleted match is restored, on a fresh id if its old one has
// been taken meanwhile.
func (m *Merger) update(ctx context.Context, tx *gorm.DB, existing *models.ContentItem, rec Record, slug *string) (outcome, error) {
	out := outcome{updated: true}
	nid := existing.PublicID

	if existing.Deleted {
		ok, err := identity.IsAvailable(ctx, tx, existing.Collection, nid, existing.ID)
		if err != nil {
			return out, err
		}
		if !ok {
			if nid, err = identity.NextIDInTx(ctx, tx, existing.Collection); err != nil {
				return out, err
			}
			out.reassigned = true
			out.ids = append(out.ids, existing.PublicID)
		}
	}

	updates := map[string]interface{}{
		"title":      rec.Title,
		"body":       rec.Body,
		"slug":       slug,
		"deleted":    false,
		"nid":        nid,
		"updated_at": time.Now(),
	}
	if !rec.CreatedAt.IsZero() {
		updates["created_at"] = rec.CreatedAt
	}
	if err := tx.Model(existing).Updates(updates).Error; err != nil {
		return out, fmt.Errorf("error updating %s %d: %w", existing.Collection, existing.PublicID, err)
	}

	out.ids = append([]int{nid}, out.ids...)
	return out, nil
}

// insert stores rec as a new item, on its claimed id when that id is usable.
func (m *Merger) insert(ctx context.Context, tx *gorm.DB, c models.Collection, rec Record, slug *string) (outcome, error) {
	var out outcome

	nid := rec.ID
	ok, err := identity.IsAvailable(ctx, tx, c, nid, 0)
	if err != nil {
		return out, err
	}
	if !ok {
		if nid, err = identity.NextIDInTx(ctx, tx, c); err != nil {
			return out, err
		}
		out.reassigned = true
		m.logger.Debug("reassigned imported id",
			"collection", c,
			"claimed", rec.ID,
			"assigned", nid,
		)
	}

	item := &models.ContentItem{
		Collection: c,
		PublicID:   nid,
		Title:      rec.Title,
		Body:       rec.Body,
		Slug:       slug,
		CreatedAt:  rec.CreatedAt,
	}
	if err := tx.Create(item).Error; err != nil {
		return out, fmt.Errorf("error creating %s: %w", c, err)
	}

	out.ids = []int{nid}
	return out, nil
}

// findByNaturalKey returns the item of c titled title, preferring live items
// and then the earliest created. It returns nil when there is none.
func findByNaturalKey(tx *gorm.DB, c models.Collection, title string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := tx.
		Scopes(models.InCollection(c)).
		Where("title = ?", title).
		Where("nid < ?", identity.ParkingBase).
		Order("deleted ASC").
		Order("created_at ASC").
		Order("id ASC").
		First(&item).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error looking up %q: %w", title, err)
	}
	return &item, nil
}

// resolveSlug returns the slug to store, or nil when slug is empty, purely
// numeric, or held by a live item other than except.
func resolveSlug(tx *gorm.DB, c models.Collection, slug string, except uint) (*string, error) {
	if slug == "" || models.IsNumericSlug(slug) {
		return nil, nil
	}

	var count int64
	q := tx.Model(&models.ContentItem{}).
		Scopes(models.Live(c)).
		Where("slug = ?", slug)
	if except != 0 {
		q = q.Where("id <> ?", except)
	}
	if err := q.Count(&count).Error; err != nil {
		return nil, fmt.Errorf("error checking slug %q: %w", slug, err)
	}
	if count > 0 {
		return nil, nil
	}
	return &slug, nil
}
