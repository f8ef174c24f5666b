// Package reorder renumbers the live items of a collection into the dense
// sequence 1..N ordered by creation time.
//
// A run is journaled. The plan is written before any id changes, and each
// phase commits together with the journal entry recording it:
//
//	park      move non-members out of [1, N] and the staging slots
//	rewrite   rewrite cross-links in every member's body
//	stage     move member of rank r to TempBase + r
//	renumber  move member of rank r to r
//	purge     delete parked leftovers that were soft-deleted
//
// No duplicate live id is visible between phases. A run that fails part way
// is reported as a PartialFailure and is never retried automatically. It is
// either resumed, or abandoned while no member link or id has changed yet.
// Live items found in the staging slots stay in the parking band for the
// janitor to clear.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/quillpress/quill/pkg/identity"
	"github.com/quillpress/quill/pkg/invalidate"
	"github.com/quillpress/quill/pkg/models"
)

// Result summarizes a run.
type Result struct {
	RunID             uuid.UUID `json:"runId"`
	TotalItems        int       `json:"totalItems"`
	UpdatedReferences int       `json:"updatedReferences"`
	ConflictsResolved int       `json:"conflictsResolved"`

	// MissingItems counts planned members removed before a resumed run
	// finished. Their final ids stay unused until the next reorder.
	MissingItems int `json:"missingItems,omitempty"`
}

// Engine runs reorders. It shares the allocator's per-collection lock so id
// issuance is blocked for the duration of a run.
type Engine struct {
	alloc    *identity.Allocator
	db       *gorm.DB
	logger   hclog.Logger
	notifier invalidate.Notifier

	// beforePhase, when set, runs before each phase. Tests use it to
	// interrupt a run.
	beforePhase func(models.ReorderPhase) error
}

// NewEngine creates a reorder engine.
func NewEngine(alloc *identity.Allocator, logger hclog.Logger) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{
		alloc:    alloc,
		db:       alloc.DB(),
		logger:   logger.Named("reorder"),
		notifier: alloc.Notifier(),
	}
}

// Reorder renumbers the live items of c.
func (e *Engine) Reorder(ctx context.Context, c models.Collection) (*Result, error) {
	release, err := e.alloc.Lock(ctx, c)
	if err != nil {
		return nil, err
	}
	defer release()

	db := e.db.WithContext(ctx)

	pending, err := models.HasPendingReorder(db, c)
	if err != nil {
		return nil, fmt.Errorf("error checking for pending reorder: %w", err)
	}
	if pending {
		return nil, ErrReorderPending
	}

	members, err := loadMembers(db, c)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return &Result{}, nil
	}

	plan := make([]models.PlannedMove, 0, len(members))
	mapping := make(map[int]int, len(members))
	identityMapping := true
	for i, item := range members {
		rank := i + 1
		plan = append(plan, models.PlannedMove{ItemID: item.ID, OldID: item.PublicID, NewID: rank})
		if item.PublicID > 0 {
			mapping[item.PublicID] = rank
		}
		if item.PublicID != rank {
			identityMapping = false
		}
	}

	if identityMapping {
		conflicts, err := findConflicts(db, c, plan)
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			e.logger.Debug("collection already in order",
				"collection", c,
				"total_items", len(members),
			)
			return &Result{TotalItems: len(members)}, nil
		}
	}

	j := &models.ReorderJournal{
		Collection: c,
		Plan:       plan,
		Mapping:    mapping,
	}
	if err := db.Create(j).Error; err != nil {
		return nil, fmt.Errorf("error creating reorder journal: %w", err)
	}

	e.logger.Info("starting reorder",
		"collection", c,
		"run_id", j.RunID,
		"total_items", len(plan),
	)
	return e.run(ctx, j)
}

// Resume continues the unfinished run of c from its last completed phase.
// It returns an empty result when nothing is pending.
func (e *Engine) Resume(ctx context.Context, c models.Collection) (*Result, error) {
	release, err := e.alloc.Lock(ctx, c)
	if err != nil {
		return nil, err
	}
	defer release()

	db := e.db.WithContext(ctx)
	j, err := models.GetPendingReorderJournal(db, c)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading reorder journal: %w", err)
	}

	if err := j.Resumed(db); err != nil {
		return nil, fmt.Errorf("error updating reorder journal: %w", err)
	}

	e.logger.Info("resuming reorder",
		"collection", c,
		"run_id", j.RunID,
		"phase", j.Phase,
	)
	return e.run(ctx, j)
}

// Abandon gives up the unfinished run of c. It is only possible while the
// run has not rewritten any link, because later phases leave bodies that
// only match the planned ids. Parked leftovers stay in the parking band
// for CleanupTempIDs. It returns the abandoned run id, or uuid.Nil when
// nothing is pending.
func (e *Engine) Abandon(ctx context.Context, c models.Collection) (uuid.UUID, error) {
	release, err := e.alloc.Lock(ctx, c)
	if err != nil {
		return uuid.Nil, err
	}
	defer release()

	db := e.db.WithContext(ctx)
	j, err := models.GetPendingReorderJournal(db, c)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("error loading reorder journal: %w", err)
	}

	if models.PhaseRewritten.Done(j.Phase) {
		return j.RunID, fmt.Errorf("%w (run %s, last phase %s)", ErrCannotAbandon, j.RunID, j.Phase)
	}
	if err := j.Abandoned(db); err != nil {
		return j.RunID, fmt.Errorf("error updating reorder journal: %w", err)
	}

	e.logger.Warn("abandoned reorder",
		"collection", c,
		"run_id", j.RunID,
		"phase", j.Phase,
		"parked", len(j.Parked),
	)
	return j.RunID, nil
}

type phase struct {
	name models.ReorderPhase
	fn   func(tx *gorm.DB, j *models.ReorderJournal) error
}

func (e *Engine) run(ctx context.Context, j *models.ReorderJournal) (*Result, error) {
	phases := []phase{
		{models.PhaseParked, e.park},
		{models.PhaseRewritten, e.rewrite},
		{models.PhaseStaged, e.stage},
		{models.PhaseRenumbered, e.renumber},
		{models.PhasePurged, e.purge},
	}

	for _, p := range phases {
		if p.name.Done(j.Phase) {
			continue
		}
		if err := e.runPhase(ctx, j, p); err != nil {
			failure := &PartialFailure{
				Collection: j.Collection,
				RunID:      j.RunID,
				Phase:      j.Phase,
				Err:        err,
			}
			if ferr := j.Fail(e.db, err); ferr != nil {
				e.logger.Error("error recording reorder failure",
					"run_id", j.RunID,
					"error", ferr,
				)
			}
			e.logger.Error("reorder failed",
				"collection", j.Collection,
				"run_id", j.RunID,
				"last_phase", j.Phase,
				"error", err,
			)
			return nil, failure
		}
	}

	missing, err := countMissing(e.db.WithContext(ctx), j)
	if err != nil {
		return nil, err
	}
	result := &Result{
		RunID:             j.RunID,
		TotalItems:        len(j.Plan) - missing,
		UpdatedReferences: j.UpdatedReferences,
		ConflictsResolved: len(j.Parked),
		MissingItems:      missing,
	}
	if missing > 0 {
		e.logger.Warn("planned items were removed during the run, reorder again to close the gaps",
			"collection", j.Collection,
			"run_id", j.RunID,
			"missing", missing,
		)
	}

	e.logger.Info("reorder completed",
		"collection", j.Collection,
		"run_id", j.RunID,
		"total_items", result.TotalItems,
		"updated_references", result.UpdatedReferences,
		"conflicts_resolved", result.ConflictsResolved,
	)
	e.notifier.Notify(j.Collection, invalidate.ReasonReordered, affectedIDs(j)...)
	return result, nil
}

func (e *Engine) runPhase(ctx context.Context, j *models.ReorderJournal, p phase) error {
	if e.beforePhase != nil {
		if err := e.beforePhase(p.name); err != nil {
			return err
		}
	}

	prev, prevStatus := j.Phase, j.Status
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.fn(tx, j); err != nil {
			return err
		}
		return j.Advance(tx, p.name)
	})
	if err != nil {
		j.Phase, j.Status = prev, prevStatus
		return fmt.Errorf("phase %s: %w", p.name, err)
	}
	return nil
}

// park moves every non-member occupying [1, N] or the staging slots into the
// parking band, above any id already parked there.
func (e *Engine) park(tx *gorm.DB, j *models.ReorderJournal) error {
	conflicts, err := findConflicts(tx, j.Collection, j.Plan)
	if err != nil {
		return err
	}

	parked := make([]uint, 0, len(conflicts))
	if len(conflicts) > 0 {
		var top int
		err := tx.Model(&models.ContentItem{}).
			Scopes(models.InCollection(j.Collection)).
			Where("nid >= ? AND nid < ?", identity.ParkingBase, identity.TempBase).
			Select("COALESCE(MAX(nid), 0)").
			Scan(&top).
			Error
		if err != nil {
			return fmt.Errorf("error scanning parking band: %w", err)
		}
		if top < identity.ParkingBase {
			top = identity.ParkingBase - 1
		}
		if top+len(conflicts) >= identity.TempBase {
			return fmt.Errorf("parking band of %s is full", j.Collection)
		}

		for i, item := range conflicts {
			nid := top + 1 + i
			if _, err := setPublicID(tx, item.ID, nid); err != nil {
				return err
			}
			e.logger.Warn("parked conflicting item",
				"collection", j.Collection,
				"run_id", j.RunID,
				"old_nid", item.PublicID,
				"parked_nid", nid,
				"deleted", item.Deleted,
			)
			parked = append(parked, item.ID)
		}
	}
	return j.SaveParked(tx, parked)
}

// rewrite applies the id mapping to the body of every member.
func (e *Engine) rewrite(tx *gorm.DB, j *models.ReorderJournal) error {
	prefix := j.Collection.LinkPrefix()
	total := 0
	for _, m := range j.Plan {
		var item models.ContentItem
		err := tx.Select("id", "body").First(&item, m.ItemID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			e.skipMissing(j, m)
			continue
		}
		if err != nil {
			return fmt.Errorf("error loading item %d: %w", m.ItemID, err)
		}
		body, n := identity.RewriteReferences(item.Body, prefix, j.Mapping)
		if n == 0 {
			continue
		}
		err = tx.Model(&models.ContentItem{}).
			Where("id = ?", m.ItemID).
			Update("body", body).
			Error
		if err != nil {
			return fmt.Errorf("error rewriting item %d: %w", m.ItemID, err)
		}
		total += n
	}
	return j.RecordReferences(tx, total)
}

func (e *Engine) stage(tx *gorm.DB, j *models.ReorderJournal) error {
	return e.moveAll(tx, j, func(m models.PlannedMove) int { return identity.StagingID(m.NewID) })
}

func (e *Engine) renumber(tx *gorm.DB, j *models.ReorderJournal) error {
	return e.moveAll(tx, j, func(m models.PlannedMove) int { return m.NewID })
}

func (e *Engine) moveAll(tx *gorm.DB, j *models.ReorderJournal, target func(models.PlannedMove) int) error {
	for _, m := range j.Plan {
		moved, err := setPublicID(tx, m.ItemID, target(m))
		if err != nil {
			return err
		}
		if !moved {
			e.skipMissing(j, m)
		}
	}
	return nil
}

func (e *Engine) skipMissing(j *models.ReorderJournal, m models.PlannedMove) {
	e.logger.Warn("planned item no longer exists, skipping",
		"collection", j.Collection,
		"run_id", j.RunID,
		"item_id", m.ItemID,
		"old_nid", m.OldID,
		"nid", m.NewID,
	)
}

// purge deletes the parked leftovers that were soft-deleted. Live ones are
// kept in the parking band.
func (e *Engine) purge(tx *gorm.DB, j *models.ReorderJournal) error {
	if len(j.Parked) == 0 {
		return nil
	}
	res := tx.
		Where("id IN ? AND deleted = ?", j.Parked, true).
		Delete(&models.ContentItem{})
	if res.Error != nil {
		return fmt.Errorf("error purging parked items: %w", res.Error)
	}
	if kept := len(j.Parked) - int(res.RowsAffected); kept > 0 {
		e.logger.Warn("live items left in the parking band, run cleanup-temp-ids to remove them",
			"collection", j.Collection,
			"run_id", j.RunID,
			"kept", kept,
		)
	}
	return nil
}

// loadMembers returns the live items of c below the parking band in
// creation order.
func loadMembers(db *gorm.DB, c models.Collection) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := db.
		Scopes(models.Live(c)).
		Where("nid < ?", identity.ParkingBase).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).
		Error
	if err != nil {
		return nil, fmt.Errorf("error loading %s items: %w", c, err)
	}
	return items, nil
}

// findConflicts returns the items outside plan whose id lies in [1, N] or in
// the staging slots the plan will use.
func findConflicts(db *gorm.DB, c models.Collection, plan []models.PlannedMove) ([]models.ContentItem, error) {
	n := len(plan)
	members := make(map[uint]bool, n)
	for _, m := range plan {
		members[m.ItemID] = true
	}

	var candidates []models.ContentItem
	err := db.
		Scopes(models.InCollection(c)).
		Where("(nid BETWEEN ? AND ?) OR (nid BETWEEN ? AND ?)",
			1, n, identity.StagingID(1), identity.StagingID(n)).
		Order("nid ASC").
		Order("id ASC").
		Find(&candidates).
		Error
	if err != nil {
		return nil, fmt.Errorf("error checking for conflicting ids: %w", err)
	}

	conflicts := candidates[:0]
	for _, item := range candidates {
		if !members[item.ID] {
			conflicts = append(conflicts, item)
		}
	}
	return conflicts, nil
}

// setPublicID moves an item and reports whether it still exists.
func setPublicID(tx *gorm.DB, itemID uint, nid int) (bool, error) {
	res := tx.Model(&models.ContentItem{}).
		Where("id = ?", itemID).
		UpdateColumn("nid", nid)
	if res.Error != nil {
		return false, fmt.Errorf("error moving item %d to %d: %w", itemID, nid, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func countMissing(db *gorm.DB, j *models.ReorderJournal) (int, error) {
	if len(j.Plan) == 0 {
		return 0, nil
	}
	var found int64
	err := db.Model(&models.ContentItem{}).
		Where("id IN ?", j.ClaimedItemIDs()).
		Count(&found).
		Error
	if err != nil {
		return 0, fmt.Errorf("error counting reordered items: %w", err)
	}
	return len(j.Plan) - int(found), nil
}

// affectedIDs returns every public id that changed meaning in the run.
func affectedIDs(j *models.ReorderJournal) []int {
	seen := make(map[int]bool, 2*len(j.Plan))
	for _, m := range j.Plan {
		if m.OldID == m.NewID {
			continue
		}
		if m.OldID > 0 {
			seen[m.OldID] = true
		}
		seen[m.NewID] = true
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
