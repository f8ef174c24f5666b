package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReorderJournal is the durable step log of one renumbering run. The plan is
// written before the first id changes and the phase advances in the same
// transaction as the work it records, so an interrupted run can be continued
// from exactly where it stopped.
type ReorderJournal struct {
	ID uint `gorm:"primaryKey" json:"id"`

	RunID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"runId"`
	Collection Collection `gorm:"type:varchar(32);not null;index" json:"collection"`

	Status JournalStatus `gorm:"type:varchar(20);not null;default:'running'" json:"status"`
	Phase  ReorderPhase  `gorm:"type:varchar(20);not null" json:"phase"`

	// Plan assigns every item of the run its final public id.
	Plan []PlannedMove `gorm:"serializer:json;type:text;not null" json:"plan"`

	// Mapping is the old to new public id mapping used to rewrite links.
	Mapping map[int]int `gorm:"serializer:json;type:text;not null" json:"mapping"`

	// Parked lists the storage keys of leftovers moved out of the way.
	Parked []uint `gorm:"serializer:json;type:text" json:"parked"`

	// UpdatedReferences counts the links rewritten by the run.
	UpdatedReferences int `gorm:"not null;default:0" json:"updatedReferences"`

	LastError string `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// PlannedMove is one item's assignment in a reorder run.
type PlannedMove struct {
	ItemID uint `json:"itemId"`
	OldID  int  `json:"oldId"`
	NewID  int  `json:"newId"`
}

// TableName specifies the table name.
func (ReorderJournal) TableName() string {
	return "reorder_journals"
}

// JournalStatus represents the state of a reorder run.
type JournalStatus string

const (
	JournalStatusRunning   JournalStatus = "running"
	JournalStatusCompleted JournalStatus = "completed"
	JournalStatusFailed    JournalStatus = "failed"

	// JournalStatusAbandoned marks a run given up before any link or id of
	// its members changed. It no longer holds the collection.
	JournalStatusAbandoned JournalStatus = "abandoned"
)

// pendingStatuses are the states in which a run still holds its plan.
var pendingStatuses = []JournalStatus{JournalStatusRunning, JournalStatusFailed}

// ReorderPhase names the last step a reorder run completed.
type ReorderPhase string

const (
	PhasePlanned    ReorderPhase = "planned"
	PhaseParked     ReorderPhase = "parked"
	PhaseRewritten  ReorderPhase = "rewritten"
	PhaseStaged     ReorderPhase = "staged"
	PhaseRenumbered ReorderPhase = "renumbered"
	PhasePurged     ReorderPhase = "purged"
)

var phaseOrder = map[ReorderPhase]int{
	PhasePlanned:    0,
	PhaseParked:     1,
	PhaseRewritten:  2,
	PhaseStaged:     3,
	PhaseRenumbered: 4,
	PhasePurged:     5,
}

// Done reports whether phase p has already been completed when the journal
// is at phase current.
func (p ReorderPhase) Done(current ReorderPhase) bool {
	return phaseOrder[current] >= phaseOrder[p]
}

// BeforeCreate hook to ensure required fields.
func (j *ReorderJournal) BeforeCreate(tx *gorm.DB) error {
	if !j.Collection.Valid() {
		return fmt.Errorf("unknown collection %q", j.Collection)
	}
	if j.RunID == uuid.Nil {
		j.RunID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JournalStatusRunning
	}
	if j.Phase == "" {
		j.Phase = PhasePlanned
	}
	if j.Mapping == nil {
		j.Mapping = map[int]int{}
	}
	if j.Plan == nil {
		j.Plan = []PlannedMove{}
	}
	return nil
}

// Advance records phase p as completed.
func (j *ReorderJournal) Advance(tx *gorm.DB, p ReorderPhase) error {
	updates := map[string]interface{}{"phase": p}
	if p == PhasePurged {
		now := time.Now()
		updates["status"] = JournalStatusCompleted
		updates["completed_at"] = now
		j.Status = JournalStatusCompleted
		j.CompletedAt = &now
	}
	if err := tx.Model(j).Updates(updates).Error; err != nil {
		return fmt.Errorf("error advancing reorder journal to %s: %w", p, err)
	}
	j.Phase = p
	return nil
}

// SaveParked persists the set of parked storage keys.
func (j *ReorderJournal) SaveParked(tx *gorm.DB, parked []uint) error {
	j.Parked = parked
	return tx.Model(j).Select("parked").Updates(j).Error
}

// RecordReferences persists the number of rewritten links.
func (j *ReorderJournal) RecordReferences(tx *gorm.DB, n int) error {
	j.UpdatedReferences = n
	return tx.Model(j).Update("updated_references", n).Error
}

// Resumed marks a failed run as running again.
func (j *ReorderJournal) Resumed(db *gorm.DB) error {
	j.Status = JournalStatusRunning
	return db.Model(j).Update("status", JournalStatusRunning).Error
}

// Fail marks the run as failed with the given error. A failed run stays
// pending until it is resumed.
func (j *ReorderJournal) Fail(db *gorm.DB, cause error) error {
	j.Status = JournalStatusFailed
	j.LastError = cause.Error()
	return db.Model(j).Updates(map[string]interface{}{
		"status":     JournalStatusFailed,
		"last_error": j.LastError,
	}).Error
}

// Abandoned marks the run as given up.
func (j *ReorderJournal) Abandoned(db *gorm.DB) error {
	j.Status = JournalStatusAbandoned
	return db.Model(j).Update("status", JournalStatusAbandoned).Error
}

// Pending reports whether the run still has phases left to execute.
func (j *ReorderJournal) Pending() bool {
	return j.Status == JournalStatusRunning || j.Status == JournalStatusFailed
}

// GetPendingReorderJournal returns the unfinished run for c, or
// gorm.ErrRecordNotFound when there is none.
func GetPendingReorderJournal(db *gorm.DB, c Collection) (*ReorderJournal, error) {
	var j ReorderJournal
	err := db.
		Where("collection = ? AND status IN ?", c, pendingStatuses).
		Order("id DESC").
		First(&j).
		Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// HasPendingReorder reports whether c has an unfinished reorder run.
func HasPendingReorder(db *gorm.DB, c Collection) (bool, error) {
	_, err := GetPendingReorderJournal(db, c)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClaimedItemIDs returns the storage keys of the items a run is moving.
func (j *ReorderJournal) ClaimedItemIDs() []uint {
	ids := make([]uint, 0, len(j.Plan))
	for _, m := range j.Plan {
		ids = append(ids, m.ItemID)
	}
	return ids
}
