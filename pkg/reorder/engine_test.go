package reorder

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quillpress/quill/internal/testutil"
	"github.com/quillpress/quill/pkg/identity"
	"github.com/quillpress/quill/pkg/invalidate"
	"github.com/quillpress/quill/pkg/janitor"
	"github.com/quillpress/quill/pkg/models"
)

func setupEngine(t *testing.T) (*Engine, *gorm.DB, *invalidate.Recorder) {
	db := testutil.SetupTestDB(t)
	rec := invalidate.NewRecorder()
	alloc := identity.NewAllocator(db, identity.WithNotifier(rec))
	return NewEngine(alloc, hclog.NewNullLogger()), db, rec
}

func failAt(target models.ReorderPhase) func(models.ReorderPhase) error {
	return func(p models.ReorderPhase) error {
		if p == target {
			return errors.New("storage went away")
		}
		return nil
	}
}

func countJournals(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&models.ReorderJournal{}).Count(&n).Error)
	return n
}

func TestReorderExample(t *testing.T) {
	ctx := context.Background()
	e, db, rec := setupEngine(t)

	items := testutil.Seed(t, db,
		testutil.Item{PublicID: 5, Title: "A", Created: 1},
		testutil.Item{PublicID: 9, Title: "B", Created: 2},
		testutil.Item{PublicID: 2, Title: "C", Created: 3, Body: `read <a href="/post/9">B</a> first`},
	)

	result, err := e.Reorder(ctx, models.CollectionArticle)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalItems)
	assert.Equal(t, 1, result.UpdatedReferences)
	assert.Equal(t, 0, result.ConflictsResolved)

	a, b, c := testutil.Reload(t, db, items[0]), testutil.Reload(t, db, items[1]), testutil.Reload(t, db, items[2])
	assert.Equal(t, 1, a.PublicID)
	assert.Equal(t, 2, b.PublicID)
	assert.Equal(t, 3, c.PublicID)
	assert.Equal(t, `read <a href="/post/2">B</a> first`, c.Body)

	j, err := models.GetPendingReorderJournal(db, models.CollectionArticle)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Nil(t, j)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, invalidate.ReasonReordered, events[0].Reason)
	assert.Equal(t, []int{1, 2, 3, 5, 9}, events[0].IDs)
}

func TestReorderIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e, db, rec := setupEngine(t)

	testutil.Seed(t, db,
		testutil.Item{PublicID: 12, Title: "A", Created: 1, Body: "/post/30"},
		testutil.Item{PublicID: 30, Title: "B", Created: 2, Body: "/post/12"},
	)

	first, err := e.Reorder(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, 2, first.UpdatedReferences)
	ids := testutil.LiveIDs(t, db, models.CollectionArticle)

	second, err := e.Reorder(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, 2, second.TotalItems)
	assert.Zero(t, second.UpdatedReferences)
	assert.Zero(t, second.ConflictsResolved)
	assert.Equal(t, ids, testutil.LiveIDs(t, db, models.CollectionArticle))

	assert.EqualValues(t, 1, countJournals(t, db), "an ordered collection needs no run")
	assert.Len(t, rec.Events(), 1)
}

func TestReorderPreservesCreationOrder(t *testing.T) {
	ctx := context.Background()
	e, db, _ := setupEngine(t)

	r := rand.New(rand.NewSource(7))
	perm := r.Perm(40)
	for i, p := range perm {
		testutil.Seed(t, db, testutil.Item{PublicID: p*3 + 1, Title: "item", Created: i})
	}

	_, err := e.Reorder(ctx, models.CollectionArticle)
	require.NoError(t, err)

	ids := testutil.LiveIDs(t, db, models.CollectionArticle)
	require.Len(t, ids, 40)
	for i, id := range ids {
		assert.Equal(t, i+1, id)
	}
}

func TestReorderParksConflicts(t *testing.T) {
	ctx := context.Background()
	e, db, _ := setupEngine(t)

	live := testutil.Seed(t, db,
		testutil.Item{PublicID: 7, Title: "A", Created: 1, Slug: "hello"},
		testutil.Item{PublicID: 8, Title: "B", Created: 2},
		testutil.Item{PublicID: 9, Title: "C", Created: 3},
	)
	leftovers := testutil.Seed(t, db,
		testutil.Item{PublicID: 2, Title: "deleted", Created: 0, Deleted: true},
		testutil.Item{PublicID: identity.StagingID(1), Title: "stray", Created: 4},
		testutil.Item{PublicID: 20, Title: "old deleted", Created: 0, Deleted: true},
	)
	earlier := testutil.Seed(t, db,
		testutil.Item{PublicID: identity.ParkingBase + 3, Title: "previously parked", Created: 10},
	)

	result, err := e.Reorder(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalItems)
	assert.Equal(t, 2, result.ConflictsResolved)

	assert.Equal(t, []int{1, 2, 3}, testutil.LiveIDs(t, db, models.CollectionArticle)[:3])

	var count int64
	require.NoError(t, db.Model(&models.ContentItem{}).Where("id = ?", leftovers[0].ID).Count(&count).Error)
	assert.Zero(t, count, "parked deleted items are purged")

	stray := testutil.Reload(t, db, leftovers[1])
	assert.False(t, stray.Deleted)
	assert.Equal(t, identity.ParkingBase+5, stray.PublicID, "live items stay parked")
	assert.Equal(t,
		[]int{1, 2, 3, identity.ParkingBase + 5, identity.ParkingBase + 3},
		testutil.LiveIDs(t, db, models.CollectionArticle),
	)

	assert.Equal(t, 20, testutil.Reload(t, db, leftovers[2]).PublicID, "items outside the run's range are left alone")
	assert.Equal(t, identity.ParkingBase+3, testutil.Reload(t, db, earlier[0]).PublicID)
	assert.Equal(t, "hello", testutil.Reload(t, db, live[0]).SlugValue(), "slugs are untouched")
}

func TestReorderEmptyCollection(t *testing.T) {
	e, db, rec := setupEngine(t)
	testutil.Seed(t, db, testutil.Item{Collection: models.CollectionMoment, PublicID: 4, Title: "m"})

	result, err := e.Reorder(context.Background(), models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, &Result{}, result)
	assert.Empty(t, rec.Events())
	assert.Equal(t, []int{4}, testutil.LiveIDs(t, db, models.CollectionMoment))
}

func TestReorderPartialFailureAndResume(t *testing.T) {
	ctx := context.Background()
	e, db, _ := setupEngine(t)

	items := testutil.Seed(t, db,
		testutil.Item{PublicID: 5, Title: "A", Created: 1},
		testutil.Item{PublicID: 9, Title: "B", Created: 2},
		testutil.Item{PublicID: 2, Title: "C", Created: 3, Body: "/post/9"},
	)

	e.beforePhase = failAt(models.PhaseStaged)
	_, err := e.Reorder(ctx, models.CollectionArticle)

	var failure *PartialFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, models.PhaseRewritten, failure.Phase)
	assert.Equal(t, models.CollectionArticle, failure.Collection)

	assert.Equal(t, []int{5, 9, 2}, testutil.LiveIDs(t, db, models.CollectionArticle), "ids are unchanged before staging")
	assert.Equal(t, "/post/2", testutil.Reload(t, db, items[2]).Body)

	j, err := models.GetPendingReorderJournal(db, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, models.JournalStatusFailed, j.Status)
	assert.Contains(t, j.LastError, "storage went away")

	_, err = e.Reorder(ctx, models.CollectionArticle)
	assert.ErrorIs(t, err, ErrReorderPending)

	e.beforePhase = nil
	result, err := e.Resume(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalItems)
	assert.Equal(t, 1, result.UpdatedReferences)

	assert.Equal(t, []int{1, 2, 3}, testutil.LiveIDs(t, db, models.CollectionArticle))
	assert.Equal(t, "/post/2", testutil.Reload(t, db, items[2]).Body, "links are rewritten exactly once")

	again, err := e.Resume(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, &Result{}, again)
}

func TestAbandonBeforeRewrite(t *testing.T) {
	ctx := context.Background()
	e, db, _ := setupEngine(t)

	items := testutil.Seed(t, db,
		testutil.Item{PublicID: 4, Title: "A", Created: 1, Body: "/post/6"},
		testutil.Item{PublicID: 6, Title: "B", Created: 2},
		testutil.Item{PublicID: 9, Title: "C", Created: 3},
	)
	leftover := testutil.Seed(t, db,
		testutil.Item{PublicID: 1, Title: "gone", Created: 0, Deleted: true},
	)

	e.beforePhase = failAt(models.PhaseRewritten)
	_, err := e.Reorder(ctx, models.CollectionArticle)
	var failure *PartialFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, models.PhaseParked, failure.Phase)
	assert.Equal(t, identity.ParkingBase, testutil.Reload(t, db, leftover[0]).PublicID)

	runID, err := e.Abandon(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, failure.RunID, runID)

	pending, err := models.HasPendingReorder(db, models.CollectionArticle)
	require.NoError(t, err)
	assert.False(t, pending)

	cleaned, err := janitor.New(e.alloc, nil).CleanupTempIDs(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned.Deleted)
	assert.Zero(t, cleaned.Skipped)

	e.beforePhase = nil
	result, err := e.Reorder(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.NotEqual(t, runID, result.RunID)
	assert.Equal(t, 3, result.TotalItems)
	assert.Zero(t, result.ConflictsResolved)

	assert.Equal(t, []int{1, 2, 3}, testutil.LiveIDs(t, db, models.CollectionArticle))
	assert.Equal(t, "/post/2", testutil.Reload(t, db, items[0]).Body)

	again, err := e.Abandon(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, again, "nothing left to abandon")
}

func TestAbandonAfterRewriteIsRefused(t *testing.T) {
	ctx := context.Background()
	e, db, _ := setupEngine(t)

	items := testutil.Seed(t, db,
		testutil.Item{PublicID: 5, Title: "A", Created: 1},
		testutil.Item{PublicID: 9, Title: "B", Created: 2},
		testutil.Item{PublicID: 2, Title: "C", Created: 3, Body: "/post/9"},
	)

	e.beforePhase = failAt(models.PhaseStaged)
	_, err := e.Reorder(ctx, models.CollectionArticle)
	var failure *PartialFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, models.PhaseRewritten, failure.Phase)

	_, err = e.Abandon(ctx, models.CollectionArticle)
	assert.ErrorIs(t, err, ErrCannotAbandon)

	pending, err := models.HasPendingReorder(db, models.CollectionArticle)
	require.NoError(t, err)
	assert.True(t, pending, "a refused abandon keeps the run")

	e.beforePhase = nil
	_, err = e.Resume(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, testutil.LiveIDs(t, db, models.CollectionArticle))
	assert.Equal(t, "/post/2", testutil.Reload(t, db, items[2]).Body)
}

func TestResumeSkipsRemovedItems(t *testing.T) {
	ctx := context.Background()
	e, db, _ := setupEngine(t)

	items := testutil.Seed(t, db,
		testutil.Item{PublicID: 5, Title: "A", Created: 1},
		testutil.Item{PublicID: 9, Title: "B", Created: 2},
		testutil.Item{PublicID: 2, Title: "C", Created: 3, Body: "/post/9"},
	)

	e.beforePhase = failAt(models.PhaseRewritten)
	_, err := e.Reorder(ctx, models.CollectionArticle)
	var failure *PartialFailure
	require.ErrorAs(t, err, &failure)

	// The row of A disappears behind the engine's back.
	require.NoError(t, db.Delete(&models.ContentItem{}, items[0].ID).Error)

	e.beforePhase = nil
	result, err := e.Resume(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalItems)
	assert.Equal(t, 1, result.MissingItems)
	assert.Equal(t, 1, result.UpdatedReferences)

	assert.Equal(t, []int{2, 3}, testutil.LiveIDs(t, db, models.CollectionArticle), "planned ids are kept")
	assert.Equal(t, "/post/2", testutil.Reload(t, db, items[2]).Body)

	pending, err := models.HasPendingReorder(db, models.CollectionArticle)
	require.NoError(t, err)
	assert.False(t, pending)

	closed, err := e.Reorder(ctx, models.CollectionArticle)
	require.NoError(t, err)
	assert.Equal(t, 2, closed.TotalItems)
	assert.Equal(t, []int{1, 2}, testutil.LiveIDs(t, db, models.CollectionArticle))
}

func TestResumeAfterStaging(t *testing.T) {
	ctx := context.Background()
	e, db, _ := setupEngine(t)

	testutil.Seed(t, db,
		testutil.Item{PublicID: 3, Title: "A", Created: 1},
		testutil.Item{PublicID: 1, Title: "B", Created: 2},
	)

	e.beforePhase = failAt(models.PhaseRenumbered)
	_, err := e.Reorder(ctx, models.CollectionArticle)
	var failure *PartialFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, models.PhaseStaged, failure.Phase)

	assert.Equal(t,
		[]int{identity.StagingID(1), identity.StagingID(2)},
		testutil.LiveIDs(t, db, models.CollectionArticle),
	)

	// Ids planned by the unfinished run are not handed out meanwhile.
	late := &models.ContentItem{Collection: models.CollectionArticle, Title: "late"}
	require.NoError(t, e.alloc.Create(ctx, late))
	assert.Equal(t, 3, late.PublicID)

	e.beforePhase = nil
	_, err = e.Resume(ctx, models.CollectionArticle)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, testutil.LiveIDs(t, db, models.CollectionArticle))
}

func TestReorderConcurrentWithCreate(t *testing.T) {
	ctx := context.Background()
	e, db, _ := setupEngine(t)

	for i := 0; i < 10; i++ {
		testutil.Seed(t, db, testutil.Item{PublicID: 100 - i, Title: "seed", Created: i})
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				errs <- e.alloc.Create(ctx, &models.ContentItem{Collection: models.CollectionArticle, Title: "new"})
			}
		}()
	}
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				_, err := e.Reorder(ctx, models.CollectionArticle)
				errs <- err
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			var dupes int64
			err := db.Model(&models.ContentItem{}).
				Scopes(models.Live(models.CollectionArticle)).
				Group("nid").
				Having("COUNT(*) > 1").
				Count(&dupes).
				Error
			if err == nil && dupes > 0 {
				err = errors.New("duplicate live id observed")
			}
			errs <- err
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, err := e.Reorder(ctx, models.CollectionArticle)
	require.NoError(t, err)

	ids := testutil.LiveIDs(t, db, models.CollectionArticle)
	require.Len(t, ids, 30)
	for i, id := range ids {
		assert.Equal(t, i+1, id)
	}
}
