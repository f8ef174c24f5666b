//go:build integration
// +build integration

package reorder

import (
	"context"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill/internal/testutil"
	"github.com/quillpress/quill/pkg/identity"
	"github.com/quillpress/quill/pkg/invalidate"
	"github.com/quillpress/quill/pkg/models"
)

func TestReorderPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db := testutil.SetupPostgresDB(t)
	alloc := identity.NewAllocator(db, identity.WithNotifier(invalidate.NewRecorder()))
	e := NewEngine(alloc, hclog.NewNullLogger())

	t.Run("partial unique index ignores deleted items", func(t *testing.T) {
		testutil.Seed(t, db,
			testutil.Item{Collection: models.CollectionDraft, PublicID: 1, Title: "gone", Deleted: true},
			testutil.Item{Collection: models.CollectionDraft, PublicID: 1, Title: "live", Created: 1},
		)
		err := db.Create(&models.ContentItem{Collection: models.CollectionDraft, PublicID: 1, Title: "dup"}).Error
		assert.Error(t, err)
	})

	t.Run("renumbers and parks conflicts", func(t *testing.T) {
		items := testutil.Seed(t, db,
			testutil.Item{PublicID: 5, Title: "A", Created: 1},
			testutil.Item{PublicID: 9, Title: "B", Created: 2},
			testutil.Item{PublicID: 2, Title: "C", Created: 3, Body: "see /post/9 and /post/5"},
			testutil.Item{PublicID: 1, Title: "old", Created: 0, Deleted: true},
		)

		result, err := e.Reorder(ctx, models.CollectionArticle)
		require.NoError(t, err)
		assert.Equal(t, 3, result.TotalItems)
		assert.Equal(t, 2, result.UpdatedReferences)
		assert.Equal(t, 1, result.ConflictsResolved)

		assert.Equal(t, []int{1, 2, 3}, testutil.LiveIDs(t, db, models.CollectionArticle))
		assert.Equal(t, "see /post/2 and /post/1", testutil.Reload(t, db, items[2]).Body)

		var deleted int64
		require.NoError(t, db.Model(&models.ContentItem{}).Where("id = ?", items[3].ID).Count(&deleted).Error)
		assert.Zero(t, deleted)
	})

	t.Run("concurrent creates stay unique", func(t *testing.T) {
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					item := &models.ContentItem{Collection: models.CollectionArticle, Title: "concurrent"}
					assert.NoError(t, alloc.Create(ctx, item))
				}
			}()
		}
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := e.Reorder(ctx, models.CollectionArticle)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		_, err := e.Reorder(ctx, models.CollectionArticle)
		require.NoError(t, err)

		ids := testutil.LiveIDs(t, db, models.CollectionArticle)
		require.Len(t, ids, 23)
		for i, id := range ids {
			assert.Equal(t, i+1, id)
		}
	})
}
