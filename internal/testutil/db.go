// Package testutil holds fixtures shared by storage-backed tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quillpress/quill/pkg/database"
	"github.com/quillpress/quill/pkg/models"
)

// SetupTestDB creates a migrated SQLite database in a temporary directory.
func SetupTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "quill.db"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Epoch is the creation time of the first seeded item.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// At returns the creation time n minutes after Epoch.
func At(n int) time.Time {
	return Epoch.Add(time.Duration(n) * time.Minute)
}

// Item describes a content item to seed.
type Item struct {
	Collection models.Collection
	PublicID   int
	Title      string
	Slug       string
	Body       string
	Created    int
	Deleted    bool
}

// Seed inserts items directly, bypassing id allocation.
func Seed(t testing.TB, db *gorm.DB, items ...Item) []*models.ContentItem {
	t.Helper()

	out := make([]*models.ContentItem, 0, len(items))
	for _, it := range items {
		c := it.Collection
		if c == "" {
			c = models.CollectionArticle
		}
		item := &models.ContentItem{
			Collection: c,
			PublicID:   it.PublicID,
			Title:      it.Title,
			Body:       it.Body,
			Deleted:    it.Deleted,
			CreatedAt:  At(it.Created),
		}
		if it.Slug != "" {
			slug := it.Slug
			item.Slug = &slug
		}
		require.NoError(t, db.Create(item).Error)
		out = append(out, item)
	}
	return out
}

// Reload fetches item by storage key.
func Reload(t testing.TB, db *gorm.DB, item *models.ContentItem) *models.ContentItem {
	t.Helper()

	var fresh models.ContentItem
	require.NoError(t, db.First(&fresh, item.ID).Error)
	return &fresh
}

// LiveIDs returns the public ids of the live items of c in creation order.
func LiveIDs(t testing.TB, db *gorm.DB, c models.Collection) []int {
	t.Helper()

	items, err := models.GetLiveItems(db, c)
	require.NoError(t, err)
	ids := make([]int, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.PublicID)
	}
	return ids
}
