package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCollection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Collection
		wantErr bool
	}{
		{name: "canonical", input: "article", want: CollectionArticle},
		{name: "plural alias", input: "posts", want: CollectionArticle},
		{name: "mixed case", input: "Moment", want: CollectionMoment},
		{name: "padded", input: "  draft ", want: CollectionDraft},
		{name: "legacy alias", input: "notes", want: CollectionMoment},
		{name: "pages", input: "pages", want: CollectionDocument},
		{name: "unknown", input: "tags", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCollection(tt.input)
			if tt.wantErr {
				assert.ErrorContains(t, err, "unknown collection")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollectionLinkPrefix(t *testing.T) {
	for _, c := range Collections() {
		assert.True(t, c.Valid(), c)
		assert.NotEmpty(t, c.LinkPrefix(), c)
	}
	assert.Equal(t, "/post/", CollectionArticle.LinkPrefix())
	assert.Empty(t, Collection("tags").LinkPrefix())
}

func TestContentItemValidate(t *testing.T) {
	slug := func(s string) *string { return &s }

	t.Run("valid", func(t *testing.T) {
		item := &ContentItem{Collection: CollectionArticle, Title: "Hello", Slug: slug("hello-world")}
		assert.NoError(t, item.Validate())
	})

	t.Run("missing title", func(t *testing.T) {
		item := &ContentItem{Collection: CollectionArticle}
		assert.ErrorContains(t, item.Validate(), "title: cannot be blank")
	})

	t.Run("unknown collection", func(t *testing.T) {
		item := &ContentItem{Collection: "tags", Title: "Hello"}
		assert.ErrorContains(t, item.Validate(), "unknown collection")
	})

	t.Run("numeric slug", func(t *testing.T) {
		item := &ContentItem{Collection: CollectionArticle, Title: "Hello", Slug: slug("2024")}
		assert.ErrorContains(t, item.Validate(), ErrNumericSlug.Error())
	})

	t.Run("empty slug", func(t *testing.T) {
		item := &ContentItem{Collection: CollectionArticle, Title: "Hello", Slug: slug("")}
		assert.Error(t, item.Validate())
	})
}

func TestIsNumericSlug(t *testing.T) {
	assert.True(t, IsNumericSlug("42"))
	assert.True(t, IsNumericSlug("007"))
	assert.False(t, IsNumericSlug("42-things"))
	assert.False(t, IsNumericSlug("-1"))
	assert.False(t, IsNumericSlug(""))
}

func TestReorderPhaseDone(t *testing.T) {
	assert.True(t, PhasePlanned.Done(PhasePlanned))
	assert.True(t, PhaseParked.Done(PhaseStaged))
	assert.False(t, PhaseRenumbered.Done(PhaseStaged))
	assert.False(t, PhasePurged.Done(PhaseRenumbered))
	assert.True(t, PhasePurged.Done(PhasePurged))
}

func TestReorderJournalPending(t *testing.T) {
	j := &ReorderJournal{Status: JournalStatusRunning}
	assert.True(t, j.Pending())
	j.Status = JournalStatusFailed
	assert.True(t, j.Pending())
	j.Status = JournalStatusCompleted
	assert.False(t, j.Pending())
	j.Status = JournalStatusAbandoned
	assert.False(t, j.Pending())

	j.Plan = []PlannedMove{{ItemID: 7, OldID: 5, NewID: 1}, {ItemID: 3, OldID: 9, NewID: 2}}
	assert.Equal(t, []uint{7, 3}, j.ClaimedItemIDs())
}
