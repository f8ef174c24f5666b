package models

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// ContentItem is the identity-bearing part of an article, draft, moment,
// document or category.
type ContentItem struct {
	// ID is the storage key. It is never exposed outside the platform.
	ID uint `gorm:"primaryKey" json:"-"`

	// Collection is the id space this item belongs to.
	Collection Collection `gorm:"type:varchar(32);not null;uniqueIndex:idx_content_items_nid,priority:1,where:deleted = false;uniqueIndex:idx_content_items_slug,priority:1,where:deleted = false" json:"collection"`

	// PublicID is the small integer used in URLs and cross-links.
	PublicID int `gorm:"column:nid;not null;uniqueIndex:idx_content_items_nid,priority:2,where:deleted = false" json:"nid"`

	// Slug is an optional alternate key. Purely numeric slugs are rejected
	// because lookups fall back to the public id.
	Slug *string `gorm:"type:varchar(255);uniqueIndex:idx_content_items_slug,priority:2,where:deleted = false" json:"slug,omitempty"`

	// Title is the natural key used to recognize the same item across
	// backups that do not share ids.
	Title string `gorm:"type:varchar(500);not null;index" json:"title"`

	// Body may embed links to other items of the same collection.
	Body string `gorm:"type:text" json:"body,omitempty"`

	// Deleted hides the item from normal reads. The public id is retained.
	Deleted bool `gorm:"not null;default:false;index" json:"deleted"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (ContentItem) TableName() string {
	return "content_items"
}

var numericPattern = regexp.MustCompile(`^[0-9]+$`)

// IsNumericSlug reports whether slug consists only of digits.
func IsNumericSlug(slug string) bool {
	return numericPattern.MatchString(slug)
}

// ErrNumericSlug is returned when a slug would shadow id based lookup.
var ErrNumericSlug = errors.New("slug must not be purely numeric")

// Validate checks the fields every stored item must carry.
func (i *ContentItem) Validate() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.Collection, validation.Required, validation.By(func(value interface{}) error {
			if c, _ := value.(Collection); !c.Valid() {
				return fmt.Errorf("unknown collection %q", c)
			}
			return nil
		})),
		validation.Field(&i.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&i.Slug, validation.NilOrNotEmpty, validation.By(func(value interface{}) error {
			if s, _ := value.(*string); s != nil && IsNumericSlug(*s) {
				return ErrNumericSlug
			}
			return nil
		})),
	)
}

// SlugValue returns the slug or the empty string.
func (i *ContentItem) SlugValue() string {
	if i.Slug == nil {
		return ""
	}
	return *i.Slug
}

// BeforeCreate validates the item and defaults CreatedAt.
func (i *ContentItem) BeforeCreate(tx *gorm.DB) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	return nil
}

// Live scopes a query to the non-deleted items of a collection.
func Live(c Collection) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("collection = ? AND deleted = ?", c, false)
	}
}

// InCollection scopes a query to every item of a collection, deleted or not.
func InCollection(c Collection) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("collection = ?", c)
	}
}

// GetByPublicID retrieves the live item of c with the given public id.
func (i *ContentItem) GetByPublicID(db *gorm.DB, c Collection, nid int) error {
	if err := validation.Validate(nid, validation.Required); err != nil {
		return err
	}

	return db.
		Scopes(Live(c)).
		Where("nid = ?", nid).
		First(i).
		Error
}

// GetBySlug retrieves the live item of c with the given slug.
func (i *ContentItem) GetBySlug(db *gorm.DB, c Collection, slug string) error {
	if err := validation.Validate(slug, validation.Required); err != nil {
		return err
	}

	return db.
		Scopes(Live(c)).
		Where("slug = ?", slug).
		First(i).
		Error
}

// GetLiveItems retrieves the live items of c in creation order.
func GetLiveItems(db *gorm.DB, c Collection) ([]ContentItem, error) {
	var items []ContentItem
	err := db.
		Scopes(Live(c)).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).
		Error
	return items, err
}
