package importer

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Record is one item of an external backup. Nothing in it is trusted: the id
// may be missing, stale or taken, and the slug may collide.
type Record struct {
	// ID is the public id the backup claims. Zero means absent.
	ID        int       `json:"id" yaml:"id" mapstructure:"id"`
	Title     string    `json:"title" yaml:"title" mapstructure:"title"`
	Slug      string    `json:"slug,omitempty" yaml:"slug,omitempty" mapstructure:"slug"`
	Body      string    `json:"body,omitempty" yaml:"body,omitempty" mapstructure:"body"`
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"created_at,omitempty" mapstructure:"created_at"`
}

// Validate checks the fields every record must carry.
func (r Record) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 500)),
	)
}
