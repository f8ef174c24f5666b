package models

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
)

// Collection names a set of content items sharing one public id space.
type Collection string

const (
	CollectionArticle  Collection = "article"
	CollectionDraft    Collection = "draft"
	CollectionMoment   Collection = "moment"
	CollectionDocument Collection = "document"
	CollectionCategory Collection = "category"
)

// linkPrefixes are the URL path prefixes used when one item of a collection
// links to another item of the same collection.
var linkPrefixes = map[Collection]string{
	CollectionArticle:  "/post/",
	CollectionDraft:    "/draft/",
	CollectionMoment:   "/moment/",
	CollectionDocument: "/doc/",
	CollectionCategory: "/category/",
}

// aliases maps the plural and legacy spellings accepted on the command line.
var aliases = map[string]Collection{
	"articles":   CollectionArticle,
	"post":       CollectionArticle,
	"posts":      CollectionArticle,
	"drafts":     CollectionDraft,
	"moments":    CollectionMoment,
	"note":       CollectionMoment,
	"notes":      CollectionMoment,
	"documents":  CollectionDocument,
	"doc":        CollectionDocument,
	"docs":       CollectionDocument,
	"page":       CollectionDocument,
	"pages":      CollectionDocument,
	"categories": CollectionCategory,
}

// Collections returns every known collection.
func Collections() []Collection {
	return []Collection{
		CollectionArticle,
		CollectionDraft,
		CollectionMoment,
		CollectionDocument,
		CollectionCategory,
	}
}

// ParseCollection resolves a user supplied collection name.
func ParseCollection(name string) (Collection, error) {
	normalized := strcase.ToSnake(strings.TrimSpace(name))
	c := Collection(normalized)
	if c.Valid() {
		return c, nil
	}
	if alias, ok := aliases[normalized]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown collection %q", name)
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	_, ok := linkPrefixes[c]
	return ok
}

// LinkPrefix returns the path prefix that precedes a public id in links
// between items of this collection, e.g. "/post/" in "/post/42".
func (c Collection) LinkPrefix() string {
	return linkPrefixes[c]
}

func (c Collection) String() string {
	return string(c)
}
