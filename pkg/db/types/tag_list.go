package dbtypes

import (
	"database/sql/driver"
	"sort"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// TagList is a set of free-text tags stored as a Postgres text[] (plain text
// holding the same array literal on SQLite).
type TagList []string

// Scan implements sql.Scanner.
func (t *TagList) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*t = TagList(arr)
	return nil
}

// Value implements driver.Valuer.
func (t TagList) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	return pq.StringArray(t).Value()
}

// GormDataType implements schema.GormDataTypeInterface.
func (TagList) GormDataType() string {
	return "tag_list"
}

// GormDBDataType picks the column type per dialect.
func (TagList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Normalize trims, lowercases and de-duplicates the tags, sorted.
func (t TagList) Normalize() TagList {
	seen := make(map[string]struct{}, len(t))
	out := make(TagList, 0, len(t))
	for _, tag := range t {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
