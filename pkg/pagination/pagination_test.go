package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(want)
	assert.NotContains(t, encoded, "=")

	got, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	got, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, value := range []string{"%%%", "bm8tc2VwYXJhdG9y", EncodeCursor(Cursor{})[:4]} {
		_, err := ParseCursor(value)
		assert.ErrorIs(t, err, ErrInvalidCursor, value)
	}
}

func TestPageTrimsAndPointsAtLastRow(t *testing.T) {
	rows := []Cursor{
		{ID: uuid.New(), CreatedAt: time.Unix(1, 0)},
		{ID: uuid.New(), CreatedAt: time.Unix(2, 0)},
		{ID: uuid.New(), CreatedAt: time.Unix(3, 0)},
	}
	key := func(c Cursor) Cursor { return c }

	page, next := Page(rows, Params{Limit: 2}, key)
	assert.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, rows[1].ID, next.ID)

	page, next = Page(rows, Params{}, key)
	assert.Len(t, page, 3)
	assert.Nil(t, next)

	assert.Equal(t, MaxLimit, Params{Limit: MaxLimit * 2}.limit())
}

type pageRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
}

func TestKeysetWalksEveryRowOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&pageRow{}))

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	want := make(map[uuid.UUID]bool)
	for i := range 7 {
		// pairs share a timestamp so the id tiebreak is exercised
		r := pageRow{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Minute)}
		require.NoError(t, db.Create(&r).Error)
		want[r.ID] = true
	}

	seen := make(map[uuid.UUID]bool)
	params := Params{Limit: 3}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5)
		scope, err := Keyset("page_rows", params)
		require.NoError(t, err)
		var batch []pageRow
		require.NoError(t, db.Scopes(scope).Find(&batch).Error)
		batch, next := Page(batch, params, func(r pageRow) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} })
		for _, r := range batch {
			assert.False(t, seen[r.ID], "row returned twice")
			seen[r.ID] = true
		}
		if next == nil {
			break
		}
		params.Cursor = EncodeCursor(*next)
	}
	assert.Equal(t, want, seen)

	_, err = Keyset("page_rows", Params{Cursor: "%%%"})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
