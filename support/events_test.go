package support

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk_back/database"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "ja***@example.com", MaskEmail("jan@example.com"))
	assert.Equal(t, "***@example.com", MaskEmail("jo@example.com"))
	assert.Equal(t, "***", MaskEmail("not-an-email"))
	assert.Equal(t, "", MaskEmail(" "))
	assert.Equal(t, "ré***@x.fr", MaskEmail("rémi@x.fr"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "éé", truncateRunes("ééé", 2))
}

func TestGormEventSinkAppend(t *testing.T) {
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	sink := NewGormEventSink(db)
	event := &Event{TenantID: "tenant-a", Outcome: OutcomeAuto}
	require.NoError(t, sink.Append(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())

	var stored Event
	require.NoError(t, db.First(&stored, "id = ?", event.ID).Error)
	assert.Equal(t, "tenant-a", stored.TenantID)
	assert.Nil(t, stored.Confidence)
}
