package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wareline/kbcore/internal/model"
)

func TestDiffFields_NoChanges(t *testing.T) {
	doc := &model.Document{
		Filename:         "manual.pdf",
		Title:            "Manual",
		ChunksCount:      4,
		ProcessingStatus: model.StatusCompleted,
		Version:          1,
		ApprovalStatus:   model.ApprovalDraft,
	}
	cp := *doc
	assert.Empty(t, DiffFields(doc, &cp))
}

func TestDiffFields_TracksMutatedFields(t *testing.T) {
	old := &model.Document{
		Title:            "Receiving Procedure",
		Category:         "ops",
		ChunksCount:      4,
		ProcessingStatus: model.StatusCompleted,
		Version:          1,
		ApprovalStatus:   model.ApprovalDraft,
	}
	updated := *old
	updated.Title = "Receiving Procedure (2026)"
	updated.Version = 2
	updated.ApprovalStatus = model.ApprovalApproved

	changes := DiffFields(old, &updated)
	assert.Len(t, changes, 3)

	byField := map[string]FieldChange{}
	for _, c := range changes {
		byField[c.Field] = c
	}
	assert.Equal(t, "Receiving Procedure", byField["title"].OldValue)
	assert.Equal(t, "Receiving Procedure (2026)", byField["title"].NewValue)
	assert.Equal(t, "1", byField["version"].OldValue)
	assert.Equal(t, "2", byField["version"].NewValue)
	assert.Equal(t, "draft", byField["approval_status"].OldValue)
	assert.Equal(t, "approved", byField["approval_status"].NewValue)
}

func TestDiffFields_StatusAndError(t *testing.T) {
	old := &model.Document{ProcessingStatus: model.StatusProcessing}
	updated := &model.Document{ProcessingStatus: model.StatusFailed, ErrorMessage: "parse failed"}

	changes := DiffFields(old, updated)
	assert.Len(t, changes, 2)
}

func TestNullIntRoundTrip(t *testing.T) {
	assert.False(t, NullInt(nil).Valid)
	assert.Nil(t, IntPtr(sql.NullInt64{}))

	n := 7
	nv := NullInt(&n)
	assert.True(t, nv.Valid)
	assert.Equal(t, int64(7), nv.Int64)

	p := IntPtr(sql.NullInt64{Int64: 3, Valid: true})
	if assert.NotNil(t, p) {
		assert.Equal(t, 3, *p)
	}
}
