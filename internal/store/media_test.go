package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tributary/internal/model"
)

func TestInsertMedia_DedupesPerRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestRecord(t, s, "a")

	m := model.Media{RecordID: &a.ID, URL: "https://img.example/cover.png", CreatedAt: testEpoch}
	first, err := s.InsertMedia(ctx, m)
	require.NoError(t, err)
	second, err := s.InsertMedia(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	media, err := s.MediaForRecord(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, first, media[0].ID)
}

func TestAttachMediaByExternalKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertRecord(ctx, RecordUpsert{
		Type: "bookmark", ExternalKey: "raindrop:9", Source: "raindrop", CreatedAt: testEpoch,
	}, testEpoch)
	require.NoError(t, err)

	require.NoError(t, s.AttachMediaByExternalKey(ctx, "raindrop:9", "https://img/9.jpg", testEpoch))
	require.NoError(t, s.AttachMediaByExternalKey(ctx, "raindrop:9", "https://img/9.jpg", testEpoch))
	require.NoError(t, s.AttachMediaByExternalKey(ctx, "raindrop:missing", "https://img/x.jpg", testEpoch))

	media, err := s.MediaForRecord(ctx, id)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "https://img/9.jpg", media[0].URL)
}

func TestAttachMediaByExternalKey_SkipsMergedRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertRecord(ctx, RecordUpsert{
		Type: "bookmark", ExternalKey: "raindrop:9", Source: "raindrop", CreatedAt: testEpoch,
	}, testEpoch)
	require.NoError(t, err)
	survivor := createTestRecord(t, s, "survivor")

	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	rec.MergedInto, rec.MergedAt = &survivor.ID, &testEpoch
	require.NoError(t, s.UpdateRecord(ctx, rec))

	require.NoError(t, s.AttachMediaByExternalKey(ctx, "raindrop:9", "https://img/9.jpg", testEpoch))

	media, err := s.MediaForRecord(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, media)
}

func TestMediaReassignDeleteRestore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestRecord(t, s, "a")
	b := createTestRecord(t, s, "b")

	id, err := s.InsertMedia(ctx, model.Media{RecordID: &a.ID, URL: "u", AltText: strPtr("alt"), CreatedAt: testEpoch})
	require.NoError(t, err)

	require.NoError(t, s.UpdateMediaRecord(ctx, id, &b.ID))
	onB, err := s.MediaForRecord(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, onB, 1)
	original := onB[0]

	require.NoError(t, s.DeleteMedia(ctx, id))
	onB, err = s.MediaForRecord(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, onB)

	require.NoError(t, s.InsertMediaWithID(ctx, original))
	onB, err = s.MediaForRecord(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Media{original}, onB)
}

func TestMedia_OrphanedWhenRecordDeleted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestRecord(t, s, "a")

	id, err := s.InsertMedia(ctx, model.Media{RecordID: &a.ID, URL: "u", CreatedAt: testEpoch})
	require.NoError(t, err)

	_, err = s.db.Exec("DELETE FROM records WHERE id = ?", a.ID)
	require.NoError(t, err)

	var owner *int64
	require.NoError(t, s.db.QueryRow("SELECT record_id FROM media WHERE id = ?", id).Scan(&owner))
	assert.Nil(t, owner)
}
