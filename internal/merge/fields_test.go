package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tributary/internal/model"
)

func ptr(s string) *string { return &s }

func TestMergeFields_TargetWinsSourceFillsGaps(t *testing.T) {
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	source := model.Record{ID: 1, Title: nil, Rating: 2}
	target := model.Record{ID: 2, Title: ptr("T"), Rating: 0}

	got := MergeFields(source, target, now)
	assert.Equal(t, "T", *got.Title)
	assert.Equal(t, 2, got.Rating)
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, now, got.UpdatedAt)
}

func TestMergeFields_Policy(t *testing.T) {
	early := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	source := model.Record{
		ID:          10,
		Type:        "page",
		Title:       ptr("source title"),
		Content:     ptr("source body"),
		URL:         ptr("https://s"),
		Rating:      5,
		IsCurated:   true,
		IsPrivate:   false,
		Sources:     []string{"browser", "raindrop"},
		ExternalKey: ptr("browser:https://s"),
		CreatedAt:   early,
		UpdatedAt:   late,
	}
	target := model.Record{
		ID:          20,
		Type:        "bookmark",
		Title:       ptr("target title"),
		Content:     nil,
		URL:         nil,
		Rating:      3,
		IsCurated:   false,
		IsPrivate:   true,
		Sources:     []string{"raindrop", "manual"},
		ExternalKey: ptr("raindrop:7"),
		CreatedAt:   late,
		UpdatedAt:   late,
	}

	got := MergeFields(source, target, now)
	assert.Equal(t, model.Record{
		ID:          20,
		Type:        "bookmark",
		Title:       ptr("target title"),
		Content:     ptr("source body"),
		URL:         ptr("https://s"),
		Rating:      3,
		IsCurated:   true,
		IsPrivate:   true,
		Sources:     []string{"raindrop", "manual", "browser"},
		ExternalKey: ptr("raindrop:7"),
		CreatedAt:   early,
		UpdatedAt:   now,
	}, got)
}

func TestMergeFields_DoesNotAliasInputs(t *testing.T) {
	source := model.Record{Content: ptr("c")}
	target := model.Record{Title: ptr("t"), Sources: []string{"a"}}

	got := MergeFields(source, target, time.Time{})
	*got.Title = "changed"
	*got.Content = "changed"
	got.Sources[0] = "changed"

	assert.Equal(t, "t", *target.Title)
	assert.Equal(t, "c", *source.Content)
	assert.Equal(t, "a", target.Sources[0])
}

func TestMergeFields_ClearsTombstone(t *testing.T) {
	id := int64(1)
	at := time.Now()
	target := model.Record{MergedInto: &id, MergedAt: &at}

	got := MergeFields(model.Record{}, target, time.Time{})
	assert.Nil(t, got.MergedInto)
	assert.Nil(t, got.MergedAt)
	assert.Equal(t, []string{}, got.Sources)
}
