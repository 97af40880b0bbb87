package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execdash/api/internal/store"
)

func stateWithMilestones(entries ...map[string]any) map[string]any {
	raw := make([]any, 0, len(entries))
	for _, entry := range entries {
		raw = append(raw, any(entry))
	}
	return map[string]any{"executive": map[string]any{"milestones": raw}}
}

func TestPickMilestonesProgress(t *testing.T) {
	state := stateWithMilestones(
		map[string]any{"phase": "Discovery", "endDate": "2026-01-31", "actualEndDate": "2026-02-02"},
		map[string]any{"phase": "Build", "endDate": "2026-05-31", "actualEndDate": "2026-06-01"},
		map[string]any{"phase": "Launch", "endDate": "2026-09-30"},
	)

	summary := PickMilestones(state)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 67, summary.ProgressPct)
	require.Len(t, summary.Items, 3)
	assert.Equal(t, "Discovery — 2026-01-31", summary.Items[0])
}

func TestPickMilestonesFieldFallbacks(t *testing.T) {
	state := stateWithMilestones(
		map[string]any{"Activity": "UAT", "End Date": "2026-03-01", "Owner": "QA"},
	)

	summary := PickMilestones(state)
	require.Len(t, summary.Milestones, 1)
	assert.Equal(t, "UAT", summary.Milestones[0].Phase)
	assert.Equal(t, "2026-03-01", summary.Milestones[0].EndDate)
	assert.Equal(t, "QA", summary.Milestones[0].Owner)
}

func TestPickMilestonesEmptyState(t *testing.T) {
	summary := PickMilestones(map[string]any{})
	assert.Zero(t, summary.Count)
	assert.Zero(t, summary.ProgressPct)
	assert.Empty(t, summary.Items)
}

func TestPickApplicationCounts(t *testing.T) {
	state := map[string]any{
		"executive": map[string]any{
			"userStories": []any{
				map[string]any{"stage": "Closed"},
				map[string]any{"stage": "Active"},
				map[string]any{"stage": "New"},
			},
			"bugs": []any{
				map[string]any{"stage": "New"},
				map[string]any{"stage": "Active"},
				map[string]any{"status": "closed"},
			},
		},
	}

	summary := PickApplication(state)
	assert.Equal(t, 3, summary.UserStories)
	assert.Equal(t, 2, summary.USOpen)
	assert.Equal(t, 3, summary.Bugs)
	assert.Equal(t, 2, summary.BugsOpen)
	assert.Equal(t, 1, summary.BugsNew)
	assert.Equal(t, 1, summary.BugsActive)
}

func TestAutoSummary(t *testing.T) {
	state := map[string]any{
		"executive": map[string]any{
			"milestones": []any{
				map[string]any{"phase": "Build", "actualEndDate": "2026-02-01"},
				map[string]any{"phase": "Launch"},
			},
			"bugs": []any{
				map[string]any{"stage": "New"},
				map[string]any{"stage": "Active"},
			},
			"userStories": []any{
				map[string]any{"stage": "Closed"},
			},
		},
	}

	summary := AutoSummary(state)
	assert.Contains(t, summary, "Project execution is at 50% completion (2 milestones).")
	assert.Contains(t, summary, "Bugs: 2 total (1 new, 1 active).")
	assert.Contains(t, summary, "User Stories: 1 total (Open 0).")
}

func TestAutoSummaryEmptyState(t *testing.T) {
	assert.Empty(t, AutoSummary(map[string]any{}))
}

func TestBuildCardSummaryFallbacks(t *testing.T) {
	record := store.IndexRecord{ID: "d1", Name: "Q1", OwnerID: "alice", UpdatedAt: "2026-02-01T00:00:00Z"}

	saved := map[string]any{"executive": map[string]any{"savedSummaryText": "Saved words."}}
	card := BuildCard(record, saved)
	assert.Equal(t, "Saved words.", card.Summary)
	assert.Equal(t, "2026-02-01T00:00:00Z", card.PublishedAt, "publishedAt falls back to updatedAt")

	card = BuildCard(record, map[string]any{})
	assert.Equal(t, "No summary", card.Summary)
}

func TestSortCards(t *testing.T) {
	cards := []Card{
		{ID: "b", Name: "Beta", PublishedAt: "2026-01-01T00:00:00Z"},
		{ID: "a", Name: "Alpha", PublishedAt: "2026-03-01T00:00:00Z"},
		{ID: "c", Name: "Gamma", UpdatedAt: "2026-02-01T00:00:00Z"},
	}

	SortCards(cards, "")
	assert.Equal(t, []string{"a", "c", "b"}, ids(cards))

	SortCards(cards, "oldest")
	assert.Equal(t, []string{"b", "c", "a"}, ids(cards))

	SortCards(cards, "name_asc")
	assert.Equal(t, []string{"a", "b", "c"}, ids(cards))

	SortCards(cards, "name_desc")
	assert.Equal(t, []string{"c", "b", "a"}, ids(cards))
}

func ids(cards []Card) []string {
	out := make([]string, len(cards))
	for i, card := range cards {
		out[i] = card.ID
	}
	return out
}
