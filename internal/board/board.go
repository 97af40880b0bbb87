// Package board builds the executive-board read model from dashboard state.
// Everything here is a pure function over the normalized state mapping;
// loading and visibility filtering happen in the service layer.
package board

import (
	"fmt"
	"sort"
	"strings"

	"execdash/api/internal/store"
)

type Milestone struct {
	Phase           string `json:"phase"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	ActualStartDate string `json:"actualStartDate"`
	ActualEndDate   string `json:"actualEndDate"`
	Owner           string `json:"owner"`
	Remark          string `json:"remark"`
}

type MilestoneSummary struct {
	Count       int         `json:"count"`
	ProgressPct int         `json:"progressPct"`
	Items       []string    `json:"items"`
	Milestones  []Milestone `json:"milestones"`
}

type ApplicationSummary struct {
	UserStories int `json:"userStories"`
	Bugs        int `json:"bugs"`
	USOpen      int `json:"usOpen"`
	BugsOpen    int `json:"bugsOpen"`
	BugsNew     int `json:"bugsNew"`
	BugsActive  int `json:"bugsActive"`
}

type DisciplineSummary struct {
	Disciplines int `json:"disciplines"`
	Pending     int `json:"pending"`
}

// Card is one published dashboard as shown on the executive board.
type Card struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	OwnerID     string             `json:"ownerId"`
	PublishedAt string             `json:"publishedAt,omitempty"`
	UpdatedAt   string             `json:"updatedAt,omitempty"`
	Summary     string             `json:"summary"`
	Milestones  MilestoneSummary   `json:"milestones"`
	Application ApplicationSummary `json:"application"`
	Discipline  DisciplineSummary  `json:"discipline"`
}

func BuildCard(record store.IndexRecord, state map[string]any) Card {
	publishedAt := record.PublishedAt
	if publishedAt == "" {
		publishedAt = record.UpdatedAt
	}

	summary := safeText(textAt(state, "executive", "savedSummaryText"), "")
	if summary == "" {
		summary = safeText(AutoSummary(state), "No summary")
	}

	return Card{
		ID:          record.ID,
		Name:        record.Name,
		OwnerID:     record.OwnerID,
		PublishedAt: publishedAt,
		UpdatedAt:   record.UpdatedAt,
		Summary:     summary,
		Milestones:  PickMilestones(state),
		Application: PickApplication(state),
		Discipline:  PickDiscipline(state),
	}
}

// PickMilestones returns the journey-ready milestone list plus a completion
// percentage based on actual end dates, and keeps the compact three-item
// preview older clients read.
func PickMilestones(state map[string]any) MilestoneSummary {
	source := sliceAt(state, "executive", "milestones")

	milestones := make([]Milestone, 0, len(source))
	for _, raw := range source {
		entry, ok := raw.(map[string]any)
		if !ok {
			entry = map[string]any{}
		}
		milestones = append(milestones, Milestone{
			Phase:           safeText(firstText(entry, "phase", "Activity", "title", "name"), "Milestone"),
			StartDate:       firstText(entry, "startDate", "plannedStart", "start", "Start Date"),
			EndDate:         firstText(entry, "endDate", "plannedEnd", "end", "End Date"),
			ActualStartDate: firstText(entry, "actualStartDate", "actualStart", "Actual Start Date"),
			ActualEndDate:   firstText(entry, "actualEndDate", "actualEnd", "Actual End Date"),
			Owner:           firstText(entry, "owner", "Owner"),
			Remark:          firstText(entry, "remark", "Remark"),
		})
	}

	completed := 0
	for _, m := range milestones {
		if m.ActualEndDate != "" {
			completed++
		}
	}
	progress := 0
	if len(milestones) > 0 {
		progress = int(float64(completed)/float64(len(milestones))*100 + 0.5)
	}

	items := make([]string, 0, 3)
	for _, m := range milestones {
		if len(items) == 3 {
			break
		}
		label := safeText(m.Phase, "Milestone")
		date := m.EndDate
		if date == "" {
			date = m.ActualEndDate
		}
		if date != "" {
			label = label + " — " + date
		}
		items = append(items, label)
	}

	return MilestoneSummary{
		Count:       len(milestones),
		ProgressPct: progress,
		Items:       items,
		Milestones:  milestones,
	}
}

func PickApplication(state map[string]any) ApplicationSummary {
	stories := sliceAt(state, "executive", "userStories")
	bugs := sliceAt(state, "executive", "bugs")

	return ApplicationSummary{
		UserStories: len(stories),
		Bugs:        len(bugs),
		USOpen:      countOpen(stories),
		BugsOpen:    countOpen(bugs),
		BugsNew:     countStage(bugs, "new"),
		BugsActive:  countStage(bugs, "active"),
	}
}

func PickDiscipline(state map[string]any) DisciplineSummary {
	return DisciplineSummary{
		Disciplines: len(sliceAt(state, "executive", "taskDisciplines")),
		Pending:     len(sliceAt(state, "executive", "pendingDisciplineData")),
	}
}

// AutoSummary is the fallback used when a dashboard has no saved summary
// text.
func AutoSummary(state map[string]any) string {
	milestones := PickMilestones(state)
	application := PickApplication(state)

	parts := make([]string, 0, 3)
	if milestones.Count > 0 {
		parts = append(parts, fmt.Sprintf("Project execution is at %d%% completion (%d milestones).", milestones.ProgressPct, milestones.Count))
	}
	if application.Bugs > 0 {
		parts = append(parts, fmt.Sprintf("Bugs: %d total (%d new, %d active).", application.Bugs, application.BugsNew, application.BugsActive))
	}
	if application.UserStories > 0 {
		parts = append(parts, fmt.Sprintf("User Stories: %d total (Open %d).", application.UserStories, application.USOpen))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// SortCards orders cards for the board: newest (default), oldest, name_asc,
// name_desc.
func SortCards(cards []Card, mode string) {
	switch mode {
	case "oldest":
		sort.SliceStable(cards, func(i, j int) bool { return sortKey(cards[i]) < sortKey(cards[j]) })
	case "name_asc":
		sort.SliceStable(cards, func(i, j int) bool { return cards[i].Name < cards[j].Name })
	case "name_desc":
		sort.SliceStable(cards, func(i, j int) bool { return cards[i].Name > cards[j].Name })
	default:
		sort.SliceStable(cards, func(i, j int) bool { return sortKey(cards[i]) > sortKey(cards[j]) })
	}
}

func sortKey(card Card) string {
	if card.PublishedAt != "" {
		return card.PublishedAt
	}
	return card.UpdatedAt
}

func countOpen(items []any) int {
	open := 0
	for _, item := range items {
		if stageOf(item) != "closed" {
			open++
		}
	}
	return open
}

func countStage(items []any, stage string) int {
	count := 0
	for _, item := range items {
		if stageOf(item) == stage {
			count++
		}
	}
	return count
}

func stageOf(item any) string {
	entry, ok := item.(map[string]any)
	if !ok {
		return ""
	}
	stage := firstText(entry, "stage", "status")
	return strings.ToLower(strings.TrimSpace(stage))
}

func mappingAt(state map[string]any, key string) map[string]any {
	value, _ := state[key].(map[string]any)
	return value
}

func sliceAt(state map[string]any, section, key string) []any {
	parent := mappingAt(state, section)
	if parent == nil {
		return nil
	}
	value, _ := parent[key].([]any)
	return value
}

func textAt(state map[string]any, section, key string) string {
	parent := mappingAt(state, section)
	if parent == nil {
		return ""
	}
	value, _ := parent[key].(string)
	return value
}

func firstText(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := entry[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func safeText(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
