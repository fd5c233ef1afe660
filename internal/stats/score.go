package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/misung-crm/misung-crm/internal/branch"
	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
)

const dateLayout = "2006-01-02"

// ScoreFilter narrows construction sales activity to one author. CreatedBy
// wins over UserID; an empty filter covers everybody.
type ScoreFilter struct {
	UserID    string
	CreatedBy string
	Branch    branch.Selector
}

// ItemScore is the engagement score of one construction company and item.
type ItemScore struct {
	ConstructionID        int64    `json:"construction_id"`
	ConstructionName      string   `json:"construction_name"`
	ItemID                int64    `json:"item_id"`
	ItemName              string   `json:"item_name"`
	QuoteCount            int      `json:"quote_count"`
	QuoteScore            float64  `json:"quote_score"`
	MeetingCount          int      `json:"meeting_count"`
	MeetingScore          float64  `json:"meeting_score"`
	RecentActivityDate    *string  `json:"recent_activity_date"`
	DaysSinceLastActivity *int     `json:"days_since_last_activity"`
	QuoteActivities       []string `json:"quote_activities"`
	MeetingActivities     []string `json:"meeting_activities"`
}

// ConstructionScore groups the item scores of one construction company.
type ConstructionScore struct {
	ConstructionID   int64       `json:"construction_id"`
	ConstructionName string      `json:"construction_name"`
	TotalActivities  int         `json:"total_activities"`
	ItemScores       []ItemScore `json:"item_scores"`
}

// ScoreSummary counts companies and activities in the result.
type ScoreSummary struct {
	TotalConstructions int `json:"total_constructions"`
	TotalActivities    int `json:"total_activities"`
}

// ScoreStats is the construction score payload.
type ScoreStats struct {
	Scores  []ConstructionScore `json:"scores"`
	Summary ScoreSummary        `json:"summary"`
}

// ActivityScore returns 1.0 for the first activity and 0.1 for each further
// one, rounded to two decimals.
func ActivityScore(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Round((1+float64(n-1)*0.1)*100) / 100
}

// ConstructionScoresByMonth scores construction sales activity in one month.
func (s *Service) ConstructionScoresByMonth(ctx context.Context, year, month int, f ScoreFilter) shared.Response[ScoreStats] {
	if year <= 0 {
		return fail[ScoreStats](s, "construction score", ErrInvalidYear)
	}
	if month < 1 || month > 12 {
		return fail[ScoreStats](s, "construction score", ErrInvalidPeriod)
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.Location())
	return s.ConstructionScores(ctx, start, start.AddDate(0, 1, -1), f)
}

// ConstructionScoresByYear scores construction sales activity in one year.
func (s *Service) ConstructionScoresByYear(ctx context.Context, year int, f ScoreFilter) shared.Response[ScoreStats] {
	if year <= 0 {
		return fail[ScoreStats](s, "construction score", ErrInvalidYear)
	}
	loc := s.Location()
	return s.ConstructionScores(ctx, time.Date(year, time.January, 1, 0, 0, 0, 0, loc), time.Date(year, time.December, 31, 0, 0, 0, 0, loc), f)
}

type itemAccumulator struct {
	score    ItemScore
	quotes   []string
	meetings []string
}

// ConstructionScores scores construction sales activity on the calendar days
// from start to end inclusive, observed in the stats location.
func (s *Service) ConstructionScores(ctx context.Context, start, end time.Time, f ScoreFilter) shared.Response[ScoreStats] {
	loc := s.Location()
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	to := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	if to.Before(from) {
		return fail[ScoreStats](s, "construction score", ErrInvalidPeriod)
	}

	conds := []rowstore.Condition{
		rowstore.Eq("activity_construction_sales", true),
		rowstore.Gte("created_at", from),
		rowstore.Lte("created_at", to),
	}
	if c, ok := s.scoreOwner(f); ok {
		conds = append(conds, c)
	}

	plans, err := s.fetchAll(ctx, Source{
		Name: "plans",
		Query: rowstore.Query{
			Table:   "daily_plans",
			Columns: []string{"id", "created_at", "user_id", "created_by"},
			Where:   conds,
			OrderBy: []rowstore.Order{{Column: "created_at"}},
		},
		Message: msgDailyPlans,
	})
	if err != nil {
		return fail[ScoreStats](s, "construction score", err)
	}
	if len(plans["plans"]) == 0 {
		return shared.OK(ScoreStats{Scores: []ConstructionScore{}})
	}

	planDates := make(map[string]string, len(plans["plans"]))
	planIDs := make([]any, 0, len(plans["plans"]))
	for _, plan := range plans["plans"] {
		t, ok := toTime(plan["created_at"], loc)
		if !ok {
			continue
		}
		planDates[toString(plan["id"])] = t.Format(dateLayout)
		planIDs = append(planIDs, plan["id"])
	}

	details, err := s.fetchAll(ctx, Source{
		Name: "details",
		Query: rowstore.Query{
			Table:   "daily_plan_construction_sales",
			Columns: []string{"id", "daily_plan_id", "construction_id", "item_id", "has_quote_submitted", "has_meeting_conducted"},
			Where:   []rowstore.Condition{rowstore.In("daily_plan_id", planIDs...)},
			OrderBy: []rowstore.Order{{Column: "id"}},
		},
		Message: msgConstructionSale,
	})
	if err != nil {
		return fail[ScoreStats](s, "construction score", err)
	}

	var constructionIDs, itemIDs []any
	seenC, seenI := map[string]bool{}, map[string]bool{}
	for _, d := range details["details"] {
		if k := toString(d["construction_id"]); !seenC[k] {
			seenC[k] = true
			constructionIDs = append(constructionIDs, d["construction_id"])
		}
		if k := toString(d["item_id"]); !seenI[k] {
			seenI[k] = true
			itemIDs = append(itemIDs, d["item_id"])
		}
	}

	lookups, err := s.fetchAll(ctx,
		Source{
			Name:    "constructions",
			Query:   rowstore.Query{Table: "constructions", Columns: []string{"id", "company_name"}, Where: []rowstore.Condition{rowstore.In("id", constructionIDs...)}},
			Message: msgScoreFailed,
		},
		Source{
			Name:    "items",
			Query:   rowstore.Query{Table: "items", Columns: []string{"id", "item_id", "item_name"}, Where: []rowstore.Condition{rowstore.In("id", itemIDs...)}},
			Message: msgScoreFailed,
		},
	)
	if err != nil {
		return fail[ScoreStats](s, "construction score", err)
	}
	constructions := indexByID(lookups["constructions"])
	items := indexByID(lookups["items"])

	var order []string
	acc := make(map[string]*itemAccumulator)
	for _, d := range details["details"] {
		date, ok := planDates[toString(d["daily_plan_id"])]
		if !ok {
			continue
		}
		c, okC := constructions[toString(d["construction_id"])]
		it, okI := items[toString(d["item_id"])]
		if !okC || !okI {
			continue
		}
		key := toString(c["id"]) + "_" + toString(it["id"])
		a, exists := acc[key]
		if !exists {
			cid, _ := toInt(c["id"])
			iid, _ := toInt(it["id"])
			a = &itemAccumulator{score: ItemScore{
				ConstructionID:   cid,
				ConstructionName: toString(c["company_name"]),
				ItemID:           iid,
				ItemName:         fmt.Sprintf("%s - %s", toString(it["item_id"]), toString(it["item_name"])),
			}}
			acc[key] = a
			order = append(order, key)
		}
		if truthy(d["has_quote_submitted"]) {
			a.quotes = append(a.quotes, date)
		}
		if truthy(d["has_meeting_conducted"]) {
			a.meetings = append(a.meetings, date)
		}
	}

	today := s.now().In(loc)
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)

	var scores []ConstructionScore
	byConstruction := make(map[int64]int)
	for _, key := range order {
		item := finishItem(acc[key], today, loc)
		idx, ok := byConstruction[item.ConstructionID]
		if !ok {
			idx = len(scores)
			byConstruction[item.ConstructionID] = idx
			scores = append(scores, ConstructionScore{
				ConstructionID:   item.ConstructionID,
				ConstructionName: item.ConstructionName,
				ItemScores:       []ItemScore{},
			})
		}
		scores[idx].ItemScores = append(scores[idx].ItemScores, item)
		scores[idx].TotalActivities += item.QuoteCount + item.MeetingCount
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].TotalActivities > scores[j].TotalActivities
	})

	out := ScoreStats{Scores: scores, Summary: ScoreSummary{TotalConstructions: len(scores)}}
	if out.Scores == nil {
		out.Scores = []ConstructionScore{}
	}
	for _, sc := range scores {
		out.Summary.TotalActivities += sc.TotalActivities
	}
	return shared.OK(out)
}

func finishItem(a *itemAccumulator, today time.Time, loc *time.Location) ItemScore {
	item := a.score
	sort.Strings(a.quotes)
	sort.Strings(a.meetings)
	item.QuoteActivities = append([]string{}, a.quotes...)
	item.MeetingActivities = append([]string{}, a.meetings...)
	item.QuoteCount = len(a.quotes)
	item.MeetingCount = len(a.meetings)
	item.QuoteScore = ActivityScore(item.QuoteCount)
	item.MeetingScore = ActivityScore(item.MeetingCount)

	latest := ""
	if n := len(a.quotes); n > 0 {
		latest = a.quotes[n-1]
	}
	if n := len(a.meetings); n > 0 && a.meetings[n-1] > latest {
		latest = a.meetings[n-1]
	}
	if latest != "" {
		recent := latest
		item.RecentActivityDate = &recent
		if day, err := time.ParseInLocation(dateLayout, latest, loc); err == nil {
			days := int(math.Floor(today.Sub(day).Hours() / 24))
			item.DaysSinceLastActivity = &days
		}
	}
	return item
}

// scoreOwner builds the author condition. An explicit "(In)" owner is matched
// exactly; a plain name goes through the branch resolver.
func (s *Service) scoreOwner(f ScoreFilter) (rowstore.Condition, bool) {
	if createdBy := strings.TrimSpace(f.CreatedBy); createdBy != "" {
		id := branch.ParseOwner(createdBy)
		if id.Branch == branch.Incheon {
			return rowstore.Eq("created_by", id.Owner()), true
		}
		return s.resolver.Resolve(id.Name, f.Branch).Condition("created_by"), true
	}
	if userID := strings.TrimSpace(f.UserID); userID != "" {
		return rowstore.Eq("user_id", userID), true
	}
	return rowstore.Condition{}, false
}

func indexByID(rows []rowstore.Row) map[string]rowstore.Row {
	out := make(map[string]rowstore.Row, len(rows))
	for _, row := range rows {
		out[toString(row["id"])] = row
	}
	return out
}
