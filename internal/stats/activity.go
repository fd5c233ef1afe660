package stats

import (
	"context"

	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
)

// ActivityCounts tallies the three activity categories.
type ActivityCounts struct {
	Construction int `json:"construction"`
	Additional   int `json:"additional"`
	Support      int `json:"support"`
	Total        int `json:"total"`
}

// ActivityMonth compares planned and performed activities for one month.
type ActivityMonth struct {
	Year        int            `json:"year"`
	Month       int            `json:"month"`
	Plan        ActivityCounts `json:"plan"`
	Actual      ActivityCounts `json:"actual"`
	Achievement ActivityCounts `json:"achievement"`
}

// ActivitySummary aggregates the year. Achievement is recomputed from the
// summed plan and actual counts.
type ActivitySummary struct {
	Plan        ActivityCounts `json:"plan"`
	Actual      ActivityCounts `json:"actual"`
	Achievement ActivityCounts `json:"achievement"`
}

// ActivityStats is the activity payload.
type ActivityStats = Report[ActivityMonth, ActivitySummary]

var activityFlags = [...]struct {
	column, name string
}{
	{"activity_construction_sales", "construction"},
	{"activity_site_additional_sales", "additional"},
	{"activity_site_support", "support"},
}

var activityAggregator = func() Aggregator {
	var a Aggregator
	for _, side := range []struct{ source, prefix string }{{"weekly", "plan."}, {"daily", "actual."}} {
		names := make([]string, 0, len(activityFlags))
		for _, flag := range activityFlags {
			a.Bindings = append(a.Bindings, Binding{
				Source:  side.source,
				Date:    DateColumn("created_at"),
				Measure: CountIf(flag.column),
				Output:  side.prefix + flag.name,
			})
			names = append(names, side.prefix+flag.name)
		}
		a.Derivations = append(a.Derivations, Total(side.prefix+"total", names...))
	}
	return a
}()

// Activity compares weekly plans against daily plans. The user is matched by
// name and branch on created_by, else by user_id, else every user is included.
func (s *Service) Activity(ctx context.Context, req Request) shared.Response[ActivityStats] {
	if req.Year <= 0 {
		return fail[ActivityStats](s, "activity", ErrInvalidYear)
	}
	conds := s.yearRange("created_at", req.Year)
	switch {
	case req.UserName != "":
		f := s.resolver.Resolve(req.UserName, req.Branch)
		conds = append(conds, f.Condition("created_by"))
	case req.UserID != "":
		conds = append(conds, rowstore.Eq("user_id", req.UserID))
	}

	sources, err := s.fetchAll(ctx,
		Source{Name: "weekly", Query: rowstore.Query{Table: "weekly_plans", Where: conds}, Message: msgWeeklyPlans},
		Source{Name: "daily", Query: rowstore.Query{Table: "daily_plans", Where: conds}, Message: msgDailyPlans},
	)
	if err != nil {
		return fail[ActivityStats](s, "activity", err)
	}

	series := activityAggregator.Aggregate(s.bucketizer, sources, req.Year)
	counts := func(prefix string, i int) ActivityCounts {
		return ActivityCounts{
			Construction: int(series[prefix+"construction"][i]),
			Additional:   int(series[prefix+"additional"][i]),
			Support:      int(series[prefix+"support"][i]),
			Total:        int(series[prefix+"total"][i]),
		}
	}

	out := ActivityStats{Monthly: make([]ActivityMonth, 0, 12)}
	for i := 0; i < 12; i++ {
		plan, actual := counts("plan.", i), counts("actual.", i)
		out.Monthly = append(out.Monthly, ActivityMonth{
			Year:        req.Year,
			Month:       i + 1,
			Plan:        plan,
			Actual:      actual,
			Achievement: achievementOf(plan, actual),
		})
		out.Summary.Plan = out.Summary.Plan.add(plan)
		out.Summary.Actual = out.Summary.Actual.add(actual)
	}
	out.Summary.Achievement = achievementOf(out.Summary.Plan, out.Summary.Actual)
	return shared.OK(out)
}

func (c ActivityCounts) add(o ActivityCounts) ActivityCounts {
	return ActivityCounts{
		Construction: c.Construction + o.Construction,
		Additional:   c.Additional + o.Additional,
		Support:      c.Support + o.Support,
		Total:        c.Total + o.Total,
	}
}

func achievementOf(plan, actual ActivityCounts) ActivityCounts {
	return ActivityCounts{
		Construction: Achievement(float64(plan.Construction), float64(actual.Construction)),
		Additional:   Achievement(float64(plan.Additional), float64(actual.Additional)),
		Support:      Achievement(float64(plan.Support), float64(actual.Support)),
		Total:        Achievement(float64(plan.Total), float64(actual.Total)),
	}
}
