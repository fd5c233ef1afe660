package stats

import (
	"context"

	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
)

// CollectionMonth compares collection targets with user-entered and
// admin-confirmed collections.
type CollectionMonth struct {
	Month                    int     `json:"month"`
	TargetCollection         float64 `json:"targetCollection"`
	UserCollection           float64 `json:"userCollection"`
	AdminConfirmedCollection float64 `json:"adminConfirmedCollection"`
	OutstandingBalance       float64 `json:"outstandingBalance"`
}

// CollectionSummary sums the monthly collection fields.
type CollectionSummary struct {
	TotalTargetCollection         float64 `json:"totalTargetCollection"`
	TotalUserCollection           float64 `json:"totalUserCollection"`
	TotalAdminConfirmedCollection float64 `json:"totalAdminConfirmedCollection"`
	TotalOutstandingBalance       float64 `json:"totalOutstandingBalance"`
}

// CollectionStats is the collection payload.
type CollectionStats = Report[CollectionMonth, CollectionSummary]

var collectionAggregator = Aggregator{
	Bindings: []Binding{
		{Source: "targets", Date: DateColumn("created_at"), Measure: Sum("target_collection"), Output: "targetCollection"},
		{Source: "collections", Date: DateColumn("collection_date"), Measure: Sum("collection_amount"), Output: "userCollection"},
		{Source: "admin", Date: PeriodColumns("year", "month"), Measure: Sum("collection_amount"), Output: "adminConfirmedCollection"},
		{Source: "admin", Date: PeriodColumns("year", "month"), Measure: Sum("outstanding_amount"), Output: "outstandingBalance"},
	},
}

// Collection reports weekly collection targets, collections entered by the
// user and the administrator's confirmed monthly figures.
func (s *Service) Collection(ctx context.Context, req Request) shared.Response[CollectionStats] {
	owner, err := s.ownerFilter(req)
	if err != nil {
		return fail[CollectionStats](s, "collection", err)
	}
	sources, err := s.fetchAll(ctx,
		Source{
			Name: "targets",
			Query: rowstore.Query{
				Table:   "weekly_plans",
				Columns: []string{"created_at", "target_collection"},
				Where:   where(s.yearRange("created_at", req.Year), owner.Condition("created_by")),
			},
			Message: msgWeeklyPlans,
		},
		Source{
			Name: "collections",
			Query: rowstore.Query{
				Table:   "collections",
				Columns: []string{"collection_date", "collection_amount"},
				Where:   where(s.yearRange("collection_date", req.Year), owner.Condition("created_by")),
			},
			Message: msgCollections,
		},
		Source{
			Name: "admin",
			Query: rowstore.Query{
				Table:   "monthly_collection",
				Columns: []string{"year", "month", "collection_amount", "outstanding_amount"},
				Where:   []rowstore.Condition{rowstore.Eq("year", req.Year), owner.Condition("manager_name")},
			},
			Optional: true,
		},
	)
	if err != nil {
		return fail[CollectionStats](s, "collection", err)
	}

	series := collectionAggregator.Aggregate(s.bucketizer, sources, req.Year)
	out := CollectionStats{Monthly: make([]CollectionMonth, 0, 12)}
	for i := 0; i < 12; i++ {
		m := CollectionMonth{
			Month:                    i + 1,
			TargetCollection:         series["targetCollection"][i],
			UserCollection:           series["userCollection"][i],
			AdminConfirmedCollection: series["adminConfirmedCollection"][i],
			OutstandingBalance:       series["outstandingBalance"][i],
		}
		out.Monthly = append(out.Monthly, m)
		out.Summary.TotalTargetCollection += m.TargetCollection
		out.Summary.TotalUserCollection += m.UserCollection
		out.Summary.TotalAdminConfirmedCollection += m.AdminConfirmedCollection
		out.Summary.TotalOutstandingBalance += m.OutstandingBalance
	}
	return shared.OK(out)
}
