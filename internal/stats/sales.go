package stats

import (
	"context"

	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
)

// SalesMonth is one month of revenue against cost.
type SalesMonth struct {
	Month       int     `json:"month"`
	Revenue     float64 `json:"revenue"`
	Cost        float64 `json:"cost"`
	Profit      float64 `json:"profit"`
	TargetSales float64 `json:"targetSales"`
}

// SalesSummary sums the monthly sales fields.
type SalesSummary struct {
	Revenue     float64 `json:"revenue"`
	Cost        float64 `json:"cost"`
	Profit      float64 `json:"profit"`
	TargetSales float64 `json:"targetSales"`
}

// SalesStats is the sales payload.
type SalesStats = Report[SalesMonth, SalesSummary]

var salesAggregator = Aggregator{
	Bindings: []Binding{
		{Source: "inpays", Date: DateColumn("sales_date"), Measure: Sum("supply_price"), Output: "revenue"},
		{Source: "outpays", Date: DateColumn("purchase_date"), Measure: Sum("supply_price"), Output: "cost"},
		{Source: "targets", Date: DateColumn("created_at"), Measure: Sum("target_sales"), Output: "targetSales"},
	},
	Derivations: []Derivation{
		Difference("profit", "revenue", "cost"),
	},
}

// Sales reports revenue from inpays, cost from outpays and the weekly sales
// targets of the resolved owner.
func (s *Service) Sales(ctx context.Context, req Request) shared.Response[SalesStats] {
	owner, err := s.ownerFilter(req)
	if err != nil {
		return fail[SalesStats](s, "sales", err)
	}
	sources, err := s.fetchAll(ctx,
		Source{
			Name: "inpays",
			Query: rowstore.Query{
				Table:   "inpays",
				Columns: []string{"sales_date", "supply_price"},
				Where:   where(s.yearRange("sales_date", req.Year), owner.Condition("construction_manager")),
			},
			Message: msgInpays,
		},
		Source{
			Name: "outpays",
			Query: rowstore.Query{
				Table:   "outpays",
				Columns: []string{"purchase_date", "supply_price"},
				Where:   where(s.yearRange("purchase_date", req.Year), owner.Condition("construction_manager")),
			},
			Message: msgOutpays,
		},
		Source{
			Name: "targets",
			Query: rowstore.Query{
				Table:   "weekly_plans",
				Columns: []string{"created_at", "target_sales"},
				Where: where(s.yearRange("created_at", req.Year),
					owner.Condition("created_by"),
					rowstore.In("plan_type", "target", "both")),
			},
			Optional: true,
		},
	)
	if err != nil {
		return fail[SalesStats](s, "sales", err)
	}

	series := salesAggregator.Aggregate(s.bucketizer, sources, req.Year)
	out := SalesStats{Monthly: make([]SalesMonth, 0, 12)}
	for i := 0; i < 12; i++ {
		m := SalesMonth{
			Month:       i + 1,
			Revenue:     series["revenue"][i],
			Cost:        series["cost"][i],
			Profit:      series["profit"][i],
			TargetSales: series["targetSales"][i],
		}
		out.Monthly = append(out.Monthly, m)
		out.Summary.Revenue += m.Revenue
		out.Summary.Cost += m.Cost
		out.Summary.Profit += m.Profit
		out.Summary.TargetSales += m.TargetSales
	}
	return shared.OK(out)
}
