package stats

import (
	"context"
	"fmt"

	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
)

// salesContributionRate is the expected execution rate from which a site
// counts as sales contribution. Unrated sites (rate 0) count as sales too.
const salesContributionRate = 90

// OrderFlow is order intake against planned execution.
type OrderFlow struct {
	Order     float64 `json:"order"`
	Execution float64 `json:"execution"`
	Profit    float64 `json:"profit"`
}

func (f OrderFlow) add(o OrderFlow) OrderFlow {
	return OrderFlow{Order: f.Order + o.Order, Execution: f.Execution + o.Execution, Profit: f.Profit + o.Profit}
}

// OrderMonth splits one month of orders into sales and profit contribution.
type OrderMonth struct {
	Month                    int       `json:"month"`
	SalesContribution        OrderFlow `json:"salesContribution"`
	ProfitContribution       OrderFlow `json:"profitContribution"`
	Total                    OrderFlow `json:"total"`
	TargetSalesContribution  float64   `json:"targetSalesContribution"`
	TargetProfitContribution float64   `json:"targetProfitContribution"`
	TargetTotal              float64   `json:"targetTotal"`
}

// OrderSummary sums the monthly order fields.
type OrderSummary struct {
	SalesContribution        OrderFlow `json:"salesContribution"`
	ProfitContribution       OrderFlow `json:"profitContribution"`
	Total                    OrderFlow `json:"total"`
	TargetSalesContribution  float64   `json:"targetSalesContribution"`
	TargetProfitContribution float64   `json:"targetProfitContribution"`
	TargetTotal              float64   `json:"targetTotal"`
}

// OrderStats is the order payload.
type OrderStats = Report[OrderMonth, OrderSummary]

var orderAggregator = Aggregator{
	Bindings: []Binding{
		{Source: "sales", Date: DateColumn("order_month"), Measure: Sum("order_amount"), Output: "sales.order"},
		{Source: "sales", Date: DateColumn("order_month"), Measure: Sum("execution_amount"), Output: "sales.execution"},
		{Source: "profit", Date: DateColumn("order_month"), Measure: Sum("order_amount"), Output: "profit.order"},
		{Source: "profit", Date: DateColumn("order_month"), Measure: Sum("execution_amount"), Output: "profit.execution"},
		{Source: "targets", Date: DateColumn("created_at"), Measure: Sum("target_order_sales_contribution"), Output: "target.sales"},
		{Source: "targets", Date: DateColumn("created_at"), Measure: Sum("target_order_profit_contribution"), Output: "target.profit"},
	},
	Derivations: []Derivation{
		Difference("sales.profit", "sales.order", "sales.execution"),
		Difference("profit.profit", "profit.order", "profit.execution"),
		Total("total.order", "sales.order", "profit.order"),
		Total("total.execution", "sales.execution", "profit.execution"),
		Total("total.profit", "sales.profit", "profit.profit"),
		Total("target.total", "target.sales", "target.profit"),
	},
}

// IsSalesContribution classifies a site by its expected execution rate.
func IsSalesContribution(rate float64) bool {
	return rate >= salesContributionRate || rate == 0
}

// Order reports confirmed orders of the owner's sites, split by contribution
// type, together with the weekly order targets.
func (s *Service) Order(ctx context.Context, req Request) shared.Response[OrderStats] {
	owner, err := s.ownerFilter(req)
	if err != nil {
		return fail[OrderStats](s, "order", err)
	}
	first, err := s.fetchAll(ctx,
		Source{
			Name: "sites",
			Query: rowstore.Query{
				Table:   "site_summary",
				Columns: []string{"cms", "expected_execution_rate"},
				Where:   []rowstore.Condition{owner.Condition("sales_manager")},
			},
			Message: msgSites,
		},
		Source{
			Name: "targets",
			Query: rowstore.Query{
				Table:   "weekly_plans",
				Columns: []string{"created_at", "target_order_sales_contribution", "target_order_profit_contribution"},
				Where:   where(s.yearRange("created_at", req.Year), owner.Condition("created_by")),
			},
			Optional: true,
		},
	)
	if err != nil {
		return fail[OrderStats](s, "order", err)
	}
	if len(first["sites"]) == 0 {
		return shared.OK(buildOrderStats(make(Series)))
	}

	group := make(map[string]bool, len(first["sites"]))
	cmsList := make([]string, 0, len(first["sites"]))
	for _, site := range first["sites"] {
		cms := toString(site["cms"])
		if cms == "" {
			continue
		}
		if _, seen := group[cms]; !seen {
			cmsList = append(cmsList, cms)
		}
		group[cms] = IsSalesContribution(toFloat64(site["expected_execution_rate"]))
	}

	orders, err := s.fetchAll(ctx, Source{
		Name: "orders",
		Query: rowstore.Query{
			Table:   "construction_management",
			Columns: []string{"cms", "order_month", "order_amount", "execution_amount"},
			Where: []rowstore.Condition{
				rowstore.In("cms", cmsList...),
				rowstore.Gte("order_month", fmt.Sprintf("%04d-01", req.Year)),
				rowstore.Lt("order_month", fmt.Sprintf("%04d-01", req.Year+1)),
			},
		},
		Message: msgOrders,
	})
	if err != nil {
		return fail[OrderStats](s, "order", err)
	}

	split := map[string][]rowstore.Row{"targets": first["targets"]}
	for _, row := range orders["orders"] {
		if group[toString(row["cms"])] {
			split["sales"] = append(split["sales"], row)
		} else {
			split["profit"] = append(split["profit"], row)
		}
	}
	return shared.OK(buildOrderStats(orderAggregator.Aggregate(s.bucketizer, split, req.Year)))
}

func buildOrderStats(series Series) OrderStats {
	flow := func(prefix string, i int) OrderFlow {
		return OrderFlow{
			Order:     series[prefix+".order"][i],
			Execution: series[prefix+".execution"][i],
			Profit:    series[prefix+".profit"][i],
		}
	}
	out := OrderStats{Monthly: make([]OrderMonth, 0, 12)}
	for i := 0; i < 12; i++ {
		m := OrderMonth{
			Month:                    i + 1,
			SalesContribution:        flow("sales", i),
			ProfitContribution:       flow("profit", i),
			Total:                    flow("total", i),
			TargetSalesContribution:  series["target.sales"][i],
			TargetProfitContribution: series["target.profit"][i],
			TargetTotal:              series["target.total"][i],
		}
		out.Monthly = append(out.Monthly, m)
		out.Summary.SalesContribution = out.Summary.SalesContribution.add(m.SalesContribution)
		out.Summary.ProfitContribution = out.Summary.ProfitContribution.add(m.ProfitContribution)
		out.Summary.Total = out.Summary.Total.add(m.Total)
		out.Summary.TargetSalesContribution += m.TargetSalesContribution
		out.Summary.TargetProfitContribution += m.TargetProfitContribution
		out.Summary.TargetTotal += m.TargetTotal
	}
	return out
}
