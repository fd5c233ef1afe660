package stats

import (
	"context"
	"math"
	"sort"

	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
)

// CostEfficiencyMonth compares over-investment on active sites with the
// revenue confirmed that month.
type CostEfficiencyMonth struct {
	Month               int     `json:"month"`
	OverInvestment      float64 `json:"overInvestment"`
	AdminOverInvestment float64 `json:"adminOverInvestment"`
	ConfirmedRevenue    float64 `json:"confirmedRevenue"`
	Difference          float64 `json:"difference"`
}

// CostEfficiencySummary sums the monthly cost efficiency fields.
type CostEfficiencySummary struct {
	TotalOverInvestment      float64 `json:"totalOverInvestment"`
	TotalAdminOverInvestment float64 `json:"totalAdminOverInvestment"`
	TotalConfirmedRevenue    float64 `json:"totalConfirmedRevenue"`
	TotalDifference          float64 `json:"totalDifference"`
}

// CostEfficiencyStats is the cost efficiency payload.
type CostEfficiencyStats = Report[CostEfficiencyMonth, CostEfficiencySummary]

var costEfficiencyAggregator = Aggregator{
	Bindings: []Binding{
		{Source: "inpays", Date: DateColumn("sales_date"), Measure: Sum("supply_price"), Output: "confirmedRevenue"},
		{Source: "admin", Date: PeriodColumns("year", "month"), Measure: Sum("amount"), Output: "adminOverInvestment"},
	},
	Derivations: []Derivation{
		Difference("difference", "overInvestment", "confirmedRevenue"),
	},
}

// CostEfficiency reports, per month, the over-investment of the sites that
// produced revenue that month against the confirmed revenue itself.
func (s *Service) CostEfficiency(ctx context.Context, req Request) shared.Response[CostEfficiencyStats] {
	owner, err := s.ownerFilter(req)
	if err != nil {
		return fail[CostEfficiencyStats](s, "cost efficiency", err)
	}
	first, err := s.fetchAll(ctx,
		Source{
			Name: "inpays",
			Query: rowstore.Query{
				Table:   "inpays",
				Columns: []string{"sales_date", "cms", "supply_price"},
				Where:   where(s.yearRange("sales_date", req.Year), owner.Condition("construction_manager")),
			},
			Message: msgInpays,
		},
		Source{
			Name: "admin",
			Query: rowstore.Query{
				Table:   "monthly_over_investment",
				Columns: []string{"year", "month", "amount"},
				Where:   []rowstore.Condition{rowstore.Eq("year", req.Year), owner.Condition("manager_name")},
			},
			Optional: true,
		},
	)
	if err != nil {
		return fail[CostEfficiencyStats](s, "cost efficiency", err)
	}

	monthCMS := s.cmsByMonth(first["inpays"], req.Year)
	var overInvestment Months
	if codes := unionCMS(monthCMS); len(codes) > 0 {
		sites, err := s.fetchAll(ctx, Source{
			Name: "sites",
			Query: rowstore.Query{
				Table:   "site_summary",
				Columns: []string{"cms", "sales_amount", "purchase_amount"},
				Where:   []rowstore.Condition{rowstore.In("cms", codes...)},
			},
			Optional: true,
		})
		if err != nil {
			return fail[CostEfficiencyStats](s, "cost efficiency", err)
		}
		perSite := siteOverInvestment(sites["sites"])
		for i, set := range monthCMS {
			for _, cms := range sortedKeys(set) {
				overInvestment[i] += perSite[cms]
			}
		}
	}

	series := costEfficiencyAggregator.Bucket(s.bucketizer, first, req.Year)
	series["overInvestment"] = overInvestment
	series = costEfficiencyAggregator.Derive(series)

	out := CostEfficiencyStats{Monthly: make([]CostEfficiencyMonth, 0, 12)}
	for i := 0; i < 12; i++ {
		m := CostEfficiencyMonth{
			Month:               i + 1,
			OverInvestment:      series["overInvestment"][i],
			AdminOverInvestment: series["adminOverInvestment"][i],
			ConfirmedRevenue:    series["confirmedRevenue"][i],
			Difference:          series["difference"][i],
		}
		out.Monthly = append(out.Monthly, m)
		out.Summary.TotalOverInvestment += m.OverInvestment
		out.Summary.TotalAdminOverInvestment += m.AdminOverInvestment
		out.Summary.TotalConfirmedRevenue += m.ConfirmedRevenue
		out.Summary.TotalDifference += m.Difference
	}
	return shared.OK(out)
}

// cmsByMonth collects the distinct site codes with revenue in each month.
func (s *Service) cmsByMonth(rows []rowstore.Row, year int) [12]map[string]struct{} {
	var out [12]map[string]struct{}
	date := DateColumn("sales_date")
	for _, row := range rows {
		y, m, ok := date(row, s.Location())
		if !ok || y != year || m < 1 || m > 12 {
			continue
		}
		cms := toString(row["cms"])
		if cms == "" {
			continue
		}
		if out[m-1] == nil {
			out[m-1] = make(map[string]struct{})
		}
		out[m-1][cms] = struct{}{}
	}
	return out
}

func unionCMS(months [12]map[string]struct{}) []string {
	seen := make(map[string]struct{})
	for _, set := range months {
		for cms := range set {
			seen[cms] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// siteOverInvestment sums |sales - purchase| per site code over rows where
// purchases exceed sales.
func siteOverInvestment(rows []rowstore.Row) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		diff := toFloat64(row["sales_amount"]) - toFloat64(row["purchase_amount"])
		if diff < 0 {
			out[toString(row["cms"])] += math.Abs(diff)
		}
	}
	return out
}
