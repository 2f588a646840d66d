// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Provides an ASCII overview of pipeline pools and billing totals
package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/agencyops/billing"
	"github.com/harperreed/agencyops/models"
)

// staleAfter is how long an Active Deal can go untouched before it needs attention.
const staleAfter = 14 * 24 * time.Hour

type OpportunityLister interface {
	List(ctx context.Context, pool models.Pool) ([]models.Opportunity, error)
}

type CustomerLister interface {
	List(ctx context.Context) ([]models.Customer, error)
}

type PackageLister interface {
	ListPackages(ctx context.Context, clientID string) ([]models.Package, error)
}

type AlertLister interface {
	List(ctx context.Context, f billing.Filter) ([]models.BillingAlert, error)
}

// Sources are the services the dashboard and graph read from.
type Sources struct {
	Opportunities OpportunityLister
	Customers     CustomerLister
	Packages      PackageLister
	Alerts        AlertLister
}

type DashboardStats struct {
	// Pipeline overview, keyed by live pool
	Pools     map[models.Pool]PoolStats
	Customers int

	// Delivery
	Packages    int
	UnitsDone   int
	UnitsTarget int

	// Billing, in cents
	Outstanding       int64
	OutstandingAlerts int
	Received          int64

	// Needs attention
	StaleDeals []StaleDeal
}

type PoolStats struct {
	Pool  models.Pool
	Count int
	Value int64 // in cents
}

type StaleDeal struct {
	Name      string
	DaysSince int
}

func GenerateDashboardStats(ctx context.Context, src Sources, now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{Pools: make(map[models.Pool]PoolStats)}

	opps, err := src.Opportunities.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunities: %w", err)
	}
	for _, opp := range opps {
		ps := stats.Pools[opp.Pool]
		ps.Pool = opp.Pool
		ps.Count++
		if opp.Value != nil {
			ps.Value += *opp.Value
		}
		stats.Pools[opp.Pool] = ps

		if opp.Pool == models.PoolActiveDeal && now.Sub(opp.UpdatedAt) > staleAfter {
			stats.StaleDeals = append(stats.StaleDeals, StaleDeal{
				Name:      opp.DisplayName,
				DaysSince: int(now.Sub(opp.UpdatedAt).Hours() / 24),
			})
		}
	}

	customers, err := src.Customers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch customers: %w", err)
	}
	stats.Customers = len(customers)

	packages, err := src.Packages.ListPackages(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch packages: %w", err)
	}
	stats.Packages = len(packages)
	for _, pkg := range packages {
		stats.UnitsTarget += pkg.TotalTarget()
		for _, li := range pkg.LineItems {
			stats.UnitsDone += li.CompletedCount
		}
	}

	alerts, err := src.Alerts.List(ctx, billing.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alerts: %w", err)
	}
	for _, a := range alerts {
		if a.Status == models.AlertReceived {
			stats.Received += a.Amount
			continue
		}
		stats.Outstanding += a.Amount
		stats.OutstandingAlerts++
	}

	return stats, nil
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  AGENCYOPS DASHBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("PIPELINE OVERVIEW\n")
	renderPools(&out, stats.Pools)
	out.WriteString(fmt.Sprintf("  %-13s %d customers\n\n", models.PoolConverted.Label(), stats.Customers))

	out.WriteString("DELIVERY\n")
	out.WriteString(fmt.Sprintf("  📦 %d packages  ✅ %d/%d units delivered\n\n",
		stats.Packages, stats.UnitsDone, stats.UnitsTarget))

	out.WriteString("BILLING\n")
	out.WriteString(fmt.Sprintf("  💰 $%.2f outstanding across %d alert(s)\n", float64(stats.Outstanding)/100, stats.OutstandingAlerts))
	out.WriteString(fmt.Sprintf("  🏦 $%.2f received\n", float64(stats.Received)/100))

	if len(stats.StaleDeals) > 0 {
		out.WriteString("\nNEEDS ATTENTION\n")
		out.WriteString(fmt.Sprintf("  ⚠️  %d active deals - no activity in 14+ days\n", len(stats.StaleDeals)))
		for _, d := range stats.StaleDeals {
			out.WriteString(fmt.Sprintf("     %s (%dd)\n", d.Name, d.DaysSince))
		}
	}

	return out.String()
}

func renderPools(out *strings.Builder, pools map[models.Pool]PoolStats) {
	maxCount := 0
	for _, ps := range pools {
		if ps.Count > maxCount {
			maxCount = ps.Count
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, pool := range models.LivePools {
		ps := pools[pool]

		// 0-10 blocks
		barLength := (ps.Count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)

		amountK := ps.Value / 100000

		out.WriteString(fmt.Sprintf("  %-13s %s  %2d ($%dK)\n",
			pool.Label(), bar, ps.Count, amountK))
	}
}
