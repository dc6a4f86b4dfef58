package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/registry"
)

// CostBucket is a single {total_cost, total_tokens, requests} rollup keyed by
// one dimension (kind, adapter name, or model) in a CostReport.
type CostBucket struct {
	TotalCostUSD float64
	TotalTokens  int64
	Requests     int64
}

func (b *CostBucket) add(usage models.UsageStats, costUSD float64) {
	b.TotalCostUSD += costUSD
	b.TotalTokens += usage.InputTokens + usage.OutputTokens
	b.Requests += usage.Requests
}

// CostSeriesPoint is one daily bucket in a CostReport's time series.
type CostSeriesPoint struct {
	Date         time.Time
	TotalCostUSD float64
}

// CostReport is the Cost Aggregator's bucketed rollup for a TimeRange.
type CostReport struct {
	TimeRange  models.TimeRange
	Total      CostBucket
	ByKind     map[models.AgentKind]*CostBucket
	ByName     map[string]*CostBucket
	ByModel    map[string]*CostBucket
	Series     []CostSeriesPoint
}

func newCostReport(tr models.TimeRange) *CostReport {
	return &CostReport{
		TimeRange: tr,
		ByKind:    map[models.AgentKind]*CostBucket{},
		ByName:    map[string]*CostBucket{},
		ByModel:   map[string]*CostBucket{},
	}
}

// CostAggregator is a read-only fan-out view over a shared registry,
// accumulating usage/cost across every adapter. Holds no back-reference from
// the registry — the registry does not know aggregators exist.
type CostAggregator struct {
	reg *registry.Registry
	log costWarnLogger
}

// costWarnLogger is the minimal logging surface the aggregator needs to warn
// on a skipped adapter; satisfied by pkg/logger.Logger.
type costWarnLogger interface {
	Warn(msg string, fields ...interface{})
}

func NewCostAggregator(reg *registry.Registry, log costWarnLogger) *CostAggregator {
	return &CostAggregator{reg: reg, log: log}
}

// AggregatedUsage fans Usage() out across every adapter and sums via Add.
// Adapters that error are counted as zero and logged as a warning.
func (a *CostAggregator) AggregatedUsage(ctx context.Context, since *models.TimeRange) models.UsageStats {
	var total models.UsageStats
	for _, name := range a.reg.ListNames() {
		handle := a.reg.Get(name)
		if handle == nil {
			continue
		}
		usage, err := handle.Adapter().Usage(ctx, since)
		if err != nil {
			if a.log != nil {
				a.log.Warn("adapter usage fan-out failed", "adapter", name, "error", err)
			}
			continue
		}
		total = total.Add(usage)
	}
	return total
}

// AggregatedCost fans TotalCost() out across every adapter and sums.
// Adapters that error are counted as zero and logged as a warning.
func (a *CostAggregator) AggregatedCost(ctx context.Context, since *models.TimeRange) float64 {
	var total float64
	for _, name := range a.reg.ListNames() {
		handle := a.reg.Get(name)
		if handle == nil {
			continue
		}
		cost, err := handle.Adapter().TotalCost(ctx, since)
		if err != nil {
			if a.log != nil {
				a.log.Warn("adapter cost fan-out failed", "adapter", name, "error", err)
			}
			continue
		}
		total += cost
	}
	return total
}

// Report builds a bucketed rollup for tr: overall total plus breakdowns by
// adapter kind, adapter name, and model, and a daily cost series derived
// from terminal session history within the range.
func (a *CostAggregator) Report(ctx context.Context, tr models.TimeRange) *CostReport {
	since := tr.ToDatetime()
	report := newCostReport(tr)

	dailyTotals := map[string]float64{}

	for _, name := range a.reg.ListNames() {
		handle := a.reg.Get(name)
		if handle == nil {
			continue
		}
		adapter := handle.Adapter()

		usage, err := adapter.Usage(ctx, &tr)
		if err != nil {
			if a.log != nil {
				a.log.Warn("adapter usage fan-out failed", "adapter", name, "error", err)
			}
			continue
		}
		cost, err := adapter.TotalCost(ctx, &tr)
		if err != nil {
			if a.log != nil {
				a.log.Warn("adapter cost fan-out failed", "adapter", name, "error", err)
			}
			cost = 0
		}

		report.Total.add(usage, cost)

		if _, ok := report.ByName[name]; !ok {
			report.ByName[name] = &CostBucket{}
		}
		report.ByName[name].add(usage, cost)

		if usage.ModelName != "" {
			if _, ok := report.ByModel[usage.ModelName]; !ok {
				report.ByModel[usage.ModelName] = &CostBucket{}
			}
			report.ByModel[usage.ModelName].add(usage, cost)
		}

		history, err := adapter.SessionHistory(ctx, nil, &tr)
		if err == nil {
			for _, h := range history {
				if since != nil && h.StartedAt.Before(*since) {
					continue
				}
				if _, ok := report.ByKind[h.Kind]; !ok {
					report.ByKind[h.Kind] = &CostBucket{}
				}
				var hu models.UsageStats
				hu.InputTokens = h.TotalInputTokens
				hu.OutputTokens = h.TotalOutputTokens
				var hc float64
				if h.CostUSD != nil {
					hc = *h.CostUSD
				}
				report.ByKind[h.Kind].add(hu, hc)

				if h.CostUSD != nil {
					day := h.StartedAt.UTC().Truncate(24 * time.Hour).Format("2006-01-02")
					dailyTotals[day] += *h.CostUSD
				}
			}
		}
	}

	for day, total := range dailyTotals {
		t, _ := time.Parse("2006-01-02", day)
		report.Series = append(report.Series, CostSeriesPoint{Date: t, TotalCostUSD: total})
	}
	sort.Slice(report.Series, func(i, j int) bool { return report.Series[i].Date.Before(report.Series[j].Date) })

	return report
}
