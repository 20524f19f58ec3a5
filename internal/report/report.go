package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

// Source is the read side of the record store used by the aggregator.
type Source interface {
	ListSnapshots(ctx context.Context, from, to string) ([]incident.DailySnapshot, error)
	AllIncidents(ctx context.Context) ([]incident.Incident, error)
}

// Query selects a report window and, optionally, a region subset.
type Query struct {
	Scope   Scope
	Year    int
	Regions []string
}

type Aggregator struct {
	source     Source
	visibility []string
	now        func() time.Time
}

// NewAggregator builds an aggregator. visibility lists the regions reports may
// show; empty means every region.
func NewAggregator(source Source, visibility []string) *Aggregator {
	return &Aggregator{source: source, visibility: visibility, now: time.Now}
}

func (a *Aggregator) prepare(q Query) (Window, Visibility, time.Time, error) {
	now := a.now().UTC()
	if q.Year == 0 {
		q.Year = now.Year()
	}
	if q.Scope == "" {
		q.Scope = ScopeMonthly
	}
	window, err := WindowFor(q.Scope, q.Year, now)
	if err != nil {
		return Window{}, Visibility{}, now, err
	}
	return window, NewVisibility(a.visibility, q.Regions), now, nil
}

// Trend returns one point per snapshot date in the window.
func (a *Aggregator) Trend(ctx context.Context, q Query) ([]TrendPoint, error) {
	window, vis, _, err := a.prepare(q)
	if err != nil {
		return nil, err
	}
	snaps, err := a.source.ListSnapshots(ctx, window.FromDay(), window.ToDay())
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	incidents, err := a.source.AllIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load incidents: %w", err)
	}
	return BuildTrend(snaps, incidents, vis), nil
}

// Regions returns per-region flow averages and trend indicators.
func (a *Aggregator) Regions(ctx context.Context, q Query) ([]RegionTrend, error) {
	window, vis, now, err := a.prepare(q)
	if err != nil {
		return nil, err
	}
	incidents, err := a.source.AllIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load incidents: %w", err)
	}
	return BuildRegionTrends(incidents, window, now, vis), nil
}

// SLA returns cohort compliance over tickets closed in the window.
func (a *Aggregator) SLA(ctx context.Context, q Query) (SLAReport, error) {
	window, vis, _, err := a.prepare(q)
	if err != nil {
		return SLAReport{}, err
	}
	incidents, err := a.source.AllIncidents(ctx)
	if err != nil {
		return SLAReport{}, fmt.Errorf("load incidents: %w", err)
	}
	report := BuildSLA(incidents, window, vis)
	report.From, report.To = window.FromDay(), window.ToDay()
	return report, nil
}

// Visibility decides which regions a report includes.
type Visibility struct {
	all   bool
	names map[string]string
}

// NewVisibility intersects the configured list with the requested one. An
// empty list places no restriction.
func NewVisibility(configured, requested []string) Visibility {
	conf, req := regionSet(configured), regionSet(requested)
	switch {
	case len(conf) == 0 && len(req) == 0:
		return Visibility{all: true}
	case len(conf) == 0:
		return Visibility{names: req}
	case len(req) == 0:
		return Visibility{names: conf}
	}
	both := make(map[string]string)
	for key, name := range req {
		if _, ok := conf[key]; ok {
			both[key] = name
		}
	}
	return Visibility{names: both}
}

func regionSet(regions []string) map[string]string {
	out := make(map[string]string, len(regions))
	for _, r := range regions {
		name := strings.TrimSpace(r)
		if name == "" {
			continue
		}
		out[lowerTrim(name)] = name
	}
	return out
}

func (v Visibility) Visible(region string) bool {
	if v.all {
		return true
	}
	_, ok := v.names[lowerTrim(region)]
	return ok
}

// Listed returns the explicit region list, sorted, or nil when unrestricted.
func (v Visibility) Listed() []string {
	if v.all {
		return nil
	}
	out := make([]string, 0, len(v.names))
	for _, name := range v.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DailySLA is the share of the backlog without an active violation, as a
// whole percentage. An empty backlog is fully compliant.
func DailySLA(total, violations int64) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 - float64(violations)/float64(total)*100))
}

// percent returns num/den as a percentage with one decimal, or 100 for an
// empty denominator.
func percent(num, den int) float64 {
	if den == 0 {
		return 100
	}
	return decimal.NewFromInt(int64(num)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(den))).
		Round(1).
		InexactFloat64()
}

func ratio(num, den int, places int32) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(num)).
		Div(decimal.NewFromInt(int64(den))).
		Round(places).
		InexactFloat64()
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func regionOf(inc incident.Incident) string {
	return strings.TrimSpace(incident.Deref(inc.Regione))
}
