package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

type TrendPoint struct {
	Date    string  `json:"date"`
	Total   int64   `json:"total"`
	Active  int64   `json:"active"`
	Opened  int64   `json:"opened"`
	Closed  int64   `json:"closed"`
	SLA     int     `json:"sla"`
	Average float64 `json:"average"`
}

// BuildTrend folds snapshots into one point per date. Opened and closed come
// from incident dates, not from the snapshot counters.
func BuildTrend(snaps []incident.DailySnapshot, incidents []incident.Incident, vis Visibility) []TrendPoint {
	type acc struct {
		total, suspended, violations int64
	}
	byDate := make(map[string]*acc)
	for _, s := range snaps {
		if !vis.Visible(s.Regione) {
			continue
		}
		a, ok := byDate[s.Data]
		if !ok {
			a = &acc{}
			byDate[s.Data] = a
		}
		a.total += s.Backlog
		a.suspended += s.Sospesi
		a.violations += s.ViolazioniAttive
	}
	if len(byDate) == 0 {
		return []TrendPoint{}
	}

	opened := make(map[string]int64)
	closed := make(map[string]int64)
	for _, inc := range incidents {
		if !vis.Visible(regionOf(inc)) {
			continue
		}
		if day, ok := incident.Day(inc.DataApertura); ok {
			opened[day]++
		}
		if day, ok := incident.Day(inc.DataChiusura); ok {
			closed[day]++
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	points := make([]TrendPoint, 0, len(dates))
	var sum int64
	for _, d := range dates {
		a := byDate[d]
		sum += a.total
		points = append(points, TrendPoint{
			Date:   d,
			Total:  a.total,
			Active: a.total - a.suspended,
			Opened: opened[d],
			Closed: closed[d],
			SLA:    DailySLA(a.total, a.violations),
		})
	}
	average := decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(len(points)))).Round(2).InexactFloat64()
	for i := range points {
		points[i].Average = average
	}
	return points
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// RegionTrend compares a region's current-month daily flow with the whole
// window. Directions carry no good/bad meaning.
type RegionTrend struct {
	Regione         string    `json:"regione"`
	WindowDays      int       `json:"windowDays"`
	MonthDays       int       `json:"monthDays"`
	WindowOpenedAvg float64   `json:"windowOpenedAvg"`
	WindowClosedAvg float64   `json:"windowClosedAvg"`
	MonthOpenedAvg  float64   `json:"monthOpenedAvg"`
	MonthClosedAvg  float64   `json:"monthClosedAvg"`
	Opened          Direction `json:"opened"`
	Closed          Direction `json:"closed"`
}

func BuildRegionTrends(incidents []incident.Incident, window Window, now time.Time, vis Visibility) []RegionTrend {
	month := MonthWindow(now)
	windowDays := window.ElapsedDays(now)
	monthDays := month.ElapsedDays(now)

	type counts struct {
		windowOpened, windowClosed, monthOpened, monthClosed int
	}
	byRegion := make(map[string]*counts)
	for _, r := range vis.Listed() {
		byRegion[r] = &counts{}
	}
	bump := func(region string) *counts {
		c, ok := byRegion[region]
		if !ok {
			c = &counts{}
			byRegion[region] = c
		}
		return c
	}

	for _, inc := range incidents {
		region := regionOf(inc)
		if region == "" || !vis.Visible(region) {
			continue
		}
		if key, ok := listedName(vis, region); ok {
			region = key
		}
		c := bump(region)
		if t, ok := parseDate(inc.DataApertura); ok {
			if window.Contains(t) {
				c.windowOpened++
			}
			if month.Contains(t) {
				c.monthOpened++
			}
		}
		if t, ok := parseDate(inc.DataChiusura); ok {
			if window.Contains(t) {
				c.windowClosed++
			}
			if month.Contains(t) {
				c.monthClosed++
			}
		}
	}

	regions := make([]string, 0, len(byRegion))
	for r := range byRegion {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	out := make([]RegionTrend, 0, len(regions))
	for _, r := range regions {
		c := byRegion[r]
		rt := RegionTrend{
			Regione:         r,
			WindowDays:      windowDays,
			MonthDays:       monthDays,
			WindowOpenedAvg: ratio(c.windowOpened, windowDays, 2),
			WindowClosedAvg: ratio(c.windowClosed, windowDays, 2),
			MonthOpenedAvg:  ratio(c.monthOpened, monthDays, 2),
			MonthClosedAvg:  ratio(c.monthClosed, monthDays, 2),
		}
		rt.Opened = direction(rt.MonthOpenedAvg, rt.WindowOpenedAvg)
		rt.Closed = direction(rt.MonthClosedAvg, rt.WindowClosedAvg)
		out = append(out, rt)
	}
	return out
}

// listedName maps a region to its configured spelling.
func listedName(vis Visibility, region string) (string, bool) {
	if vis.all {
		return "", false
	}
	name, ok := vis.names[lowerTrim(region)]
	return name, ok
}

func direction(current, baseline float64) Direction {
	switch {
	case current > baseline:
		return DirectionUp
	case current < baseline:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

func parseDate(v *string) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}
	return incident.ParseTimestamp(*v)
}
