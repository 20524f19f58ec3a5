package report

import (
	"sort"
	"strings"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

// Cohort names, matched as case-insensitive substrings of servizio_hd.
const (
	CohortFiliali = "Filiali"
	CohortPresidi = "Presidi"
)

var cohorts = []string{CohortFiliali, CohortPresidi}

const (
	// ControlloMaxMinutes is the duration ceiling for the controllo check.
	ControlloMaxMinutes = 2640
	// GeographicMinMet is the met% a region needs to pass.
	GeographicMinMet = 80.0
)

type RegionSLA struct {
	Regione string  `json:"regione"`
	Closed  int     `json:"closed"`
	MetPct  float64 `json:"metPct"`
	Passing bool    `json:"passing"`
}

type CohortSLA struct {
	Cohort         string      `json:"cohort"`
	Closed         int         `json:"closed"`
	Met            int         `json:"met"`
	MetPct         float64     `json:"metPct"`
	WithDuration   int         `json:"withDuration"`
	WithinControl  int         `json:"withinControl"`
	ControlloPct   float64     `json:"controlloPct"`
	RegionsPassing int         `json:"regionsPassing"`
	GeographicPct  float64     `json:"geographicPct"`
	Regions        []RegionSLA `json:"regions"`
}

type SLAReport struct {
	From    string      `json:"from"`
	To      string      `json:"to"`
	Cohorts []CohortSLA `json:"cohorts"`
}

// CohortOf returns the cohort for a servizio_hd label, or "".
func CohortOf(servizio string) string {
	s := strings.ToLower(servizio)
	for _, c := range cohorts {
		if strings.Contains(s, strings.ToLower(c)) {
			return c
		}
	}
	return ""
}

// BuildSLA computes cohort compliance over the visible tickets closed inside
// window. Geographic compliance is taken over the listed regions, or over the
// regions with closed tickets when visibility is unrestricted.
func BuildSLA(incidents []incident.Incident, window Window, vis Visibility) SLAReport {
	type tally struct{ closed, met int }
	type cohortAcc struct {
		tally
		withDuration, within int
		byRegion             map[string]*tally
	}
	accs := make(map[string]*cohortAcc, len(cohorts))
	for _, c := range cohorts {
		accs[c] = &cohortAcc{byRegion: make(map[string]*tally)}
	}

	regionNames := make(map[string]string)
	for _, r := range vis.Listed() {
		regionNames[lowerTrim(r)] = r
	}

	for _, inc := range incidents {
		closedAt, ok := parseDate(inc.DataChiusura)
		if !ok || !window.Contains(closedAt) {
			continue
		}
		region := regionOf(inc)
		if !vis.Visible(region) {
			continue
		}
		cohort := CohortOf(incident.Deref(inc.ServizioHD))
		if cohort == "" {
			continue
		}
		key := lowerTrim(region)
		if _, known := regionNames[key]; !known && key != "" && vis.all {
			regionNames[key] = region
		}

		acc := accs[cohort]
		met := strings.EqualFold(strings.TrimSpace(incident.Deref(inc.InSLA)), "SI")
		acc.closed++
		if met {
			acc.met++
		}
		if inc.Durata != nil {
			acc.withDuration++
			if *inc.Durata <= ControlloMaxMinutes {
				acc.within++
			}
		}
		if key != "" {
			rt, ok := acc.byRegion[key]
			if !ok {
				rt = &tally{}
				acc.byRegion[key] = rt
			}
			rt.closed++
			if met {
				rt.met++
			}
		}
	}

	keys := make([]string, 0, len(regionNames))
	for k := range regionNames {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return regionNames[keys[i]] < regionNames[keys[j]] })

	report := SLAReport{Cohorts: make([]CohortSLA, 0, len(cohorts))}
	for _, c := range cohorts {
		acc := accs[c]
		out := CohortSLA{
			Cohort:        c,
			Closed:        acc.closed,
			Met:           acc.met,
			MetPct:        percent(acc.met, acc.closed),
			WithDuration:  acc.withDuration,
			WithinControl: acc.within,
			ControlloPct:  percent(acc.within, acc.withDuration),
			Regions:       make([]RegionSLA, 0, len(keys)),
		}
		for _, k := range keys {
			rs := RegionSLA{Regione: regionNames[k], MetPct: 100}
			if t, ok := acc.byRegion[k]; ok {
				rs.Closed = t.closed
				rs.MetPct = percent(t.met, t.closed)
			}
			rs.Passing = rs.Closed == 0 || rs.MetPct >= GeographicMinMet
			if rs.Passing {
				out.RegionsPassing++
			}
			out.Regions = append(out.Regions, rs)
		}
		out.GeographicPct = percent(out.RegionsPassing, len(keys))
		report.Cohorts = append(report.Cohorts, out)
	}
	return report
}
