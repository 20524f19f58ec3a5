package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2025, time.May, 20, 12, 0, 0, 0, time.UTC)

func TestDailySLA(t *testing.T) {
	assert.Equal(t, 100, DailySLA(0, 0))
	assert.Equal(t, 100, DailySLA(0, 5))
	assert.Equal(t, 80, DailySLA(10, 2))
	assert.Equal(t, 67, DailySLA(3, 1))
}

func TestWindowFor(t *testing.T) {
	cases := []struct {
		scope      Scope
		start, end string
	}{
		{ScopeMonthly, "2024-05-01", "2024-06-01"},
		{ScopeQuarterly, "2024-04-01", "2024-07-01"},
		{ScopeSemiannual, "2024-01-01", "2024-07-01"},
		{ScopeAnnual, "2024-01-01", "2025-01-01"},
	}
	for _, tc := range cases {
		w, err := WindowFor(tc.scope, 2024, now)
		require.NoError(t, err)
		assert.Equal(t, tc.start, w.FromDay(), tc.scope)
		assert.Equal(t, tc.end, w.ToDay(), tc.scope)
	}

	_, err := WindowFor("weekly", 2024, now)
	assert.Error(t, err)
	_, err = ParseScope("weekly")
	assert.Error(t, err)
	scope, err := ParseScope(" Quarterly ")
	require.NoError(t, err)
	assert.Equal(t, ScopeQuarterly, scope)
}

func TestElapsedDays(t *testing.T) {
	w, err := WindowFor(ScopeMonthly, 2025, now)
	require.NoError(t, err)
	assert.Equal(t, 20, w.ElapsedDays(now))
	assert.Equal(t, 31, w.ElapsedDays(now.AddDate(1, 0, 0)))
	assert.Equal(t, 0, w.ElapsedDays(now.AddDate(-1, 0, 0)))
}

func TestVisibility(t *testing.T) {
	all := NewVisibility(nil, nil)
	assert.True(t, all.Visible("Anything"))
	assert.Nil(t, all.Listed())

	conf := NewVisibility([]string{"Lombardia", "Sicilia"}, nil)
	assert.True(t, conf.Visible(" lombardia"))
	assert.False(t, conf.Visible("Lazio"))

	both := NewVisibility([]string{"Lombardia", "Sicilia"}, []string{"Sicilia", "Lazio"})
	assert.Equal(t, []string{"Sicilia"}, both.Listed())

	none := NewVisibility([]string{"Lombardia"}, []string{"Lazio"})
	assert.False(t, none.Visible("Lombardia"))
	assert.False(t, none.Visible("Lazio"))
}

func TestBuildTrend(t *testing.T) {
	snaps := []incident.DailySnapshot{
		{Data: "2025-05-02", Regione: "Lombardia", Backlog: 6, Sospesi: 1, ViolazioniAttive: 1, Aperti: 99},
		{Data: "2025-05-02", Regione: "Sicilia", Backlog: 4, Sospesi: 1, ViolazioniAttive: 1},
		{Data: "2025-05-01", Regione: "Lombardia", Backlog: 0},
		{Data: "2025-05-01", Regione: "Lazio", Backlog: 50, ViolazioniAttive: 50},
	}
	incidents := []incident.Incident{
		{Numero: "A", Regione: ptr("Lombardia"), DataApertura: ptr("2025-05-02T09:00:00.000Z")},
		{Numero: "B", Regione: ptr("Sicilia"), DataApertura: ptr("2025-05-02T23:59:00.000Z"), DataChiusura: ptr("2025-05-02T23:59:30.000Z")},
		{Numero: "C", Regione: ptr("Lazio"), DataApertura: ptr("2025-05-02T10:00:00.000Z")},
		{Numero: "D", Regione: ptr("Lombardia"), DataApertura: ptr("domani")},
	}

	points := BuildTrend(snaps, incidents, NewVisibility([]string{"Lombardia", "Sicilia"}, nil))
	require.Len(t, points, 2)

	assert.Equal(t, TrendPoint{Date: "2025-05-01", Total: 0, Active: 0, SLA: 100, Average: 5}, points[0])
	assert.Equal(t, TrendPoint{Date: "2025-05-02", Total: 10, Active: 8, Opened: 2, Closed: 1, SLA: 80, Average: 5}, points[1])

	assert.Empty(t, BuildTrend(nil, incidents, NewVisibility(nil, nil)))
}

func TestBuildRegionTrends(t *testing.T) {
	window, err := WindowFor(ScopeQuarterly, 2025, now)
	require.NoError(t, err)

	incidents := []incident.Incident{
		// April: 2 opens, 1 close.
		{Numero: "1", Regione: ptr("Lombardia"), DataApertura: ptr("2025-04-03T08:00:00.000Z"), DataChiusura: ptr("2025-04-04T08:00:00.000Z")},
		{Numero: "2", Regione: ptr("Lombardia"), DataApertura: ptr("2025-04-10T08:00:00.000Z")},
		// May: 4 opens.
		{Numero: "3", Regione: ptr("Lombardia"), DataApertura: ptr("2025-05-02T08:00:00.000Z")},
		{Numero: "4", Regione: ptr("Lombardia"), DataApertura: ptr("2025-05-05T08:00:00.000Z")},
		{Numero: "5", Regione: ptr("Lombardia"), DataApertura: ptr("2025-05-06T08:00:00.000Z")},
		{Numero: "6", Regione: ptr("Lombardia"), DataApertura: ptr("2025-05-07T08:00:00.000Z")},
		{Numero: "7", Regione: ptr("Sicilia"), DataApertura: ptr("2024-12-01T08:00:00.000Z")},
	}

	trends := BuildRegionTrends(incidents, window, now, NewVisibility(nil, nil))
	require.Len(t, trends, 2)

	lombardia := trends[0]
	assert.Equal(t, "Lombardia", lombardia.Regione)
	assert.Equal(t, 50, lombardia.WindowDays)
	assert.Equal(t, 20, lombardia.MonthDays)
	assert.Equal(t, 0.12, lombardia.WindowOpenedAvg)
	assert.Equal(t, 0.2, lombardia.MonthOpenedAvg)
	assert.Equal(t, DirectionUp, lombardia.Opened)
	assert.Equal(t, 0.02, lombardia.WindowClosedAvg)
	assert.Equal(t, DirectionDown, lombardia.Closed)

	sicilia := trends[1]
	assert.Equal(t, DirectionFlat, sicilia.Opened)
	assert.Equal(t, DirectionFlat, sicilia.Closed)

	listed := BuildRegionTrends(nil, window, now, NewVisibility([]string{"Lazio"}, nil))
	require.Len(t, listed, 1)
	assert.Equal(t, "Lazio", listed[0].Regione)
}

func TestBuildSLA(t *testing.T) {
	window, err := WindowFor(ScopeMonthly, 2025, now)
	require.NoError(t, err)
	closed := ptr("2025-05-10T08:00:00.000Z")

	incidents := []incident.Incident{
		{Numero: "1", Regione: ptr("Lombardia"), ServizioHD: ptr("FILIALI Nord"), InSLA: ptr("SI"), Durata: ptr(int64(100)), DataChiusura: closed},
		{Numero: "2", Regione: ptr("Lombardia"), ServizioHD: ptr("Filiali"), InSLA: ptr("si"), Durata: ptr(int64(2640)), DataChiusura: closed},
		{Numero: "3", Regione: ptr("Sicilia"), ServizioHD: ptr("filiali sud"), InSLA: ptr("NO"), Durata: ptr(int64(3000)), DataChiusura: closed},
		{Numero: "4", Regione: ptr("Sicilia"), ServizioHD: ptr("Presidi"), InSLA: ptr("SI"), DataChiusura: closed},
		{Numero: "5", Regione: ptr("Lombardia"), ServizioHD: ptr("Filiali"), InSLA: ptr("NO"), DataChiusura: ptr("2025-04-30T23:00:00.000Z")},
		{Numero: "6", Regione: ptr("Lombardia"), ServizioHD: ptr("Altro"), InSLA: ptr("NO"), DataChiusura: closed},
		{Numero: "7", Regione: ptr("Lombardia"), ServizioHD: ptr("Filiali"), InSLA: ptr("NO")},
	}

	report := BuildSLA(incidents, window, NewVisibility(nil, nil))
	require.Len(t, report.Cohorts, 2)

	filiali := report.Cohorts[0]
	assert.Equal(t, CohortFiliali, filiali.Cohort)
	assert.Equal(t, 3, filiali.Closed)
	assert.Equal(t, 66.7, filiali.MetPct)
	assert.Equal(t, 66.7, filiali.ControlloPct)
	assert.Equal(t, 1, filiali.RegionsPassing)
	assert.Equal(t, 50.0, filiali.GeographicPct)

	presidi := report.Cohorts[1]
	assert.Equal(t, 100.0, presidi.MetPct)
	assert.Equal(t, 100.0, presidi.ControlloPct, "no durations means vacuously compliant")
	assert.Equal(t, 100.0, presidi.GeographicPct, "Lombardia has no Presidi tickets and passes")
	require.Len(t, presidi.Regions, 2)
	assert.Equal(t, 0, presidi.Regions[0].Closed)
	assert.True(t, presidi.Regions[0].Passing)

	empty := BuildSLA(nil, window, NewVisibility(nil, nil))
	assert.Equal(t, 100.0, empty.Cohorts[0].MetPct)
	assert.Equal(t, 100.0, empty.Cohorts[0].GeographicPct)
}

type fakeSource struct {
	snaps     []incident.DailySnapshot
	incidents []incident.Incident
	from, to  string
}

func (f *fakeSource) ListSnapshots(_ context.Context, from, to string) ([]incident.DailySnapshot, error) {
	f.from, f.to = from, to
	return f.snaps, nil
}

func (f *fakeSource) AllIncidents(context.Context) ([]incident.Incident, error) {
	return f.incidents, nil
}

func TestAggregatorUsesAnchoredWindow(t *testing.T) {
	src := &fakeSource{snaps: []incident.DailySnapshot{{Data: "2024-05-03", Regione: "Lombardia", Backlog: 4}}}
	agg := NewAggregator(src, []string{"Lombardia"})
	agg.now = func() time.Time { return now }

	points, err := agg.Trend(context.Background(), Query{Scope: ScopeQuarterly, Year: 2024})
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", src.from)
	assert.Equal(t, "2024-07-01", src.to)
	require.Len(t, points, 1)
	assert.Equal(t, int64(4), points[0].Total)

	sla, err := agg.SLA(context.Background(), Query{Scope: ScopeAnnual, Year: 2024})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", sla.From)
	assert.Equal(t, "2025-01-01", sla.To)

	_, err = agg.Regions(context.Background(), Query{Scope: "weekly"})
	assert.Error(t, err)
}
