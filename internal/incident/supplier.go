package incident

import (
	"strings"
	"time"
)

// SupplierMapping assigns a supplier to a province.
type SupplierMapping struct {
	Provincia string `json:"provincia" validate:"required,max=16"`
	Fornitore string `json:"fornitore" validate:"required,max=200"`
}

// ProvinceKey normalizes a province code for lookup.
func ProvinceKey(province string) string {
	return strings.ToUpper(strings.TrimSpace(province))
}

// DailySnapshot is the externally produced per-region, per-day backlog record.
type DailySnapshot struct {
	Data             string `json:"data" validate:"required,datetime=2006-01-02"`
	Regione          string `json:"regione" validate:"required"`
	Backlog          int64  `json:"backlog" validate:"gte=0"`
	Sospesi          int64  `json:"sospesi" validate:"gte=0"`
	ViolazioniAttive int64  `json:"violazioni_attive" validate:"gte=0"`
	Aperti           int64  `json:"aperti" validate:"gte=0"`
	Chiusi           int64  `json:"chiusi" validate:"gte=0"`
}

// DateLayout is the calendar-day key used by snapshots and reports.
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// ParseTimestamp reads a stored timestamp. Values that were passed through the
// importer unparsed report false.
func ParseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Day returns the UTC calendar day of a stored timestamp.
func Day(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	t, ok := ParseTimestamp(*v)
	if !ok {
		return "", false
	}
	return t.Format(DateLayout), true
}
