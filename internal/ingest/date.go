package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

// DateStatus describes how a raw cell was turned into a timestamp.
type DateStatus int

const (
	DateEmpty DateStatus = iota
	DateParsed
	DatePassthrough
)

var spreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Largest serial a spreadsheet can represent (9999-12-31).
const maxSerial = 2958465

var stringDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
}

// NormalizeDate converts a raw cell to the canonical timestamp text. Native
// times convert directly and numbers are read as spreadsheet serial days.
// Unrecognized strings are returned unchanged with DatePassthrough.
func NormalizeDate(v any) (string, DateStatus) {
	switch val := v.(type) {
	case nil:
		return "", DateEmpty
	case time.Time:
		if val.IsZero() {
			return "", DateEmpty
		}
		return incident.FormatTimestamp(val), DateParsed
	case float64:
		return serialDate(val, strconv.FormatFloat(val, 'f', -1, 64))
	case float32:
		return serialDate(float64(val), strconv.FormatFloat(float64(val), 'f', -1, 32))
	case int:
		return serialDate(float64(val), strconv.Itoa(val))
	case int64:
		return serialDate(float64(val), strconv.FormatInt(val, 10))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return "", DateEmpty
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return serialDate(f, s)
		}
		for _, layout := range stringDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return incident.FormatTimestamp(t), DateParsed
			}
		}
		return val, DatePassthrough
	default:
		return "", DateEmpty
	}
}

func serialDate(serial float64, raw string) (string, DateStatus) {
	if math.IsNaN(serial) || serial < 0 || serial > maxSerial {
		return raw, DatePassthrough
	}
	days := math.Floor(serial)
	ms := math.Round((serial - days) * 86400000)
	t := spreadsheetEpoch.AddDate(0, 0, int(days)).Add(time.Duration(ms) * time.Millisecond)
	return incident.FormatTimestamp(t), DateParsed
}

var truthyTokens = map[string]struct{}{
	"VERO": {}, "TRUE": {}, "SI": {}, "YES": {}, "1": {},
}

// ParseFlag applies the feed truth table: native true or a truthy token.
func ParseFlag(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		_, ok := truthyTokens[strings.ToUpper(strings.TrimSpace(val))]
		return ok
	case int:
		return val == 1
	case int64:
		return val == 1
	case float64:
		return val == 1
	default:
		return false
	}
}

// parseMinutes reads a duration cell as whole minutes. It accepts plain
// numbers (with a comma decimal separator) and H:MM / H:MM:SS clock text.
func parseMinutes(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return 0, false
		}
		hours, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || hours < 0 {
			return 0, false
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || minutes < 0 || minutes > 59 {
			return 0, false
		}
		return int64(hours*60 + minutes), true
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int64(math.Round(f)), true
}
