package ingest

import (
	"path/filepath"
	"strings"
)

// Strategy names one ingestion path.
type Strategy string

const (
	StrategyPlanning          Strategy = "planning"
	StrategySLAViolation      Strategy = "sla_violation"
	StrategyMainIncident      Strategy = "main_incident"
	StrategyPostSale          Strategy = "post_sale"
	StrategyFieldService      Strategy = "field_service"
	StrategySupplierTerritory Strategy = "supplier_territory"
	StrategyUnknown           Strategy = "unknown"
)

// Rule pairs a filename predicate with the strategy it selects. The predicate
// receives the upper-cased base name.
type Rule struct {
	Strategy Strategy
	Match    func(name string) bool
}

func contains(token string) func(string) bool {
	return func(name string) bool { return strings.Contains(name, token) }
}

// Rules is evaluated in order; the first match wins. "MTZ OUT" must precede
// the plain "MTZ" rule.
var Rules = []Rule{
	{Strategy: StrategyPlanning, Match: contains("PIANIFICAZIONI")},
	{Strategy: StrategySLAViolation, Match: contains("MTZ OUT")},
	{Strategy: StrategyMainIncident, Match: func(name string) bool {
		return strings.Contains(name, "MTZ") && !strings.Contains(name, "OUT")
	}},
	{Strategy: StrategyPostSale, Match: contains("POST VENDITA")},
	{Strategy: StrategyFieldService, Match: contains("LDS")},
	{Strategy: StrategySupplierTerritory, Match: contains("DISTRIBUZIONE TERRITORIALE")},
}

// Classify picks the strategy for a file name.
func Classify(filename string) Strategy {
	name := strings.ToUpper(filepath.Base(strings.TrimSpace(filename)))
	for _, rule := range Rules {
		if rule.Match(name) {
			return rule.Strategy
		}
	}
	return StrategyUnknown
}

// EmitsIncidents reports whether the strategy upserts incident rows.
func (s Strategy) EmitsIncidents() bool {
	switch s {
	case StrategySLAViolation, StrategyMainIncident, StrategyPostSale, StrategyFieldService:
		return true
	}
	return false
}
