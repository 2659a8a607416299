// Package extract pulls numeric market benchmarks out of raw search
// results. Extraction is a pure function of its inputs: the same results
// always yield the same benchmarks, so cached replays are reproducible.
// Implements: prd004-extraction (R1-R4);
//
//	docs/ARCHITECTURE § Extraction.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

// Pattern families, adapted per category. Ranges average their endpoints;
// growth rates are valid only in (0, 100) percent and are stored as
// decimals; market sizes require an explicit magnitude word.
var (
	currencyRangeRe = regexp.MustCompile(
		`(?i)(USD|CAD|EUR|GBP|\$|€|£)\s*(\d[\d,]*(?:\.\d+)?)\s*(K|M|B|T|thousand|million|billion|trillion)?\b\s*(?:-|–|to)\s*(?:USD|CAD|EUR|GBP|\$|€|£)?\s*(\d[\d,]*(?:\.\d+)?)\s*(K|M|B|T|thousand|million|billion|trillion)?\b`)

	currencyAmountRe = regexp.MustCompile(
		`(?i)(?:average|avg|typical|median|costs?|priced?|prices|pricing|fees?|charges?|rates?)\s+(?:of\s+|is\s+|are\s+|at\s+|around\s+|about\s+)*(USD|CAD|EUR|GBP|\$|€|£)\s*(\d[\d,]*(?:\.\d+)?)\s*(K|M|B|T|thousand|million|billion|trillion)?\b`)

	growthRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s*(?:annual\s+)?(?:growth|increase|cagr)`),
		regexp.MustCompile(`(?i)(?:grew|grows|growing|increas(?:e|es|ed|ing)|expand(?:s|ed|ing)?)\s+(?:by\s+)?(\d+(?:\.\d+)?)\s*%`),
		regexp.MustCompile(`(?i)(?:growth|cagr)\s+(?:rate\s+)?of\s+(\d+(?:\.\d+)?)\s*%`),
	}

	marketSizeRe = regexp.MustCompile(
		`(?i)(?:market\s+size|market\s+worth|market\s+value|valued\s+at|worth)\s*(?:of|is|was|at|:)?\s*(?:an?\s+estimated\s+)?(USD|CAD|EUR|GBP|\$|€|£)\s*(\d[\d,]*(?:\.\d+)?)\s*(K|M|B|T|thousand|million|billion|trillion)\b`)
)

var magnitudes = map[string]float64{
	"K": 1e3, "M": 1e6, "B": 1e9, "T": 1e12,
	"THOUSAND": 1e3, "MILLION": 1e6, "BILLION": 1e9, "TRILLION": 1e12,
}

// categoryKeywords earn the specificity bonus when the surrounding text
// names the category's subject.
var categoryKeywords = map[string]*regexp.Regexp{
	"pricing":           regexp.MustCompile(`(?i)\b(price|prices|pricing|cost|costs|fee|fees|charge|charges)\b`),
	"growth_rate":       regexp.MustCompile(`(?i)\b(growth|cagr|increase|trend|trends)\b`),
	"market_size":       regexp.MustCompile(`(?i)\b(market|industry|sector)\b`),
	"operational_costs": regexp.MustCompile(`(?i)\b(cost|costs|expense|expenses|overhead|operating|operational)\b`),
}

// Confidence weights. A candidate that parses, names its unit, carries a
// magnitude word, sits in category-relevant text, and comes from the
// newest result in the batch scores exactly 1.0.
const (
	weightParsed    = 0.35
	weightUnit      = 0.20
	weightMagnitude = 0.10
	weightKeyword   = 0.15
	weightRecency   = 0.20

	badURLPenalty = 0.8

	recencyWindow = 365 * 24 * time.Hour
)

type candidate struct {
	field        string
	value        float64
	unit         string
	hasUnit      bool
	hasMagnitude bool
}

// Extract scans results for the category's benchmark patterns. It returns
// the extracted benchmarks plus a description of every record it skipped;
// skips are non-fatal and the caller decides whether to log them (R3.1).
// Recency is scored against the newest FetchedAt in the batch, not the
// wall clock, so re-running on cached results reproduces identical
// confidences (R2.3).
func Extract(category string, results []types.RawSearchResult) ([]types.ExtractedBenchmark, []string) {
	newest := newestFetch(results)

	var benchmarks []types.ExtractedBenchmark
	var skipped []string

	for i, r := range results {
		text := strings.TrimSpace(strings.TrimSpace(r.Title) + " " + strings.TrimSpace(r.Snippet))
		if text == "" {
			skipped = append(skipped, fmt.Sprintf("result %d (%s): empty title and snippet", i+1, r.URL))
			continue
		}

		for _, c := range extractCandidates(category, text) {
			benchmarks = append(benchmarks, types.ExtractedBenchmark{
				FieldName:   c.field,
				Category:    category,
				Value:       c.value,
				Unit:        c.unit,
				Confidence:  confidence(c, r, newest, category, text),
				SourceURL:   r.URL,
				ExtractedAt: r.FetchedAt,
			})
		}
	}

	return benchmarks, skipped
}

// extractCandidates applies the category's pattern families to one text.
func extractCandidates(category, text string) []candidate {
	var out []candidate

	if useCurrency(category) {
		rangeField, amountField := currencyFields(category)

		for _, m := range currencyRangeRe.FindAllStringSubmatch(text, -1) {
			lo, okLo := parseNumber(m[2], m[3])
			hi, okHi := parseNumber(m[4], m[5])
			if !okLo || !okHi || hi < lo {
				continue
			}
			out = append(out, candidate{
				field:        rangeField,
				value:        (lo + hi) / 2,
				unit:         normalizeCurrency(m[1]),
				hasUnit:      true,
				hasMagnitude: m[3] != "" || m[5] != "",
			})
		}

		for _, m := range currencyAmountRe.FindAllStringSubmatch(text, -1) {
			v, ok := parseNumber(m[2], m[3])
			if !ok {
				continue
			}
			out = append(out, candidate{
				field:        amountField,
				value:        v,
				unit:         normalizeCurrency(m[1]),
				hasUnit:      true,
				hasMagnitude: m[3] != "",
			})
		}
	}

	if category == "growth_rate" || !knownCategory(category) {
		for _, re := range growthRes {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				rate, err := strconv.ParseFloat(m[1], 64)
				if err != nil || rate <= 0 || rate >= 100 {
					// Out-of-range rates are rejected here, never
					// propagated with a fudged confidence.
					continue
				}
				out = append(out, candidate{
					field:   "growth_rate",
					value:   rate / 100,
					unit:    "percent",
					hasUnit: true,
				})
			}
		}
	}

	if category == "market_size" || !knownCategory(category) {
		for _, m := range marketSizeRe.FindAllStringSubmatch(text, -1) {
			v, ok := parseNumber(m[2], m[3])
			if !ok {
				continue
			}
			out = append(out, candidate{
				field:        "market_size",
				value:        v,
				unit:         normalizeCurrency(m[1]),
				hasUnit:      true,
				hasMagnitude: true,
			})
		}
	}

	return out
}

// confidence scores a candidate in [0,1]: parse success, unit presence,
// magnitude presence, category keyword, and recency relative to the
// newest result, with a flat penalty for an unusable source URL.
func confidence(c candidate, r types.RawSearchResult, newest time.Time, category, text string) float64 {
	score := weightParsed
	if c.hasUnit {
		score += weightUnit
	}
	if c.hasMagnitude {
		score += weightMagnitude
	}
	if matchesCategoryKeyword(category, text) {
		score += weightKeyword
	}
	score += weightRecency * freshness(r.FetchedAt, newest)

	if !validURL(r.URL) {
		score *= badURLPenalty
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// freshness is 1.0 for the newest result in the batch and decays linearly
// to 0 over a year of relative age.
func freshness(fetchedAt, newest time.Time) float64 {
	if fetchedAt.IsZero() || newest.IsZero() || !fetchedAt.Before(newest) {
		if fetchedAt.IsZero() {
			return 0
		}
		return 1
	}
	age := newest.Sub(fetchedAt)
	if age >= recencyWindow {
		return 0
	}
	return 1 - float64(age)/float64(recencyWindow)
}

func newestFetch(results []types.RawSearchResult) time.Time {
	var newest time.Time
	for _, r := range results {
		if r.FetchedAt.After(newest) {
			newest = r.FetchedAt
		}
	}
	return newest
}

func matchesCategoryKeyword(category, text string) bool {
	if re, ok := categoryKeywords[category]; ok {
		return re.MatchString(text)
	}
	// Unknown categories get the bonus when the text names the category
	// itself ("customer_acquisition" -> "customer acquisition").
	return strings.Contains(strings.ToLower(text), strings.ReplaceAll(strings.ToLower(category), "_", " "))
}

func knownCategory(category string) bool {
	switch category {
	case "pricing", "growth_rate", "market_size", "operational_costs":
		return true
	}
	return false
}

func useCurrency(category string) bool {
	return category == "pricing" || category == "operational_costs" || !knownCategory(category)
}

func currencyFields(category string) (rangeField, amountField string) {
	switch category {
	case "pricing":
		return "price_range", "average_price"
	case "operational_costs":
		return "cost_range", "average_cost"
	default:
		return "value_range", "average_value"
	}
}

// parseNumber strips thousands separators and applies a magnitude word
// (K/M/B/T or spelled out), e.g. ("2,500", "K") -> 2.5e6.
func parseNumber(raw, magnitude string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if magnitude != "" {
		mult, ok := magnitudes[strings.ToUpper(magnitude)]
		if !ok {
			return 0, false
		}
		v *= mult
	}
	return v, true
}

func normalizeCurrency(sym string) string {
	switch strings.ToUpper(sym) {
	case "$", "USD":
		return "USD"
	case "€", "EUR":
		return "EUR"
	case "£", "GBP":
		return "GBP"
	case "CAD":
		return "CAD"
	default:
		return strings.ToUpper(sym)
	}
}

func validURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
