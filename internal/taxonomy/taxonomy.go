package taxonomy

import (
	"math"
	"regexp"
	"strings"
)

type Category string

const (
	CategoryGovernance          Category = "GOVERNANCE"
	CategoryEmissionsInventory  Category = "EMISSIONS_INVENTORY"
	CategoryTargets             Category = "TARGETS"
	CategoryEnergy              Category = "ENERGY"
	CategoryTransportation      Category = "TRANSPORTATION"
	CategoryBuildings           Category = "BUILDINGS"
	CategoryWaste               Category = "WASTE"
	CategoryAdaptation          Category = "ADAPTATION"
	CategoryNaturalAssets       Category = "NATURAL_ASSETS"
	CategoryCommunityEngagement Category = "COMMUNITY_ENGAGEMENT"
	CategoryOther               Category = "OTHER"
)

// indicatorCategories maps the benchmark's numbered indicators to categories.
var indicatorCategories = map[int]Category{
	1:  CategoryGovernance,
	2:  CategoryEmissionsInventory,
	3:  CategoryTargets,
	4:  CategoryEnergy,
	5:  CategoryTransportation,
	6:  CategoryBuildings,
	7:  CategoryWaste,
	8:  CategoryAdaptation,
	9:  CategoryNaturalAssets,
	10: CategoryCommunityEngagement,
}

// KnownIndicatorCount is the number of indicators in the benchmark.
const KnownIndicatorCount = 10

// CategoryForIndicator returns the category for a numbered indicator, or
// CategoryOther when the id is not in the table.
func CategoryForIndicator(id int) Category {
	if c, ok := indicatorCategories[id]; ok {
		return c
	}
	return CategoryOther
}

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// NormalizePriority classifies a free-text priority label. Matching is a
// case-insensitive substring test: "high" or "immediate" is HIGH, "low" is
// LOW, anything else is MEDIUM.
func NormalizePriority(label string) Priority {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "high"), strings.Contains(l, "immediate"):
		return PriorityHigh
	case strings.Contains(l, "low"):
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// DefaultProvinceCode is used when a community name carries no ", XX" suffix.
const DefaultProvinceCode = "AB"

var provinceSuffix = regexp.MustCompile(`,\s*([A-Za-z]{2})\s*$`)

// InferProvince reads a two-letter region code from a trailing ", XX" in the
// community name, falling back to DefaultProvinceCode.
func InferProvince(communityName string) string {
	m := provinceSuffix.FindStringSubmatch(communityName)
	if m == nil {
		return DefaultProvinceCode
	}
	return strings.ToUpper(m[1])
}

// Percentage recomputes earned/possible*100 rounded to two decimals.
// A non-positive denominator yields 0.
func Percentage(earned, possible float64) float64 {
	if possible <= 0 {
		return 0
	}
	return math.Round(earned/possible*100*100) / 100
}
