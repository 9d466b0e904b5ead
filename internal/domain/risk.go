package domain

import (
	"fmt"
	"strings"
)

// BuildQuality grades construction quality for the risk heuristic.
type BuildQuality string

const (
	QualityPoor    BuildQuality = "poor"
	QualityAverage BuildQuality = "average"
	QualityGood    BuildQuality = "good"
)

// RiskLevel is the bucketed outcome of the building risk heuristic.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// BuildingProfile describes a building for the risk heuristic.
type BuildingProfile struct {
	YearBuilt int          `json:"year_built"`
	Floors    int          `json:"floors"`
	Quality   BuildQuality `json:"quality"`
}

// BuildingRisk is the score and level for a building.
type BuildingRisk struct {
	Score float64   `json:"score"`
	Level RiskLevel `json:"level"`
}

// ParseBuildQuality accepts poor, average or good, case-insensitively.
func ParseBuildQuality(s string) (BuildQuality, error) {
	q := BuildQuality(strings.ToLower(strings.TrimSpace(s)))
	switch q {
	case QualityPoor, QualityAverage, QualityGood:
		return q, nil
	default:
		return "", fmt.Errorf("unknown build quality %q", s)
	}
}

// AssessBuildingRisk scores a building: age contributes 5 (before 1980),
// 3 (before 2000) or 1, each floor adds 0.4, and quality adds 4, 2 or 0.
// Scores of 10 and above are high, 6 and above medium. This is a rough
// indicator, not an engineering assessment.
func AssessBuildingRisk(p BuildingProfile) BuildingRisk {
	var score float64
	switch {
	case p.YearBuilt < 1980:
		score += 5
	case p.YearBuilt < 2000:
		score += 3
	default:
		score++
	}
	score += float64(p.Floors) * 0.4
	switch p.Quality {
	case QualityPoor:
		score += 4
	case QualityAverage:
		score += 2
	}

	level := RiskLow
	switch {
	case score >= 10:
		level = RiskHigh
	case score >= 6:
		level = RiskMedium
	}
	return BuildingRisk{Score: score, Level: level}
}
