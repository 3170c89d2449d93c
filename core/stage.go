package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStage is returned for names or values outside the stage set.
	ErrInvalidStage = errors.New("invalid stage")
	// ErrTerminalStage is returned when advancing past StageEnd.
	ErrTerminalStage = errors.New("stage is terminal")
)

// Stage is the current-stage tag of a multi-agent run. The set is closed and
// strictly ordered: analysis → correlation → risk → recommendation → end.
// StageUnset marks a run that has not entered the pipeline.
type Stage uint8

const (
	StageUnset Stage = iota
	StageAnalysis
	StageCorrelation
	StageRisk
	StageRecommendation
	StageEnd
)

var stageNames = [...]string{
	StageUnset:          "",
	StageAnalysis:       "analysis",
	StageCorrelation:    "correlation",
	StageRisk:           "risk",
	StageRecommendation: "recommendation",
	StageEnd:            "end",
}

var stageTitles = [...]string{
	StageAnalysis:       "Analysis",
	StageCorrelation:    "Correlation",
	StageRisk:           "Risk Assessment",
	StageRecommendation: "Recommendation",
}

// stageTransitions is the only source of stage ordering.
var stageTransitions = map[Stage]Stage{
	StageUnset:          StageAnalysis,
	StageAnalysis:       StageCorrelation,
	StageCorrelation:    StageRisk,
	StageRisk:           StageRecommendation,
	StageRecommendation: StageEnd,
}

// SpecialistStages returns the four specialist stages in pipeline order.
func SpecialistStages() []Stage {
	return []Stage{StageAnalysis, StageCorrelation, StageRisk, StageRecommendation}
}

// ParseStage resolves a stage name. Unknown names are an error.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name && Stage(s) != StageUnset {
			return Stage(s), nil
		}
	}
	return StageUnset, fmt.Errorf("%w: %q", ErrInvalidStage, name)
}

// Valid reports whether s is a member of the stage set.
func (s Stage) Valid() bool { return int(s) < len(stageNames) }

// IsSpecialist reports whether s is one of the four specialist stages.
func (s Stage) IsSpecialist() bool { return s >= StageAnalysis && s <= StageRecommendation }

// String returns the stage name ("analysis", ...). StageUnset is empty.
func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
	return stageNames[s]
}

// Title returns the display name used in step records ("Risk Assessment", ...).
func (s Stage) Title() string {
	if !s.IsSpecialist() {
		return ""
	}
	return stageTitles[s]
}

// Next returns the successor of s in the transition table.
func (s Stage) Next() (Stage, error) {
	if !s.Valid() {
		return s, fmt.Errorf("%w: %d", ErrInvalidStage, uint8(s))
	}
	next, ok := stageTransitions[s]
	if !ok {
		return s, ErrTerminalStage
	}
	return next, nil
}
