package usage

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/specflow/domain/operation"
)

// HintCategory classifies an optimization hint.
type HintCategory string

const (
	CategorySchema        HintCategory = "schema"
	CategoryPolicy        HintCategory = "policy"
	CategoryPerformance   HintCategory = "performance"
	CategoryErrorHandling HintCategory = "error-handling"
)

// OptimizationHint is a reporting-only recommendation for an operation.
type OptimizationHint struct {
	Operation          operation.Coordinate `json:"operation"`
	Category           HintCategory         `json:"category"`
	Summary            string               `json:"summary"`
	Justification      string               `json:"justification"`
	RecommendedActions []string             `json:"recommendedActions"`
	LifecycleStage     *LifecycleStage      `json:"lifecycleStage,omitempty"`
	LifecycleNotes     string               `json:"lifecycleNotes,omitempty"`
}

// LifecycleStage classifies product maturity. Stages are ordered.
type LifecycleStage int

const (
	StageExploration LifecycleStage = iota
	StageProblemSolutionFit
	StageMVP
	StageProductMarketFit
	StageEarlyScaling
	StageScaling
	StageMaturity
)

var stageNames = []string{
	"exploration",
	"problem-solution-fit",
	"mvp",
	"product-market-fit",
	"early-scaling",
	"scaling",
	"maturity",
}

// String returns the stage name.
func (s LifecycleStage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseLifecycleStage parses a stage name.
func ParseLifecycleStage(name string) (LifecycleStage, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stageNames {
		if n == name {
			return LifecycleStage(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLifecycleStage, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s LifecycleStage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LifecycleStage) UnmarshalText(b []byte) error {
	stage, err := ParseLifecycleStage(string(b))
	if err != nil {
		return err
	}
	*s = stage
	return nil
}

// LifecycleBand groups stages that share remediation advice.
type LifecycleBand string

const (
	BandEarly  LifecycleBand = "early"
	BandPMF    LifecycleBand = "pmf"
	BandScale  LifecycleBand = "scale"
	BandMature LifecycleBand = "mature"
)

// Band returns the advice band for the stage.
func (s LifecycleStage) Band() LifecycleBand {
	switch {
	case s <= StageMVP:
		return BandEarly
	case s == StageProductMarketFit:
		return BandPMF
	case s <= StageScaling:
		return BandScale
	default:
		return BandMature
	}
}

// LifecycleContext supplies the maturity classification for hint augmentation.
type LifecycleContext struct {
	Stage LifecycleStage `json:"stage"`
}
