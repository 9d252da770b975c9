package crm

import "strings"

// Stage is a sales pipeline stage. Known stages are normalized to their
// canonical spelling; anything else is kept verbatim.
type Stage string

const (
	StageProspecting   Stage = "Prospecting"
	StageQualification Stage = "Qualification"
	StageNeedsAnalysis Stage = "Needs Analysis"
	StageProposal      Stage = "Proposal"
	StageNegotiation   Stage = "Negotiation"
	StageClosedWon     Stage = "Closed Won"
	StageClosedLost    Stage = "Closed Lost"
)

var stageAliases = map[string]Stage{
	"prospecting":            StageProspecting,
	"qualification":          StageQualification,
	"qualifizierung":         StageQualification,
	"needs analysis":         StageNeedsAnalysis,
	"bedarfsanalyse":         StageNeedsAnalysis,
	"proposal":               StageProposal,
	"proposal/price quote":   StageProposal,
	"angebot":                StageProposal,
	"negotiation":            StageNegotiation,
	"negotiation/review":     StageNegotiation,
	"verhandlung":            StageNegotiation,
	"closed won":             StageClosedWon,
	"won":                    StageClosedWon,
	"gewonnen":               StageClosedWon,
	"abgeschlossen gewonnen": StageClosedWon,
	"closed lost":            StageClosedLost,
	"lost":                   StageClosedLost,
	"verloren":               StageClosedLost,
	"abgeschlossen verloren": StageClosedLost,
}

// ParseStage maps a raw export stage onto the stage vocabulary
func ParseStage(raw string) Stage {
	trimmed := strings.Join(strings.Fields(raw), " ")
	if s, ok := stageAliases[strings.ToLower(trimmed)]; ok {
		return s
	}
	return Stage(trimmed)
}

// IsKnown reports whether the stage belongs to the closed vocabulary
func (s Stage) IsKnown() bool {
	switch s {
	case StageProspecting, StageQualification, StageNeedsAnalysis, StageProposal,
		StageNegotiation, StageClosedWon, StageClosedLost:
		return true
	}
	return false
}

// IsTerminal returns true for won and lost stages
func (s Stage) IsTerminal() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}
