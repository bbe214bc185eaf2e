// Package onchain holds the shared on-chain feature/verdict types used by
// the rules engine and the signals pipeline.
package onchain

import "time"

// Feature is a single on-chain feature observation for one window.
type Feature struct {
	ActiveAddrPctl float64 // [0,1]
	GrowthRatio    float64 // >=0
	Top10Share     float64 // [0,1]
	SelfLoopRatio  float64 // [0,1]
	AsOfTS         time.Time
	WindowMin      int
}

// Decision enumerates the rules engine's verdict outcomes.
type Decision string

const (
	DecisionInsufficient Decision = "insufficient"
	DecisionDowngrade    Decision = "downgrade"
	DecisionUpgrade      Decision = "upgrade"
	DecisionHold         Decision = "hold"
)

// Verdict is the rules engine's evaluation output.
type Verdict struct {
	Decision   Decision
	Confidence float64
	Note       string
}
