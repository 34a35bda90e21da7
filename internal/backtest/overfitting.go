package backtest

import "math"

// WalkForwardSlice is one (train, test) evaluation the OverfittingDetector
// can optionally be fed; OutOfSampleScore is typically a Sharpe ratio but
// any scalar performance score the caller considers comparable works.
type WalkForwardSlice struct {
	OutOfSampleScore float64
}

// ComplexityDescriptor replaces the dynamic parameter maps of the source
// with a typed value: parameter count, turnover, average holding period
// (in bars), and an optional externally-computed complexity score.
type ComplexityDescriptor struct {
	ParameterCount      int
	Turnover            float64
	AvgHoldingPeriod    float64
	ComplexityScore     float64
	HasComplexityScore  bool
}

// OverfittingReport is produced by analyze_overfitting.
type OverfittingReport struct {
	Overfit    bool
	Score      float64
	Confidence float64

	PerformanceDegradation float64
	SharpeRatioDrop        float64
	ParameterInstability   float64
	ComplexityPenalty      float64
	WalkForwardConsistency float64

	Warnings        []MessageID
	Recommendations []MessageID
}

// MessageID is an enumerated advice identifier; callers map these to
// localized or free-form text at the presentation boundary, never inside
// the core.
type MessageID int

const (
	MsgSevereOverfitting MessageID = iota
	MsgModerateOverfitting
	MsgSharpeCollapse
	MsgTooManyParameters
	MsgHighTurnover
	MsgShortHoldingPeriod
	MsgInconsistentWalkForward
	MsgReduceParameters
	MsgSimplifyStrategy
	MsgExtendWalkForward
	MsgReduceTurnover
)

// OverfittingDetector computes a scalar overfitting score and diagnostic
// indicators from in-sample vs out-of-sample metrics, optionally enriched
// with walk-forward slices and a complexity descriptor. It is a pure
// function of its inputs.
type OverfittingDetector struct {
	telemetry *Telemetry
}

func NewOverfittingDetector() OverfittingDetector { return OverfittingDetector{} }

// WithTelemetry attaches Prometheus instrumentation; passing nil restores
// the no-op default.
func (d OverfittingDetector) WithTelemetry(t *Telemetry) OverfittingDetector {
	d.telemetry = t
	return d
}

// Analyze implements analyze_overfitting(in_sample, out_of_sample,
// walk_forward?, complexity?) -> OverfittingReport. The parameter count is
// carried inside the ComplexityDescriptor rather than as a separate input.
func (d OverfittingDetector) Analyze(inSample, outSample PerformanceMetrics, walkForward []WalkForwardSlice, complexity *ComplexityDescriptor) OverfittingReport {
	var indicators []weightedIndicator

	degradation := performanceDegradation(inSample.TotalReturn, outSample.TotalReturn)
	indicators = append(indicators, weightedIndicator{degradation, 0.3})

	sharpeDrop := sharpeRatioDrop(inSample.Sharpe, outSample.Sharpe)
	indicators = append(indicators, weightedIndicator{sharpeDrop, 0.2})

	var paramInstability, complexityPenalty float64
	if complexity != nil {
		paramInstability = parameterInstability(complexity.ParameterCount, inSample.TotalReturn, outSample.TotalReturn)
		indicators = append(indicators, weightedIndicator{paramInstability, 0.15})

		complexityPenalty = complexityPenaltyOf(*complexity)
		indicators = append(indicators, weightedIndicator{complexityPenalty, 0.15})
	}

	var wfConsistency float64
	var wfInverse float64
	if len(walkForward) > 0 {
		wfConsistency = walkForwardConsistency(walkForward)
		wfInverse = 1 - wfConsistency
		indicators = append(indicators, weightedIndicator{wfInverse, 0.2})
	}

	score := weightedMean(indicators)

	report := OverfittingReport{
		Score:                  score,
		Overfit:                score > 0.5,
		Confidence:             confidenceOf(len(walkForward), complexity != nil, inSample.TotalTrades+outSample.TotalTrades),
		PerformanceDegradation: degradation,
		SharpeRatioDrop:        sharpeDrop,
		ParameterInstability:   paramInstability,
		ComplexityPenalty:      complexityPenalty,
		WalkForwardConsistency: wfConsistency,
	}
	report.Warnings, report.Recommendations = adviceFor(report, complexity)
	d.telemetry.recordOverfitScore(report.Score)
	return report
}

type weightedIndicator struct {
	value  float64
	weight float64
}

func weightedMean(indicators []weightedIndicator) float64 {
	var weightSum, valueSum float64
	for _, ind := range indicators {
		valueSum += ind.value * ind.weight
		weightSum += ind.weight
	}
	if weightSum == 0 {
		return 0
	}
	return valueSum / weightSum
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func performanceDegradation(inReturn, outReturn float64) float64 {
	switch {
	case inReturn > 0 && outReturn > 0:
		return clamp01((inReturn - outReturn) / inReturn / 0.3)
	case inReturn > 0 && outReturn <= 0:
		return 1.0
	case inReturn <= 0 && outReturn <= 0:
		return 0.3
	default:
		return 0.5
	}
}

func sharpeRatioDrop(inSharpe, outSharpe float64) float64 {
	if inSharpe <= 0 {
		return 0
	}
	return clamp01((inSharpe - outSharpe) / inSharpe / 0.5)
}

func parameterInstability(paramCount int, inReturn, outReturn float64) float64 {
	base := math.Min(1, float64(paramCount)/20)
	if paramCount > 10 && inReturn != 0 && outReturn/inReturn < 0.5 {
		return math.Max(base, 0.8)
	}
	return base
}

func complexityPenaltyOf(c ComplexityDescriptor) float64 {
	var penalty float64
	if c.ParameterCount > 15 {
		penalty += 0.3
	}
	if c.Turnover > 5 {
		penalty += 0.3
	}
	if c.AvgHoldingPeriod < 2 {
		penalty += 0.2
	}
	if c.HasComplexityScore && c.ComplexityScore > 0.7 {
		penalty += 0.3
	}
	return clamp01(penalty)
}

func walkForwardConsistency(slices []WalkForwardSlice) float64 {
	if len(slices) == 0 {
		return 0
	}
	scores := make([]float64, len(slices))
	passCount := 0
	for i, s := range slices {
		scores[i] = s.OutOfSampleScore
		if s.OutOfSampleScore > 0 {
			passCount++
		}
	}
	passRate := float64(passCount) / float64(len(slices))
	mean := meanF(scores)
	var cv float64
	if mean != 0 {
		cv = math.Abs(stdDevSample(scores) / mean)
	}
	return passRate * (1 - math.Min(1, cv))
}

func confidenceOf(walkForwardSlices int, hasComplexity bool, combinedTrades int) float64 {
	confidence := 0.3
	switch {
	case walkForwardSlices >= 5:
		confidence += 0.4
	case walkForwardSlices >= 3:
		confidence += 0.2
	}
	if hasComplexity {
		confidence += 0.15 * 2 // both parameters and complexity are supplied together via ComplexityDescriptor
	}
	switch {
	case combinedTrades > 100:
		confidence += 0.1
	case combinedTrades > 50:
		confidence += 0.05
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// adviceFor maps indicator thresholds to enumerated message IDs; it never
// generates free text inside the core.
func adviceFor(r OverfittingReport, complexity *ComplexityDescriptor) (warnings, recommendations []MessageID) {
	if r.Score > 0.7 {
		warnings = append(warnings, MsgSevereOverfitting)
		recommendations = append(recommendations, MsgReduceParameters)
	} else if r.Overfit {
		warnings = append(warnings, MsgModerateOverfitting)
		recommendations = append(recommendations, MsgSimplifyStrategy)
	}
	if r.SharpeRatioDrop > 0.6 {
		warnings = append(warnings, MsgSharpeCollapse)
	}
	if complexity != nil {
		if complexity.ParameterCount > 15 {
			warnings = append(warnings, MsgTooManyParameters)
			recommendations = append(recommendations, MsgReduceParameters)
		}
		if complexity.Turnover > 5 {
			warnings = append(warnings, MsgHighTurnover)
			recommendations = append(recommendations, MsgReduceTurnover)
		}
		if complexity.AvgHoldingPeriod < 2 {
			warnings = append(warnings, MsgShortHoldingPeriod)
		}
	}
	if r.WalkForwardConsistency > 0 && r.WalkForwardConsistency < 0.5 {
		warnings = append(warnings, MsgInconsistentWalkForward)
		recommendations = append(recommendations, MsgExtendWalkForward)
	}
	return warnings, recommendations
}

// EarlyStoppingState tracks the rolling state an optimization loop needs
// to evaluate the early-stopping hint; callers own and advance this
// across iterations.
type EarlyStoppingState struct {
	BestSharpe            float64
	IterationsSinceImprove int
	Recent                 []float64 // most recent Sharpe ratios, newest last
}

// ShouldStop reports whether the optimization loop should halt: 50
// iterations without improvement, recent-10 mean Sharpe below half the
// best, or a best Sharpe so high it is suspiciously perfect (>5).
func (s EarlyStoppingState) ShouldStop() bool {
	if s.IterationsSinceImprove >= 50 {
		return true
	}
	if s.BestSharpe > 5 {
		return true
	}
	if len(s.Recent) >= 10 {
		recent := s.Recent[len(s.Recent)-10:]
		if meanF(recent) < 0.5*s.BestSharpe {
			return true
		}
	}
	return false
}

// Advance records one more iteration's Sharpe ratio and returns the
// updated state.
func (s EarlyStoppingState) Advance(sharpe float64) EarlyStoppingState {
	next := s
	next.Recent = append(append([]float64(nil), s.Recent...), sharpe)
	if sharpe > s.BestSharpe {
		next.BestSharpe = sharpe
		next.IterationsSinceImprove = 0
	} else {
		next.IterationsSinceImprove = s.IterationsSinceImprove + 1
	}
	return next
}
