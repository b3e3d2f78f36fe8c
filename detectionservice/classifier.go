package detectionservice

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Classifier holds the global detection thresholds.
type Classifier struct {
	Labels        []string
	MinWidth      int
	MinHeight     int
	MinConfidence int
}

// Finding formats the observability line reported for every prediction.
func Finding(p Prediction) string {
	return fmt.Sprintf("Object: %s - Confidence: %d%% Size: %dx%d X-Bounds: %d/%d Y-Bounds: %d/%d",
		p.Label, ConfidencePercent(p.Confidence), p.Width(), p.Height(), p.XMin, p.XMax, p.YMin, p.YMax)
}

// Classify walks the predictions in detector order. The first one that has an
// allowed label, passes the size and confidence minimums and is outside every
// ignore region becomes the match; later predictions are only reported.
func (c Classifier) Classify(predictions []Prediction, ignore []Region) Verdict {
	verdict := Verdict{
		MatchIndex: -1,
		Findings:   make([]string, 0, len(predictions)),
	}

	for i, prediction := range predictions {
		finding := Finding(prediction)
		verdict.Findings = append(verdict.Findings, finding)
		log.Info().Msgf("  %s", finding)

		if verdict.Triggered || !c.Qualifies(prediction) {
			continue
		}
		if IsIgnored(prediction, ignore) {
			log.Info().Msgf("%s in ignore area, not triggering", prediction.Label)
			continue
		}

		match := prediction
		verdict.Triggered = true
		verdict.Match = &match
		verdict.MatchIndex = i
	}

	return verdict
}

// Qualifies applies the label, size and confidence rules, ignoring regions.
func (c Classifier) Qualifies(p Prediction) bool {
	return lo.Contains(c.Labels, p.Label) &&
		PassesSize(p, c.MinWidth, c.MinHeight) &&
		PassesConfidence(p, c.MinConfidence)
}
