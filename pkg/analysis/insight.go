package analysis

import (
	"sort"
	"time"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// InsightKind classifies a derived insight.
type InsightKind string

const (
	KindRisk         InsightKind = "risk"
	KindOptimization InsightKind = "optimization"
	KindAnomaly      InsightKind = "anomaly"
	KindPrediction   InsightKind = "prediction"
)

// Insight is a computed pattern, suggestion or prediction. Insights are
// rebuilt from scratch on every analysis and never modified afterwards.
type Insight struct {
	ID          string         `json:"id"`
	Kind        InsightKind    `json:"kind"`
	Detector    string         `json:"detector"`
	Severity    model.Severity `json:"severity"`
	Confidence  float64        `json:"confidence"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	RecordIDs   []string       `json:"record_ids,omitempty"`
	Bureau      string         `json:"bureau,omitempty"`
	ProjectedAt time.Time      `json:"projected_at,omitempty"`
}

// Detector names, also used as insight ID segments.
const (
	DetectorOverload            = "overload"
	DetectorUnderload           = "underload"
	DetectorMissingAccountable  = "missing_accountable"
	DetectorMultipleAccountable = "multiple_accountable"
	DetectorCluster             = "category_cluster"
	DetectorDeadline            = "deadline"
	DetectorRecurringBlockage   = "recurring_blockage"
)

func newInsight(kind InsightKind, detector, subject string, sev model.Severity, confidence float64) Insight {
	return Insight{
		ID:         string(kind) + ":" + detector + ":" + subject,
		Kind:       kind,
		Detector:   detector,
		Severity:   sev,
		Confidence: clampConfidence(confidence),
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

// SortInsights orders insights by severity rank descending, then confidence
// descending. The sort is stable: ties keep detection order.
func SortInsights(insights []Insight) {
	sort.SliceStable(insights, func(i, j int) bool {
		ri, rj := insights[i].Severity.Rank(), insights[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return insights[i].Confidence > insights[j].Confidence
	})
}

// FilterInsights returns the insights matching kind (empty = all) with at
// least minConfidence.
func FilterInsights(insights []Insight, kind InsightKind, minConfidence float64) []Insight {
	out := make([]Insight, 0, len(insights))
	for _, in := range insights {
		if kind != "" && in.Kind != kind {
			continue
		}
		if in.Confidence < minConfidence {
			continue
		}
		out = append(out, in)
	}
	return out
}

// InsightsForRecord returns the insights that reference id.
func InsightsForRecord(insights []Insight, id string) []Insight {
	var out []Insight
	for _, in := range insights {
		for _, rid := range in.RecordIDs {
			if rid == id {
				out = append(out, in)
				break
			}
		}
	}
	return out
}

// CountByKind tallies insights per kind.
func CountByKind(insights []Insight) map[InsightKind]int {
	counts := make(map[InsightKind]int)
	for _, in := range insights {
		counts[in.Kind]++
	}
	return counts
}
