package analysis

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Policy holds every threshold and confidence weight used by the detectors.
// The confidence values are fixed heuristic weights, not statistical
// estimates; they are configuration so operators can tune them.
type Policy struct {
	// Load distribution: participation rate = records where the bureau holds
	// an active role / total records.
	OverloadThreshold     float64  `yaml:"overload_threshold"`
	HighOverloadThreshold float64  `yaml:"high_overload_threshold"`
	UnderloadThreshold    float64  `yaml:"underload_threshold"`
	ExemptBureaus         []string `yaml:"exempt_bureaus"`
	OverloadConfidence    float64  `yaml:"overload_confidence"`
	UnderloadConfidence   float64  `yaml:"underload_confidence"`

	MissingAccountableConfidence  float64 `yaml:"missing_accountable_confidence"`
	MultipleAccountableConfidence float64 `yaml:"multiple_accountable_confidence"`

	// Category clustering: a group qualifies when its size exceeds
	// ClusterMinSize and it uses fewer than ClusterMaxRoles distinct roles.
	ClusterMinSize    int     `yaml:"cluster_min_size"`
	ClusterMaxRoles   int     `yaml:"cluster_max_roles"`
	ClusterSample     int     `yaml:"cluster_sample"`
	ClusterConfidence float64 `yaml:"cluster_confidence"`

	// Deadline predictions: overdue is critical, then high up to
	// HighWithinDays, medium up to MediumWithinDays, low up to LookaheadDays.
	LookaheadDays      int     `yaml:"lookahead_days"`
	HighWithinDays     int     `yaml:"high_within_days"`
	MediumWithinDays   int     `yaml:"medium_within_days"`
	OverdueConfidence  float64 `yaml:"overdue_confidence"`
	ImminentConfidence float64 `yaml:"imminent_confidence"`
	UpcomingConfidence float64 `yaml:"upcoming_confidence"`

	// Recurring blockages: a bureau with at least RecurrenceThreshold
	// blockage alerts gets a projected next occurrence RecurrenceOffsetDays
	// after its latest one.
	RecurrenceThreshold  int     `yaml:"recurrence_threshold"`
	RecurrenceOffsetDays int     `yaml:"recurrence_offset_days"`
	RecurrenceBaseConf   float64 `yaml:"recurrence_base_confidence"`
	RecurrenceStepConf   float64 `yaml:"recurrence_step_confidence"`
	RecurrenceMaxConf    float64 `yaml:"recurrence_max_confidence"`

	// SLA window for "due soon", in hours.
	DueSoonHours int `yaml:"due_soon_hours"`

	// SparklineDays is the length of KPI sparkline series.
	SparklineDays int `yaml:"sparkline_days"`
}

// DefaultPolicy returns the stock thresholds with environment overrides applied.
func DefaultPolicy() Policy {
	return ApplyEnvOverrides(BasePolicy())
}

// BasePolicy returns the stock thresholds without consulting the environment.
func BasePolicy() Policy {
	return Policy{
		OverloadThreshold:     0.5,
		HighOverloadThreshold: 0.7,
		UnderloadThreshold:    0.1,
		ExemptBureaus:         []string{"BMO"},
		OverloadConfidence:    85,
		UnderloadConfidence:   70,

		MissingAccountableConfidence:  95,
		MultipleAccountableConfidence: 100,

		ClusterMinSize:    8,
		ClusterMaxRoles:   3,
		ClusterSample:     5,
		ClusterConfidence: 75,

		LookaheadDays:      14,
		HighWithinDays:     2,
		MediumWithinDays:   7,
		OverdueConfidence:  95,
		ImminentConfidence: 85,
		UpcomingConfidence: 65,

		RecurrenceThreshold:  2,
		RecurrenceOffsetDays: 14,
		RecurrenceBaseConf:   50,
		RecurrenceStepConf:   10,
		RecurrenceMaxConf:    90,

		DueSoonHours:  48,
		SparklineDays: 7,
	}
}

// Validate rejects threshold combinations the detectors cannot honor.
func (p Policy) Validate() error {
	var errs []error
	if p.UnderloadThreshold < 0 || p.UnderloadThreshold >= p.OverloadThreshold {
		errs = append(errs, fmt.Errorf("underload threshold %.2f must be in [0, overload %.2f)", p.UnderloadThreshold, p.OverloadThreshold))
	}
	if p.HighOverloadThreshold < p.OverloadThreshold || p.HighOverloadThreshold > 1 {
		errs = append(errs, fmt.Errorf("high overload threshold %.2f must be in [overload %.2f, 1]", p.HighOverloadThreshold, p.OverloadThreshold))
	}
	if p.ClusterMinSize < 1 || p.ClusterMaxRoles < 1 || p.ClusterSample < 1 {
		errs = append(errs, errors.New("cluster thresholds must be positive"))
	}
	if p.LookaheadDays < 1 {
		errs = append(errs, errors.New("lookahead must be at least one day"))
	}
	if !(0 <= p.HighWithinDays && p.HighWithinDays <= p.MediumWithinDays && p.MediumWithinDays <= p.LookaheadDays) {
		errs = append(errs, errors.New("prediction bands must be ordered 0 <= high <= medium <= lookahead"))
	}
	if p.RecurrenceThreshold < 1 {
		errs = append(errs, errors.New("recurrence threshold must be at least 1"))
	}
	return errors.Join(errs...)
}

// IsExempt reports whether bureau is excluded from underload detection.
func (p Policy) IsExempt(bureau string) bool {
	for _, b := range p.ExemptBureaus {
		if strings.EqualFold(b, bureau) {
			return true
		}
	}
	return false
}

// Environment variable names for policy overrides.
const (
	EnvOverloadThreshold     = "BMO_OVERLOAD_THRESHOLD"
	EnvHighOverloadThreshold = "BMO_HIGH_OVERLOAD_THRESHOLD"
	EnvUnderloadThreshold    = "BMO_UNDERLOAD_THRESHOLD"
	EnvLookaheadDays         = "BMO_LOOKAHEAD_DAYS"
	EnvExemptBureaus         = "BMO_EXEMPT_BUREAUS"
)

// ApplyEnvOverrides applies environment-variable tunables to the policy.
//
// Supported:
//   - BMO_OVERLOAD_THRESHOLD, BMO_HIGH_OVERLOAD_THRESHOLD, BMO_UNDERLOAD_THRESHOLD:
//     participation rates in [0, 1].
//   - BMO_LOOKAHEAD_DAYS=N: prediction window (must be >0).
//   - BMO_EXEMPT_BUREAUS=A,B: comma-separated exempt bureaus.
func ApplyEnvOverrides(p Policy) Policy {
	if v, ok := envRate(EnvOverloadThreshold); ok {
		p.OverloadThreshold = v
	}
	if v, ok := envRate(EnvHighOverloadThreshold); ok {
		p.HighOverloadThreshold = v
	}
	if v, ok := envRate(EnvUnderloadThreshold); ok {
		p.UnderloadThreshold = v
	}
	if n, ok := envPositiveInt(EnvLookaheadDays); ok {
		p.LookaheadDays = n
		p.MediumWithinDays = min(p.MediumWithinDays, n)
		p.HighWithinDays = min(p.HighWithinDays, n)
	}
	if v := strings.TrimSpace(os.Getenv(EnvExemptBureaus)); v != "" {
		var bureaus []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				bureaus = append(bureaus, b)
			}
		}
		p.ExemptBureaus = bureaus
	}
	return p
}

func envRate(name string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

func envPositiveInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
