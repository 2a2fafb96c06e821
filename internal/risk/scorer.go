package risk

import (
	"fmt"
	"math"
	"strings"

	"codeaudit/types"
)

// Thresholds map a score to a tier: score >= Low is low risk, >= Medium is
// medium, >= High is high, anything below is critical.
type Thresholds struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// Profile holds the tunable scoring constants.
type Profile struct {
	Name       string                     `yaml:"name"`
	Weights    map[types.Severity]float64 `yaml:"weights"`
	Multiplier float64                    `yaml:"multiplier"`
	Thresholds Thresholds                 `yaml:"thresholds"`
}

var defaultThresholds = Thresholds{Low: 80, Medium: 60, High: 40}

// CalibratedProfile is the default: a single critical finding lands in the critical tier.
func CalibratedProfile() Profile {
	return Profile{
		Name: "calibrated",
		Weights: map[types.Severity]float64{
			types.SeverityCritical: 80,
			types.SeverityHigh:     55,
			types.SeverityMedium:   40,
			types.SeverityLow:      15,
		},
		Multiplier: 1.0,
		Thresholds: defaultThresholds,
	}
}

// LegacyProfile is score = 100 - 0.8 * sum(25/15/8/3).
func LegacyProfile() Profile {
	return Profile{
		Name: "legacy",
		Weights: map[types.Severity]float64{
			types.SeverityCritical: 25,
			types.SeverityHigh:     15,
			types.SeverityMedium:   8,
			types.SeverityLow:      3,
		},
		Multiplier: 0.8,
		Thresholds: defaultThresholds,
	}
}

// ProfileByName returns a built-in profile.
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "calibrated":
		return CalibratedProfile(), nil
	case "legacy":
		return LegacyProfile(), nil
	default:
		return Profile{}, fmt.Errorf("unknown scoring profile %q", name)
	}
}

// Validate checks that the profile keeps the score monotonic and the tiers ordered.
func (p Profile) Validate() error {
	for _, sev := range types.AllSeverities {
		w, ok := p.Weights[sev]
		if !ok {
			return fmt.Errorf("scoring profile %s: missing weight for %s", p.Name, sev)
		}
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("scoring profile %s: weight for %s must be non-negative", p.Name, sev)
		}
	}
	if p.Multiplier <= 0 || math.IsNaN(p.Multiplier) {
		return fmt.Errorf("scoring profile %s: multiplier must be positive", p.Name)
	}
	t := p.Thresholds
	if !(t.Low <= 100 && t.Low > t.Medium && t.Medium > t.High && t.High >= 0) {
		return fmt.Errorf("scoring profile %s: thresholds must satisfy 100 >= low > medium > high >= 0", p.Name)
	}
	return nil
}

// Scorer converts findings into a bounded score and a tier.
type Scorer struct {
	profile Profile
}

func NewScorer(p Profile) (*Scorer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{profile: p}, nil
}

func (s *Scorer) Profile() Profile {
	return s.profile
}

// Points is the raw sum of severity weights.
func (s *Scorer) Points(findings []types.Finding) float64 {
	total := 0.0
	for _, f := range findings {
		total += s.profile.Weights[f.Severity]
	}
	return total
}

// Score returns clamp(100 - multiplier*points, 0, 100) and its tier.
func (s *Scorer) Score(findings []types.Finding) (float64, types.RiskTier) {
	score := 100 - s.profile.Multiplier*s.Points(findings)
	score = math.Max(0, math.Min(100, score))
	score = math.Round(score*100) / 100
	return score, s.Tier(score)
}

// Tier is a pure function of score.
func (s *Scorer) Tier(score float64) types.RiskTier {
	t := s.profile.Thresholds
	switch {
	case score >= t.Low:
		return types.RiskLow
	case score >= t.Medium:
		return types.RiskMedium
	case score >= t.High:
		return types.RiskHigh
	default:
		return types.RiskCritical
	}
}
