// Package calibrate turns a disruption score and its context into a
// decision and a confidence in [0,1].
package calibrate

import (
	_ "embed"
	"fmt"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"NewsSignal/internal/domain/models"
	"NewsSignal/internal/services/rolling"
)

// NeutralReason is the only reason attached to a statement the relevance
// gate rejected.
const NeutralReason = "neutralized: below relevance threshold"

const (
	minVolumeFactor = 0.80
	maxVolumeFactor = 1.10
	volumeCap       = 5
)

//go:embed calibration.yaml
var defaultYAML []byte

type Weights struct {
	Relevance  float64 `yaml:"relevance" json:"relevance"`
	Disruption float64 `yaml:"disruption" json:"disruption"`
	Source     float64 `yaml:"source" json:"source"`
	Recency    float64 `yaml:"recency" json:"recency"`
}

func (w Weights) sum() float64 { return w.Relevance + w.Disruption + w.Source + w.Recency }

type Thresholds struct {
	Buy  float64 `yaml:"buy" json:"buy"`
	Sell float64 `yaml:"sell" json:"sell"`
}

// Params is one immutable calibration snapshot.
type Params struct {
	Version      int        `yaml:"version" json:"version"`
	Weights      Weights    `yaml:"weights" json:"weights"`
	VolumeStep   float64    `yaml:"volume_step" json:"volume_step"`
	ConflictStep float64    `yaml:"conflict_step" json:"conflict_step"`
	Thresholds   Thresholds `yaml:"thresholds" json:"thresholds"`
	HoldCap      float64    `yaml:"hold_cap" json:"hold_cap"`
}

func ParseParams(data []byte) (*Params, error) {
	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse calibration: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func DefaultParams() *Params {
	p, err := ParseParams(defaultYAML)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Params) validate() error {
	w := p.Weights
	if w.Relevance < 0 || w.Disruption < 0 || w.Source < 0 || w.Recency < 0 {
		return fmt.Errorf("calibration: negative weight")
	}
	if w.sum() <= 0 {
		return fmt.Errorf("calibration: weights sum to zero")
	}
	if p.VolumeStep < 0 || p.ConflictStep < 0 {
		return fmt.Errorf("calibration: negative volume step")
	}
	if p.Thresholds.Buy <= 0 || p.Thresholds.Sell >= 0 {
		return fmt.Errorf("calibration: need buy > 0 > sell, got %.2f/%.2f", p.Thresholds.Buy, p.Thresholds.Sell)
	}
	if p.HoldCap <= 0 || p.HoldCap > 1 {
		p.HoldCap = 1
	}
	return nil
}

// Input carries everything Calibrate reads.
type Input struct {
	Relevance  float64
	Disruption models.DisruptionResult
	// Multiplier is the contextual (rerank/antispam) factor applied to the
	// disruption score, 1 when untouched.
	Multiplier float64
	Rolling    rolling.Snapshot
}

type Calibration struct {
	Decision     models.Decision `json:"decision"`
	Confidence   float64         `json:"confidence"`
	Score        float64         `json:"score"`
	VolumeFactor float64         `json:"volume_factor"`
	Reasons      []string        `json:"reasons"`
}

// Neutral is the result for a statement the gate rejected.
func Neutral() Calibration {
	return Calibration{Decision: models.DecisionNeutral, Confidence: 0, Reasons: []string{NeutralReason}}
}

type Calibrator struct {
	params atomic.Pointer[Params]
}

func New(p *Params) *Calibrator {
	if p == nil {
		p = DefaultParams()
	}
	c := &Calibrator{}
	c.params.Store(p)
	return c
}

// Reload swaps in a new snapshot; on error the old one stays.
func (c *Calibrator) Reload(data []byte) error {
	p, err := ParseParams(data)
	if err != nil {
		return err
	}
	c.params.Store(p)
	return nil
}

func (c *Calibrator) Params() Params { return *c.params.Load() }

// Boundaries returns the buy and sell thresholds of the active snapshot.
func (c *Calibrator) Boundaries() (buy, sell float64) {
	p := c.params.Load()
	return p.Thresholds.Buy, p.Thresholds.Sell
}

// VolumeFactor rewards corroborating recent samples and penalizes
// conflicting ones, each counted up to five.
func (p *Params) VolumeFactor(corroborating, conflicting int) float64 {
	f := 1 + p.VolumeStep*float64(min(corroborating, volumeCap)) - p.ConflictStep*float64(min(conflicting, volumeCap))
	return clamp(f, minVolumeFactor, maxVolumeFactor)
}

func (c *Calibrator) Calibrate(in Input) Calibration {
	p := c.params.Load()
	mult := in.Multiplier
	if mult <= 0 || mult > 1 {
		mult = 1
	}
	d := in.Disruption
	disruption := d.Score * mult
	corr := in.Rolling.Corroborating(disruption)
	conf := in.Rolling.Conflicting(disruption)
	vf := p.VolumeFactor(corr, conf)
	score := disruption * vf

	w := p.Weights
	raw := (w.Relevance*clamp(in.Relevance, 0, 1) +
		w.Disruption*abs(disruption) +
		w.Source*d.WSource +
		w.Recency*d.WRecency) / w.sum()
	confidence := clamp(raw*vf, 0, 1)

	var decision models.Decision
	switch {
	case score >= p.Thresholds.Buy:
		decision = models.DecisionBuy
	case score <= p.Thresholds.Sell:
		decision = models.DecisionSell
	default:
		decision = models.DecisionHold
		confidence = min(confidence, p.HoldCap)
	}

	reasons := []string{
		fmt.Sprintf("disruption %+.2f (w_source %.2f, w_strength %+.2f, w_recency %.2f, age %ds)",
			disruption, d.WSource, d.WStrength, d.WRecency, d.AgeSecs),
	}
	if d.Triggered {
		reasons = append(reasons, fmt.Sprintf("trigger met: source>=0.80, strength>=0.90, age<=1800s (actual: w_source %.2f, w_strength %.2f, age %ds)",
			d.WSource, abs(d.WStrength), d.AgeSecs))
	}
	if mult < 1 {
		reasons = append(reasons, fmt.Sprintf("contextual decay x%.2f", mult))
	}
	if corr > 0 || conf > 0 {
		reasons = append(reasons, fmt.Sprintf("volume x%.2f (corroborating %d, conflicting %d)", vf, corr, conf))
	}
	if decision == models.DecisionHold {
		reasons = append(reasons, fmt.Sprintf("score %+.2f inside hold band (%.2f, %.2f)", score, p.Thresholds.Sell, p.Thresholds.Buy))
	}

	return Calibration{
		Decision:     decision,
		Confidence:   confidence,
		Score:        score,
		VolumeFactor: vf,
		Reasons:      reasons,
	}
}

func clamp(v, lo, hi float64) float64 { return min(max(v, lo), hi) }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
