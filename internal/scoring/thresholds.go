package scoring

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Thresholds is the resolved KPI configuration for one (account, objective).
// Money targets are in minor units.
type Thresholds struct {
	CostPerResultTarget float64 `json:"costPerResultTarget" yaml:"costPerResultTarget"`
	ROASTarget          float64 `json:"roasTarget" yaml:"roasTarget"`
	CTRMin              float64 `json:"ctrMin" yaml:"ctrMin"`
	CTRWarning          float64 `json:"ctrWarning" yaml:"ctrWarning"`
	FrequencyWarning    float64 `json:"frequencyWarning" yaml:"frequencyWarning"`
	FrequencyHigh       float64 `json:"frequencyHigh" yaml:"frequencyHigh"`
	CostCreepingPct     float64 `json:"costCreepingPct" yaml:"costCreepingPct"`
	CostSpikePct        float64 `json:"costSpikePct" yaml:"costSpikePct"`
	LabelTop            int     `json:"labelTop" yaml:"labelTop"`
	LabelNeedsAttention int     `json:"labelNeedsAttention" yaml:"labelNeedsAttention"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CostPerResultTarget: 150_00,
		ROASTarget:          3,
		CTRMin:              0.008,
		CTRWarning:          0.005,
		FrequencyWarning:    3,
		FrequencyHigh:       4,
		CostCreepingPct:     0.1,
		CostSpikePct:        0.2,
		LabelTop:            80,
		LabelNeedsAttention: 50,
	}
}

type Weights struct {
	CostPerResult float64
	ROAS          float64
	CTR           float64
	Frequency     float64
}

func DefaultWeights() Weights {
	return Weights{CostPerResult: 0.35, ROAS: 0.25, CTR: 0.2, Frequency: 0.2}
}

// Override is one layer of KPI overrides. Nil fields leave the previous
// layer's value untouched; a set field replaces it outright.
type Override struct {
	CostPerResultTarget *float64 `yaml:"costPerResultTarget,omitempty"`
	ROASTarget          *float64 `yaml:"roasTarget,omitempty"`
	CTRMin              *float64 `yaml:"ctrMin,omitempty"`
	CTRWarning          *float64 `yaml:"ctrWarning,omitempty"`
	FrequencyWarning    *float64 `yaml:"frequencyWarning,omitempty"`
	FrequencyHigh       *float64 `yaml:"frequencyHigh,omitempty"`
}

func (o *Override) apply(t Thresholds) Thresholds {
	if o == nil {
		return t
	}
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&t.CostPerResultTarget, o.CostPerResultTarget)
	set(&t.ROASTarget, o.ROASTarget)
	set(&t.CTRMin, o.CTRMin)
	set(&t.CTRWarning, o.CTRWarning)
	set(&t.FrequencyWarning, o.FrequencyWarning)
	set(&t.FrequencyHigh, o.FrequencyHigh)
	return t
}

type Objective string

const (
	ObjectiveSales     Objective = "SALES"
	ObjectiveLeads     Objective = "LEADS"
	ObjectiveTraffic   Objective = "TRAFFIC"
	ObjectiveAwareness Objective = "AWARENESS"
)

// NormalizeObjective maps free-text campaign objectives onto the known keys.
func NormalizeObjective(raw string) (Objective, bool) {
	switch o := Objective(strings.ToUpper(strings.TrimSpace(raw))); o {
	case ObjectiveSales, ObjectiveLeads, ObjectiveTraffic, ObjectiveAwareness:
		return o, true
	}
	return "", false
}

type AccountOverrides struct {
	Default    *Override               `yaml:"default,omitempty"`
	Objectives map[Objective]*Override `yaml:"objectives,omitempty"`
}

// Tables holds the objective-level and account-level override layers.
type Tables struct {
	Defaults   *Override                   `yaml:"defaults,omitempty"`
	Objectives map[Objective]*Override     `yaml:"objectives,omitempty"`
	Accounts   map[string]AccountOverrides `yaml:"accounts,omitempty"`
}

func f(v float64) *float64 { return &v }

func DefaultTables() Tables {
	return Tables{
		Objectives: map[Objective]*Override{
			ObjectiveSales: {
				CostPerResultTarget: f(150_00), ROASTarget: f(3),
				CTRMin: f(0.008), CTRWarning: f(0.005),
				FrequencyWarning: f(3), FrequencyHigh: f(4),
			},
			ObjectiveLeads: {
				CostPerResultTarget: f(120_00), ROASTarget: f(3),
				CTRMin: f(0.007), CTRWarning: f(0.0045),
				FrequencyWarning: f(3), FrequencyHigh: f(4),
			},
			ObjectiveTraffic: {
				CostPerResultTarget: f(130_00), ROASTarget: f(3),
				CTRMin: f(0.007), CTRWarning: f(0.0045),
				FrequencyWarning: f(3), FrequencyHigh: f(4),
			},
			ObjectiveAwareness: {
				CostPerResultTarget: f(170_00), ROASTarget: f(3),
				CTRMin: f(0.006), CTRWarning: f(0.004),
				FrequencyWarning: f(4), FrequencyHigh: f(5),
			},
		},
		Accounts: map[string]AccountOverrides{
			"acc_7eleven_th": {
				Objectives: map[Objective]*Override{
					ObjectiveSales: {CostPerResultTarget: f(150_00), ROASTarget: f(3)},
					ObjectiveLeads: {CostPerResultTarget: f(110_00)},
				},
			},
			"acc_lotus_th": {
				Objectives: map[Objective]*Override{
					ObjectiveSales: {CostPerResultTarget: f(140_00), ROASTarget: f(3.2)},
				},
			},
		},
	}
}

// LoadTables reads override tables from a YAML file. An empty path yields
// the built-in tables. Unknown keys are rejected.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read scoring tables: %w", err)
	}
	return ParseTables(raw)
}

func ParseTables(raw []byte) (Tables, error) {
	var t Tables
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	err := dec.Decode(&t)
	if err != nil && !errors.Is(err, io.EOF) {
		return Tables{}, fmt.Errorf("parse scoring tables: %w", err)
	}
	if t.Objectives, err = normalizeKeys(t.Objectives); err != nil {
		return Tables{}, err
	}
	for id, acc := range t.Accounts {
		if acc.Objectives, err = normalizeKeys(acc.Objectives); err != nil {
			return Tables{}, fmt.Errorf("account %s: %w", id, err)
		}
		t.Accounts[id] = acc
	}
	return t, nil
}

func normalizeKeys(in map[Objective]*Override) (map[Objective]*Override, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[Objective]*Override, len(in))
	for key, o := range in {
		obj, ok := NormalizeObjective(string(key))
		if !ok {
			return nil, fmt.Errorf("parse scoring tables: unknown objective %q", key)
		}
		out[obj] = o
	}
	return out, nil
}

// Resolver merges the override layers in a fixed order:
// base, objective, account default, account+objective.
type Resolver struct {
	base   Thresholds
	tables Tables
}

func NewResolver(base Thresholds, tables Tables) *Resolver {
	return &Resolver{base: tables.Defaults.apply(base), tables: tables}
}

func (r *Resolver) Resolve(accountID, objective string) Thresholds {
	out := r.base
	for _, layer := range r.layers(accountID, objective) {
		out = layer.apply(out)
	}
	return out
}

func (r *Resolver) layers(accountID, objective string) []*Override {
	obj, hasObj := NormalizeObjective(objective)
	acc, hasAcc := r.tables.Accounts[accountID]

	var out []*Override
	if hasObj {
		out = append(out, r.tables.Objectives[obj])
	}
	if hasAcc {
		out = append(out, acc.Default)
		if hasObj {
			out = append(out, acc.Objectives[obj])
		}
	}
	return out
}
