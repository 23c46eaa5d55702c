package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	maxBullets         = 3
	maxInsights        = 2
	maxLimits          = 3
	maxRecommendations = 3
)

type EvidenceBullet struct {
	Text        string   `json:"text" validate:"required"`
	EvidenceRef []string `json:"evidenceRef" validate:"required,min=1,dive,oneof=E1 E2 E3"`
}

type Insight struct {
	Type        string   `json:"type" validate:"required,oneof=efficiency traffic_quality creative_fatigue volume learning"`
	Title       string   `json:"title" validate:"required"`
	Detail      string   `json:"detail" validate:"required"`
	Severity    string   `json:"severity" validate:"required,oneof=low med high"`
	EvidenceRef []string `json:"evidenceRef" validate:"required,min=1,dive,oneof=E1 E2 E3"`
}

// InsightJSON is the first-stage model output.
type InsightJSON struct {
	InsightSummary  string           `json:"insightSummary" validate:"required"`
	EvidenceBullets []EvidenceBullet `json:"evidenceBullets" validate:"required,min=1,dive"`
	Insights        []Insight        `json:"insights" validate:"required,min=1,dive"`
	Limits          []string         `json:"limits" validate:"required,min=1,dive,required"`
}

type Recommendation struct {
	Action     string   `json:"action" validate:"required"`
	Reason     string   `json:"reason" validate:"required"`
	Confidence string   `json:"confidence" validate:"required,oneof=low med high"`
	BasedOn    []string `json:"basedOn" validate:"required,min=1,dive,basedon"`
}

// RecommendationJSON is the second-stage model output, derived from InsightJSON only.
type RecommendationJSON struct {
	Summary         string           `json:"summary" validate:"required"`
	Recommendations []Recommendation `json:"recommendations" validate:"required,min=1,dive"`
	Notes           string           `json:"notes" validate:"required"`
}

var basedOnPattern = regexp.MustCompile(`^(insight:|evidence:).+`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("basedon", func(fl validator.FieldLevel) bool {
		return basedOnPattern.MatchString(fl.Field().String())
	})
	return v
}

// checkKeys compares object keys case-sensitively against the json tags of
// t, descending into struct slices. encoding/json alone folds case.
func checkKeys(v any, t reflect.Type, path string) error {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	fields := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields[name] = f.Type
	}
	for k, child := range m {
		ft, ok := fields[k]
		if !ok {
			return fmt.Errorf("unknown field %q", path+k)
		}
		if ft.Kind() != reflect.Slice || ft.Elem().Kind() != reflect.Struct {
			continue
		}
		items, _ := child.([]any)
		for i, item := range items {
			if err := checkKeys(item, ft.Elem(), fmt.Sprintf("%s%s[%d].", path, k, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeStrict re-encodes v and decodes it into out rejecting unknown fields.
func decodeStrict(v any, out any) error {
	if err := checkKeys(v, reflect.TypeOf(out).Elem(), ""); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after object")
	}
	return nil
}

// ParseInsight validates a decoded model response against the InsightJSON contract.
func ParseInsight(v any) (*InsightJSON, error) {
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("insight: expected object, got %T", v)
	}
	var out InsightJSON
	if err := decodeStrict(v, &out); err != nil {
		return nil, fmt.Errorf("insight: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("insight: %w", err)
	}
	return &out, nil
}

func ParseRecommendation(v any) (*RecommendationJSON, error) {
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("recommendation: expected object, got %T", v)
	}
	var out RecommendationJSON
	if err := decodeStrict(v, &out); err != nil {
		return nil, fmt.Errorf("recommendation: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("recommendation: %w", err)
	}
	return &out, nil
}

// ClampInsight returns a copy bounded to 3 bullets, 2 insights and 3 limits.
// Applying it twice gives the same result.
func ClampInsight(in InsightJSON) InsightJSON {
	in.EvidenceBullets = clip(in.EvidenceBullets, maxBullets)
	in.Insights = clip(in.Insights, maxInsights)
	in.Limits = clip(in.Limits, maxLimits)
	return in
}

func ClampRecommendation(in RecommendationJSON) RecommendationJSON {
	in.Recommendations = clip(in.Recommendations, maxRecommendations)
	return in
}

func clip[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	out := make([]T, n)
	copy(out, s[:n])
	return out
}
