package ai

import (
	"encoding/json"

	"github.com/AngelCh415/adreview/internal/models"
	"github.com/AngelCh415/adreview/internal/review"
)

const (
	insightSystemPrompt = "You are an AI analyst for media buyers. Return only valid JSON. Do not invent numbers. Use only provided values. Every insight and bullet must reference evidenceRef entries (E1-E3)."
	recoSystemPrompt    = "You are an AI strategist. Return only valid JSON. Do not use raw metrics or add new numbers. Base every recommendation on insight and evidence references."
)

type promptContext struct {
	CampaignName      string `json:"campaignName"`
	AdGroupName       string `json:"adGroupName"`
	PeriodDays        int    `json:"periodDays"`
	Score             int    `json:"score"`
	Label             string `json:"label"`
	Currency          string `json:"currency"`
	CurrencyMinorUnit string `json:"currencyMinorUnit"`
	BusinessContext   string `json:"businessContext,omitempty"`
}

type promptEvidence struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	MetricLabel string   `json:"metricLabel"`
	Current     *float64 `json:"current"`
	Previous    *float64 `json:"previous"`
	Percent     *float64 `json:"percent"`
}

type insightPayload struct {
	Locale         string                `json:"locale"`
	Context        promptContext         `json:"context"`
	DerivedMetrics models.DerivedMetrics `json:"derivedMetrics"`
	Evidence       []promptEvidence      `json:"evidence"`
}

func buildInsightPayload(d *review.AdGroupDetail, locale, businessContext string) insightPayload {
	ev := make([]promptEvidence, 0, len(d.Evidence))
	for _, s := range d.Evidence {
		ev = append(ev, promptEvidence{
			ID:          string(s.ID),
			Title:       s.Title,
			MetricLabel: s.MetricLabel,
			Current:     s.Value.Current,
			Previous:    s.Value.Previous,
			Percent:     s.Value.Percent,
		})
	}
	return insightPayload{
		Locale: locale,
		Context: promptContext{
			CampaignName:      d.Campaign.Name,
			AdGroupName:       d.AdGroup.Name,
			PeriodDays:        d.Period.Days,
			Score:             d.Score,
			Label:             string(d.Label),
			Currency:          "THB",
			CurrencyMinorUnit: "satang",
			BusinessContext:   businessContext,
		},
		DerivedMetrics: d.Derived,
		Evidence:       ev,
	}
}

var insightSchemaHint = map[string]any{
	"insightSummary":  "string",
	"evidenceBullets": []any{map[string]any{"text": "string", "evidenceRef": []string{"E1"}}},
	"insights": []any{map[string]any{
		"type":        "efficiency|traffic_quality|creative_fatigue|volume|learning",
		"title":       "string",
		"detail":      "string",
		"severity":    "low|med|high",
		"evidenceRef": []string{"E2"},
	}},
	"limits": []string{"string"},
}

var recoSchemaHint = map[string]any{
	"summary": "string",
	"recommendations": []any{map[string]any{
		"action":     "string",
		"reason":     "string",
		"confidence": "low|med|high",
		"basedOn":    []string{"insight:creative_fatigue", "evidence:E3"},
	}},
	"notes": "string",
}

func insightMessages(payload insightPayload) ([]Message, error) {
	user, err := json.Marshal(struct {
		Task    string         `json:"task"`
		Schema  map[string]any `json:"schema"`
		Payload insightPayload `json:"payload"`
	}{
		Task:    "Generate InsightJSON from provided derived metrics and evidence.",
		Schema:  insightSchemaHint,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}
	return []Message{
		{Role: "system", Content: insightSystemPrompt},
		{Role: "user", Content: string(user)},
	}, nil
}

type recoConstraints struct {
	NoRawMetrics       bool `json:"noRawMetrics"`
	NoNewNumbers       bool `json:"noNewNumbers"`
	MaxRecommendations int  `json:"maxRecommendations"`
}

// recommendationMessages only ever sees the clamped insight, never raw metrics.
func recommendationMessages(insight InsightJSON, locale string) ([]Message, error) {
	user, err := json.Marshal(struct {
		Task        string          `json:"task"`
		Locale      string          `json:"locale"`
		Constraints recoConstraints `json:"constraints"`
		Schema      map[string]any  `json:"schema"`
		Insight     InsightJSON     `json:"insight"`
	}{
		Task:        "Generate RecommendationJSON from InsightJSON only.",
		Locale:      locale,
		Constraints: recoConstraints{NoRawMetrics: true, NoNewNumbers: true, MaxRecommendations: maxRecommendations},
		Schema:      recoSchemaHint,
		Insight:     insight,
	})
	if err != nil {
		return nil, err
	}
	return []Message{
		{Role: "system", Content: recoSystemPrompt},
		{Role: "user", Content: string(user)},
	}, nil
}
