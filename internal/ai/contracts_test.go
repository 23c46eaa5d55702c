package ai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

const validInsight = `{
	"insightSummary": "CTR dropped while cost increased.",
	"evidenceBullets": [{"text": "CTR declined vs previous period", "evidenceRef": ["E2"]}],
	"insights": [{
		"type": "creative_fatigue",
		"title": "Creative fatigue likely",
		"detail": "High frequency with lower CTR suggests fatigue.",
		"severity": "high",
		"evidenceRef": ["E3"]
	}],
	"limits": ["Insights are based on derived metrics only."]
}`

func TestParseInsight(t *testing.T) {
	got, err := ParseInsight(decode(t, validInsight))
	require.NoError(t, err)
	assert.Equal(t, "creative_fatigue", got.Insights[0].Type)
}

func TestParseInsightRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":      `{"insightSummary":"s","evidenceBullets":[{"text":"t","evidenceRef":["E1"]}],"insights":[{"type":"volume","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":["l"],"extra":1}`,
		"bad ref":            `{"insightSummary":"s","evidenceBullets":[{"text":"t","evidenceRef":["E4"]}],"insights":[{"type":"volume","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":["l"]}`,
		"empty limits":       `{"insightSummary":"s","evidenceBullets":[{"text":"t","evidenceRef":["E1"]}],"insights":[{"type":"volume","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":[]}`,
		"empty limit":        `{"insightSummary":"s","evidenceBullets":[{"text":"t","evidenceRef":["E1"]}],"insights":[{"type":"volume","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":[""]}`,
		"bad type":           `{"insightSummary":"s","evidenceBullets":[{"text":"t","evidenceRef":["E1"]}],"insights":[{"type":"budget","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":["l"]}`,
		"nested unknown":     `{"insightSummary":"s","evidenceBullets":[{"text":"t","evidenceRef":["E1"],"x":true}],"insights":[{"type":"volume","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":["l"]}`,
		"wrong case top":     `{"InsightSummary":"s","evidenceBullets":[{"text":"t","evidenceRef":["E1"]}],"insights":[{"type":"volume","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":["l"]}`,
		"wrong case nested":  `{"insightSummary":"s","EVIDENCEBULLETS":[{"Text":"t","evidenceRef":["E1"]}],"insights":[{"type":"volume","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":["l"]}`,
		"wrong case insight": `{"insightSummary":"s","evidenceBullets":[{"text":"t","evidenceRef":["E1"]}],"insights":[{"type":"volume","Title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":["l"]}`,
		"missing summary":    `{"evidenceBullets":[{"text":"t","evidenceRef":["E1"]}],"insights":[{"type":"volume","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],"limits":["l"]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInsight(decode(t, raw))
			assert.Error(t, err)
		})
	}

	_, err := ParseInsight("just text")
	assert.Error(t, err)
}

func TestParseRecommendation(t *testing.T) {
	ok := `{"summary":"Adjust creatives.","recommendations":[{"action":"Refresh creatives","reason":"Fatigue","confidence":"high","basedOn":["insight:creative_fatigue","evidence:E3"]}],"notes":"Review before applying."}`
	got, err := ParseRecommendation(decode(t, ok))
	require.NoError(t, err)
	assert.Len(t, got.Recommendations, 1)

	bad := `{"summary":"Adjust creatives.","recommendations":[{"action":"Pause low CTR ads","reason":"CTR dropped","confidence":"high","basedOn":["E3"]}],"notes":"Review before applying."}`
	_, err = ParseRecommendation(decode(t, bad))
	assert.Error(t, err)

	for _, raw := range []string{
		`{"Summary":"s","recommendations":[{"action":"a","reason":"r","confidence":"low","basedOn":["insight:volume"]}],"notes":"n"}`,
		`{"summary":"s","recommendations":[{"ACTION":"a","reason":"r","confidence":"low","basedOn":["insight:volume"]}],"notes":"n"}`,
	} {
		_, err = ParseRecommendation(decode(t, raw))
		assert.Error(t, err, raw)
	}

	prefixOnly := `{"summary":"s","recommendations":[{"action":"a","reason":"r","confidence":"low","basedOn":["insight:"]}],"notes":"n"}`
	_, err = ParseRecommendation(decode(t, prefixOnly))
	assert.Error(t, err)
}

func TestClampIsIdempotent(t *testing.T) {
	in := InsightJSON{
		InsightSummary:  "s",
		EvidenceBullets: make([]EvidenceBullet, 5),
		Insights:        make([]Insight, 4),
		Limits:          []string{"a", "b", "c", "d"},
	}
	once := ClampInsight(in)
	assert.Len(t, once.EvidenceBullets, 3)
	assert.Len(t, once.Insights, 2)
	assert.Len(t, once.Limits, 3)
	assert.Equal(t, once, ClampInsight(once))
	assert.Len(t, in.Limits, 4)

	r := ClampRecommendation(RecommendationJSON{Recommendations: make([]Recommendation, 5)})
	assert.Len(t, r.Recommendations, 3)
	assert.Equal(t, r, ClampRecommendation(r))
}
