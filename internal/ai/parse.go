package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"activity-categorizer/internal/models"
)

const (
	defaultConfidence = 0.5
	defaultReason     = "Unable to categorize"
)

type classifyResponse struct {
	Suggestions []rawVerdict `json:"suggestions"`
}

type rawVerdict struct {
	Domain      string  `json:"domain"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// stripFences removes a markdown code fence some models wrap JSON in
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// parseVerdicts decodes a classifier response into exactly one verdict per
// sample, in sample order. Samples the response does not address, or
// addresses with an unknown category, get the neutral default.
func parseVerdicts(content string, samples []DomainSample, taxonomy *models.Taxonomy) ([]DomainVerdict, error) {
	var resp classifyResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
		return nil, fmt.Errorf("%w: unparseable response: %v", ErrClassifier, err)
	}

	byDomain := make(map[string]rawVerdict, len(resp.Suggestions))
	for _, v := range resp.Suggestions {
		d := strings.ToLower(strings.TrimSpace(v.Domain))
		if _, seen := byDomain[d]; !seen {
			byDomain[d] = v
		}
	}

	out := make([]DomainVerdict, 0, len(samples))
	for _, s := range samples {
		out = append(out, toVerdict(s.Domain, byDomain[strings.ToLower(s.Domain)], taxonomy))
	}
	return out, nil
}

func toVerdict(domain string, raw rawVerdict, taxonomy *models.Taxonomy) DomainVerdict {
	v := DomainVerdict{
		Domain:     domain,
		Category:   models.CategoryNeutral,
		Confidence: defaultConfidence,
		Reason:     defaultReason,
	}

	category, err := models.ParseCategory(raw.Category)
	if err != nil {
		return v
	}
	v.Category = category

	if raw.Confidence > 0 && raw.Confidence <= 1 {
		v.Confidence = raw.Confidence
	}
	if r := strings.TrimSpace(raw.Reason); r != "" {
		v.Reason = r
	}

	sub := models.Subcategory(strings.ToLower(strings.TrimSpace(raw.Subcategory)))
	if sub != "" && taxonomy.Consistent(category, &sub) {
		v.Subcategory = &sub
	}

	return v
}
