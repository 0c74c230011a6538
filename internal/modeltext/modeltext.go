// Package modeltext turns free-form model replies into structured values.
package modeltext

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rbright/rehearse/internal/interview"
	"golang.org/x/text/unicode/norm"
)

const reasoningEnd = "</think>"

var (
	fencePattern    = regexp.MustCompile("```(?:json)?\\s*")
	contentPattern  = regexp.MustCompile(`(?s)"analysis_content"\s*:\s*"(.*?)"\s*,\s*"analysis_delivery"`)
	deliveryPattern = regexp.MustCompile(`(?s)"analysis_delivery"\s*:\s*"(.*?)"\s*,\s*"score"`)
	scorePattern    = regexp.MustCompile(`"score"\s*:\s*(\d+)`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

// Normalize composes text to NFC and collapses whitespace runs.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// StripReasoning drops everything up to and including the reasoning end marker.
func StripReasoning(text string) string {
	if _, after, ok := strings.Cut(text, reasoningEnd); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(text)
}

// StripFences removes markdown code fences.
func StripFences(text string) string {
	text = fencePattern.ReplaceAllString(text, "")
	return strings.TrimSpace(strings.ReplaceAll(text, "```", ""))
}

// ParseAnalysis extracts analysis fields from a model reply. Missing fields
// stay empty and a missing score stays nil.
func ParseAnalysis(text string) interview.Analysis {
	body := StripReasoning(text)

	var analysis interview.Analysis
	if m := contentPattern.FindStringSubmatch(body); m != nil {
		analysis.Content = unescape(m[1])
	}
	if m := deliveryPattern.FindStringSubmatch(body); m != nil {
		analysis.Delivery = unescape(m[1])
	}
	if m := scorePattern.FindStringSubmatch(body); m != nil {
		if score, err := strconv.Atoi(m[1]); err == nil {
			analysis.Score = interview.Float(float64(score))
		}
	}
	return analysis
}

func unescape(raw string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &out); err == nil {
		return out
	}
	return raw
}

// ParseSummary reads a JSON summary object, falling back to plain text.
// List fields are joined one item per line.
func ParseSummary(text string) interview.OverallSummary {
	body := StripFences(StripReasoning(text))

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return interview.OverallSummary{Text: body}
	}

	summary := interview.OverallSummary{
		Strengths:  textField(raw["strengths"]),
		Weaknesses: textField(raw["weaknesses"]),
		Tips:       textField(raw["tips"]),
		Text:       textField(raw["text"]),
	}
	if score, ok := raw["overall_score"]; ok {
		var v float64
		if err := json.Unmarshal(score, &v); err == nil {
			summary.OverallScore = interview.Float(v)
		}
	}
	return summary
}

func textField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "\n")
	}
	return ""
}

type questionItem struct {
	Question string `json:"question"`
}

// ParseQuestions reads a question list from a model reply. Items whose text
// is itself a fenced JSON question list are flattened.
func ParseQuestions(text string) []string {
	body := StripFences(StripReasoning(text))

	var items []questionItem
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil
	}
	return cleanQuestions(items)
}

// CleanQuestionList applies ParseQuestions flattening to already decoded prompts.
func CleanQuestionList(prompts []string) []string {
	items := make([]questionItem, len(prompts))
	for i, p := range prompts {
		items[i] = questionItem{Question: p}
	}
	return cleanQuestions(items)
}

// cleanQuestions flattens nested lists and drops blank prompts.
func cleanQuestions(items []questionItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		q := StripFences(item.Question)
		var nested []questionItem
		if err := json.Unmarshal([]byte(q), &nested); err == nil && len(nested) > 0 {
			for _, n := range nested {
				if p := Normalize(n.Question); p != "" {
					out = append(out, p)
				}
			}
			continue
		}
		if p := Normalize(q); p != "" {
			out = append(out, p)
		}
	}
	return out
}
