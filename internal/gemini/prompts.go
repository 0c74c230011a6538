package gemini

import (
	"fmt"
	"strings"

	"github.com/rbright/rehearse/internal/interview"
)

const delimiter = "####"

const (
	questionSystem = "You are a professional interviewer. Reply only with a JSON array of objects shaped {\"question\": \"...\"}."
	analysisSystem = "You are a professional interview coach. Evaluate the answer's content and delivery. " +
		"Reply only with JSON {\"analysis_content\": string, \"analysis_delivery\": string, \"score\": integer 0-100}."
	summarySystem = "You are a professional interview coach. Review every answer and reply only with JSON " +
		"{\"strengths\": [string], \"weaknesses\": [string], \"tips\": [string], \"overall_score\": number 0-100}."
)

func questionPrompt(role string, note string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		role = "software engineer"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s Role: %s\n", delimiter, role)
	if n := strings.TrimSpace(note); n != "" {
		fmt.Fprintf(&b, "Notes: %s\n", n)
	}
	fmt.Fprintf(&b, "%s\nWrite three interview questions for this role.", delimiter)
	return b.String()
}

func analysisPrompt(question string, response string) string {
	return fmt.Sprintf("%s Question: %s\nResponse: %s\n%s", delimiter, question, response, delimiter)
}

func summaryPrompt(items []interview.SummaryItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Candidate Responses:\n", delimiter)
	for _, item := range items {
		response := "(no answer)"
		if item.Response != nil {
			response = *item.Response
		}
		fmt.Fprintf(&b, "Q: %q A: %q", item.Question, response)
		if item.Score != nil {
			fmt.Fprintf(&b, " Score: %.0f", *item.Score)
		}
		b.WriteByte('\n')
	}
	b.WriteString(delimiter)
	return b.String()
}
