package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/duckmesh/insightbot/internal/classify"
)

const (
	insightSampleRows  = 5
	followUpContextCap = 300
)

const sqlSystemPrompt = "You are a business analytics assistant that turns questions about tabular data into a single " +
	"read-only SQL query for DuckDB (PostgreSQL-like syntax). Always answer in the language of the question."

const insightSystemPrompt = "You are a business analyst. Respond in the same language as the question."

func BuildSQLPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("LANGUAGE DETECTION:\n")
	b.WriteString("- If the question is in Spanish, respond entirely in Spanish.\n")
	b.WriteString("- If the question is in English, respond entirely in English.\n\n")

	b.WriteString("QUESTION TYPES:\n")
	b.WriteString("1. DATA QUERIES: generate SQL for business data analysis.\n")
	b.WriteString("2. TRIVIAL/GENERAL QUESTIONS (greetings, identity): answer directly without SQL.\n")
	b.WriteString("3. META QUESTIONS: about the conversation itself.\n\n")

	if s := strings.TrimSpace(req.SchemaContext); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	if req.Concept != nil {
		fmt.Fprintf(&b, "RELEVANT BUSINESS CONCEPT: %s\n", req.Concept.NaturalTerm)
		fmt.Fprintf(&b, "Suggested SQL pattern: %s\n", req.Concept.SQL(req.PrimaryTable))
		if len(req.Concept.RequiredColumns) > 0 {
			fmt.Fprintf(&b, "Required columns: %s\n", strings.Join(req.Concept.RequiredColumns, ", "))
		}
		b.WriteString("\n")
	}
	if s := strings.TrimSpace(req.ConversationContext); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	if req.FollowUp != nil {
		b.WriteString("FOLLOW-UP QUESTION DETECTED:\n")
		b.WriteString("The user is referencing something from the previous conversation.\n")
		fmt.Fprintf(&b, "Previous questions: %s\n", truncateRunes(req.FollowUp.PriorContext, followUpContextCap))
		b.WriteString("CRITICAL: only answer based on what was actually mentioned in previous questions. ")
		b.WriteString("If the user asks about something not mentioned before, say so clearly, set confidence to 0.1 ")
		b.WriteString("and requires_execution to false.\n\n")
	}
	if guidance := categoryGuidance(req.Category); guidance != "" {
		fmt.Fprintf(&b, "DETECTED QUESTION TYPE: %s\n\n", guidance)
	}

	fmt.Fprintf(&b, "QUESTION: %s\n\n", strings.TrimSpace(req.Question))

	b.WriteString("REQUIREMENTS FOR DATA QUERIES:\n")
	b.WriteString("- Use only the tables and columns listed above; JOIN on the listed relationships when master data is needed.\n")
	b.WriteString("- Generate clean SQL without markdown backticks.\n")
	b.WriteString("- Only SELECT or WITH queries; never modify data.\n")
	b.WriteString("- Use proper aggregations and filters, limit results to the most relevant (TOP 10 unless specified).\n")
	b.WriteString("- For greetings, identity, or questions not about the data set requires_execution to false.\n\n")
	b.WriteString("Return a structured response with sql, reasoning, business_context, confidence and requires_execution.")
	return b.String()
}

func BuildInsightPrompt(req InsightRequest) (string, error) {
	records := req.Records
	if len(records) > insightSampleRows {
		records = records[:insightSampleRows]
	}
	summary, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result records: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL QUESTION: %s\n\n", strings.TrimSpace(req.Question))
	fmt.Fprintf(&b, "QUERY RESULTS:\n%s\n\n", summary)
	b.WriteString("Provide:\n")
	b.WriteString("1. Key finding in business terms (in the question's language)\n")
	b.WriteString("2. Supporting metrics from the data\n")
	b.WriteString("3. Actionable recommendations\n")
	b.WriteString("4. Follow-up questions to explore\n\n")
	b.WriteString("Focus on business value and actionable insights.")
	return b.String(), nil
}

func categoryGuidance(category classify.Category) string {
	switch category {
	case classify.CategoryMeta:
		return "meta question about this conversation; answer from the conversation history and set requires_execution to false"
	case classify.CategoryGreeting:
		return "greeting; answer directly and set requires_execution to false"
	case classify.CategoryIdentity:
		return "question about the assistant; answer directly and set requires_execution to false"
	case classify.CategoryFollowUp:
		return "follow-up on earlier questions"
	default:
		return ""
	}
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
