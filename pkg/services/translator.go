package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/llm"
	"github.com/snowquery/engine/pkg/logging"
	"github.com/snowquery/engine/pkg/models"
)

const (
	// maxTranslateAttempts bounds parse retries: one initial call plus one
	// retry with a JSON-only amendment.
	maxTranslateAttempts = 2

	// historyPairWindow is the number of trailing question/answer pairs of
	// conversation history forwarded to the model.
	historyPairWindow = 3

	// translateTimeout caps one model call.
	translateTimeout = 90 * time.Second

	// rawResponseExcerptLen bounds the diagnostic excerpt included in the
	// final parse-failure message.
	rawResponseExcerptLen = 500
)

// jsonOnlyAmendment is appended to the system instruction on the retry
// attempt after a malformed response.
const jsonOnlyAmendment = "\n\nIMPORTANT: Your previous response was not valid JSON. " +
	"Return ONLY a JSON object with no other text, explanations, or markdown formatting."

// Translator turns a natural-language question into a candidate SQL
// statement via the language model. Parse failures never surface as Go
// errors; they come back as a TranslationResult with Error set.
type Translator struct {
	client   llm.CompletionClient
	builder  *ContextBuilder
	resolver *TenantConfigResolver
	logger   *zap.Logger
}

// NewTranslator creates a translator.
func NewTranslator(client llm.CompletionClient, builder *ContextBuilder, resolver *TenantConfigResolver, logger *zap.Logger) *Translator {
	return &Translator{
		client:   client,
		builder:  builder,
		resolver: resolver,
		logger:   logger.Named("translator"),
	}
}

// rawTranslation is the wire shape the model is instructed to return.
// String fields are raw so that non-string junk degrades instead of failing
// the whole decode.
type rawTranslation struct {
	SQL         *string           `json:"sql"`
	Explanation *string           `json:"explanation"`
	Assumptions []json.RawMessage `json:"assumptions"`
	Error       *string           `json:"error"`
}

// Translate produces a TranslationResult for the question. The returned
// error covers infrastructure failures only (config, schema, model
// transport); a model response that cannot be parsed after the retry is
// reported in-band via TranslationResult.Error.
func (t *Translator) Translate(ctx context.Context, question, tenantID string, history []models.ConversationTurn) (*models.TranslationResult, error) {
	cfg, err := t.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	contextDoc, err := t.builder.Build(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	system := buildSystemPrompt(contextDoc, cfg.Database, cfg.DefaultSchema(), cfg.MaxRowsPerQuery)
	messages := buildMessages(question, history)

	var lastRaw string
	for attempt := 1; attempt <= maxTranslateAttempts; attempt++ {
		prompt := system
		if attempt > 1 {
			prompt += jsonOnlyAmendment
		}

		callCtx, cancel := context.WithTimeout(ctx, translateTimeout)
		raw, err := t.client.Complete(callCtx, prompt, messages, 0)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		lastRaw = raw

		if result := parseTranslation(raw); result != nil {
			t.logger.Debug("translation parsed",
				zap.String("tenant_id", tenantID),
				zap.Int("attempt", attempt),
				zap.Bool("has_sql", result.SQL != nil),
			)
			return result, nil
		}

		t.logger.Warn("model response was not parseable JSON",
			zap.String("tenant_id", tenantID),
			zap.Int("attempt", attempt),
			zap.String("response", logging.TruncateString(raw, 200)),
		)
	}

	errText := fmt.Sprintf("Failed to parse response after %d attempts. Last response: %s",
		maxTranslateAttempts, logging.TruncateString(lastRaw, rawResponseExcerptLen))
	return &models.TranslationResult{
		Assumptions: []string{},
		Error:       &errText,
	}, nil
}

// parseTranslation extracts and validates one model response. A response
// counts only if it is a JSON object carrying explanation, assumptions, and
// one of sql/error; anything else returns nil and triggers the retry.
func parseTranslation(raw string) *models.TranslationResult {
	// Distinguish absent keys from null values: the model must emit the
	// full shape, not a fragment.
	keys, err := llm.ParseJSONResponse[map[string]json.RawMessage](raw)
	if err != nil {
		return nil
	}
	_, hasSQL := keys["sql"]
	_, hasError := keys["error"]
	_, hasExplanation := keys["explanation"]
	_, hasAssumptions := keys["assumptions"]
	if (!hasSQL && !hasError) || !hasExplanation || !hasAssumptions {
		return nil
	}

	parsed, err := llm.ParseJSONResponse[rawTranslation](raw)
	if err != nil {
		return nil
	}

	result := &models.TranslationResult{
		SQL:         emptyToNil(parsed.SQL),
		Explanation: emptyToNil(parsed.Explanation),
		Assumptions: []string{},
		Error:       emptyToNil(parsed.Error),
	}
	// Exactly one of sql/error survives: a response carrying both is
	// treated as a decline.
	if result.Error != nil {
		result.SQL = nil
	}
	for _, a := range parsed.Assumptions {
		var s string
		if err := json.Unmarshal(a, &s); err == nil {
			result.Assumptions = append(result.Assumptions, s)
		}
	}

	return result
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// buildMessages assembles the model conversation: the trailing history
// window with assistant turns reduced to short textual summaries, then the
// current question.
func buildMessages(question string, history []models.ConversationTurn) []llm.Message {
	window := historyWindow(history)

	messages := make([]llm.Message, 0, len(window)+1)
	for _, turn := range window {
		switch turn.Role {
		case models.TurnRoleUser:
			if turn.Text != "" {
				messages = append(messages, llm.Message{Role: llm.RoleUser, Content: turn.Text})
			}
		case models.TurnRoleAssistant:
			if summary := summarizeResponse(turn.Response); summary != "" {
				messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: summary})
			}
		}
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: question})
}

// historyWindow returns the suffix of history starting at the third-to-last
// user turn, so the window holds the last historyPairWindow questions with
// whatever answers follow them. Counting user turns rather than slicing a
// fixed turn count keeps the window correct when turns are not strictly
// alternating.
func historyWindow(history []models.ConversationTurn) []models.ConversationTurn {
	questions := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.TurnRoleUser {
			questions++
			if questions == historyPairWindow {
				return history[i:]
			}
		}
	}
	return history
}

// summarizeResponse reduces a prior structured response to a short textual
// summary: the generated SQL with explanation and row count, or the error.
func summarizeResponse(r *models.QueryResponse) string {
	if r == nil {
		return ""
	}

	if r.Error != nil {
		return fmt.Sprintf("I encountered an error: %s", *r.Error)
	}
	if r.SQL == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I generated this SQL:\n%s", *r.SQL)
	if r.Explanation != nil {
		fmt.Fprintf(&b, "\n\nExplanation: %s", *r.Explanation)
	}
	plural := "s"
	if r.RowCount == 1 {
		plural = ""
	}
	fmt.Fprintf(&b, "\n\nQuery returned %d row%s.", r.RowCount, plural)
	return b.String()
}

// buildSystemPrompt embeds the context document in the fixed instruction
// set: read-only SQL, fully qualified quoted identifiers, the tenant's row
// cap, and the strict JSON response contract.
func buildSystemPrompt(contextDoc, database, schema string, maxRows int) string {
	return fmt.Sprintf(`You are an expert SQL analyst that translates natural language questions into SQL queries.
You deeply understand the business context and data model described below.

%s

## Rules

1. ONLY generate SELECT statements. Never INSERT, UPDATE, DELETE, DROP, CREATE, ALTER, or any DDL/DML.
2. Always qualify table names: %s.%s."TABLE_NAME"
3. Use double quotes around identifiers.
4. Limit results to %d rows unless the user specifies otherwise.
5. Use meaningful column aliases for aggregations (e.g. total_cost, member_count).
6. When the user uses business terms or synonyms, map them to the correct columns using the metadata above.
7. Respect the documented table grain — don't accidentally double-count by ignoring join cardinality.
8. Apply common filters when contextually appropriate (e.g. filter to PAID claims unless user asks for all).
9. Use the documented join paths when combining tables.
10. If a question is ambiguous, use the business glossary and column descriptions to make the best interpretation, and note your assumptions.
11. If you genuinely cannot answer with the available schema, explain why.

## Response Format

CRITICAL: Respond with ONLY a JSON object. Do not include any text before or after the JSON. Do not wrap in markdown code blocks. Do not add explanations outside the JSON structure.

Format for successful queries:
{
    "sql": "YOUR SQL QUERY",
    "explanation": "Brief explanation in plain English",
    "assumptions": ["any assumptions you made"],
    "error": null
}

Format when you cannot generate SQL:
{
    "sql": null,
    "explanation": null,
    "assumptions": [],
    "error": "Why the query cannot be generated"
}

Example valid response:
{"sql": "SELECT COUNT(*) as member_count FROM DATABASE.SCHEMA.\"MEMBERS\" LIMIT 100", "explanation": "Counts total members", "assumptions": ["All members in table"], "error": null}`,
		contextDoc, database, schema, maxRows)
}
