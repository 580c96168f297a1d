package llmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"github.com/treewskyblue/Medvise/internal/models"
)

// Turn is one prior chat message. Clients send either "type" or "role".
type Turn struct {
	Type    string `json:"type,omitempty"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

func (t Turn) fromUser() bool {
	return t.Type == "user" || t.Role == "user"
}

// ExtractionResult holds the lab values found in a message and the model's answer
type ExtractionResult struct {
	Values map[models.Field]float64
	Text   string
}

// Complete reports whether every required field was extracted
func (r ExtractionResult) Complete() bool {
	for _, f := range models.RequiredFields {
		if _, ok := r.Values[f]; !ok {
			return false
		}
	}
	return true
}

// Ordered returns the values in models.RequiredFields order. Call only when Complete.
func (r ExtractionResult) Ordered() []float64 {
	out := make([]float64, 0, len(models.RequiredFields))
	for _, f := range models.RequiredFields {
		out = append(out, r.Values[f])
	}
	return out
}

var extractionTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        models.ExtractionToolName,
		Description: "Extract the patient's blood test values.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				string(models.FieldGlucose):      numberParam("Glucose level (mg/dL)"),
				string(models.FieldAlbumin):      numberParam("Albumin level (g/dL)"),
				string(models.FieldBUN):          numberParam("Blood urea nitrogen, BUN (mg/dL)"),
				string(models.FieldPhosphorus):   numberParam("Phosphorus level (mg/dL)"),
				string(models.FieldTotalProtein): numberParam("Total protein level (g/dL)"),
			},
			"required": []string{},
		},
	},
}

func numberParam(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

type Extractor struct {
	model   Model
	timeout time.Duration
	log     zerolog.Logger
}

func NewExtractor(model Model, timeout time.Duration, log zerolog.Logger) *Extractor {
	return &Extractor{model: model, timeout: timeout, log: log}
}

// Extract asks the model for an answer and for any lab values in message.
// Malformed tool arguments count as no values. A failed model call returns
// the fallback text together with an error wrapping ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, message string, history []Turn, guidelineContext string) (ExtractionResult, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.model.GenerateContent(ctx, buildMessages(message, history, guidelineContext), llms.WithTools([]llms.Tool{extractionTool}))
	if err != nil {
		return ExtractionResult{Text: models.ExtractionFallback}, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return ExtractionResult{Text: models.ExtractionFallback}, fmt.Errorf("%w: empty response", models.ErrExtraction)
	}

	choice := resp.Choices[0]
	res := ExtractionResult{Values: map[models.Field]float64{}, Text: choice.Content}
	if strings.TrimSpace(res.Text) == "" {
		res.Text = models.EmptyAnswerFallback
	}

	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil || call.FunctionCall.Name != models.ExtractionToolName {
			continue
		}
		values, err := parseArguments(call.FunctionCall.Arguments)
		if err != nil {
			e.log.Warn().Err(err).Msg("Malformed extraction arguments")
			continue
		}
		for f, v := range values {
			res.Values[f] = v
		}
	}

	e.log.Debug().Int("fields", len(res.Values)).Bool("complete", res.Complete()).Msg("Extraction finished")
	return res, nil
}

func buildMessages(message string, history []Turn, guidelineContext string) []llms.MessageContent {
	system := models.NoContextPrompt
	if strings.TrimSpace(guidelineContext) != "" {
		system = fmt.Sprintf(models.ContextPromptTemplate, guidelineContext)
	}

	msgs := make([]llms.MessageContent, 0, len(history)+2)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, t := range history {
		role := llms.ChatMessageTypeAI
		if t.fromUser() {
			role = llms.ChatMessageTypeHuman
		}
		msgs = append(msgs, llms.TextParts(role, t.Content))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, message))
}

// parseArguments keeps the known fields whose values are numbers or numeric strings
func parseArguments(args string) (map[models.Field]float64, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(args), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}

	out := map[models.Field]float64{}
	for _, f := range models.RequiredFields {
		switch v := raw[string(f)].(type) {
		case float64:
			out[f] = v
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				out[f] = n
			}
		}
	}
	return out, nil
}
