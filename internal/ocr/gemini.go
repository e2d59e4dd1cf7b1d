package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// textPrompt asks for a plain transcription, the cloud equivalent of
// sparse text detection.
const textPrompt = `Read all text visible in this receipt image and transcribe it exactly as printed, one receipt line per output line. Preserve the original line order.

Return ONLY valid JSON in this exact format:
{
  "text": "the full transcription with \n between lines",
  "confidence": 0.0
}

The confidence must be a number between 0.0 and 1.0 reflecting how legible the text was. Do not use markdown code blocks.`

// documentPrompt asks for a layout-aware reading, the cloud equivalent
// of dense document detection. It is slower but handles skewed or
// low-contrast receipts better.
const documentPrompt = `This is a photograph of a paper receipt, possibly skewed, crumpled or poorly lit. Analyze the document structure (header, line items, totals block, footer) and transcribe every word, keeping columns on the same line separated by spaces and one receipt line per output line.

Return ONLY valid JSON in this exact format:
{
  "text": "the full transcription with \n between lines",
  "confidence": 0.0
}

The confidence must be a number between 0.0 and 1.0 reflecting how legible the text was. Do not use markdown code blocks.`

// Gemini extracts receipt text through the Gemini API. The prompt
// selects between plain text transcription and document-structured
// transcription.
type Gemini struct {
	name   string
	client *genai.Client
	model  *genai.GenerativeModel
	prompt string
}

// NewGeminiText creates the primary cloud engine (plain transcription).
func NewGeminiText(apiKey, modelName string) (*Gemini, error) {
	return newGemini("gemini_text", apiKey, modelName, textPrompt)
}

// NewGeminiDocument creates the document-mode cloud engine.
func NewGeminiDocument(apiKey, modelName string) (*Gemini, error) {
	return newGemini("gemini_document", apiKey, modelName, documentPrompt)
}

func newGemini(name, apiKey, modelName, prompt string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		name:   name,
		client: client,
		model:  client.GenerativeModel(modelName),
		prompt: prompt,
	}, nil
}

// Name implements Engine.
func (g *Gemini) Name() string { return g.name }

// Recognize implements Engine.
func (g *Gemini) Recognize(ctx context.Context, pngData []byte) (Attempt, error) {
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(g.prompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return Attempt{}, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Attempt{}, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return parseAttemptJSON(responseText.String())
}

// Close closes the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// parseAttemptJSON parses the engine JSON response, tolerating markdown
// code fences and surrounding prose. A parseable response with no text
// is a valid empty attempt, not an error.
func parseAttemptJSON(text string) (Attempt, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return Attempt{}, fmt.Errorf("no JSON object found in response")
	}
	text = text[startIdx : endIdx+1]

	var att Attempt
	if err := json.Unmarshal([]byte(text), &att); err != nil {
		return Attempt{}, fmt.Errorf("unmarshaling json: %w", err)
	}

	if att.Confidence < 0 {
		att.Confidence = 0
	}
	if att.Confidence > 1 {
		att.Confidence = 1
	}
	if strings.TrimSpace(att.Text) == "" {
		return Attempt{Text: "", Confidence: 0}, nil
	}
	return att, nil
}
