package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

const layoutModelName = "gemini-1.5-pro"

// LayoutSystemPrompt frames the transcript reading task.
const LayoutSystemPrompt = "You are a document parser for university admissions. You read academic transcripts and list their course rows with the credit values exactly as printed. You must output your response as a valid JSON array."

// VertexClient holds the pre-configured generative models of the app.
type VertexClient struct {
	LayoutModel *genai.GenerativeModel
	baseClient  *genai.Client
}

// NewVertexClient creates a client holding the transcript layout model.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	layoutModel := baseClient.GenerativeModel(layoutModelName)
	layoutModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(LayoutSystemPrompt)},
	}
	layoutModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	layoutModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		LayoutModel: layoutModel,
		baseClient:  baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
