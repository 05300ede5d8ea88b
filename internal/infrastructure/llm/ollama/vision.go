package ollama

import (
	"context"
	"encoding/base64"
)

// VisionOCR reads text from images with a multimodal model.
type VisionOCR struct {
	client *Client
}

func NewVisionOCR(client *Client) *VisionOCR {
	return &VisionOCR{client: client}
}

func (v *VisionOCR) RecognizeText(ctx context.Context, image []byte, _ string) (string, error) {
	return v.client.generate(ctx, "ocr", generateRequest{
		Model:   v.client.cfg.VisionModel,
		Prompt:  visionPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
		Options: modelOptions{Temperature: 0},
	})
}
