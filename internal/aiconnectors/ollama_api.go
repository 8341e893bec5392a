package aiconnectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaModel represents a model from Ollama API
type OllamaModel struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// OllamaModelsResponse represents the response from Ollama /api/tags endpoint
type OllamaModelsResponse struct {
	Models []OllamaModel `json:"models"`
}

// FetchOllamaModels lists the models available on an Ollama server.
func FetchOllamaModels(ctx context.Context, client *http.Client, serverURL string, token string) ([]OllamaModel, error) {
	apiURL := strings.TrimSuffix(serverURL, "/") + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama API returned status %d", resp.StatusCode)
	}

	var ollamaResp OllamaModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to parse Ollama response: %w", err)
	}
	return ollamaResp.Models, nil
}

// ValidateOllamaConnection validates the connection to an Ollama instance
func ValidateOllamaConnection(ctx context.Context, client *http.Client, serverURL string, token string) error {
	models, err := FetchOllamaModels(ctx, client, serverURL, token)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return fmt.Errorf("no models found in Ollama instance at %s", serverURL)
	}
	return nil
}
