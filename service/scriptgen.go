package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"BlockReel-server/logger"
)

// BlockDraft is one generated scene before persistence.
type BlockDraft struct {
	Kind           string `json:"type"`
	DurationTarget int    `json:"durationTarget"`
	Script         string `json:"script"`
	Instructions   string `json:"userInstructions"`
	VisualPrompt   string `json:"visualPrompt"`
}

// ScriptGenerator turns a content idea into an ordered block plan.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, intent, draft string) ([]BlockDraft, error)
}

// GoogleScriptGenerator implements ScriptGenerator against the Gemini REST
// API with a constrained JSON response schema.
type GoogleScriptGenerator struct {
	baseURL string
	model   string
	pool    *KeyPool
	http    *http.Client
	log     *logger.Logger
}

func NewGoogleScriptGenerator(model string, pool *KeyPool, log *logger.Logger) *GoogleScriptGenerator {
	return &GoogleScriptGenerator{
		baseURL: defaultVeoBaseURL,
		model:   model,
		pool:    pool,
		http:    &http.Client{Timeout: 2 * time.Minute},
		log:     log.With("service", "scriptgen"),
	}
}

const scriptPrompt = `Eres un experto director de videos cortos verticales. Crea un guion viral basado en la entrada del usuario.

Intención: %s
Borrador/Idea del Usuario: %q

Crea una lista de "bloques" (escenas). El video completo debe durar menos de 20 segundos.

Tipos de bloque:
- NARRATOR: la persona hablando a cámara.
- SHOWCASE: b-roll del producto o sujeto con voz en off.

Restricciones:
- Cada bloque DEBE durar exactamente 4, 6 u 8 segundos.
- El guion y las instrucciones deben estar en ESPAÑOL.
- "visualPrompt" describe la escena para un generador de video.

Devuelve un objeto JSON con una única clave "blocks".`

func (g *GoogleScriptGenerator) GenerateScript(ctx context.Context, intent, draft string) ([]BlockDraft, error) {
	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": fmt.Sprintf(scriptPrompt, intent, draft)}}},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
			"responseSchema": map[string]interface{}{
				"type": "OBJECT",
				"properties": map[string]interface{}{
					"blocks": map[string]interface{}{
						"type": "ARRAY",
						"items": map[string]interface{}{
							"type": "OBJECT",
							"properties": map[string]interface{}{
								"type":             map[string]interface{}{"type": "STRING", "enum": []string{"NARRATOR", "SHOWCASE"}},
								"durationTarget":   map[string]interface{}{"type": "NUMBER", "enum": []int{4, 6, 8}},
								"script":           map[string]interface{}{"type": "STRING"},
								"userInstructions": map[string]interface{}{"type": "STRING"},
								"visualPrompt":     map[string]interface{}{"type": "STRING"},
							},
							"required": []string{"type", "durationTarget", "script", "userInstructions", "visualPrompt"},
						},
					},
				},
				"required": []string{"blocks"},
			},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	key, err := g.pool.take(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("script generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyGoogleStatus(resp.StatusCode, "script generation")
	}

	var decoded struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode script response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("script generation returned no candidates")
	}

	text := strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text)
	var plan struct {
		Blocks []BlockDraft `json:"blocks"`
	}
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("parse generated script: %w", err)
	}
	if len(plan.Blocks) == 0 {
		return nil, fmt.Errorf("generated script contains no blocks")
	}
	return plan.Blocks, nil
}
