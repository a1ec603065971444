package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"atelier-service/config"
	"atelier-service/internal/util"

	"go.uber.org/zap"
)

// Provider names
const (
	ProviderOllama      = "ollama"
	ProviderHuggingFace = "huggingface"
	ProviderFallback    = "fallback"
)

const systemPrompt = `Bạn là trợ lý tư vấn thời trang của VHA Atelier. Hãy trả lời bằng tiếng Việt, ngắn gọn, thân thiện và lịch sự.
Bạn giúp khách hàng chọn sản phẩm, tư vấn kích cỡ, phối đồ, và giải đáp về giao hàng, thanh toán (COD hoặc chuyển khoản QR), đổi trả.
Nếu không chắc chắn, hãy đề nghị khách liên hệ bộ phận chăm sóc khách hàng.`

var fallbackResponses = []string{
	"Xin chào! Cảm ơn bạn đã liên hệ VHA Atelier. Bạn đang tìm kiếm sản phẩm nào để mình tư vấn nhé?",
	"VHA Atelier có nhiều mẫu áo, quần và phụ kiện mới. Bạn có thể cho mình biết kích cỡ và phong cách bạn thích không?",
	"Cảm ơn bạn! Hiện trợ lý đang bận, bạn vui lòng để lại câu hỏi hoặc liên hệ hotline để được hỗ trợ nhanh nhất nhé.",
}

var errEmptyResponse = errors.New("provider returned an empty response")

// ChatResponse is the outcome of one generation
type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Provider string `json:"provider"`
	Fallback bool   `json:"fallback"`
}

// ResponseGenerator produces an assistant reply for a user message. history
// holds earlier transcript lines, oldest first.
type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, userMessage string, history []string) (*ChatResponse, error)
	Name() string
}

// NewResponseGenerator picks the provider named in cfg. Live providers are
// wrapped so that any failure yields a fallback reply.
func NewResponseGenerator(cfg config.ChatbotConfig) ResponseGenerator {
	client := &http.Client{Timeout: cfg.Timeout}
	fallback := NewFallbackProvider()

	switch cfg.Provider {
	case ProviderOllama:
		return withFallback(&OllamaProvider{baseURL: strings.TrimRight(cfg.OllamaURL, "/"), model: cfg.OllamaModel, client: client}, fallback)
	case ProviderHuggingFace:
		if cfg.HuggingFaceAPIKey == "" {
			util.GetLogger().Warn("HUGGINGFACE_API_KEY not set, chatbot uses fallback replies")
			return fallback
		}
		return withFallback(&HuggingFaceProvider{
			baseURL: huggingFaceBaseURL,
			model:   cfg.HuggingFaceModel,
			apiKey:  cfg.HuggingFaceAPIKey,
			client:  client,
		}, fallback)
	default:
		return fallback
	}
}

// BuildPrompt joins the system prompt, the history lines and the user message.
func BuildPrompt(userMessage string, history []string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	if len(history) > 0 {
		b.WriteString("Lịch sử hội thoại:\n")
		for _, line := range history {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	b.WriteString("Khách hàng: ")
	b.WriteString(userMessage)
	b.WriteString("\nTrợ lý:")
	return b.String()
}

// OllamaProvider calls a local Ollama server
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

func (p *OllamaProvider) Name() string { return ProviderOllama }

func (p *OllamaProvider) GenerateResponse(ctx context.Context, userMessage string, history []string) (*ChatResponse, error) {
	payload := map[string]interface{}{
		"model":  p.model,
		"prompt": BuildPrompt(userMessage, history),
		"stream": false,
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := postJSON(ctx, p.client, p.baseURL+"/api/generate", "", payload, &out); err != nil {
		return nil, err
	}
	return textResponse(out.Response, ProviderOllama)
}

const huggingFaceBaseURL = "https://api-inference.huggingface.co/models"

// HuggingFaceProvider calls the hosted inference API
type HuggingFaceProvider struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

func (p *HuggingFaceProvider) Name() string { return ProviderHuggingFace }

func (p *HuggingFaceProvider) GenerateResponse(ctx context.Context, userMessage string, history []string) (*ChatResponse, error) {
	payload := map[string]interface{}{
		"inputs": BuildPrompt(userMessage, history),
		"parameters": map[string]interface{}{
			"max_new_tokens":   250,
			"temperature":      0.7,
			"return_full_text": false,
		},
	}
	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := postJSON(ctx, p.client, p.baseURL+"/"+p.model, p.apiKey, payload, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errEmptyResponse
	}
	return textResponse(out[0].GeneratedText, ProviderHuggingFace)
}

// FallbackProvider answers with one of a few canned replies
type FallbackProvider struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewFallbackProvider() *FallbackProvider {
	return &FallbackProvider{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (p *FallbackProvider) Name() string { return ProviderFallback }

func (p *FallbackProvider) GenerateResponse(ctx context.Context, userMessage string, history []string) (*ChatResponse, error) {
	p.mu.Lock()
	i := p.rnd.Intn(len(fallbackResponses))
	p.mu.Unlock()
	return &ChatResponse{Success: true, Response: fallbackResponses[i], Provider: ProviderFallback, Fallback: true}, nil
}

// fallbackGenerator delegates to a live provider and answers from the
// fallback when it fails. It never returns an error.
type fallbackGenerator struct {
	primary  ResponseGenerator
	fallback ResponseGenerator
	logger   *zap.Logger
}

func withFallback(primary, fallback ResponseGenerator) ResponseGenerator {
	return &fallbackGenerator{primary: primary, fallback: fallback, logger: util.GetLogger()}
}

func (g *fallbackGenerator) Name() string { return g.primary.Name() }

func (g *fallbackGenerator) GenerateResponse(ctx context.Context, userMessage string, history []string) (*ChatResponse, error) {
	start := time.Now()
	resp, err := g.primary.GenerateResponse(ctx, userMessage, history)
	util.ChatbotLatency.WithLabelValues(g.primary.Name()).Observe(time.Since(start).Seconds())
	if err == nil {
		return resp, nil
	}

	g.logger.Warn("Chatbot provider failed, using fallback",
		zap.String("provider", g.primary.Name()),
		zap.Error(err),
	)
	return g.fallback.GenerateResponse(ctx, userMessage, history)
}

func textResponse(text, provider string) (*ChatResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errEmptyResponse
	}
	return &ChatResponse{Success: true, Response: text, Provider: provider}, nil
}

func postJSON(ctx context.Context, client *http.Client, url, bearer string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
