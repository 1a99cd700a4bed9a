package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	genlang "google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const generativeLanguageScope = "https://www.googleapis.com/auth/generative-language"

// Default model names.
const (
	DefaultTextModel  = "gemini-2.0-flash"
	DefaultImageModel = "gemini-2.0-flash-preview-image-generation"
	DefaultTTSModel   = "gemini-2.5-flash-preview-tts"
	DefaultVoice      = "Algenib"
)

// GeminiConfig selects the models used for each kind of output.
type GeminiConfig struct {
	TextModel  string
	ImageModel string
	TTSModel   string
}

func (c GeminiConfig) withDefaults() GeminiConfig {
	if c.TextModel == "" {
		c.TextModel = DefaultTextModel
	}
	if c.ImageModel == "" {
		c.ImageModel = DefaultImageModel
	}
	if c.TTSModel == "" {
		c.TTSModel = DefaultTTSModel
	}
	return c
}

// GeminiModel talks to the Generative Language API.
type GeminiModel struct {
	svc *genlang.Service
	cfg GeminiConfig
}

// NewGeminiModel authenticates with apiKey, or with application default
// credentials when apiKey is empty.
func NewGeminiModel(ctx context.Context, apiKey string, cfg GeminiConfig) (*GeminiModel, error) {
	var opts []option.ClientOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		ts, err := google.DefaultTokenSource(ctx, generativeLanguageScope)
		if err != nil {
			return nil, fmt.Errorf("%w: no api key and no default credentials: %w", ErrCapability, err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	svc, err := genlang.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapability, err)
	}
	return &GeminiModel{svc: svc, cfg: cfg.withDefaults()}, nil
}

func (g *GeminiModel) modelFor(req Request) string {
	name := g.cfg.TextModel
	switch {
	case req.wants(ModalityAudio):
		name = g.cfg.TTSModel
	case req.wants(ModalityImage):
		name = g.cfg.ImageModel
	}
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}
	return name
}

func (g *GeminiModel) Generate(ctx context.Context, req Request) (*Response, error) {
	body, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	model := g.modelFor(req)
	resp, err := g.svc.Models.GenerateContent(model, body).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCapability, model, err)
	}
	return parseResponse(resp)
}

func buildRequest(req Request) (*genlang.GenerateContentRequest, error) {
	out := &genlang.GenerateContentRequest{}
	if req.System != "" {
		out.SystemInstruction = &genlang.Content{Parts: []*genlang.Part{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		c := &genlang.Content{Role: m.Role}
		if m.Text != "" {
			c.Parts = append(c.Parts, &genlang.Part{Text: m.Text})
		}
		for _, tc := range m.ToolCalls {
			args, err := sonic.Marshal(tc.Args)
			if err != nil {
				return nil, fmt.Errorf("%w: encode tool args: %w", ErrCapability, err)
			}
			c.Parts = append(c.Parts, &genlang.Part{FunctionCall: &genlang.FunctionCall{Name: tc.Name, Args: googleapi.RawMessage(args)}})
		}
		for _, tr := range m.ToolResults {
			payload, err := sonic.Marshal(map[string]any{"result": tr.Result})
			if err != nil {
				return nil, fmt.Errorf("%w: encode tool result: %w", ErrCapability, err)
			}
			c.Parts = append(c.Parts, &genlang.Part{FunctionResponse: &genlang.FunctionResponse{Name: tr.Name, Response: googleapi.RawMessage(payload)}})
		}
		out.Contents = append(out.Contents, c)
	}

	cfg := &genlang.GenerationConfig{}
	used := false
	if req.Schema != nil {
		cfg.ResponseMimeType = "application/json"
		cfg.ResponseSchema = toGenlangSchema(req.Schema)
		used = true
	}
	if len(req.Modalities) > 0 {
		cfg.ResponseModalities = req.Modalities
		used = true
	}
	if req.wants(ModalityAudio) {
		voice := req.Voice
		if voice == "" {
			voice = DefaultVoice
		}
		cfg.SpeechConfig = &genlang.SpeechConfig{
			VoiceConfig: &genlang.VoiceConfig{
				PrebuiltVoiceConfig: &genlang.PrebuiltVoiceConfig{VoiceName: voice},
			},
		}
	}
	if used {
		out.GenerationConfig = cfg
	}

	if len(req.Tools) > 0 {
		decls := make([]*genlang.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genlang.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenlangSchema(t.Parameters),
			})
		}
		out.Tools = []*genlang.Tool{{FunctionDeclarations: decls}}
	}
	return out, nil
}

func toGenlangSchema(s *Schema) *genlang.Schema {
	if s == nil {
		return nil
	}
	out := &genlang.Schema{
		Type:        s.Type,
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenlangSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]genlang.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = *toGenlangSchema(p)
		}
	}
	return out
}

func parseResponse(resp *genlang.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, capabilityError("model returned no candidates")
	}
	out := &Response{}
	var text strings.Builder
	for i, p := range resp.Candidates[0].Content.Parts {
		switch {
		case p == nil:
		case p.FunctionCall != nil:
			args := map[string]any{}
			if len(p.FunctionCall.Args) > 0 {
				if err := sonic.Unmarshal(p.FunctionCall.Args, &args); err != nil {
					return nil, fmt.Errorf("%w: decode tool args: %w", ErrCapability, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   fmt.Sprintf("%s-%d", p.FunctionCall.Name, i),
				Name: p.FunctionCall.Name,
				Args: args,
			})
		case p.InlineData != nil:
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				// some responses use the URL alphabet
				data, err = base64.URLEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("%w: decode inline data: %w", ErrCapability, err)
				}
			}
			out.Media = &Media{MimeType: p.InlineData.MimeType, Data: data}
		default:
			text.WriteString(p.Text)
		}
	}
	out.Text = text.String()
	return out, nil
}

// Provider hands out models per API key, reusing clients across requests.
type Provider struct {
	cfg        GeminiConfig
	defaultKey string

	mu     sync.Mutex
	models map[string]Model
	newFn  func(ctx context.Context, apiKey string, cfg GeminiConfig) (Model, error)
}

// NewProvider returns a Provider that falls back to defaultKey (or default
// credentials when it is empty) for users without their own key.
func NewProvider(defaultKey string, cfg GeminiConfig) *Provider {
	return &Provider{
		cfg:        cfg,
		defaultKey: defaultKey,
		models:     make(map[string]Model),
		newFn: func(ctx context.Context, apiKey string, cfg GeminiConfig) (Model, error) {
			return NewGeminiModel(ctx, apiKey, cfg)
		},
	}
}

// Model returns the model for apiKey, or the default model when apiKey is
// empty. Models are built outside the lock; when two callers race for the
// same key the first stored model wins.
func (p *Provider) Model(ctx context.Context, apiKey string) (Model, error) {
	if apiKey == "" {
		apiKey = p.defaultKey
	}
	p.mu.Lock()
	m, ok := p.models[apiKey]
	p.mu.Unlock()
	if ok {
		return m, nil
	}
	m, err := p.newFn(context.WithoutCancel(ctx), apiKey, p.cfg)
	if err != nil {
		log.WithError(err).Warn("ai model unavailable")
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.models[apiKey]; ok {
		return existing, nil
	}
	p.models[apiKey] = m
	return m, nil
}

// Forget drops the cached model of a user key that was replaced or removed.
// The server default is kept.
func (p *Provider) Forget(apiKey string) {
	if apiKey == "" || apiKey == p.defaultKey {
		return
	}
	p.mu.Lock()
	delete(p.models, apiKey)
	p.mu.Unlock()
}
