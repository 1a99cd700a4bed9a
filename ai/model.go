package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrCapability marks every failure of the AI capability: transport errors,
// empty or malformed answers, and values outside the allowed enums.
var ErrCapability = errors.New("ai capability failed")

func capabilityError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCapability, fmt.Sprintf(format, args...))
}

// Response modalities.
const (
	ModalityText  = "TEXT"
	ModalityImage = "IMAGE"
	ModalityAudio = "AUDIO"
)

// Schema types, named as the model API expects them.
const (
	TypeString  = "STRING"
	TypeNumber  = "NUMBER"
	TypeInteger = "INTEGER"
	TypeBoolean = "BOOLEAN"
	TypeArray   = "ARRAY"
	TypeObject  = "OBJECT"
)

// Schema describes structured output or tool parameters.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Enum        []string
	Required    []string
}

// Tool is a function the model may ask the caller to run.
type Tool struct {
	Name        string
	Description string
	Parameters  *Schema
}

// ToolCall is a model request to run a tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	ID     string
	Name   string
	Result any
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of a conversation.
type Message struct {
	Role        string
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// UserText builds a single user turn.
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// Request is a single generation call.
type Request struct {
	System     string
	Messages   []Message
	Schema     *Schema
	Tools      []Tool
	Modalities []string
	Voice      string
}

func (r Request) wants(modality string) bool {
	for _, m := range r.Modalities {
		if m == modality {
			return true
		}
	}
	return false
}

// Media is binary output such as an image or raw audio.
type Media struct {
	MimeType string
	Data     []byte
}

// Response is what a Model produced.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Media     *Media
}

// Model is a generative model backend.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
