package claude

import "encoding/json"

// Content block types of the Messages API. Thinking blocks carry an opaque
// signature that authenticates the exact content; when carried forward as
// history they must be passed back verbatim or dropped whole, never edited.
const (
	BlockTypeText       = "text"
	BlockTypeImage      = "image"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
	BlockTypeThinking   = "thinking"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

func NewImageBlock(mediaType, base64Data string) ContentBlock {
	return ContentBlock{
		Type:   BlockTypeImage,
		Source: &ImageSource{Type: "base64", MediaType: mediaType, Data: base64Data},
	}
}

func NewToolResultBlock(toolUseID string, content []ContentBlock, isError bool) ContentBlock {
	return ContentBlock{
		Type:      BlockTypeToolResult,
		ToolUseID: toolUseID,
		Content:   content,
		IsError:   isError,
	}
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

func NewUserMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleUser, Content: blocks}
}

func NewAssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Thinking enables extended reasoning with a fixed token budget.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Thinking    *Thinking `json:"thinking,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

type Response struct {
	ID         string         `json:"id"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Text concatenates every text block of the response.
func (r *Response) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == BlockTypeText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns the tool_use blocks in response order.
func (r *Response) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockTypeToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// ThinkingBlock returns the first thinking block, if present.
func (r *Response) ThinkingBlock() (ContentBlock, bool) {
	for _, b := range r.Content {
		if b.Type == BlockTypeThinking {
			return b, true
		}
	}
	return ContentBlock{}, false
}
