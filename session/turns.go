package session

import (
	"strings"
	"time"

	"github.com/martinemde/oxbot/llm"
)

// SegmentKind discriminates between segment types.
type SegmentKind string

const (
	SegmentText   SegmentKind = "text"
	SegmentCode   SegmentKind = "code"
	SegmentOutput SegmentKind = "output"
	SegmentImage  SegmentKind = "image"
)

// Segment is one ordered piece of a turn.
type Segment struct {
	Kind     SegmentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	Language string      `json:"language,omitempty"`
	ImageRef string      `json:"image_ref,omitempty"`
}

// Turn is a single entry in the conversation history. Turns are not
// modified once appended.
type Turn struct {
	Role      llm.Role  `json:"role"`
	Segments  []Segment `json:"segments"`
	Timestamp time.Time `json:"timestamp"`
}

// DeclineNotice is appended as a user turn when a proposal is denied.
const DeclineNotice = "The user declined to run this code."

// NewSystemTurn creates the system turn.
func NewSystemTurn(prompt string) Turn {
	return Turn{
		Role:      llm.RoleSystem,
		Timestamp: time.Now(),
		Segments:  []Segment{{Kind: SegmentText, Text: prompt}},
	}
}

// NewUserTurn creates a Turn wrapping user input.
func NewUserTurn(text string) Turn {
	return Turn{
		Role:      llm.RoleUser,
		Timestamp: time.Now(),
		Segments:  []Segment{{Kind: SegmentText, Text: text}},
	}
}

// NewAssistantTurn creates a Turn from the assistant's segments.
func NewAssistantTurn(segments []Segment) Turn {
	return Turn{
		Role:      llm.RoleAssistant,
		Timestamp: time.Now(),
		Segments:  segments,
	}
}

// NewOutputTurn creates the turn reporting execution output back to the
// model.
func NewOutputTurn(language, output string) Turn {
	return Turn{
		Role:      llm.RoleUser,
		Timestamp: time.Now(),
		Segments:  []Segment{{Kind: SegmentOutput, Language: language, Text: output}},
	}
}

// Text renders the turn as plain text.
func (t Turn) Text() string {
	var sb strings.Builder
	for _, seg := range t.Segments {
		switch seg.Kind {
		case SegmentText:
			sb.WriteString(seg.Text)
		case SegmentCode:
			writeFence(&sb, seg.Language, seg.Text)
		case SegmentOutput:
			sb.WriteString("Code output:\n")
			writeFence(&sb, "", seg.Text)
		case SegmentImage:
			sb.WriteString("[image: " + seg.ImageRef + "]")
		}
	}
	return sb.String()
}

// Code returns the language and source of the first code segment.
func (t Turn) Code() (language, code string, ok bool) {
	for _, seg := range t.Segments {
		if seg.Kind == SegmentCode {
			return seg.Language, seg.Text, true
		}
	}
	return "", "", false
}

func writeFence(sb *strings.Builder, language, body string) {
	if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```")
	sb.WriteString(language)
	sb.WriteString("\n")
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n")
}

// ToMessages converts the turn history into LLM messages.
func ToMessages(history []Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		text := turn.Text()
		switch turn.Role {
		case llm.RoleSystem:
			messages = append(messages, llm.SystemMessage(text))
		case llm.RoleAssistant:
			messages = append(messages, llm.AssistantMessage(text))
		default:
			messages = append(messages, llm.UserMessage(text))
		}
	}
	return messages
}

// appendSegment adds text to segs, merging into a trailing text segment.
func appendSegment(segs []Segment, seg Segment) []Segment {
	if seg.Kind == SegmentText && len(segs) > 0 && segs[len(segs)-1].Kind == SegmentText {
		segs[len(segs)-1].Text += seg.Text
		return segs
	}
	return append(segs, seg)
}
