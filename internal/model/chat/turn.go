package chat

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies who sent a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultIntensity applies when a reply carries an emotion but no intensity.
const DefaultIntensity = 0.5

// Turn is one immutable exchange unit of a transcript. EmotionIntensity is
// always serialized so an explicit zero survives a round trip.
type Turn struct {
	ID               string    `json:"id"`
	Role             Role      `json:"role"`
	Text             string    `json:"text"`
	Emotion          string    `json:"emotion,omitempty"`
	EmotionIntensity float64   `json:"emotionIntensity"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewUserTurn stamps a user turn with a fresh ULID and the current time.
func NewUserTurn(text string) Turn {
	return Turn{
		ID:        ulid.Make().String(),
		Role:      RoleUser,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistantTurn stamps an assistant turn. Intensity is clamped to [0,1].
func NewAssistantTurn(text, emotion string, intensity float64) Turn {
	return Turn{
		ID:               ulid.Make().String(),
		Role:             RoleAssistant,
		Text:             text,
		Emotion:          emotion,
		EmotionIntensity: ClampIntensity(intensity),
		Timestamp:        time.Now().UTC(),
	}
}

// ClampIntensity bounds an intensity scalar to [0,1].
func ClampIntensity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Reply is the assistant payload returned by the remote chat service.
type Reply struct {
	Text             string
	Emotion          string
	EmotionIntensity *float64
}

// Intensity resolves the reply intensity, defaulting when an emotion is
// present without one.
func (r Reply) Intensity() float64 {
	if r.EmotionIntensity != nil {
		return ClampIntensity(*r.EmotionIntensity)
	}
	if strings.TrimSpace(r.Emotion) != "" {
		return DefaultIntensity
	}
	return 0
}
