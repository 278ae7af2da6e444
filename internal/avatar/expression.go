// Package avatar maps emotion labels to avatar expressions and fans the
// resulting commands out to renderers.
package avatar

import (
	"github.com/zhouzirui/idolchat/internal/analysis/emotion"
)

// ExpressionID names a facial expression preset of the avatar model.
type ExpressionID string

const (
	ExpressionSquint    ExpressionID = "咪咪眼"
	ExpressionHeart     ExpressionID = "爱心"
	ExpressionMoneyEyes ExpressionID = "钱钱眼"
	ExpressionTears     ExpressionID = "泪眼"
	ExpressionAngry     ExpressionID = "生气"
	ExpressionBlush     ExpressionID = "脸红"
	ExpressionSmug      ExpressionID = "nn眼"
)

// DefaultExpression is shown for neutral and for any unrecognized label.
const DefaultExpression = ExpressionSquint

var expressions = map[emotion.Label]ExpressionID{
	emotion.Neutral:   ExpressionSquint,
	emotion.Happy:     ExpressionHeart,
	emotion.Excited:   ExpressionMoneyEyes,
	emotion.Sad:       ExpressionTears,
	emotion.Angry:     ExpressionAngry,
	emotion.Shy:       ExpressionBlush,
	emotion.Confident: ExpressionSmug,
}

// MapEmotion returns the expression for label. Labels outside the known set,
// including the empty string, get the neutral expression.
func MapEmotion(label string) ExpressionID {
	parsed, ok := emotion.Parse(label)
	if !ok {
		return DefaultExpression
	}
	return expressions[parsed]
}

// Command tells a renderer which expression to show and how strongly.
type Command struct {
	ExpressionID ExpressionID `json:"expressionId"`
	Intensity    float64      `json:"intensity"`
}

// NewCommand maps label and passes intensity through unchanged.
func NewCommand(label string, intensity float64) Command {
	return Command{ExpressionID: MapEmotion(label), Intensity: intensity}
}

// Driver accepts expression commands and the camera tracking toggle.
type Driver interface {
	ShowExpression(cmd Command)
	SetTracking(enabled bool)
}
