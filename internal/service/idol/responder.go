package idol

import (
	"context"
	"fmt"

	analysis "github.com/zhouzirui/idolchat/internal/analysis/emotion"
	"github.com/zhouzirui/idolchat/internal/model/chat"
	"github.com/zhouzirui/idolchat/internal/model/persona"
	emotionservice "github.com/zhouzirui/idolchat/internal/service/emotion"
)

// EchoResponder repeats the user's message. It is used when no model is
// configured.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, _ *persona.Persona, _ []chat.Turn, message string, _ *emotionservice.State) (string, error) {
	return fmt.Sprintf("你說: \"%s\"", message), nil
}

type heuristicLabeler struct{}

func (heuristicLabeler) Analyze(_ context.Context, _ *persona.Persona, _ []chat.Turn, userMessage, reply string) emotionservice.Guidance {
	return emotionservice.Guidance{Decision: analysis.Analyze(userMessage, reply), Reason: "heuristic"}
}
