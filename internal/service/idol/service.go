// Package idol implements the reference chat backend: it generates the
// idol's reply, labels its emotion and keeps server-owned history.
package idol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	analysis "github.com/zhouzirui/idolchat/internal/analysis/emotion"
	"github.com/zhouzirui/idolchat/internal/history"
	"github.com/zhouzirui/idolchat/internal/metrics"
	"github.com/zhouzirui/idolchat/internal/model/chat"
	"github.com/zhouzirui/idolchat/internal/model/persona"
	emotionservice "github.com/zhouzirui/idolchat/internal/service/emotion"
)

var (
	ErrUserIDRequired  = errors.New("user id is required")
	ErrMessageRequired = errors.New("message is required")
)

// Responder produces the idol's reply text.
type Responder interface {
	Respond(ctx context.Context, p *persona.Persona, history []chat.Turn, message string, mood *emotionservice.State) (string, error)
}

// Labeler decides which emotion a reply carries.
type Labeler interface {
	Analyze(ctx context.Context, p *persona.Persona, history []chat.Turn, userMessage, reply string) emotionservice.Guidance
}

// Deps wires the service's collaborators. Responder and Labeler default to
// the echo responder and the keyword heuristics.
type Deps struct {
	Store       history.Store
	Personas    persona.Store
	Responder   Responder
	Labeler     Labeler
	Engine      *emotionservice.Engine
	MaxMemories int
	Logger      *zap.Logger

	// Retention is how long recorded turns are kept. Zero keeps them forever.
	Retention time.Duration
}

// Result is one generated reply.
type Result struct {
	Reply     string
	Emotion   analysis.Label
	Intensity float64
}

// Service answers chat requests on behalf of the persona.
type Service struct {
	store       history.Store
	persona     persona.Persona
	responder   Responder
	labeler     Labeler
	engine      *emotionservice.Engine
	maxMemories int
	retention   time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewService builds the backend chat service.
func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("history store is required")
	}
	personas := deps.Personas
	if personas == nil {
		personas = persona.NewMemoryStore(persona.Seed())
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	responder := deps.Responder
	if responder == nil {
		responder = EchoResponder{}
	}
	labeler := deps.Labeler
	if labeler == nil {
		labeler = heuristicLabeler{}
	}
	engine := deps.Engine
	if engine == nil {
		engine = emotionservice.NewEngine(analysis.Neutral, 0.1)
	}
	maxMemories := deps.MaxMemories
	if maxMemories <= 0 {
		maxMemories = 100
	}

	return &Service{
		store:       deps.Store,
		persona:     personas.Default(),
		responder:   responder,
		labeler:     labeler,
		engine:      engine,
		maxMemories: maxMemories,
		retention:   deps.Retention,
		logger:      logger.Named("idol"),
		now:         time.Now,
	}, nil
}

// Persona returns the persona the service plays.
func (s *Service) Persona() persona.Persona {
	return s.persona
}

// Chat generates the idol's reply to message and records the exchange.
func (s *Service) Chat(ctx context.Context, userID, message, platform string) (Result, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Result{}, ErrUserIDRequired
	}
	if strings.TrimSpace(message) == "" {
		return Result{}, ErrMessageRequired
	}

	past := s.recent(s.store.Get(ctx, userID))

	mood := s.engine.Decay()
	if trigger := emotionservice.TriggerFor(message); trigger != "" {
		if next, ok := s.engine.Trigger(trigger, map[string]string{"platform": platform}); ok {
			mood = next
			metrics.BackendMoodTransitionsTotal.WithLabelValues(trigger).Inc()
			s.logger.Debug("mood transition",
				zap.String("trigger", trigger),
				zap.String("emotion", string(mood.Emotion)))
		}
	}
	reply, err := s.responder.Respond(ctx, &s.persona, past, message, &mood)
	if err != nil {
		metrics.BackendErrorsTotal.Inc()
		s.logger.Error("reply generation failed", zap.String("user_id", userID), zap.Error(err))
		return Result{}, fmt.Errorf("generate reply: %w", err)
	}

	guidance := s.labeler.Analyze(ctx, &s.persona, past, message, reply)
	state := s.engine.Update(guidance.Decision.Emotion, guidance.Decision.Intensity)

	turns := []chat.Turn{
		chat.NewUserTurn(message),
		chat.NewAssistantTurn(reply, string(state.Emotion), state.Intensity),
	}
	if err := s.store.Append(ctx, userID, turns); err != nil {
		// The reply is still delivered; only the server-side record is lost.
		s.logger.Warn("append history failed", zap.String("user_id", userID), zap.Error(err))
	}

	metrics.BackendRepliesTotal.WithLabelValues(string(state.Emotion)).Inc()
	s.logger.Info("reply generated",
		zap.String("user_id", userID),
		zap.String("platform", platform),
		zap.String("emotion", string(state.Emotion)),
		zap.Float64("intensity", state.Intensity),
		zap.Float64("confidence", guidance.Confidence),
	)

	return Result{Reply: reply, Emotion: state.Emotion, Intensity: state.Intensity}, nil
}

// History returns the turns the backend has recorded for userID.
func (s *Service) History(ctx context.Context, userID string) ([]chat.Turn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	return s.store.Get(ctx, userID), nil
}

// CleanupOldMemories removes turns older than the retention window and
// reports how many were dropped. Stores that expire on their own, or a zero
// retention, are left alone.
func (s *Service) CleanupOldMemories(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	pruner, ok := s.store.(history.Pruner)
	if !ok {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention)
	removed, err := pruner.Prune(ctx, cutoff)
	if err != nil {
		return removed, fmt.Errorf("prune history: %w", err)
	}
	if removed > 0 {
		metrics.BackendPrunedTurnsTotal.Add(float64(removed))
		s.logger.Info("expired memories removed",
			zap.Int("removed", removed),
			zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// RunRetention sweeps expired memories once immediately and then every
// interval until ctx is cancelled.
func (s *Service) RunRetention(ctx context.Context, interval time.Duration) {
	if s.retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.CleanupOldMemories(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("memory cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Mood reports the idol's current emotion state.
func (s *Service) Mood() emotionservice.State {
	return s.engine.State()
}

func (s *Service) recent(turns []chat.Turn) []chat.Turn {
	if len(turns) > s.maxMemories {
		return turns[len(turns)-s.maxMemories:]
	}
	return turns
}
