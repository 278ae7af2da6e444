// Package session owns the live conversation of one signed-in user.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/idolchat/internal/analysis/emotion"
	"github.com/zhouzirui/idolchat/internal/avatar"
	"github.com/zhouzirui/idolchat/internal/gateway"
	"github.com/zhouzirui/idolchat/internal/history"
	"github.com/zhouzirui/idolchat/internal/metrics"
	"github.com/zhouzirui/idolchat/internal/model/chat"
)

// Phase is the submission state of a Controller.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
)

// Fallback turn used when the chat gateway cannot answer.
const (
	FallbackText      = "抱歉，發生了一些錯誤，請稍後再試。"
	FallbackEmotion   = emotion.Sad
	FallbackIntensity = 0.8
)

const (
	defaultRequestTimeout = 30 * time.Second
	storeWriteTimeout     = 5 * time.Second
)

// Emotion is the last emotion shown by the avatar.
type Emotion struct {
	Label     string  `json:"emotion"`
	Intensity float64 `json:"emotionIntensity"`
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Gateway        gateway.Client
	Store          history.Store
	Driver         avatar.Driver
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

// Controller serializes submissions for one identity and keeps the
// transcript, the avatar expression and the fallback history in step.
type Controller struct {
	identity chat.Identity
	gateway  gateway.Client
	store    history.Store
	driver   avatar.Driver
	logger   *zap.Logger
	timeout  time.Duration
	reads    singleflight.Group

	mu         sync.Mutex
	transcript []chat.Turn
	phase      Phase
	generation uint64
	last       Emotion
}

// NewController binds a fresh, empty session to identity.
func NewController(identity chat.Identity, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := deps.Driver
	if driver == nil {
		driver = nopDriver{}
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Controller{
		identity: identity,
		gateway:  deps.Gateway,
		store:    deps.Store,
		driver:   driver,
		logger:   logger.Named("session").With(zap.String("userId", identity.UserID)),
		timeout:  timeout,
		phase:    PhaseIdle,
		last:     Emotion{Label: string(emotion.Neutral), Intensity: chat.DefaultIntensity},
	}
}

// Identity returns the identity the session was started with.
func (c *Controller) Identity() chat.Identity {
	return c.identity
}

// Submit echoes text into the transcript and dispatches it to the gateway.
// Blank text and submissions made while another is in flight are ignored and
// report false. The returned channel is closed once the submission settles.
// Cancelling ctx after Submit returns does not abort the dispatch.
func (c *Controller) Submit(ctx context.Context, text string) (<-chan struct{}, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeEmpty).Inc()
		return nil, false
	}

	c.mu.Lock()
	if c.phase == PhaseSubmitting {
		c.mu.Unlock()
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeBusy).Inc()
		c.logger.Debug("submission rejected, another one is in flight")
		return nil, false
	}
	userTurn := chat.NewUserTurn(text)
	c.transcript = append(c.transcript, userTurn)
	c.phase = PhaseSubmitting
	generation := c.generation
	c.mu.Unlock()

	done := make(chan struct{})
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	go func() {
		defer close(done)
		defer cancel()
		c.dispatch(dispatchCtx, generation, userTurn)
	}()
	return done, true
}

// Reset empties the transcript and returns to idle. Replies still in flight
// for the previous generation are dropped when they arrive. Persisted history
// is left alone.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = nil
	c.phase = PhaseIdle
	c.generation++
}

// Transcript returns a copy of the current transcript.
func (c *Controller) Transcript() []chat.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]chat.Turn, len(c.transcript))
	copy(copied, c.transcript)
	return copied
}

// Phase reports whether a submission is in flight.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastEmotion returns the emotion most recently sent to the avatar.
func (c *Controller) LastEmotion() Emotion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// History asks the gateway for the user's prior turns and falls back to the
// local store when the gateway cannot be reached.
func (c *Controller) History(ctx context.Context) []chat.Turn {
	userID := c.identity.UserID
	v, _, _ := c.reads.Do(userID, func() (any, error) {
		// Shared by every waiting caller, so detached from the first one's cancellation.
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		turns, err := c.gateway.History(readCtx, userID)
		if err == nil {
			metrics.HistoryReadsTotal.WithLabelValues(metrics.OutcomeHistoryRemote).Inc()
			return turns, nil
		}
		c.logger.Warn("remote history unavailable, reading local store",
			zap.String("kind", gateway.Kind(err)), zap.Error(err))
		metrics.HistoryReadsTotal.WithLabelValues(metrics.OutcomeHistoryLocal).Inc()
		return c.store.Get(readCtx, userID), nil
	})
	turns, _ := v.([]chat.Turn)
	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied
}

func (c *Controller) dispatch(ctx context.Context, generation uint64, userTurn chat.Turn) {
	start := time.Now()
	reply, err := c.gateway.Send(ctx, c.identity.UserID, userTurn.Text)
	metrics.GatewayDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.fail(ctx, generation, userTurn, err)
		return
	}
	c.complete(generation, reply)
}

func (c *Controller) complete(generation uint64, reply chat.Reply) {
	label := strings.TrimSpace(reply.Emotion)
	turn := chat.NewAssistantTurn(reply.Text, label, reply.Intensity())

	ambient := Emotion{Label: label, Intensity: turn.EmotionIntensity}
	if label == "" {
		ambient.Label = string(emotion.Neutral)
		if reply.EmotionIntensity == nil {
			ambient.Intensity = chat.DefaultIntensity
		}
	}

	if !c.apply(generation, turn, ambient) {
		return
	}
	c.driver.ShowExpression(avatar.NewCommand(ambient.Label, ambient.Intensity))
	c.finish(generation, metrics.OutcomeSuccess)
}

func (c *Controller) fail(ctx context.Context, generation uint64, userTurn chat.Turn, cause error) {
	kind := gateway.Kind(cause)
	metrics.GatewayErrorsTotal.WithLabelValues(kind).Inc()
	c.logger.Warn("chat gateway failed, answering locally", zap.String("kind", kind), zap.Error(cause))

	turn := chat.NewAssistantTurn(FallbackText, string(FallbackEmotion), FallbackIntensity)
	ambient := Emotion{Label: string(FallbackEmotion), Intensity: FallbackIntensity}
	if !c.apply(generation, turn, ambient) {
		return
	}

	c.persist(ctx, userTurn, turn)
	c.driver.ShowExpression(avatar.NewCommand(ambient.Label, ambient.Intensity))
	c.finish(generation, metrics.OutcomeFallback)
}

// apply appends turn when generation is still current.
func (c *Controller) apply(generation uint64, turn chat.Turn, ambient Emotion) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeDiscarded).Inc()
		c.logger.Info("dropping reply for a session that was reset")
		return false
	}
	c.transcript = append(c.transcript, turn)
	c.last = ambient
	return true
}

func (c *Controller) finish(generation uint64, outcome string) {
	c.mu.Lock()
	if generation == c.generation {
		c.phase = PhaseIdle
	}
	c.mu.Unlock()
	metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// persist writes the fallback exchange. Errors are logged and swallowed.
func (c *Controller) persist(ctx context.Context, turns ...chat.Turn) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()
	if err := c.store.Append(writeCtx, c.identity.UserID, turns); err != nil {
		metrics.FallbackWriteErrors.Inc()
		c.logger.Warn("failed to persist fallback turns", zap.Error(err))
	}
}

type nopDriver struct{}

func (nopDriver) ShowExpression(avatar.Command) {}
func (nopDriver) SetTracking(bool)              {}
