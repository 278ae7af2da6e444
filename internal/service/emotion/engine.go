package emotion

import (
	"sync"

	analysis "github.com/zhouzirui/idolchat/internal/analysis/emotion"
	"github.com/zhouzirui/idolchat/internal/model/chat"
)

// State 偶像当前的心情。
type State struct {
	Emotion   analysis.Label
	Intensity float64
}

// Engine 在多轮回复之间保存偶像的心情。
// 每次 Decay 降低非基准情绪的强度，强度耗尽后回到基准情绪。
type Engine struct {
	mu        sync.Mutex
	base      analysis.Label
	current   analysis.Label
	intensity float64
	decayRate float64
	fsm       *FSM
}

// EngineOption 调整 Engine 的可选行为。
type EngineOption func(*Engine)

// WithFSM 让 Engine 支持按触发事件跳转情绪。
func WithFSM(fsm *FSM) EngineOption {
	return func(e *Engine) {
		e.fsm = fsm
	}
}

// NewEngine 以基准情绪和默认强度启动。
func NewEngine(base analysis.Label, decayRate float64, opts ...EngineOption) *Engine {
	if base == "" {
		base = analysis.Neutral
	}
	if decayRate <= 0 {
		decayRate = 0.1
	}
	e := &Engine{
		base:      base,
		current:   base,
		intensity: chat.DefaultIntensity,
		decayRate: decayRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Update 直接替换心情，强度截断到 [0,1]。
func (e *Engine) Update(label analysis.Label, intensity float64) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = label
	e.intensity = chat.ClampIntensity(intensity)
	return State{Emotion: e.current, Intensity: e.intensity}
}

// Trigger 把触发事件交给状态机。发生跳转时强度重置为默认值并返回 true；
// 未配置状态机或没有规则命中时心情保持不变。
func (e *Engine) Trigger(trigger string, conditions map[string]string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fsm == nil || trigger == "" {
		return State{Emotion: e.current, Intensity: e.intensity}, false
	}
	next, ok := e.fsm.Next(e.current, trigger, conditions)
	if ok {
		e.current = next
		e.intensity = chat.DefaultIntensity
	}
	return State{Emotion: e.current, Intensity: e.intensity}, ok
}

// Decay 向基准情绪回落一步。
func (e *Engine) Decay() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != e.base {
		e.intensity -= e.decayRate
		if e.intensity <= 0 {
			e.current = e.base
			e.intensity = chat.DefaultIntensity
		}
	}
	return State{Emotion: e.current, Intensity: e.intensity}
}

// State 返回当前心情。
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Emotion: e.current, Intensity: e.intensity}
}
