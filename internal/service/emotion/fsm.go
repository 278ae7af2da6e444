package emotion

import (
	"math/rand"
	"strings"

	analysis "github.com/zhouzirui/idolchat/internal/analysis/emotion"
)

// 触发事件名称。
const (
	TriggerPositive = "positive_interaction"
	TriggerNegative = "negative_interaction"
	TriggerExciting = "exciting_event"
	TriggerComfort  = "comfort"
)

// Transition 描述一条由触发事件驱动的情绪转换规则。
type Transition struct {
	From        analysis.Label
	To          analysis.Label
	Trigger     string
	Probability float64
	// Conditions 必须全部与触发上下文相符才会转换。
	Conditions map[string]string
}

// FSM 按规则与概率决定偶像情绪的跳转。
type FSM struct {
	transitions map[analysis.Label][]Transition
	roll        func() float64
}

// NewFSM 创建带默认规则的状态机。roll 返回 [0,1) 的随机数，为 nil 时使用 math/rand。
func NewFSM(roll func() float64) *FSM {
	if roll == nil {
		roll = rand.Float64
	}
	f := &FSM{
		transitions: make(map[analysis.Label][]Transition),
		roll:        roll,
	}
	for _, t := range defaultTransitions() {
		f.Add(t)
	}
	return f
}

func defaultTransitions() []Transition {
	return []Transition{
		{From: analysis.Neutral, To: analysis.Happy, Trigger: TriggerPositive, Probability: 0.8},
		{From: analysis.Neutral, To: analysis.Sad, Trigger: TriggerNegative, Probability: 0.7},
		{From: analysis.Happy, To: analysis.Excited, Trigger: TriggerExciting, Probability: 0.6},
		{From: analysis.Sad, To: analysis.Neutral, Trigger: TriggerComfort, Probability: 0.5},
	}
}

// Add 注册一条转换规则，同一状态下按注册顺序匹配。
func (f *FSM) Add(t Transition) {
	if t.Probability <= 0 {
		t.Probability = 1
	}
	f.transitions[t.From] = append(f.transitions[t.From], t)
}

// Next 返回 from 在 trigger 下的目标情绪；没有规则命中时返回 from 与 false。
func (f *FSM) Next(from analysis.Label, trigger string, conditions map[string]string) (analysis.Label, bool) {
	for _, t := range f.transitions[from] {
		if t.Trigger != trigger {
			continue
		}
		if !conditionsMet(t.Conditions, conditions) {
			continue
		}
		if f.roll() < t.Probability {
			return t.To, true
		}
	}
	return from, false
}

func conditionsMet(want, got map[string]string) bool {
	for key, value := range want {
		if v, ok := got[key]; !ok || v != value {
			return false
		}
	}
	return true
}

var comfortKeywords = []string{
	"別難過", "别难过", "不要哭", "抱抱", "沒事的", "没事的", "加油", "我陪你", "辛苦了",
	"don't cry", "it's okay", "hug", "cheer up",
}

// TriggerFor 从用户消息推断触发事件，无法判断时返回空串。
func TriggerFor(userMessage string) string {
	normalized := strings.ToLower(strings.TrimSpace(userMessage))
	if normalized == "" {
		return ""
	}
	for _, word := range comfortKeywords {
		if strings.Contains(normalized, word) {
			return TriggerComfort
		}
	}

	switch analysis.Classify(userMessage).Emotion {
	case analysis.Excited:
		return TriggerExciting
	case analysis.Happy, analysis.Confident, analysis.Shy:
		return TriggerPositive
	case analysis.Sad, analysis.Angry:
		return TriggerNegative
	default:
		return ""
	}
}
