package emotion

import (
	"strings"
)

// Label 表示头像驱动可以识别的情绪标签。
type Label string

const (
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Excited   Label = "excited"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Shy       Label = "shy"
	Confident Label = "confident"
)

// Labels 按稳定顺序列出全部情绪标签。
func Labels() []Label {
	return []Label{Neutral, Happy, Excited, Sad, Angry, Shy, Confident}
}

// Parse 把原始字符串规范化为已知标签，未知或空输入返回 false。
func Parse(raw string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(raw)))
	for _, label := range Labels() {
		if normalized == label {
			return label, true
		}
	}
	return "", false
}

// Decision 给出情绪识别结果以及推荐情绪强度（0~1）。
type Decision struct {
	Emotion   Label
	Intensity float64
	Score     int
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"開心", "开心", "高興", "高兴", "快樂", "快乐", "喜歡", "喜欢", "謝謝", "谢谢", "哈哈", "太好了",
		"happy", "glad", "thanks", "thank you", "love", "great", "nice", "lol",
	},
	Excited: {
		"興奮", "兴奋", "期待", "激動", "激动", "太棒了", "哇", "驚喜", "惊喜", "燃",
		"excited", "can't wait", "amazing", "awesome", "wow", "unbelievable",
	},
	Sad: {
		"難過", "难过", "傷心", "伤心", "失落", "沮喪", "沮丧", "哭", "寂寞", "孤單", "孤单", "失望", "抱歉",
		"sad", "cry", "upset", "lonely", "depressed", "sorry", "hurt",
	},
	Angry: {
		"生氣", "生气", "憤怒", "愤怒", "火大", "氣死", "气死", "煩死", "烦死", "受夠了", "受够了",
		"angry", "furious", "mad", "annoyed", "hate",
	},
	Shy: {
		"害羞", "臉紅", "脸红", "不好意思", "難為情", "难为情", "討厭啦", "讨厌啦", "人家",
		"shy", "blush", "embarrassed",
	},
	Confident: {
		"本小姐", "交給我", "交给我", "沒問題", "没问题", "當然", "当然", "一定", "相信我", "包在我身上",
		"confident", "of course", "leave it to me", "trust me", "definitely",
	},
}

// Analyze 根据用户话语与回复推断回复应呈现的情绪。
func Analyze(userUtterance, assistantUtterance string) Decision {
	userScore := scoreText(userUtterance)
	replyScore := scoreText(assistantUtterance)

	final := replyScore
	// 回复本身缺少明显情感时，根据用户情绪做出呼应。
	if final.Score == 0 && userScore.Score > 0 {
		final = mirrorUser(userScore)
	}

	if final.Score == 0 {
		return Decision{Emotion: Neutral, Intensity: 0.5, Score: 0}
	}

	intensity := 0.4 + float64(final.Score)/20
	if final.Emotion == Excited {
		intensity += 0.1
	}
	if final.Emotion == Shy && intensity > 0.7 {
		intensity = 0.7
	}
	if intensity > 1 {
		intensity = 1
	}

	return Decision{Emotion: final.Emotion, Intensity: intensity, Score: final.Score}
}

// Classify 返回单段文本的主导情绪，不做呼应映射。Score 为 0 表示没有明显情绪。
func Classify(text string) Decision {
	return scoreText(text)
}

func scoreText(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, strings.ToLower(word)) {
				scores[label] += 3
			}
		}
	}

	exclamations := strings.Count(text, "!") + strings.Count(text, "！")
	if exclamations > 1 {
		scores[Excited] += exclamations * 2
	} else if exclamations == 1 {
		scores[Happy] += 2
	}

	best := Neutral
	bestScore := 0
	// 按固定顺序遍历，保证平分时结果稳定。
	for _, label := range Labels() {
		if s := scores[label]; s > bestScore {
			bestScore = s
			best = label
		}
	}

	if bestScore == 0 {
		return Decision{Emotion: Neutral}
	}
	return Decision{Emotion: best, Score: bestScore}
}

func mirrorUser(user Decision) Decision {
	switch user.Emotion {
	case Sad:
		// 用户难过时，偶像以温柔的关心回应。
		return Decision{Emotion: Sad, Score: user.Score}
	case Angry:
		return Decision{Emotion: Confident, Score: user.Score}
	case Shy:
		return Decision{Emotion: Happy, Score: user.Score}
	default:
		return user
	}
}
