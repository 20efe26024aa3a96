package parser

import (
	"regexp"
	"strings"
	"time"

	"cs-inspector/internal/model"
)

// strategy 从文本中提取轮次，返回空切片表示未匹配。
type strategy struct {
	name    string
	extract func(text string, now time.Time) []model.Turn
}

// strategies 的顺序即优先级，第一个产出轮次的策略胜出，不合并结果。
var strategies = []strategy{
	{name: "speaker_marker", extract: extractSpeakerMarkers},
	{name: "bracketed", extract: extractBracketed},
	{name: "parenthetical", extract: extractParenthetical},
	{name: "line_scan", extract: extractLines},
}

// ExtractTurns 依次尝试各策略。
func ExtractTurns(text string, now time.Time) []model.Turn {
	turns, _ := extractWithStrategy(text, now)
	return turns
}

func extractWithStrategy(text string, now time.Time) ([]model.Turn, string) {
	for _, s := range strategies {
		if turns := s.extract(text, now); len(turns) > 0 {
			return turns, s.name
		}
	}
	return []model.Turn{}, ""
}

// SpeakerLabels 是“发言者: 内容”格式可识别的标签。
var SpeakerLabels = []string{"客户", "用户", "客服", "坐席", "Customer", "User", "Agent"}

var speakerMarkerRe = regexp.MustCompile(`(` + strings.Join(SpeakerLabels, "|") + `)[：:]`)

// extractSpeakerMarkers 处理“客户：……客服：……”，内容延伸到下一个标签或文本末尾。
func extractSpeakerMarkers(text string, now time.Time) []model.Turn {
	locs := speakerMarkerRe.FindAllStringSubmatchIndex(text, -1)
	turns := make([]model.Turn, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := strings.TrimSpace(text[loc[1]:end])
		if content == "" {
			continue
		}
		turns = append(turns, newTurn(text[loc[2]:loc[3]], content, now))
	}
	return turns
}

// extractBracketed 处理“[发言者] 内容”，内容延伸到下一个 '[' 或文本末尾。
func extractBracketed(text string, now time.Time) []model.Turn {
	var turns []model.Turn
	pos := 0
	for pos < len(text) {
		open := strings.IndexByte(text[pos:], '[')
		if open < 0 {
			break
		}
		open += pos
		closing := strings.IndexByte(text[open+1:], ']')
		if closing < 0 {
			break
		}
		closing += open + 1
		next := strings.IndexByte(text[closing+1:], '[')
		end := len(text)
		if next >= 0 {
			end = closing + 1 + next
		}
		if content := strings.TrimSpace(text[closing+1 : end]); content != "" {
			turns = append(turns, newTurn(text[open+1:closing], content, now))
		}
		pos = end
	}
	return turns
}

var parentheticalRe = regexp.MustCompile(`(?m)^[ \t]*([\p{L}\p{N}_]+)[（(]([^）)\n]+)[）)][ \t]*(.+)$`)

// extractParenthetical 处理“张三(客服) 内容”，每行一轮，发言者取括号前的名字。
func extractParenthetical(text string, now time.Time) []model.Turn {
	matches := parentheticalRe.FindAllStringSubmatch(text, -1)
	turns := make([]model.Turn, 0, len(matches))
	for _, m := range matches {
		if content := strings.TrimSpace(m[3]); content != "" {
			turns = append(turns, newTurn(m[1], content, now))
		}
	}
	return turns
}

// extractLines 是兜底策略：含冒号的行开启新一轮，其余行以空格拼接到当前轮。
func extractLines(text string, now time.Time) []model.Turn {
	var turns []model.Turn
	speaker := model.SpeakerUnknown
	var parts []string

	flush := func() {
		if len(parts) > 0 {
			turns = append(turns, newTurn(speaker, strings.Join(parts, " "), now))
			parts = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx, width := colonIndex(line); idx >= 0 {
			flush()
			speaker = strings.TrimSpace(line[:idx])
			parts = append(parts, strings.TrimSpace(line[idx+width:]))
			continue
		}
		parts = append(parts, line)
	}
	flush()
	return turns
}

// colonIndex 返回首个半角或全角冒号的位置与字节宽度。
func colonIndex(line string) (int, int) {
	half := strings.IndexByte(line, ':')
	full := strings.Index(line, "：")
	switch {
	case half < 0 && full < 0:
		return -1, 0
	case full < 0 || (half >= 0 && half < full):
		return half, 1
	default:
		return full, len("：")
	}
}

func newTurn(speaker, content string, now time.Time) model.Turn {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		speaker = model.SpeakerUnknown
	}
	return model.Turn{Speaker: speaker, Content: content, Timestamp: now}
}
