package parser

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gorm.io/datatypes"

	"cs-inspector/internal/logging"
	"cs-inspector/internal/model"
)

// MetaStrategy 记录文本解析命中的策略名。
const MetaStrategy = "strategy"

// Parser 将原始对话文本或 JSON 还原为结构化会话。
// 解析失败不会返回 error，而是返回 session_id 为 parse_error 的占位会话。
type Parser struct {
	logger *logging.Logger
	now    func() time.Time
}

// New 创建解析器。
func New(logger *logging.Logger) *Parser {
	return &Parser{logger: logger.Component("parser"), now: time.Now}
}

// Parse 按 hint 选择解析分支：json 走 JSON 解析，其余一律按文本解析。
func (p *Parser) Parse(raw string, hint model.Format) *model.Conversation {
	var conv *model.Conversation
	if hint == model.FormatJSON {
		conv = p.parseJSON(raw)
	} else {
		conv = p.parseText(raw)
	}
	if conv.Failed() {
		p.logger.Warn("conversation parse failed", "format", string(hint), "error", conv.Metadata[model.MetaError])
	}
	return conv
}

// ParseSession 与 Parse 相同，但在解析成功时使用调用方提供的会话 ID。
func (p *Parser) ParseSession(raw string, hint model.Format, sessionID string) *model.Conversation {
	conv := p.Parse(raw, hint)
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" && !conv.Failed() {
		conv.SessionID = sessionID
	}
	return conv
}

// ParseBatch 顺序解析多段内容，结果与输入按下标对齐。
func (p *Parser) ParseBatch(raws []string, hint model.Format) []*model.Conversation {
	out := make([]*model.Conversation, 0, len(raws))
	for i, raw := range raws {
		p.logger.Debug("parsing batch item", "index", i+1, "total", len(raws))
		out = append(out, p.Parse(raw, hint))
	}
	return out
}

// DetectFormat 检测内容格式，与调用方给出的 hint 相互独立。
func DetectFormat(content string) model.Format {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return model.FormatUnknown
	}
	if (trimmed[0] == '{' || trimmed[0] == '[') && gjson.Valid(trimmed) {
		return model.FormatJSON
	}
	if strings.ContainsAny(trimmed, ":：") {
		return model.FormatText
	}
	return model.FormatUnknown
}

// ValidateFormat 粗略判断内容是否像一段对话。
func ValidateFormat(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	hasMarker := strings.ContainsAny(content, ":：-[]")
	hasLines := strings.Count(content, "\n") >= 1
	return hasMarker || hasLines
}

// SessionHash 返回内容 MD5 的前 12 位十六进制字符。
func SessionHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}

func (p *Parser) parseText(raw string) *model.Conversation {
	now := p.now()
	turns, name := extractWithStrategy(raw, now)
	meta := datatypes.JSONMap{model.MetaFormat: string(model.FormatText)}
	if name != "" {
		meta[MetaStrategy] = name
	}
	return model.NewConversation(SessionHash(raw), turns, meta, now)
}

func (p *Parser) parseJSON(raw string) *model.Conversation {
	now := p.now()
	if !gjson.Valid(raw) {
		return model.FailedConversation("JSON解析错误: 内容不是合法的 JSON", now)
	}

	root := gjson.Parse(raw)
	var list gjson.Result
	sessionID := ""
	switch {
	case root.IsArray():
		list = root
	case root.IsObject():
		if t := root.Get("turns"); t.Exists() {
			list = t
		} else if c := root.Get("conversation"); c.Exists() {
			list = c
		} else {
			return model.FailedConversation("无效的JSON格式: 缺少 turns 或 conversation 字段", now)
		}
		sessionID = strings.TrimSpace(root.Get("session_id").String())
	default:
		return model.FailedConversation("无效的JSON格式: 顶层必须是数组或对象", now)
	}
	if !list.IsArray() {
		return model.FailedConversation("无效的JSON格式: 对话轮次必须是数组", now)
	}

	turns := make([]model.Turn, 0)
	valid := true
	list.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			valid = false
			return false
		}
		turns = append(turns, jsonTurn(item, now))
		return true
	})
	if !valid {
		return model.FailedConversation("无效的JSON格式: 对话轮次必须是对象", now)
	}

	if sessionID == "" {
		sessionID = SessionHash(raw)
	}
	return model.NewConversation(sessionID, turns, datatypes.JSONMap{model.MetaFormat: string(model.FormatJSON)}, now)
}

func jsonTurn(item gjson.Result, now time.Time) model.Turn {
	speaker := strings.TrimSpace(item.Get("speaker").String())
	if speaker == "" {
		speaker = model.SpeakerUnknown
	}
	return model.Turn{
		Speaker:   speaker,
		Content:   item.Get("content").String(),
		Timestamp: parseTimestamp(item.Get("timestamp").String(), now),
		Emotion:   item.Get("emotion").String(),
		Intent:    item.Get("intent").String(),
	}
}

var timestampLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func parseTimestamp(value string, fallback time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return fallback
}
