package model

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Format 表示对话内容格式。
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatUnknown Format = "unknown"
)

const (
	// SessionParseError 是解析失败时的会话 ID 占位值。
	SessionParseError = "parse_error"
	// SpeakerUnknown 是无法识别发言者时使用的标签。
	SpeakerUnknown = "未知"

	MetaFormat = "format"
	MetaError  = "error"
)

// Turn 表示一轮发言，追加进 Conversation 后不再修改。
type Turn struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Emotion   string    `json:"emotion,omitempty"`
	Intent    string    `json:"intent,omitempty"`
}

// Conversation 表示一次完整会话。
type Conversation struct {
	SessionID    string            `json:"session_id"`
	Participants []string          `json:"participants"`
	Turns        []Turn            `json:"turns"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	ParsedAt     time.Time         `json:"parsed_at"`
}

// NewConversation 根据轮次构建会话，参与者由轮次推导。
func NewConversation(sessionID string, turns []Turn, metadata datatypes.JSONMap, now time.Time) *Conversation {
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	if turns == nil {
		turns = []Turn{}
	}
	return &Conversation{
		SessionID:    sessionID,
		Participants: Participants(turns),
		Turns:        turns,
		Metadata:     metadata,
		ParsedAt:     now,
	}
}

// FailedConversation 返回解析失败的占位会话。
func FailedConversation(cause string, now time.Time) *Conversation {
	return NewConversation(SessionParseError, nil, datatypes.JSONMap{MetaError: cause}, now)
}

// Failed 判断会话是否为解析失败占位。
func (c *Conversation) Failed() bool {
	return c == nil || c.SessionID == SessionParseError
}

// Participants 返回去重后的发言者集合，按字典序排列以保证输出稳定。
func Participants(turns []Turn) []string {
	seen := make(map[string]struct{}, len(turns))
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		if _, ok := seen[t.Speaker]; ok {
			continue
		}
		seen[t.Speaker] = struct{}{}
		out = append(out, t.Speaker)
	}
	sort.Strings(out)
	return out
}
