package actions

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

var (
	thinkingBlock = regexp.MustCompile(`(?is)<thinking>(.*?)</thinking>`)
	actionsBlock  = regexp.MustCompile(`(?is)<app_actions>(.*?)</app_actions>`)
	actionsOpen   = regexp.MustCompile(`(?i)<app_actions>`)
	codeFence     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// Parsed is the split form of a model reply.
type Parsed struct {
	// CleanResponse is the user-visible text with protocol blocks removed.
	CleanResponse string
	Actions       []Action
	// Thinking is nil when the reply had no non-empty thinking block.
	Thinking *string
	// Dropped counts action candidates that failed validation.
	Dropped int
}

// Parse splits a raw reply into visible text, optional thinking and
// validated actions. It never fails: malformed action blocks yield no
// actions, and one malformed element never affects its siblings.
func Parse(raw string) Parsed {
	text := raw
	out := Parsed{Actions: []Action{}}

	if loc := thinkingBlock.FindStringSubmatchIndex(text); loc != nil {
		if inner := strings.TrimSpace(text[loc[2]:loc[3]]); inner != "" {
			out.Thinking = &inner
		}
		text = text[:loc[0]] + text[loc[1]:]
	}

	var block string
	var found bool
	if loc := actionsBlock.FindStringSubmatchIndex(text); loc != nil {
		block = text[loc[2]:loc[3]]
		text = text[:loc[0]] + text[loc[1]:]
		found = true
	} else if loc := actionsOpen.FindStringIndex(text); loc != nil {
		// Unterminated block, usually a truncated reply.
		block = text[loc[1]:]
		text = text[:loc[0]]
		found = true
	}
	out.CleanResponse = strings.TrimSpace(text)
	if !found {
		return out
	}

	elements, ok := decodeArray(block)
	if !ok {
		return out
	}
	for _, element := range elements {
		action, ok := decodeAction(element)
		if !ok {
			out.Dropped++
			continue
		}
		out.Actions = append(out.Actions, action)
	}
	return out
}

func decodeArray(block string) ([]json.RawMessage, bool) {
	body := strings.TrimSpace(block)
	if m := codeFence.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	if !strings.HasPrefix(body, "[") {
		return nil, false
	}
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elements); err != nil {
		return nil, false
	}
	return elements, true
}

// fields is one action candidate keyed by JSON property.
type fields map[string]json.RawMessage

func decodeAction(raw json.RawMessage) (Action, bool) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil, false
	}
	decode, ok := decoders[Type(strings.TrimSpace(f.str("type", 64)))]
	if !ok {
		return nil, false
	}
	return decode(f)
}

var decoders = map[Type]func(fields) (Action, bool){
	TypeCreateTask: func(f fields) (Action, bool) {
		a := CreateTask{
			Title:       f.str("title", MaxTaskTitle),
			Description: f.str("description", MaxTaskDescription),
			Priority:    models.TaskPriority(f.enum("priority", "low", "medium", "high")),
			Column:      f.str("column", MaxColumn),
		}
		if a.Description == "" {
			return nil, false
		}
		if a.Priority == "" {
			a.Priority = models.PriorityMedium
		}
		return a, true
	},
	TypeCreateFeedItem: func(f fields) (Action, bool) {
		a := CreateFeedItem{
			Title:    f.str("title", MaxFeedTitle),
			Content:  f.str("content", MaxFeedContent),
			Kind:     f.enum("kind", "update", "insight", "achievement", "question"),
			IsPublic: f.isTrue("isPublic"),
		}
		if a.Title == "" {
			return nil, false
		}
		if a.Kind == "" {
			a.Kind = "update"
		}
		return a, true
	},
	TypeCreateSkill: func(f fields) (Action, bool) {
		a := CreateSkill{
			Name:        f.str("name", MaxSkillName),
			Description: f.str("description", MaxSkillDesc),
			Category:    f.str("category", MaxSkillCategory),
			Level:       f.enum("level", skillLevels...),
		}
		if a.Name == "" {
			return nil, false
		}
		return a, true
	},
	TypeUpdateTaskStatus: func(f fields) (Action, bool) {
		a := UpdateTaskStatus{
			TaskID:         f.str("taskId", MaxID),
			Status:         models.TaskStatus(f.enum("status", "pending", "in_progress", "completed", "failed")),
			OutcomeSummary: f.str("outcomeSummary", MaxOutcomeSummary),
		}
		if a.TaskID == "" || a.Status == "" {
			return nil, false
		}
		return a, true
	},
	TypeMoveTask: func(f fields) (Action, bool) {
		a := MoveTask{
			TaskID: f.str("taskId", MaxID),
			Column: f.str("column", MaxColumn),
		}
		if a.TaskID == "" || a.Column == "" {
			return nil, false
		}
		return a, true
	},
	TypeUpdateSkill: func(f fields) (Action, bool) {
		a := UpdateSkill{
			SkillID:     f.str("skillId", MaxID),
			Description: f.optStr("description", MaxSkillDesc),
			Bio:         f.optStr("bio", MaxBio),
			IsPublic:    f.optBool("isPublic"),
		}
		if level := f.enum("level", skillLevels...); level != "" {
			a.Level = &level
		}
		if a.SkillID == "" {
			return nil, false
		}
		if a.Description == nil && a.Bio == nil && a.Level == nil && a.IsPublic == nil {
			return nil, false
		}
		return a, true
	},
	TypeCreateSubtask: func(f fields) (Action, bool) {
		a := CreateSubtask{
			ParentTaskID: f.str("parentTaskId", MaxID),
			Description:  f.str("description", MaxTaskDescription),
		}
		if a.ParentTaskID == "" || a.Description == "" {
			return nil, false
		}
		return a, true
	},
	TypeDelegateToAgent: func(f fields) (Action, bool) {
		a := DelegateToAgent{
			AgentSlug: strings.ToLower(f.str("agentSlug", MaxAgentSlug)),
			Message:   f.str("message", MaxDelegateMessage),
		}
		if a.AgentSlug == "" || a.Message == "" {
			return nil, false
		}
		return a, true
	},
	TypeGenerateImage: func(f fields) (Action, bool) {
		a := GenerateImage{
			Prompt:  f.str("prompt", MaxImagePrompt),
			Caption: f.str("caption", MaxCaption),
		}
		if a.Prompt == "" {
			return nil, false
		}
		return a, true
	},
	TypeGenerateAudio: func(f fields) (Action, bool) {
		a := GenerateAudio{
			Text:   f.str("text", MaxAudioText),
			TaskID: f.str("taskId", MaxID),
		}
		if a.Text == "" {
			return nil, false
		}
		return a, true
	},
	TypeCallTool: func(f fields) (Action, bool) {
		a := CallTool{
			Tool:      f.str("tool", MaxToolName),
			Arguments: f.object("arguments"),
		}
		if a.Tool == "" {
			return nil, false
		}
		return a, true
	},
}

var skillLevels = []string{"beginner", "intermediate", "advanced", "expert"}

// str returns the trimmed, capped string at key, or "" when absent or not a string.
func (f fields) str(key string, limit int) string {
	raw, ok := f[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return capRunes(strings.TrimSpace(s), limit)
}

func (f fields) optStr(key string, limit int) *string {
	if _, ok := f[key]; !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(f[key], &s); err != nil {
		return nil
	}
	v := capRunes(strings.TrimSpace(s), limit)
	return &v
}

// isTrue reports whether key holds the JSON literal true. Strings such as
// "true" do not count.
func (f fields) isTrue(key string) bool {
	b := f.optBool(key)
	return b != nil && *b
}

func (f fields) optBool(key string) *bool {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}

func (f fields) enum(key string, allowed ...string) string {
	v := strings.ToLower(f.str(key, 64))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return ""
}

func (f fields) object(key string) json.RawMessage {
	raw := bytes.TrimSpace(f[key])
	if len(raw) == 0 || raw[0] != '{' {
		return json.RawMessage("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

func capRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
