package actions

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

func TestParseNoTags(t *testing.T) {
	got := Parse("no tags here")
	if got.CleanResponse != "no tags here" {
		t.Errorf("CleanResponse = %q", got.CleanResponse)
	}
	if len(got.Actions) != 0 {
		t.Errorf("expected no actions, got %v", got.Actions)
	}
	if got.Thinking != nil {
		t.Errorf("expected nil thinking, got %q", *got.Thinking)
	}
}

func TestParseInvalidJSONFailsSoft(t *testing.T) {
	tests := []struct {
		name  string
		input string
		clean string
	}{
		{"not json", "<app_actions>not json</app_actions>", ""},
		{"object not array", `Sure.<app_actions>{"type":"create_task","description":"x"}</app_actions>`, "Sure."},
		{"unterminated", `On it. <app_actions>[{"type":"create_task",`, "On it."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if len(got.Actions) != 0 {
				t.Fatalf("expected no actions, got %v", got.Actions)
			}
			if got.CleanResponse != tt.clean {
				t.Fatalf("CleanResponse = %q, want %q", got.CleanResponse, tt.clean)
			}
			if strings.Contains(got.CleanResponse, "app_actions") {
				t.Fatal("tag block should be removed")
			}
		})
	}
}

func TestParseCreateTask(t *testing.T) {
	got := Parse("Working on it.\n<app_actions>[{\"type\":\"create_task\",\"description\":\"Buy milk\"}]</app_actions>")
	if got.CleanResponse != "Working on it." {
		t.Fatalf("CleanResponse = %q", got.CleanResponse)
	}
	if len(got.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got.Actions))
	}
	task, ok := got.Actions[0].(CreateTask)
	if !ok {
		t.Fatalf("expected CreateTask, got %T", got.Actions[0])
	}
	if task.Description != "Buy milk" {
		t.Errorf("Description = %q", task.Description)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("Priority = %q, want default medium", task.Priority)
	}
}

func TestParseThinking(t *testing.T) {
	raw := "<THINKING>  plan carefully </THINKING>Here you go.<thinking>second</thinking>"
	got := Parse(raw)
	if got.Thinking == nil || *got.Thinking != "plan carefully" {
		t.Fatalf("Thinking = %v", got.Thinking)
	}
	if got.CleanResponse != "Here you go.<thinking>second</thinking>" {
		t.Fatalf("only the first thinking block should be removed, got %q", got.CleanResponse)
	}

	empty := Parse("<thinking>   </thinking>hello")
	if empty.Thinking != nil {
		t.Fatal("empty thinking block should yield nil")
	}
	if empty.CleanResponse != "hello" {
		t.Fatalf("CleanResponse = %q", empty.CleanResponse)
	}
}

func TestParseFieldCapping(t *testing.T) {
	longTitle := strings.Repeat("t", 500)
	longDesc := strings.Repeat("d", 1000)
	raw := fmt.Sprintf(`<app_actions>[
		{"type":"create_feed_item","title":%q},
		{"type":"create_task","description":%q}
	]</app_actions>`, longTitle, longDesc)

	got := Parse(raw)
	if len(got.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(got.Actions))
	}
	feed := got.Actions[0].(CreateFeedItem)
	if n := len([]rune(feed.Title)); n != MaxFeedTitle {
		t.Errorf("feed title length = %d, want %d", n, MaxFeedTitle)
	}
	task := got.Actions[1].(CreateTask)
	if n := len([]rune(task.Description)); n != MaxTaskDescription {
		t.Errorf("task description length = %d, want %d", n, MaxTaskDescription)
	}
}

func TestParseCappingIsRuneSafe(t *testing.T) {
	raw := fmt.Sprintf(`<app_actions>[{"type":"create_feed_item","title":%q}]</app_actions>`, strings.Repeat("é", 200))
	got := Parse(raw)
	feed := got.Actions[0].(CreateFeedItem)
	if n := len([]rune(feed.Title)); n != MaxFeedTitle {
		t.Fatalf("title rune length = %d", n)
	}
	if !utf8.ValidString(feed.Title) {
		t.Fatal("capped title is not valid UTF-8")
	}
}

func TestParseUnknownTypesDropped(t *testing.T) {
	got := Parse(`<app_actions>[{"type":"unknown_thing"}]</app_actions>`)
	if len(got.Actions) != 0 {
		t.Fatalf("expected no actions, got %v", got.Actions)
	}
	if got.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", got.Dropped)
	}
}

func TestParseSiblingIsolation(t *testing.T) {
	raw := `Done.<app_actions>[
		{"type":"create_task","description":""},
		{"type":"move_task","taskId":"t1"},
		"junk",
		42,
		{"type":"move_task","taskId":"t1","column":"Doing"},
		{"type":"update_task_status","taskId":"t2","status":"archived"},
		{"type":"update_task_status","taskId":"t2","status":"Completed","outcomeSummary":" shipped "}
	]</app_actions>`
	got := Parse(raw)
	if len(got.Actions) != 2 {
		t.Fatalf("expected 2 valid actions, got %d: %#v", len(got.Actions), got.Actions)
	}
	move := got.Actions[0].(MoveTask)
	if move.TaskID != "t1" || move.Column != "Doing" {
		t.Errorf("move = %+v", move)
	}
	status := got.Actions[1].(UpdateTaskStatus)
	if status.Status != models.TaskCompleted || status.OutcomeSummary != "shipped" {
		t.Errorf("status = %+v", status)
	}
	if got.Dropped != 5 {
		t.Errorf("Dropped = %d, want 5", got.Dropped)
	}
}

func TestParseStrictBooleans(t *testing.T) {
	raw := `<app_actions>[
		{"type":"create_feed_item","title":"a","isPublic":"true"},
		{"type":"create_feed_item","title":"b","isPublic":1},
		{"type":"create_feed_item","title":"c","isPublic":true}
	]</app_actions>`
	got := Parse(raw)
	want := []bool{false, false, true}
	for i, a := range got.Actions {
		if a.(CreateFeedItem).IsPublic != want[i] {
			t.Errorf("action %d IsPublic = %v, want %v", i, !want[i], want[i])
		}
	}
}

func TestParseUpdateSkill(t *testing.T) {
	raw := `<app_actions>[
		{"type":"update_skill","skillId":"s1"},
		{"type":"update_skill","skillId":"s1","bio":"  Rust and Go  ","isPublic":false,"level":"ninja"}
	]</app_actions>`
	got := Parse(raw)
	if len(got.Actions) != 1 {
		t.Fatalf("update without fields should be dropped; got %d actions", len(got.Actions))
	}
	u := got.Actions[0].(UpdateSkill)
	if u.Bio == nil || *u.Bio != "Rust and Go" {
		t.Errorf("Bio = %v", u.Bio)
	}
	if u.IsPublic == nil || *u.IsPublic {
		t.Errorf("IsPublic = %v, want explicit false", u.IsPublic)
	}
	if u.Level != nil {
		t.Errorf("invalid level should be ignored, got %q", *u.Level)
	}
	if u.Description != nil {
		t.Error("absent description should stay nil")
	}
}

func TestParseCallToolArguments(t *testing.T) {
	raw := `<app_actions>[
		{"type":"call_tool","tool":"current_time","arguments":{"timezone":"UTC"}},
		{"type":"call_tool","tool":"current_time","arguments":"tz=UTC"},
		{"type":"call_tool","arguments":{}}
	]</app_actions>`
	got := Parse(raw)
	if len(got.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(got.Actions))
	}
	first := got.Actions[0].(CallTool)
	var args map[string]string
	if err := json.Unmarshal(first.Arguments, &args); err != nil || args["timezone"] != "UTC" {
		t.Errorf("arguments = %s (%v)", first.Arguments, err)
	}
	if second := got.Actions[1].(CallTool); string(second.Arguments) != "{}" {
		t.Errorf("non-object arguments should become {}, got %s", second.Arguments)
	}
}

func TestParseEveryVariant(t *testing.T) {
	raw := `<app_actions>[
		{"type":"create_task","title":"T","description":"D","priority":"HIGH","column":"Backlog"},
		{"type":"create_feed_item","title":"F","kind":"insight"},
		{"type":"create_skill","name":"Go","category":"lang","level":"expert"},
		{"type":"update_task_status","taskId":"t","status":"in_progress"},
		{"type":"move_task","taskId":"t","column":"Done"},
		{"type":"update_skill","skillId":"s","description":"d"},
		{"type":"create_subtask","parentTaskId":"t","description":"sub"},
		{"type":"delegate_to_agent","agentSlug":"Research-Bot","message":"dig in"},
		{"type":"generate_image","prompt":"a cat","caption":"cat"},
		{"type":"generate_audio","text":"hello","taskId":"t"},
		{"type":"call_tool","tool":"current_time"}
	]</app_actions>`
	got := Parse(raw)
	want := []Type{
		TypeCreateTask, TypeCreateFeedItem, TypeCreateSkill, TypeUpdateTaskStatus,
		TypeMoveTask, TypeUpdateSkill, TypeCreateSubtask, TypeDelegateToAgent,
		TypeGenerateImage, TypeGenerateAudio, TypeCallTool,
	}
	if len(got.Actions) != len(want) {
		t.Fatalf("got %d actions, want %d", len(got.Actions), len(want))
	}
	for i, a := range got.Actions {
		if a.Type() != want[i] {
			t.Errorf("action %d type = %s, want %s", i, a.Type(), want[i])
		}
	}
	if p := got.Actions[0].(CreateTask).Priority; p != models.PriorityHigh {
		t.Errorf("priority = %q", p)
	}
	if slug := got.Actions[7].(DelegateToAgent).AgentSlug; slug != "research-bot" {
		t.Errorf("slug = %q", slug)
	}
	if args := got.Actions[10].(CallTool).Arguments; string(args) != "{}" {
		t.Errorf("missing arguments should default to {}, got %s", args)
	}
}

func TestParseCodeFencedBlock(t *testing.T) {
	raw := "Ok\n<app_actions>\n```json\n[{\"type\":\"create_task\",\"description\":\"x\"}]\n```\n</app_actions>"
	got := Parse(raw)
	if len(got.Actions) != 1 {
		t.Fatalf("expected fenced JSON to parse, got %d actions", len(got.Actions))
	}
}
