package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/agentdesk/internal/agent/providers"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

type fakeConfig struct {
	configs     map[string]*models.AgentConfig
	creds       *models.ProviderCredentials
	embedCreds  *models.EmbeddingCredentials
	agents      map[string]*models.AgentRef
	configErr   error
	configCalls int
	mu          sync.Mutex
}

func (f *fakeConfig) GetAgentConfig(_ context.Context, _, agentID string) (*models.AgentConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configCalls++
	if f.configErr != nil {
		return nil, f.configErr
	}
	return f.configs[agentID], nil
}

func (f *fakeConfig) GetProviderCredentials(context.Context, string, string) (*models.ProviderCredentials, error) {
	return f.creds, nil
}

func (f *fakeConfig) GetEmbeddingCredentials(context.Context, string) (*models.EmbeddingCredentials, error) {
	return f.embedCreds, nil
}

func (f *fakeConfig) LookupAgentBySlug(_ context.Context, _, slug string) (*models.AgentRef, error) {
	return f.agents[slug], nil
}

type fakeMemory struct {
	mu       sync.Mutex
	recent   []models.ChatMessage
	ids      []string
	byID     map[string]models.ChatMessage
	saved    []models.MemoryEntry
	thoughts []models.Thought
	saveErr  error
}

func (f *fakeMemory) LoadRecentContext(context.Context, string, string, int) ([]models.ChatMessage, error) {
	return f.recent, nil
}

func (f *fakeMemory) VectorSearchMemory(context.Context, string, []float32, int) ([]string, error) {
	return f.ids, nil
}

func (f *fakeMemory) GetMemoriesByIDs(_ context.Context, ids []string) ([]models.ChatMessage, error) {
	out := make([]models.ChatMessage, 0, len(ids))
	for _, id := range ids {
		if m, ok := f.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemory) SaveMemory(_ context.Context, entry models.MemoryEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved = append(f.saved, entry)
	return fmt.Sprintf("mem-%d", len(f.saved)), nil
}

func (f *fakeMemory) SaveThought(_ context.Context, thought models.Thought) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thoughts = append(f.thoughts, thought)
	return fmt.Sprintf("thought-%d", len(f.thoughts)), nil
}

type statusUpdate struct {
	taskID  string
	status  models.TaskStatus
	outcome string
}

type fakeWorkspace struct {
	mu            sync.Mutex
	tasks         []models.NewTask
	feed          []models.NewFeedItem
	skills        []models.NewSkill
	skillUpdates  map[string]models.SkillUpdate
	statuses      []statusUpdate
	moves         map[string]string
	files         map[string]string
	audio         map[string]string
	workflows     map[string][]models.WorkflowStep
	createTaskErr error
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{
		skillUpdates: map[string]models.SkillUpdate{},
		moves:        map[string]string{},
		files:        map[string]string{},
		audio:        map[string]string{},
		workflows:    map[string][]models.WorkflowStep{},
	}
}

func (f *fakeWorkspace) CreateTask(_ context.Context, in models.NewTask) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createTaskErr != nil {
		return nil, f.createTaskErr
	}
	f.tasks = append(f.tasks, in)
	return &models.Task{ID: fmt.Sprintf("task-%d", len(f.tasks)), Description: in.Description}, nil
}

func (f *fakeWorkspace) UpdateTaskStatus(_ context.Context, _, taskID string, status models.TaskStatus, outcome string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusUpdate{taskID, status, outcome})
	return nil
}

func (f *fakeWorkspace) MoveTask(_ context.Context, _, taskID, column string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves[taskID] = column
	return nil
}

func (f *fakeWorkspace) CreateSkill(_ context.Context, in models.NewSkill) (*models.Skill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skills = append(f.skills, in)
	return &models.Skill{ID: "skill-1", Name: in.Name}, nil
}

func (f *fakeWorkspace) UpdateSkill(_ context.Context, _, skillID string, update models.SkillUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skillUpdates[skillID] = update
	return nil
}

func (f *fakeWorkspace) CreateFeedItem(_ context.Context, in models.NewFeedItem) (*models.FeedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feed = append(f.feed, in)
	return &models.FeedItem{ID: "feed-1", Title: in.Title}, nil
}

func (f *fakeWorkspace) StoreOutcomeFile(_ context.Context, _, taskID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[taskID] = content
	return "file-1", nil
}

func (f *fakeWorkspace) LinkOutcomeAudio(_ context.Context, _, taskID, audioID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio[taskID] = audioID
	return nil
}

func (f *fakeWorkspace) AttachWorkflowSteps(_ context.Context, _, taskID string, steps []models.WorkflowStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflows[taskID] = steps
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	flags   []models.SecurityFlagRecord
	actions []models.AgentActionRecord
}

func (f *fakeAudit) LogSecurityFlag(_ context.Context, rec models.SecurityFlagRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = append(f.flags, rec)
	return nil
}

func (f *fakeAudit) LogAgentAction(_ context.Context, rec models.AgentActionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, rec)
	return nil
}

// fakeProvider answers with respond, or reply when respond is nil.
type fakeProvider struct {
	mu      sync.Mutex
	reply   string
	tokens  int
	err     error
	respond func(messages []models.ChatMessage) string
	calls   [][]models.ChatMessage
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Call(_ context.Context, _ models.ProviderCredentials, _ string, messages []models.ChatMessage) (*providers.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	content := f.reply
	if f.respond != nil {
		content = f.respond(messages)
	}
	return &providers.Response{Content: content, TokensUsed: f.tokens}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeResolver struct{ provider providers.ChatProvider }

func (r fakeResolver) Resolve(string) providers.ChatProvider { return r.provider }

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(context.Context, models.EmbeddingCredentials, string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

type fakeSpeech struct{ id string }

func (f fakeSpeech) Synthesize(context.Context, string, string, string) (string, error) {
	return f.id, nil
}

type fakeImages struct{ id string }

func (f fakeImages) Generate(context.Context, string, string, string) (string, error) {
	return f.id, nil
}

type fakeTools struct{}

func (fakeTools) Execute(_ context.Context, name string, args json.RawMessage) (string, error) {
	if name != "echo" {
		return "", errors.New("unknown tool")
	}
	return "echo:" + string(args), nil
}

// harness wires a Processor to fresh fakes.
type harness struct {
	config    *fakeConfig
	memory    *fakeMemory
	workspace *fakeWorkspace
	audit     *fakeAudit
	provider  *fakeProvider
	deps      Deps
}

func newHarness(reply string) *harness {
	h := &harness{
		config: &fakeConfig{
			configs: map[string]*models.AgentConfig{
				"": {AgentName: "Ada", OwnerName: "Sam", Provider: "openai", Model: "gpt-4o", Capabilities: []string{"tasks"}},
			},
			creds:  &models.ProviderCredentials{APIKey: "sk-test"},
			agents: map[string]*models.AgentRef{},
		},
		memory:    &fakeMemory{byID: map[string]models.ChatMessage{}},
		workspace: newFakeWorkspace(),
		audit:     &fakeAudit{},
		provider:  &fakeProvider{reply: reply, tokens: 21},
	}
	h.deps = Deps{
		Config:    h.config,
		Memory:    h.memory,
		Workspace: h.workspace,
		Audit:     h.audit,
		Providers: fakeResolver{provider: h.provider},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) },
	}
	return h
}

func (h *harness) processor(t *testing.T, opts Options) *Processor {
	t.Helper()
	p, err := NewProcessor(h.deps, opts)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	return p
}

func (h *harness) addAgent(id, name, slug string) {
	h.config.configs[id] = &models.AgentConfig{AgentID: id, AgentName: name, Provider: "openai", Model: "gpt-4o"}
	h.config.agents[slug] = &models.AgentRef{ID: id, Name: name, Slug: slug}
}

// systemOf returns the system message of a recorded call.
func systemOf(messages []models.ChatMessage) string {
	if len(messages) == 0 || messages[0].Role != models.RoleSystem {
		return ""
	}
	return messages[0].Content
}

func agentNamed(messages []models.ChatMessage, name string) bool {
	return strings.Contains(systemOf(messages), "You are "+name+",")
}
