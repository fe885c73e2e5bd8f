package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/agentdesk/internal/agent"
	"github.com/haasonsaas/agentdesk/internal/blobstore"
	"github.com/haasonsaas/agentdesk/internal/credentials"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// tickingClock advances one second per call so ordering by created_at is stable.
type tickingClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *tickingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	blobs, err := blobstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	key := make([]byte, credentials.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	codec, err := credentials.NewAESGCM(key)
	if err != nil {
		t.Fatalf("NewAESGCM() error = %v", err)
	}
	dsn := fmt.Sprintf("file:%s/test.db", t.TempDir())
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: dsn}, codec, blobs)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	clock := &tickingClock{cur: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s.now = clock.now
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return s
}

func TestOpenValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Config{Driver: "mysql", DSN: "x"}, nil, nil); err == nil {
		t.Error("expected error for unsupported driver")
	}
	if _, err := Open(ctx, Config{Driver: DriverSQLite}, nil, nil); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestAgentConfigMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg, err := s.GetAgentConfig(ctx, "u1", "")
	if err != nil || cfg != nil {
		t.Fatalf("GetAgentConfig() for unknown user = %+v, %v", cfg, err)
	}

	if err := s.UpsertUser(ctx, models.User{
		ID:           "u1",
		Name:         "Sam",
		AgentName:    "Ada",
		Provider:     "openai",
		Model:        "gpt-4o",
		Capabilities: []string{"tasks", "feed"},
	}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	agentID, err := s.CreateAgent(ctx, models.Agent{
		UserID:   "u1",
		Slug:     "Research",
		Name:     "Rex",
		Provider: "anthropic",
		Model:    "claude-sonnet-4",
	})
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	if _, err := s.CreateAgent(ctx, models.Agent{UserID: "u1", Slug: "research"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate CreateAgent() error = %v, want ErrAlreadyExists", err)
	}

	def, err := s.GetAgentConfig(ctx, "u1", "")
	if err != nil {
		t.Fatalf("GetAgentConfig() error = %v", err)
	}
	if def.AgentName != "Ada" || def.OwnerName != "Sam" || def.Provider != "openai" || len(def.Capabilities) != 2 {
		t.Fatalf("default config = %+v", def)
	}

	merged, err := s.GetAgentConfig(ctx, "u1", agentID)
	if err != nil {
		t.Fatalf("GetAgentConfig(agent) error = %v", err)
	}
	if merged.AgentName != "Rex" || merged.Provider != "anthropic" || merged.Model != "claude-sonnet-4" {
		t.Fatalf("merged config = %+v", merged)
	}
	if merged.OwnerName != "Sam" || len(merged.Capabilities) != 2 {
		t.Fatalf("merged config lost owner defaults: %+v", merged)
	}

	missing, err := s.GetAgentConfig(ctx, "u1", "nope")
	if err != nil || missing != nil {
		t.Fatalf("GetAgentConfig(unknown agent) = %+v, %v", missing, err)
	}

	ref, err := s.LookupAgentBySlug(ctx, "u1", " RESEARCH ")
	if err != nil || ref == nil || ref.ID != agentID || ref.Name != "Rex" {
		t.Fatalf("LookupAgentBySlug() = %+v, %v", ref, err)
	}
	other, err := s.LookupAgentBySlug(ctx, "u2", "research")
	if err != nil || other != nil {
		t.Fatalf("LookupAgentBySlug() across owners = %+v, %v", other, err)
	}
}

func TestCredentialsEncryptedAtRest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	creds, err := s.GetProviderCredentials(ctx, "u1", "openai")
	if err != nil || creds != nil {
		t.Fatalf("GetProviderCredentials() before save = %+v, %v", creds, err)
	}
	if err := s.SaveProviderCredentials(ctx, "u1", "OpenAI", models.ProviderCredentials{APIKey: "sk-live-123", BaseURL: "https://proxy"}); err != nil {
		t.Fatalf("SaveProviderCredentials() error = %v", err)
	}

	var stored string
	if err := s.db.QueryRow(`SELECT api_key FROM provider_credentials WHERE user_id = 'u1'`).Scan(&stored); err != nil {
		t.Fatalf("raw select error = %v", err)
	}
	if stored == "sk-live-123" {
		t.Fatal("api key stored in plaintext")
	}

	creds, err = s.GetProviderCredentials(ctx, "u1", "openai")
	if err != nil || creds == nil || creds.APIKey != "sk-live-123" || creds.BaseURL != "https://proxy" {
		t.Fatalf("GetProviderCredentials() = %+v, %v", creds, err)
	}

	if err := s.SaveEmbeddingCredentials(ctx, "u1", models.EmbeddingCredentials{APIKey: "sk-embed", Model: "text-embedding-3-small"}); err != nil {
		t.Fatalf("SaveEmbeddingCredentials() error = %v", err)
	}
	embed, err := s.GetEmbeddingCredentials(ctx, "u1")
	if err != nil || embed == nil || embed.APIKey != "sk-embed" || embed.Model != "text-embedding-3-small" {
		t.Fatalf("GetEmbeddingCredentials() = %+v, %v", embed, err)
	}
}

func TestMemoryContextAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turns := []struct {
		kind    models.MemoryType
		content string
		vec     []float32
	}{
		{models.MemoryUserMessage, "What's on my calendar?", []float32{1, 0, 0}},
		{models.MemoryAssistantMessage, "Two meetings today.", []float32{0, 1, 0}},
		{models.MemoryUserMessage, "Book the dentist.", []float32{0.9, 0.1, 0}},
		{models.MemoryAssistantMessage, "Booked for Friday.", nil},
	}
	var ids []string
	for _, turn := range turns {
		id, err := s.SaveMemory(ctx, models.MemoryEntry{
			UserID:    "u1",
			Type:      turn.kind,
			Content:   turn.content,
			Source:    "api",
			Embedding: turn.vec,
			Metadata:  map[string]any{"channel": "api"},
		})
		if err != nil {
			t.Fatalf("SaveMemory() error = %v", err)
		}
		ids = append(ids, id)
	}
	if _, err := s.SaveMemory(ctx, models.MemoryEntry{UserID: "u1", AgentID: "other", Type: models.MemoryUserMessage, Content: "elsewhere"}); err != nil {
		t.Fatalf("SaveMemory(other agent) error = %v", err)
	}

	recent, err := s.LoadRecentContext(ctx, "u1", "", 3)
	if err != nil {
		t.Fatalf("LoadRecentContext() error = %v", err)
	}
	want := []models.ChatMessage{
		{Role: models.RoleAssistant, Content: "Two meetings today."},
		{Role: models.RoleUser, Content: "Book the dentist."},
		{Role: models.RoleAssistant, Content: "Booked for Friday."},
	}
	if len(recent) != len(want) {
		t.Fatalf("LoadRecentContext() = %+v", recent)
	}
	for i := range want {
		if recent[i] != want[i] {
			t.Errorf("recent[%d] = %+v, want %+v", i, recent[i], want[i])
		}
	}

	found, err := s.VectorSearchMemory(ctx, "u1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("VectorSearchMemory() error = %v", err)
	}
	if len(found) != 2 || found[0] != ids[0] || found[1] != ids[2] {
		t.Fatalf("VectorSearchMemory() = %v, want [%s %s]", found, ids[0], ids[2])
	}
	none, err := s.VectorSearchMemory(ctx, "u2", []float32{1, 0, 0}, 2)
	if err != nil || len(none) != 0 {
		t.Fatalf("VectorSearchMemory(other user) = %v, %v", none, err)
	}

	memories, err := s.GetMemoriesByIDs(ctx, []string{ids[2], "missing", ids[1]})
	if err != nil {
		t.Fatalf("GetMemoriesByIDs() error = %v", err)
	}
	if len(memories) != 2 || memories[0].Content != "Book the dentist." || memories[1].Role != models.RoleAssistant {
		t.Fatalf("GetMemoriesByIDs() = %+v", memories)
	}
}

func TestThoughts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, content := range []string{"first", "second"} {
		if _, err := s.SaveThought(ctx, models.Thought{UserID: "u1", AgentID: "a1", Type: models.ThoughtReasoning, Content: content}); err != nil {
			t.Fatalf("SaveThought() error = %v", err)
		}
	}
	got, err := s.ListThoughts(ctx, "u1", "a1", 10)
	if err != nil {
		t.Fatalf("ListThoughts() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "second" || got[0].Type != models.ThoughtReasoning {
		t.Fatalf("ListThoughts() = %+v", got)
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, models.NewTask{UserID: "u1", Title: "Plan trip", Description: "Plan the Lisbon trip"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.Priority != models.PriorityMedium || task.Column != DefaultColumn || task.Status != models.TaskPending {
		t.Fatalf("CreateTask() defaults = %+v", task)
	}

	if _, err := s.CreateTask(ctx, models.NewTask{UserID: "u1", ParentTaskID: "missing", Description: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("CreateTask(bad parent) error = %v, want ErrNotFound", err)
	}
	sub, err := s.CreateTask(ctx, models.NewTask{UserID: "u1", ParentTaskID: task.ID, Title: "Flights", Description: "Book flights"})
	if err != nil {
		t.Fatalf("CreateTask(subtask) error = %v", err)
	}

	if err := s.UpdateTaskStatus(ctx, "u1", task.ID, models.TaskCompleted, "Booked everything."); err != nil {
		t.Fatalf("UpdateTaskStatus() error = %v", err)
	}
	if err := s.UpdateTaskStatus(ctx, "u1", task.ID, models.TaskInProgress, ""); err != nil {
		t.Fatalf("UpdateTaskStatus(no outcome) error = %v", err)
	}
	if err := s.MoveTask(ctx, "u1", task.ID, "done"); err != nil {
		t.Fatalf("MoveTask() error = %v", err)
	}
	if err := s.MoveTask(ctx, "u2", task.ID, "done"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MoveTask(other user) error = %v, want ErrNotFound", err)
	}

	steps := []models.WorkflowStep{{Label: "Security scan", Status: models.StepCompleted, StartedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}}
	if err := s.AttachWorkflowSteps(ctx, "u1", task.ID, steps); err != nil {
		t.Fatalf("AttachWorkflowSteps() error = %v", err)
	}
	if err := s.LinkOutcomeAudio(ctx, "u1", task.ID, "audio-1"); err != nil {
		t.Fatalf("LinkOutcomeAudio() error = %v", err)
	}

	fileID, err := s.StoreOutcomeFile(ctx, "u1", task.ID, "# Full report")
	if err != nil {
		t.Fatalf("StoreOutcomeFile() error = %v", err)
	}
	content, err := s.ReadOutcomeFile(ctx, "u1", fileID)
	if err != nil || content != "# Full report" {
		t.Fatalf("ReadOutcomeFile() = %q, %v", content, err)
	}

	got, err := s.GetTask(ctx, "u1", task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Status != models.TaskInProgress || got.Outcome != "Booked everything." || got.Column != "done" {
		t.Fatalf("GetTask() = %+v", got)
	}
	if got.AudioID != "audio-1" || got.OutcomeFileID != fileID || len(got.Workflow) != 1 || got.Workflow[0].Label != "Security scan" {
		t.Fatalf("GetTask() links = %+v", got)
	}

	tasks, err := s.ListTasks(ctx, "u1")
	if err != nil || len(tasks) != 2 || tasks[1].ParentTaskID != task.ID || tasks[1].ID != sub.ID {
		t.Fatalf("ListTasks() = %+v, %v", tasks, err)
	}
	if err := s.UpdateTaskStatus(ctx, "u1", "missing", models.TaskFailed, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTaskStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStoreOutcomeFileWithoutBlobs(t *testing.T) {
	s := newTestStore(t)
	s.blobs = nil
	if _, err := s.StoreOutcomeFile(context.Background(), "u1", "t1", "x"); !errors.Is(err, ErrNoBlobStore) {
		t.Fatalf("StoreOutcomeFile() error = %v, want ErrNoBlobStore", err)
	}
}

func TestSkillsAndFeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	skill, err := s.CreateSkill(ctx, models.NewSkill{UserID: "u1", Name: "Go", Level: "advanced"})
	if err != nil {
		t.Fatalf("CreateSkill() error = %v", err)
	}
	bio, public := "Writes services.", true
	if err := s.UpdateSkill(ctx, "u1", skill.ID, models.SkillUpdate{Bio: &bio, IsPublic: &public}); err != nil {
		t.Fatalf("UpdateSkill() error = %v", err)
	}
	if err := s.UpdateSkill(ctx, "u1", skill.ID, models.SkillUpdate{}); err == nil {
		t.Fatal("UpdateSkill() with no fields should fail")
	}
	got, err := s.GetSkill(ctx, "u1", skill.ID)
	if err != nil || got.Bio != bio || !got.IsPublic || got.Level != "advanced" {
		t.Fatalf("GetSkill() = %+v, %v", got, err)
	}

	if _, err := s.CreateFeedItem(ctx, models.NewFeedItem{UserID: "u1", Title: "Shipped", MediaID: "m1"}); err != nil {
		t.Fatalf("CreateFeedItem() error = %v", err)
	}
	if _, err := s.CreateFeedItem(ctx, models.NewFeedItem{UserID: "u1", Kind: "insight", Title: "Noticed", IsPublic: true}); err != nil {
		t.Fatalf("CreateFeedItem() error = %v", err)
	}
	feed, err := s.ListFeed(ctx, "u1", 10)
	if err != nil || len(feed) != 2 {
		t.Fatalf("ListFeed() = %+v, %v", feed, err)
	}
	if feed[0].Title != "Noticed" || !feed[0].IsPublic || feed[1].Kind != "update" || feed[1].MediaID != "m1" {
		t.Fatalf("ListFeed() order or fields = %+v", feed)
	}
}

func TestAuditRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.LogSecurityFlag(ctx, models.SecurityFlagRecord{
		UserID: "u1", Source: "api", FlagType: "prompt_injection", Severity: "block",
		Pattern: "ignore previous", InputSnippet: "[filtered]", Action: "blocked",
	}); err != nil {
		t.Fatalf("LogSecurityFlag() error = %v", err)
	}
	if err := s.LogAgentAction(ctx, models.AgentActionRecord{
		UserID: "u1", Action: "process_message", Resource: "default_agent", CallerType: "api", TokenCount: 42, Status: "success",
	}); err != nil {
		t.Fatalf("LogAgentAction() error = %v", err)
	}

	flags, err := s.ListSecurityFlags(ctx, "u1", 10)
	if err != nil || len(flags) != 1 || flags[0].Action != "blocked" {
		t.Fatalf("ListSecurityFlags() = %+v, %v", flags, err)
	}
	actions, err := s.ListAgentActions(ctx, "u1", 10)
	if err != nil || len(actions) != 1 || actions[0].TokenCount != 42 {
		t.Fatalf("ListAgentActions() = %+v, %v", actions, err)
	}
}

func TestMedia(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.SaveMedia(ctx, models.Media{UserID: "u1", Kind: "audio", BlobKey: "users/u1/audio/x.mp3", ContentType: "audio/mpeg", Size: 3})
	if err != nil {
		t.Fatalf("SaveMedia() error = %v", err)
	}
	m, err := s.GetMedia(ctx, "u1", id)
	if err != nil || m.BlobKey != "users/u1/audio/x.mp3" || m.Size != 3 {
		t.Fatalf("GetMedia() = %+v, %v", m, err)
	}
	if _, err := s.GetMedia(ctx, "u2", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetMedia(other user) error = %v, want ErrNotFound", err)
	}
}

func TestEmbeddingEncoding(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out := decodeEmbedding(encodeEmbedding(in))
	if len(out) != len(in) {
		t.Fatalf("decodeEmbedding() len = %d", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if decodeEmbedding([]byte{1, 2, 3}) != nil {
		t.Error("decodeEmbedding() should reject partial floats")
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 0}); got != 0 {
		t.Errorf("cosineSimilarity() with zero vector = %v", got)
	}
}

var (
	_ agent.ConfigStore = (*Store)(nil)
	_ agent.MemoryStore = (*Store)(nil)
	_ agent.Workspace   = (*Store)(nil)
	_ agent.AuditSink   = (*Store)(nil)
)
