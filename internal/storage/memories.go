package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

// SaveMemory stores one conversation turn and returns its id.
func (s *Store) SaveMemory(ctx context.Context, entry models.MemoryEntry) (string, error) {
	if entry.UserID == "" || strings.TrimSpace(entry.Content) == "" {
		return "", errors.New("memory user id and content are required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
	}
	_, err := s.exec(ctx,
		`INSERT INTO memories (id, user_id, agent_id, type, content, source, embedding, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.AgentID, string(entry.Type), entry.Content, entry.Source,
		embeddingArg(entry.Embedding), string(metadata), entry.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("save memory: %w", err)
	}
	return entry.ID, nil
}

// LoadRecentContext returns at most limit turns for (user, agent), oldest first.
func (s *Store) LoadRecentContext(ctx context.Context, userID, agentID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.query(ctx,
		`SELECT type, content FROM memories
		 WHERE user_id = ? AND agent_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`, userID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent context: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var kind, content string
		if err := rows.Scan(&kind, &content); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, models.ChatMessage{Role: models.MemoryType(kind).Role(), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load recent context: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

type scoredMemory struct {
	id    string
	score float64
}

// VectorSearchMemory ranks the user's embedded memories by cosine similarity
// and returns the ids of the best limit matches.
func (s *Store) VectorSearchMemory(ctx context.Context, userID string, embedding []float32, limit int) ([]string, error) {
	if len(embedding) == 0 || limit <= 0 {
		return nil, nil
	}
	rows, err := s.query(ctx,
		`SELECT id, embedding FROM memories WHERE user_id = ? AND embedding IS NOT NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var scored []scoredMemory
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		vec := decodeEmbedding(blob)
		if len(vec) != len(embedding) {
			continue
		}
		scored = append(scored, scoredMemory{id: id, score: cosineSimilarity(embedding, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	ids := make([]string, len(scored))
	for i, m := range scored {
		ids[i] = m.id
	}
	return ids, nil
}

// GetMemoriesByIDs returns the memories in the order of ids. Unknown ids are skipped.
func (s *Store) GetMemoriesByIDs(ctx context.Context, ids []string) ([]models.ChatMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.query(ctx,
		`SELECT id, type, content FROM memories WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get memories: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.ChatMessage, len(ids))
	for rows.Next() {
		var id, kind, content string
		if err := rows.Scan(&id, &kind, &content); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		byID[id] = models.ChatMessage{Role: models.MemoryType(kind).Role(), Content: content}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get memories: %w", err)
	}

	out := make([]models.ChatMessage, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// SaveThought stores internal reasoning or a tool result and returns its id.
func (s *Store) SaveThought(ctx context.Context, thought models.Thought) (string, error) {
	if thought.UserID == "" {
		return "", errors.New("thought user id is required")
	}
	if thought.ID == "" {
		thought.ID = uuid.NewString()
	}
	if thought.CreatedAt.IsZero() {
		thought.CreatedAt = s.now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO thoughts (id, user_id, agent_id, type, content, context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		thought.ID, thought.UserID, thought.AgentID, string(thought.Type), thought.Content, thought.Context, thought.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("save thought: %w", err)
	}
	return thought.ID, nil
}

// ListThoughts returns the most recent thoughts of an agent, newest first.
func (s *Store) ListThoughts(ctx context.Context, userID, agentID string, limit int) ([]models.Thought, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, agent_id, type, content, context, created_at FROM thoughts
		 WHERE user_id = ? AND agent_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`, userID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list thoughts: %w", err)
	}
	defer rows.Close()

	var out []models.Thought
	for rows.Next() {
		var t models.Thought
		var kind string
		if err := rows.Scan(&t.ID, &t.UserID, &t.AgentID, &kind, &t.Content, &t.Context, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thought: %w", err)
		}
		t.Type = models.ThoughtType(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}

// embeddingArg stores a missing embedding as NULL.
func embeddingArg(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return encodeEmbedding(embedding)
}

// encodeEmbedding packs float32 values little-endian, four bytes each.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
