package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/agentdesk/internal/credentials"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, DriverPostgres, credentials.Plaintext{}, nil), mock
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("SELECT a FROM t WHERE b = ? AND c IN (?, ?)"); got != "SELECT a FROM t WHERE b = $1 AND c IN ($2, $3)" {
		t.Fatalf("rebind() = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("x = ?"); got != "x = ?" {
		t.Fatalf("sqlite rebind() = %q", got)
	}
}

func TestPostgresTypeNames(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	got := pg.typeNames("embedding BLOB, created_at TIMESTAMP NOT NULL")
	if got != "embedding BYTEA, created_at TIMESTAMPTZ NOT NULL" {
		t.Fatalf("typeNames() = %q", got)
	}
}

func TestPostgresProviderCredentials(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantKey   string
		wantNil   bool
		wantErr   bool
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT api_key, base_url FROM provider_credentials WHERE user_id = $1 AND provider = $2")).
					WithArgs("u1", "openai").
					WillReturnRows(sqlmock.NewRows([]string{"api_key", "base_url"}).AddRow("sk-1", ""))
			},
			wantKey: "sk-1",
		},
		{
			name: "absent",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT api_key, base_url FROM provider_credentials").
					WillReturnError(sql.ErrNoRows)
			},
			wantNil: true,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT api_key, base_url FROM provider_credentials").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := setupMockStore(t)
			tt.setupMock(mock)
			creds, err := s.GetProviderCredentials(context.Background(), "u1", "OpenAI")
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantNil && creds != nil {
				t.Fatalf("creds = %+v, want nil", creds)
			}
			if tt.wantKey != "" && (creds == nil || creds.APIKey != tt.wantKey) {
				t.Fatalf("creds = %+v, want key %s", creds, tt.wantKey)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestPostgresUpdateTaskStatus(t *testing.T) {
	t.Run("keeps outcome when empty", func(t *testing.T) {
		s, mock := setupMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3 AND user_id = $4")).
			WithArgs("in_progress", sqlmock.AnyArg(), "t1", "u1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		if err := s.UpdateTaskStatus(context.Background(), "u1", "t1", models.TaskInProgress, ""); err != nil {
			t.Fatalf("UpdateTaskStatus() error = %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("missing task", func(t *testing.T) {
		s, mock := setupMockStore(t)
		mock.ExpectExec("UPDATE tasks SET status").
			WithArgs("completed", "Done and dusted.", sqlmock.AnyArg(), "t1", "u1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		err := s.UpdateTaskStatus(context.Background(), "u1", "t1", models.TaskCompleted, "Done and dusted.")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("UpdateTaskStatus() error = %v, want ErrNotFound", err)
		}
	})
}

func TestPostgresLogAgentAction(t *testing.T) {
	s, mock := setupMockStore(t)
	mock.ExpectExec("INSERT INTO agent_actions").
		WithArgs(sqlmock.AnyArg(), "u1", "process_message", "default_agent", "a2a", "agent-1", 12, "success", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	err := s.LogAgentAction(context.Background(), models.AgentActionRecord{
		UserID: "u1", Action: "process_message", Resource: "default_agent",
		CallerType: "a2a", CallerIdentity: "agent-1", TokenCount: 12, Status: "success",
	})
	if err != nil {
		t.Fatalf("LogAgentAction() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresMigrate(t *testing.T) {
	s, mock := setupMockStore(t)
	for range schema {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
