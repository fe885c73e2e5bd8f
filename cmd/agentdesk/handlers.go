package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentdesk/internal/agent"
	"github.com/haasonsaas/agentdesk/internal/agent/providers"
	"github.com/haasonsaas/agentdesk/internal/auth"
	"github.com/haasonsaas/agentdesk/internal/config"
	"github.com/haasonsaas/agentdesk/internal/doctor"
	"github.com/haasonsaas/agentdesk/internal/prompt"
	"github.com/haasonsaas/agentdesk/internal/security"
	"github.com/haasonsaas/agentdesk/internal/storage"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// =============================================================================
// Shared Helpers
// =============================================================================

// readInput returns the single positional argument, or stdin when there is none.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withStore opens storage for a one-shot command and closes it afterwards.
func withStore(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg, newLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	fnErr := fn(ctx, a)
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(fnErr, a.Close(closeCtx))
}

// resolveAgent maps a slug to its agent id. Unknown values pass through as ids.
func resolveAgent(ctx context.Context, store *storage.Store, userID, agentID string) (string, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return "", nil
	}
	ref, err := store.LookupAgentBySlug(ctx, userID, agentID)
	if err != nil {
		return "", err
	}
	if ref != nil {
		return ref.ID, nil
	}
	return agentID, nil
}

// =============================================================================
// Runtime Handlers
// =============================================================================

type sendOptions struct {
	userID  string
	agentID string
	channel models.Channel
	message string
	jsonOut bool
}

// runSend processes one message in-process. The migrated schema is assumed.
func runSend(cmd *cobra.Command, opts *rootOptions, in sendOptions) error {
	if strings.TrimSpace(in.message) == "" {
		return errors.New("message is required")
	}
	if in.channel == "" {
		in.channel = models.ChannelAPI
	}
	if !in.channel.IsExternal() {
		return fmt.Errorf("unsupported channel %q", in.channel)
	}
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		if err := a.withPipeline(pipelineOptions{}); err != nil {
			return err
		}
		agentID, err := resolveAgent(ctx, a.store, in.userID, in.agentID)
		if err != nil {
			return err
		}
		result := a.processor.ProcessMessage(ctx, agent.Request{
			UserID:  in.userID,
			AgentID: agentID,
			Message: in.message,
			Channel: in.channel,
		})
		if in.jsonOut {
			return printJSON(cmd.OutOrStdout(), result)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Response)
		return err
	})
}

func runScan(cmd *cobra.Command, input string) error {
	return printJSON(cmd.OutOrStdout(), security.Scan(input))
}

type promptOptions struct {
	userID       string
	agentID      string
	agentName    string
	ownerName    string
	capabilities []string
	restrictions []string
	instructions string
}

func runPrompt(cmd *cobra.Command, opts *rootOptions, in promptOptions) error {
	render := func(cfg models.AgentConfig) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), prompt.Build(prompt.Input{
			AgentName:          cfg.AgentName,
			OwnerName:          cfg.OwnerName,
			Capabilities:       cfg.Capabilities,
			Restrictions:       cfg.Restrictions,
			CustomInstructions: cfg.SystemPrompt,
			Now:                time.Now(),
		}))
		return err
	}
	if in.userID == "" {
		return render(models.AgentConfig{
			AgentName:    in.agentName,
			OwnerName:    in.ownerName,
			Capabilities: in.capabilities,
			Restrictions: in.restrictions,
			SystemPrompt: in.instructions,
		})
	}
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		agentID, err := resolveAgent(ctx, a.store, in.userID, in.agentID)
		if err != nil {
			return err
		}
		cfg, err := a.store.GetAgentConfig(ctx, in.userID, agentID)
		if err != nil {
			return err
		}
		if cfg == nil {
			return fmt.Errorf("no agent configuration for user %q", in.userID)
		}
		return render(*cfg)
	})
}

// =============================================================================
// Operator Handlers
// =============================================================================

func runMigrate(cmd *cobra.Command, opts *rootOptions) error {
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		if err := a.store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", a.cfg.Database.Driver)
		return err
	})
}

func runToken(cmd *cobra.Command, opts *rootOptions, userID, agentID, name string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	jwtService := newAuthService(cfg.Auth).JWT()
	if jwtService == nil {
		return errors.New("auth.jwt_secret is not configured")
	}
	token, err := jwtService.Generate(auth.Principal{UserID: userID, AgentID: agentID, Name: name})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(append(schema, '\n'))
	return err
}

func runConfigValidate(cmd *cobra.Command, opts *rootOptions) error {
	path := opts.resolvedConfigPath()
	if _, err := config.Load(path); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
	return err
}

type doctorOptions struct {
	fix        bool
	dryRun     bool
	jsonOut    bool
	allowGroup bool
}

func runDoctor(cmd *cobra.Command, opts *rootOptions, in doctorOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	auditOpts := doctor.Options{
		ConfigPath:         opts.resolvedConfigPath(),
		Config:             cfg,
		AllowGroupReadable: in.allowGroup,
	}
	out := cmd.OutOrStdout()

	var fixResult *doctor.FixResult
	if in.fix {
		fixResult = doctor.Fix(auditOpts, in.dryRun)
	}
	report := doctor.Audit(auditOpts)

	if in.jsonOut {
		if err := printJSON(out, struct {
			Report *doctor.Report    `json:"report"`
			Fix    *doctor.FixResult `json:"fix,omitempty"`
		}{report, fixResult}); err != nil {
			return err
		}
	} else {
		if fixResult != nil {
			for _, action := range fixResult.Actions {
				status := "fixed"
				switch {
				case action.Error != "":
					status = "error: " + action.Error
				case action.Skipped != "":
					status = "skipped: " + action.Skipped
				}
				fmt.Fprintf(out, "fix  %s: %s (%s)\n", action.Path, action.Description, status)
			}
		}
		for _, f := range report.Findings {
			fmt.Fprintf(out, "[%s] %s: %s\n", f.Severity, f.CheckID, f.Title)
			if f.Remediation != "" {
				fmt.Fprintf(out, "    %s\n", f.Remediation)
			}
		}
		fmt.Fprintf(out, "%d critical, %d warn, %d info\n", report.Summary.Critical, report.Summary.Warn, report.Summary.Info)
	}
	if report.HasCritical() {
		return errors.New("doctor: critical findings remain")
	}
	return nil
}

// =============================================================================
// Account Handlers
// =============================================================================

func runUsersCreate(cmd *cobra.Command, opts *rootOptions, user models.User) error {
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		if err := a.store.UpsertUser(ctx, user); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", user.ID)
		return err
	})
}

func runUsersShow(cmd *cobra.Command, opts *rootOptions, id string) error {
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		user, err := a.store.GetUser(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), user)
	})
}

func runAgentsCreate(cmd *cobra.Command, opts *rootOptions, ag models.Agent) error {
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		id, err := a.store.CreateAgent(ctx, ag)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
		return err
	})
}

func runCredentialsSet(cmd *cobra.Command, opts *rootOptions, userID, provider string, creds models.ProviderCredentials) error {
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		provider = strings.ToLower(strings.TrimSpace(provider))
		if err := a.store.SaveProviderCredentials(ctx, userID, provider, creds); err != nil {
			return err
		}
		registry := providers.NewRegistry(providers.Options{BaseURLs: a.cfg.Providers.BaseURLs, Logger: a.logger})
		if !registry.Known(provider) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %q has no dedicated adapter; calls use the OpenAI-compatible API", provider)
			if creds.BaseURL == "" {
				fmt.Fprint(cmd.ErrOrStderr(), " at the OpenAI endpoint (set --base-url)")
			}
			fmt.Fprintln(cmd.ErrOrStderr())
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s credentials saved for %s\n", provider, userID)
		return err
	})
}

func runCredentialsEmbeddings(cmd *cobra.Command, opts *rootOptions, userID string, creds models.EmbeddingCredentials) error {
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		if err := a.store.SaveEmbeddingCredentials(ctx, userID, creds); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "embedding credentials saved for %s\n", userID)
		return err
	})
}

// =============================================================================
// Workspace Handlers
// =============================================================================

func runTasksList(cmd *cobra.Command, opts *rootOptions, userID string) error {
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		tasks, err := a.store.ListTasks(ctx, userID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tasks)
	})
}

func runFeedList(cmd *cobra.Command, opts *rootOptions, userID string, limit int) error {
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		items, err := a.store.ListFeed(ctx, userID, limit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), items)
	})
}

func runActivityList(cmd *cobra.Command, opts *rootOptions, userID string, limit int, securityFlags bool) error {
	return withStore(cmd, opts, func(ctx context.Context, a *app) error {
		if securityFlags {
			flags, err := a.store.ListSecurityFlags(ctx, userID, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), flags)
		}
		actions, err := a.store.ListAgentActions(ctx, userID, limit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), actions)
	})
}
