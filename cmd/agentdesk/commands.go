package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

// =============================================================================
// Runtime Commands
// =============================================================================

// buildServeCmd creates the "serve" command that runs the HTTP channel.
func buildServeCmd(opts *rootOptions) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP channel and metrics servers",
		Long: `Start the agentdesk HTTP channel.

The server will:
1. Load configuration and apply pending database migrations
2. Connect the blob store and the configured model providers
3. Serve POST /v1/messages, /health and /ping on server.http_port
4. Serve Prometheus metrics on server.metrics_port when it is non-zero

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  agentdesk serve

  # Start with custom config and debug logging
  agentdesk serve --config /etc/agentdesk/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildSendCmd creates the "send" command that runs one message through the
// pipeline without the HTTP layer.
func buildSendCmd(opts *rootOptions) *cobra.Command {
	var (
		userID  string
		agentID string
		channel string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Process one message as a user",
		Example: `  agentdesk send --user u1 "remind me to call the bank tomorrow"
  echo "hello" | agentdesk send --user u1 --agent researcher --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return runSend(cmd, opts, sendOptions{
				userID:  userID,
				agentID: agentID,
				channel: models.Channel(strings.ToLower(channel)),
				message: message,
				jsonOut: jsonOut,
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id (required)")
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Agent id or slug (default agent when empty)")
	cmd.Flags().StringVar(&channel, "channel", string(models.ChannelAPI), "Inbound channel")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full result as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// buildScanCmd creates the "scan" command that runs the injection scanner.
func buildScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [text]",
		Short: "Scan text for prompt injection patterns",
		Long: `Scan text with the same scanner the pipeline applies to inbound messages.

The result is printed as JSON. Text is read from stdin when no argument is given.`,
		Example: `  agentdesk scan "ignore all previous instructions"`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return runScan(cmd, input)
		},
	}
}

// buildPromptCmd creates the "prompt" command that renders a system prompt.
func buildPromptCmd(opts *rootOptions) *cobra.Command {
	var in promptOptions
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render the system prompt for an agent",
		Long: `Render the system prompt the pipeline sends to the model.

With --user the agent configuration is read from the database; otherwise the
flags describe the agent directly.`,
		Example: `  agentdesk prompt --agent-name Ada --owner Sam --capability research
  agentdesk prompt --user u1 --agent researcher`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd, opts, in)
		},
	}
	cmd.Flags().StringVarP(&in.userID, "user", "u", "", "Load the agent configuration for this user")
	cmd.Flags().StringVarP(&in.agentID, "agent", "a", "", "Agent id or slug (with --user)")
	cmd.Flags().StringVar(&in.agentName, "agent-name", "", "Agent display name")
	cmd.Flags().StringVar(&in.ownerName, "owner", "", "Owner display name")
	cmd.Flags().StringSliceVar(&in.capabilities, "capability", nil, "Capability line (repeatable)")
	cmd.Flags().StringSliceVar(&in.restrictions, "restriction", nil, "Restriction line (repeatable)")
	cmd.Flags().StringVar(&in.instructions, "instructions", "", "Custom instructions")
	return cmd
}

// =============================================================================
// Operator Commands
// =============================================================================

// buildMigrateCmd creates the "migrate" command.
func buildMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}
}

// buildTokenCmd creates the "token" command that issues channel JWTs.
func buildTokenCmd(opts *rootOptions) *cobra.Command {
	var userID, agentID, name string
	cmd := &cobra.Command{
		Use:     "token",
		Short:   "Issue a JWT for the HTTP channel",
		Example: `  agentdesk token --user u1 --agent researcher`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, opts, userID, agentID, name)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Token subject (required)")
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Scope the token to one agent")
	cmd.Flags().StringVar(&name, "name", "", "Display name claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the configuration JSON schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSchema(cmd)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load and validate the configuration file",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigValidate(cmd, opts)
			},
		},
	)
	return cmd
}

// buildDoctorCmd creates the "doctor" command that audits deployment posture.
func buildDoctorCmd(opts *rootOptions) *cobra.Command {
	var (
		fix        bool
		dryRun     bool
		jsonOut    bool
		allowGroup bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Audit configuration and file permissions",
		Long: `Audit the deployment for weak secrets, plaintext credential storage and
permissive file modes on the configuration, .env and database files.

The command exits non-zero when a critical finding remains.`,
		Example: `  agentdesk doctor
  agentdesk doctor --fix --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, opts, doctorOptions{fix: fix, dryRun: dryRun, jsonOut: jsonOut, allowGroup: allowGroup})
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Tighten file permissions")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "With --fix, report changes without applying them")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&allowGroup, "allow-group-readable", false, "Accept group-readable secret files")
	return cmd
}

// =============================================================================
// Account Commands
// =============================================================================

type accountFlags struct {
	name         string
	provider     string
	model        string
	systemPrompt string
	capabilities []string
	restrictions []string
}

func (f *accountFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Display name")
	cmd.Flags().StringVar(&f.provider, "provider", "", "Model provider")
	cmd.Flags().StringVar(&f.model, "model", "", "Model name")
	cmd.Flags().StringVar(&f.systemPrompt, "instructions", "", "Custom instructions")
	cmd.Flags().StringSliceVar(&f.capabilities, "capability", nil, "Capability line (repeatable)")
	cmd.Flags().StringSliceVar(&f.restrictions, "restriction", nil, "Restriction line (repeatable)")
}

// buildUsersCmd creates the "users" command group.
func buildUsersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users and their default agent",
	}

	var id, agentName string
	var flags accountFlags
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create or update a user",
		Example: `  agentdesk users create --id u1 --name Sam --agent-name Ada --provider openai --model gpt-4o`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersCreate(cmd, opts, models.User{
				ID:           id,
				Name:         flags.name,
				AgentName:    agentName,
				Provider:     flags.provider,
				Model:        flags.model,
				SystemPrompt: flags.systemPrompt,
				Capabilities: flags.capabilities,
				Restrictions: flags.restrictions,
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "User id (required)")
	create.Flags().StringVar(&agentName, "agent-name", "", "Default agent display name")
	flags.register(create)
	_ = create.MarkFlagRequired("id")

	var showID string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print a user as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersShow(cmd, opts, showID)
		},
	}
	show.Flags().StringVar(&showID, "id", "", "User id (required)")
	_ = show.MarkFlagRequired("id")

	cmd.AddCommand(create, show)
	return cmd
}

// buildAgentsCmd creates the "agents" command group.
func buildAgentsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage additional agents",
	}

	var userID, slug string
	var flags accountFlags
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create an agent owned by a user",
		Example: `  agentdesk agents create --user u1 --slug researcher --name Researcher --provider anthropic --model claude-sonnet-4-5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentsCreate(cmd, opts, models.Agent{
				UserID:       userID,
				Slug:         slug,
				Name:         flags.name,
				Provider:     flags.provider,
				Model:        flags.model,
				SystemPrompt: flags.systemPrompt,
				Capabilities: flags.capabilities,
				Restrictions: flags.restrictions,
			})
		},
	}
	create.Flags().StringVarP(&userID, "user", "u", "", "Owner user id (required)")
	create.Flags().StringVar(&slug, "slug", "", "Agent slug for delegation (required)")
	flags.register(create)
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("slug")

	cmd.AddCommand(create)
	return cmd
}

// buildCredentialsCmd creates the "credentials" command group.
func buildCredentialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Store provider API keys",
	}

	var userID, provider, apiKey, baseURL string
	set := &cobra.Command{
		Use:     "set",
		Short:   "Store a model provider key for a user",
		Example: `  agentdesk credentials set --user u1 --provider openai --api-key sk-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredentialsSet(cmd, opts, userID, provider, models.ProviderCredentials{APIKey: apiKey, BaseURL: baseURL})
		},
	}
	set.Flags().StringVarP(&userID, "user", "u", "", "User id (required)")
	set.Flags().StringVar(&provider, "provider", "", "Provider name (required)")
	set.Flags().StringVar(&apiKey, "api-key", "", "API key (required)")
	set.Flags().StringVar(&baseURL, "base-url", "", "Override the provider endpoint")
	for _, name := range []string{"user", "provider", "api-key"} {
		_ = set.MarkFlagRequired(name)
	}

	var embUser, embKey, embURL, embModel string
	embed := &cobra.Command{
		Use:   "embeddings",
		Short: "Store the embeddings key used for semantic memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredentialsEmbeddings(cmd, opts, embUser, models.EmbeddingCredentials{APIKey: embKey, BaseURL: embURL, Model: embModel})
		},
	}
	embed.Flags().StringVarP(&embUser, "user", "u", "", "User id (required)")
	embed.Flags().StringVar(&embKey, "api-key", "", "API key (required)")
	embed.Flags().StringVar(&embURL, "base-url", "", "Override the embeddings endpoint")
	embed.Flags().StringVar(&embModel, "model", "", "Embedding model")
	_ = embed.MarkFlagRequired("user")
	_ = embed.MarkFlagRequired("api-key")

	cmd.AddCommand(set, embed)
	return cmd
}

// =============================================================================
// Workspace Commands
// =============================================================================

// listCmd builds a "<group> list" pair that prints JSON.
func listCmd(use, short string, withLimit bool, run func(cmd *cobra.Command, userID string, limit int) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	var userID string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, userID, limit)
		},
	}
	list.Flags().StringVarP(&userID, "user", "u", "", "User id (required)")
	if withLimit {
		list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries")
	}
	_ = list.MarkFlagRequired("user")
	cmd.AddCommand(list)
	return cmd
}

// buildTasksCmd creates the "tasks" command group.
func buildTasksCmd(opts *rootOptions) *cobra.Command {
	return listCmd("tasks", "List a user's tasks", false, func(cmd *cobra.Command, userID string, _ int) error {
		return runTasksList(cmd, opts, userID)
	})
}

// buildFeedCmd creates the "feed" command group.
func buildFeedCmd(opts *rootOptions) *cobra.Command {
	return listCmd("feed", "List a user's feed items", true, func(cmd *cobra.Command, userID string, limit int) error {
		return runFeedList(cmd, opts, userID, limit)
	})
}

// buildActivityCmd creates the "activity" command group.
func buildActivityCmd(opts *rootOptions) *cobra.Command {
	var showFlags bool
	cmd := listCmd("activity", "List audited agent actions", true, func(cmd *cobra.Command, userID string, limit int) error {
		return runActivityList(cmd, opts, userID, limit, showFlags)
	})
	list, _, _ := cmd.Find([]string{"list"})
	list.Flags().BoolVar(&showFlags, "security", false, "List security flags instead of actions")
	return cmd
}
