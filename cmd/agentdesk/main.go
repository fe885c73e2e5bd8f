// Package main provides the agentdesk CLI.
//
// agentdesk runs user-owned AI agents: inbound messages are screened, sent to
// the user's chosen model provider with memory context, and the structured
// actions in the reply update the user's workspace.
//
// # Basic Usage
//
// Prepare the database and an account:
//
//	agentdesk migrate
//	agentdesk users create --id u1 --name Sam --provider openai --model gpt-4o
//	agentdesk credentials set --user u1 --provider openai --api-key sk-...
//
// Start the HTTP channel:
//
//	agentdesk serve --config agentdesk.yaml
//
// # Environment Variables
//
//   - AGENTDESK_CONFIG: path to the configuration file (default: agentdesk.yaml)
//   - any ${VAR} referenced from the configuration file; a .env file in the
//     working directory is loaded first
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "agentdesk.yaml"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
}

func (o *rootOptions) resolvedConfigPath() string {
	if strings.TrimSpace(o.configPath) != "" {
		return o.configPath
	}
	if env := strings.TrimSpace(os.Getenv("AGENTDESK_CONFIG")); env != "" {
		return env
	}
	return defaultConfigPath
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "agentdesk",
		Short: "agentdesk - personal AI agents with a shared workspace",
		Long: `agentdesk turns messages from any channel into agent replies and workspace updates.

Supported providers: OpenAI, DeepSeek, MiniMax, Kimi, Anthropic, Gemini, Mistral, OpenRouter`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to the configuration file (default agentdesk.yaml, or AGENTDESK_CONFIG)")

	rootCmd.AddCommand(
		buildServeCmd(opts),
		buildSendCmd(opts),
		buildScanCmd(),
		buildPromptCmd(opts),
		buildMigrateCmd(opts),
		buildTokenCmd(opts),
		buildConfigCmd(opts),
		buildDoctorCmd(opts),
		buildUsersCmd(opts),
		buildAgentsCmd(opts),
		buildCredentialsCmd(opts),
		buildTasksCmd(opts),
		buildFeedCmd(opts),
		buildActivityCmd(opts),
	)
	return rootCmd
}
