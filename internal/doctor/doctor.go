// Package doctor audits a deployment's configuration and file permissions
// and repairs what it safely can.
package doctor

import (
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/agentdesk/internal/config"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Finding is one audit result.
type Finding struct {
	CheckID     string   `json:"check_id"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Detail      string   `json:"detail"`
	Remediation string   `json:"remediation,omitempty"`
}

// Summary counts findings by severity.
type Summary struct {
	Critical int `json:"critical"`
	Warn     int `json:"warn"`
	Info     int `json:"info"`
}

// Report is the result of Audit.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Findings  []Finding `json:"findings"`
}

// HasCritical reports whether any finding is critical.
func (r *Report) HasCritical() bool {
	return r.Summary.Critical > 0
}

// Options selects what Audit inspects.
type Options struct {
	ConfigPath string
	Config     *config.Config
	// EnvPath is the dotenv file checked for permissions. Default ".env".
	EnvPath string
	// AllowGroupReadable downgrades group-readable secrets to no finding.
	AllowGroupReadable bool
	Now                func() time.Time
}

// Audit runs the configuration and filesystem checks.
func Audit(opts Options) *Report {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.EnvPath == "" {
		opts.EnvPath = ".env"
	}

	var findings []Finding
	if opts.ConfigPath != "" {
		findings = append(findings, checkSecretFile(opts.ConfigPath, "config", "Config file", opts)...)
	}
	findings = append(findings, checkSecretFile(opts.EnvPath, "env", "Environment file", opts)...)
	if cfg := opts.Config; cfg != nil {
		findings = append(findings, auditConfig(cfg)...)
		if cfg.Blob.Backend == "local" {
			findings = append(findings, checkDirectory(cfg.Blob.LocalPath, "blob", "Blob directory")...)
		}
		if path := sqlitePath(cfg.Database); path != "" {
			findings = append(findings, checkSecretFile(path, "database", "Database file", opts)...)
		}
	}

	return &Report{
		Timestamp: now(),
		Summary:   summarize(findings),
		Findings:  findings,
	}
}

func auditConfig(cfg *config.Config) []Finding {
	var findings []Finding
	secret := strings.TrimSpace(cfg.Auth.JWTSecret)
	switch {
	case secret == "" && len(cfg.Auth.APIKeys) > 0:
	case secret == "":
		findings = append(findings, Finding{
			CheckID:     "auth.jwt_secret_missing",
			Severity:    SeverityCritical,
			Title:       "JWT secret is not set",
			Detail:      "Without auth.jwt_secret or auth.api_keys the HTTP channel rejects every request.",
			Remediation: "Set auth.jwt_secret to a random value of at least 32 characters.",
		})
	case len(secret) < 32:
		findings = append(findings, Finding{
			CheckID:     "auth.jwt_secret_short",
			Severity:    SeverityWarn,
			Title:       "JWT secret is short",
			Detail:      fmt.Sprintf("auth.jwt_secret has %d characters; HS256 secrets should have at least 32.", len(secret)),
			Remediation: "Generate a longer secret, for example with: openssl rand -base64 48",
		})
	}

	if strings.TrimSpace(cfg.Security.CredentialKey) == "" {
		findings = append(findings, Finding{
			CheckID:     "security.plaintext_credentials",
			Severity:    SeverityWarn,
			Title:       "Provider API keys are stored in plaintext",
			Detail:      "security.credential_key is empty, so provider and embedding keys are written to the database unencrypted.",
			Remediation: "Set security.credential_key to a base64 encoded 32-byte key: openssl rand -base64 32",
		})
	}

	if cfg.Auth.TokenExpiry <= 0 {
		findings = append(findings, Finding{
			CheckID:  "auth.tokens_never_expire",
			Severity: SeverityWarn,
			Title:    "Issued tokens never expire",
			Detail:   "auth.token_expiry is not positive, so tokens minted by agentdesk token stay valid forever.",
		})
	}

	if cfg.Tracing.Endpoint != "" && cfg.Tracing.Insecure && !isLoopback(cfg.Tracing.Endpoint) {
		findings = append(findings, Finding{
			CheckID:     "tracing.insecure_remote",
			Severity:    SeverityWarn,
			Title:       "Traces are exported without TLS",
			Detail:      fmt.Sprintf("tracing.insecure is set for the non-local collector %s.", cfg.Tracing.Endpoint),
			Remediation: "Disable tracing.insecure or route traces through a local collector.",
		})
	}

	if cfg.Blob.Backend == "s3" && cfg.Blob.S3.SecretAccessKey != "" {
		findings = append(findings, Finding{
			CheckID:     "blob.static_s3_keys",
			Severity:    SeverityInfo,
			Title:       "S3 uses static access keys",
			Detail:      "blob.s3.secret_access_key is set in configuration.",
			Remediation: "Prefer the AWS default credential chain (environment, profile or instance role).",
		})
	}

	if cfg.Database.Driver == "postgres" && strings.Contains(cfg.Database.DSN, "sslmode=disable") && !dsnIsLocal(cfg.Database.DSN) {
		findings = append(findings, Finding{
			CheckID:  "database.tls_disabled",
			Severity: SeverityWarn,
			Title:    "Database connection has TLS disabled",
			Detail:   "database.dsn uses sslmode=disable for a remote host.",
		})
	}
	return findings
}

// checkSecretFile flags a file that may hold secrets and is readable or
// writable beyond its owner. A missing file yields no findings.
func checkSecretFile(path, id, label string, opts Options) []Finding {
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	var findings []Finding
	if info.Mode()&os.ModeSymlink != 0 {
		findings = append(findings, Finding{
			CheckID:     "fs." + id + "_symlink",
			Severity:    SeverityWarn,
			Title:       label + " is a symlink",
			Detail:      fmt.Sprintf("%s is a symbolic link and may resolve outside the deployment directory.", path),
			Remediation: "Replace the symlink with a regular file.",
		})
		return findings
	}

	mode := info.Mode().Perm()
	fix := fmt.Sprintf("Run: chmod 600 %s (or agentdesk doctor --fix)", path)
	if mode&0o002 != 0 {
		findings = append(findings, Finding{
			CheckID:     "fs." + id + "_world_writable",
			Severity:    SeverityCritical,
			Title:       label + " is world-writable",
			Detail:      fmt.Sprintf("%s has permissions %o.", path, mode),
			Remediation: fix,
		})
	}
	if mode&0o004 != 0 {
		findings = append(findings, Finding{
			CheckID:     "fs." + id + "_world_readable",
			Severity:    SeverityCritical,
			Title:       label + " is world-readable",
			Detail:      fmt.Sprintf("%s has permissions %o and may contain API keys or secrets.", path, mode),
			Remediation: fix,
		})
	}
	if !opts.AllowGroupReadable && mode&0o040 != 0 {
		findings = append(findings, Finding{
			CheckID:     "fs." + id + "_group_readable",
			Severity:    SeverityWarn,
			Title:       label + " is group-readable",
			Detail:      fmt.Sprintf("%s has permissions %o.", path, mode),
			Remediation: fix,
		})
	}
	return findings
}

func checkDirectory(path, id, label string) []Finding {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil
	}
	mode := info.Mode().Perm()
	if mode&0o002 == 0 {
		return nil
	}
	return []Finding{{
		CheckID:     "fs." + id + "_world_writable",
		Severity:    SeverityCritical,
		Title:       label + " is world-writable",
		Detail:      fmt.Sprintf("%s has permissions %o; any user can replace stored outcomes and media.", path, mode),
		Remediation: fmt.Sprintf("Run: chmod 700 %s (or agentdesk doctor --fix)", path),
	}}
}

func summarize(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityWarn:
			s.Warn++
		default:
			s.Info++
		}
	}
	return s
}

// sqlitePath extracts the database file from a sqlite DSN. In-memory
// databases return "".
func sqlitePath(db config.DatabaseConfig) string {
	if db.Driver != "sqlite" {
		return ""
	}
	dsn := strings.TrimPrefix(db.DSN, "file:")
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, ":memory:") {
		return ""
	}
	return filepath.Clean(dsn)
}

func isLoopback(endpoint string) bool {
	host := endpoint
	if h, _, err := net.SplitHostPort(endpoint); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func dsnIsLocal(dsn string) bool {
	for _, local := range []string{"@localhost", "@127.0.0.1", "host=localhost", "host=127.0.0.1", "host=/"} {
		if strings.Contains(dsn, local) {
			return true
		}
	}
	return false
}

// secureMode is the permission Fix applies to files that may hold secrets.
const secureMode fs.FileMode = 0o600
