package doctor

import (
	"fmt"
	"io/fs"
	"os"
)

// FixAction is one attempted permission repair.
type FixAction struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Success     bool   `json:"success"`
	Skipped     string `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
}

// FixResult summarizes Fix.
type FixResult struct {
	Actions      []FixAction `json:"actions"`
	FixedCount   int         `json:"fixed_count"`
	SkippedCount int         `json:"skipped_count"`
	ErrorCount   int         `json:"error_count"`
}

// Fix tightens permissions on the files and directories Audit inspects.
// Symlinks are never followed. DryRun reports without changing anything.
func Fix(opts Options, dryRun bool) *FixResult {
	if opts.EnvPath == "" {
		opts.EnvPath = ".env"
	}
	result := &FixResult{}
	files := []string{opts.ConfigPath, opts.EnvPath}
	var dirs []string
	if cfg := opts.Config; cfg != nil {
		files = append(files, sqlitePath(cfg.Database))
		if cfg.Blob.Backend == "local" {
			dirs = append(dirs, cfg.Blob.LocalPath)
		}
	}
	for _, path := range files {
		if path != "" {
			result.add(fixMode(path, secureMode, false, dryRun))
		}
	}
	for _, path := range dirs {
		if path != "" {
			result.add(fixMode(path, 0o700, true, dryRun))
		}
	}
	return result
}

func (r *FixResult) add(action FixAction) {
	r.Actions = append(r.Actions, action)
	switch {
	case action.Success:
		r.FixedCount++
	case action.Error != "":
		r.ErrorCount++
	default:
		r.SkippedCount++
	}
}

func fixMode(path string, mode fs.FileMode, dir, dryRun bool) FixAction {
	action := FixAction{Path: path, Description: fmt.Sprintf("set permissions to %o", mode)}
	info, err := os.Lstat(path)
	switch {
	case os.IsNotExist(err):
		action.Skipped = "does not exist"
		return action
	case err != nil:
		action.Error = fmt.Sprintf("stat: %v", err)
		return action
	case info.Mode()&fs.ModeSymlink != 0:
		action.Skipped = "symlink left unchanged"
		return action
	case dir && !info.IsDir():
		action.Skipped = "not a directory"
		return action
	case !dir && !info.Mode().IsRegular():
		action.Skipped = "not a regular file"
		return action
	}

	current := info.Mode().Perm()
	// Only remove bits; a stricter mode is left alone.
	if current&^mode == 0 {
		action.Skipped = "already restricted"
		return action
	}
	if dryRun {
		action.Description = fmt.Sprintf("would change %o to %o", current, mode)
		action.Success = true
		return action
	}
	if err := os.Chmod(path, mode); err != nil {
		action.Error = fmt.Sprintf("chmod: %v", err)
		return action
	}
	action.Description = fmt.Sprintf("changed %o to %o", current, mode)
	action.Success = true
	return action
}
