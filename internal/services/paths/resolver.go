// Package paths resolves stack and backup directories from the configuration.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fgeck/stackguard/internal/config"
	"github.com/fgeck/stackguard/internal/models"
)

// IndirectFile is the redirection marker inside a stack directory. Its trimmed
// content is the directory that actually holds the stack's files.
const IndirectFile = "indirect"

// Resolver maps stack names to directories.
type Resolver struct {
	projectsRoot string
	destination  string
}

// New creates a resolver for the given configuration.
func New(cfg models.Config) *Resolver {
	destination := cfg.Backup.Destination
	if destination == "" {
		pluginRoot := cfg.PluginRoot
		if pluginRoot == "" {
			pluginRoot = config.DefaultPluginRoot
		}
		destination = filepath.Join(pluginRoot, "backups")
	}

	return &Resolver{
		projectsRoot: config.TrimTrailingSeparators(cfg.ProjectsRoot),
		destination:  config.TrimTrailingSeparators(destination),
	}
}

// Resolve returns the directory holding the stack's files. The result is not
// checked for existence.
func (r *Resolver) Resolve(stack string) string {
	own := r.StackDir(stack)

	if target, ok := r.indirectTarget(own); ok {
		return target
	}
	return own
}

// StackDir returns the stack's own directory under the projects root.
func (r *Resolver) StackDir(stack string) string {
	return filepath.Join(r.projectsRoot, stack)
}

// IsRedirected reports whether the stack carries a non-empty redirection marker.
func (r *Resolver) IsRedirected(stack string) bool {
	_, ok := r.indirectTarget(r.StackDir(stack))
	return ok
}

// SourceRoot returns the directory containing all stack directories.
func (r *Resolver) SourceRoot() string {
	return r.projectsRoot
}

// DestinationRoot returns the backup destination directory.
func (r *Resolver) DestinationRoot() string {
	return r.destination
}

func (r *Resolver) indirectTarget(dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, IndirectFile)) //nolint:gosec // path built from configured root
	if err != nil {
		return "", false
	}

	target := strings.TrimSpace(string(data))
	if target == "" {
		return "", false
	}
	return target, true
}
