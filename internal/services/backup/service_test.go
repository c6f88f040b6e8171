package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/fgeck/stackguard/internal/services/archive"
	"github.com/fgeck/stackguard/internal/services/paths"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor is a mock implementation of CommandExecutor for testing.
type mockExecutor struct {
	executeFunc func(ctx context.Context, name string, args ...string) ([]byte, error)
	calls       [][]string
}

func (m *mockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	if m.executeFunc != nil {
		return m.executeFunc(ctx, name, args...)
	}
	// Behave like tar: create the archive named after -czf.
	return nil, os.WriteFile(args[1], []byte("archive"), 0o644)
}

type mockRetention struct {
	applyFunc func(dir string) *models.PruneResult
	dirs      []string
}

func (m *mockRetention) Apply(dir string) *models.PruneResult {
	m.dirs = append(m.dirs, dir)
	if m.applyFunc != nil {
		return m.applyFunc(dir)
	}
	return &models.PruneResult{}
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
}

type fixture struct {
	source      string
	destination string
	resolver    *paths.Resolver
}

func newFixture(t *testing.T, stacks ...string) fixture {
	t.Helper()
	base := t.TempDir()
	f := fixture{
		source:      filepath.Join(base, "projects"),
		destination: filepath.Join(base, "backups"),
	}
	require.NoError(t, os.MkdirAll(f.source, 0o755))
	for _, stack := range stacks {
		require.NoError(t, os.MkdirAll(filepath.Join(f.source, stack), 0o755))
	}
	f.resolver = paths.New(models.Config{
		ProjectsRoot: f.source,
		Backup:       models.BackupSettings{Destination: f.destination},
	})
	return f
}

func TestCreateBackup_Success(t *testing.T) {
	f := newFixture(t, "web", "db")
	require.NoError(t, os.WriteFile(filepath.Join(f.source, "stray.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(f.source, ".hidden"), 0o755))

	executor := &mockExecutor{}
	retentionSvc := &mockRetention{
		applyFunc: func(dir string) *models.PruneResult {
			return &models.PruneResult{Retention: 2, Removed: []string{"backup_2025-01-01_00-00.tar.gz"}}
		},
	}

	svc := NewWithServices(testLogger(), f.resolver, retentionSvc, executor, fixedClock)
	result, err := svc.CreateBackup(context.Background())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.Error)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "backup_2026-01-02_03-04.tar.gz", result.ArchiveName)
	assert.Equal(t, filepath.Join(f.destination, "backup_2026-01-02_03-04.tar.gz"), result.ArchivePath)
	assert.Equal(t, 2, result.StackCount)
	assert.Equal(t, []string{"db", "web"}, result.Stacks)
	assert.Equal(t, int64(7), result.Size)
	assert.Equal(t, "7 B", result.SizeHuman)
	assert.Contains(t, result.Message, "backup_2026-01-02_03-04.tar.gz")
	assert.Equal(t, []string{"backup_2025-01-01_00-00.tar.gz"}, result.Pruned.Removed)

	require.Len(t, executor.calls, 1)
	assert.Equal(t, []string{
		"tar", "-czf", result.ArchivePath, "-C", f.source, "--", "db", "web",
	}, executor.calls[0])

	assert.Equal(t, []string{f.destination}, retentionSvc.dirs)
}

func TestCreateBackup_NameCollisionUsesSeconds(t *testing.T) {
	f := newFixture(t, "web")
	require.NoError(t, os.MkdirAll(f.destination, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.destination, "backup_2026-01-02_03-04.tar.gz"), []byte("old"), 0o644))

	svc := NewWithServices(testLogger(), f.resolver, &mockRetention{}, &mockExecutor{}, fixedClock)
	result, err := svc.CreateBackup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "backup_2026-01-02_03-04-05.tar.gz", result.ArchiveName)

	old, err := os.ReadFile(filepath.Join(f.destination, "backup_2026-01-02_03-04.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestCreateBackup_ThirdBackupInSameSecondFails(t *testing.T) {
	f := newFixture(t, "web")
	executor := &mockExecutor{}
	svc := NewWithServices(testLogger(), f.resolver, &mockRetention{}, executor, fixedClock)

	var names []string
	for i := 0; i < 2; i++ {
		result, err := svc.CreateBackup(context.Background())
		require.NoError(t, err)
		require.NoError(t, result.Error)
		names = append(names, result.ArchiveName)
	}
	assert.Equal(t, []string{
		"backup_2026-01-02_03-04.tar.gz",
		"backup_2026-01-02_03-04-05.tar.gz",
	}, names)

	result, err := svc.CreateBackup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.StatusError, result.Status)
	var envErr *models.EnvironmentError
	require.ErrorAs(t, result.Error, &envErr)
	assert.ErrorIs(t, result.Error, archive.ErrNameTaken)
	assert.Empty(t, result.ArchiveName)
	assert.Len(t, executor.calls, 2, "tar must not run for a taken name")

	entries, err := os.ReadDir(f.destination)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCreateBackup_SourceMissing(t *testing.T) {
	resolver := paths.New(models.Config{
		ProjectsRoot: "/nonexistent/projects",
		Backup:       models.BackupSettings{Destination: t.TempDir()},
	})
	executor := &mockExecutor{}

	svc := NewWithServices(testLogger(), resolver, &mockRetention{}, executor, fixedClock)
	result, err := svc.CreateBackup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.StatusError, result.Status)

	var envErr *models.EnvironmentError
	require.ErrorAs(t, result.Error, &envErr)
	assert.Equal(t, "/nonexistent/projects", envErr.Path)
	assert.Contains(t, result.Message, "source directory does not exist")
	assert.Empty(t, executor.calls)
}

func TestCreateBackup_DestinationUncreatable(t *testing.T) {
	f := newFixture(t, "web")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	resolver := paths.New(models.Config{
		ProjectsRoot: f.source,
		Backup:       models.BackupSettings{Destination: filepath.Join(blocker, "backups")},
	})

	svc := NewWithServices(testLogger(), resolver, &mockRetention{}, &mockExecutor{}, fixedClock)
	result, err := svc.CreateBackup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.StatusError, result.Status)

	var envErr *models.EnvironmentError
	require.ErrorAs(t, result.Error, &envErr)
	assert.Equal(t, "cannot create backup destination", envErr.Reason)
}

func TestCreateBackup_NoStacks(t *testing.T) {
	f := newFixture(t)
	retentionSvc := &mockRetention{}

	svc := NewWithServices(testLogger(), f.resolver, retentionSvc, &mockExecutor{}, fixedClock)
	result, err := svc.CreateBackup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Message, "no stacks found")
	assert.Empty(t, retentionSvc.dirs)
}

func TestCreateBackup_TarFailure(t *testing.T) {
	f := newFixture(t, "web")
	retentionSvc := &mockRetention{}

	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			// Leave a partial archive behind like an interrupted tar would.
			_ = os.WriteFile(args[1], []byte("partial"), 0o644)
			_, err := exec.Command("sh", "-c", "exit 2").CombinedOutput()
			return []byte("tar: web: Cannot open: Permission denied\n"), err
		},
	}

	svc := NewWithServices(testLogger(), f.resolver, retentionSvc, executor, fixedClock)
	result, err := svc.CreateBackup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.StatusError, result.Status)

	var toolErr *models.ToolError
	require.ErrorAs(t, result.Error, &toolErr)
	assert.Equal(t, 2, toolErr.ExitCode)
	assert.Equal(t, "tar: web: Cannot open: Permission denied", toolErr.Output)
	assert.Contains(t, result.Message, "Permission denied")

	_, statErr := os.Stat(filepath.Join(f.destination, "backup_2026-01-02_03-04.tar.gz"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, retentionSvc.dirs)
}

func TestCreateBackup_TarNotStarted(t *testing.T) {
	f := newFixture(t, "web")
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New(`exec: "tar": executable file not found in $PATH`)
		},
	}

	svc := NewWithServices(testLogger(), f.resolver, &mockRetention{}, executor, fixedClock)
	result, err := svc.CreateBackup(context.Background())

	require.NoError(t, err)
	var toolErr *models.ToolError
	require.ErrorAs(t, result.Error, &toolErr)
	assert.Equal(t, -1, toolErr.ExitCode)
	assert.Contains(t, toolErr.Output, "executable file not found")
}

func TestCreateBackup_RedirectedStackStillArchived(t *testing.T) {
	f := newFixture(t, "media")
	require.NoError(t, os.WriteFile(filepath.Join(f.source, "media", paths.IndirectFile), []byte("/mnt/elsewhere"), 0o644))
	executor := &mockExecutor{}

	svc := NewWithServices(testLogger(), f.resolver, &mockRetention{}, executor, fixedClock)
	result, err := svc.CreateBackup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, []string{"media"}, result.Stacks)
}
