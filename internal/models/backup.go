package models

import "time"

// ArchiveInfo describes one backup archive on disk.
type ArchiveInfo struct {
	Name      string
	Path      string
	Size      int64
	SizeHuman string
	ModTime   time.Time
	CreatedAt time.Time // parsed from the archive name
}

// BackupResult holds the result of a backup operation.
type BackupResult struct {
	Status      Status
	Message     string
	ArchiveName string
	ArchivePath string
	Size        int64
	SizeHuman   string
	StackCount  int
	Stacks      []string
	Pruned      *PruneResult
	Duration    time.Duration
	Error       error
}

// PruneResult holds the result of applying the retention count.
type PruneResult struct {
	Retention int
	Kept      []string
	Removed   []string
	Failed    []string
}

// ArchiveContents lists the stacks stored in an archive.
type ArchiveContents struct {
	Status  Status
	Message string
	Path    string
	Stacks  []string
	Error   error
}

// RestoreResult holds the result of a restore operation.
type RestoreResult struct {
	Status   Status
	Message  string
	Restored []string
	Errors   []string
	Duration time.Duration
	Error    error
}
