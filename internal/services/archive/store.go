// Package archive lists, names and deletes backup archives.
package archive

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/rs/zerolog"
)

// Extension is the suffix of every archive.
const Extension = ".tar.gz"

// Timestamp layouts embedded in archive names.
const (
	minuteLayout = "2006-01-02_15-04"
	secondLayout = "2006-01-02_15-04-05"
)

var namePattern = regexp.MustCompile(`^backup_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}(?:-\d{2})?)\.tar\.gz$`)

// IsArchiveName reports whether name follows the archive naming contract.
func IsArchiveName(name string) bool {
	return namePattern.MatchString(name)
}

// ParseArchiveTime returns the local creation time embedded in an archive name.
func ParseArchiveTime(name string) (time.Time, error) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("not an archive name: %s", name)
	}

	layout := minuteLayout
	if len(m[1]) == len(secondLayout) {
		layout = secondLayout
	}
	return time.ParseInLocation(layout, m[1], time.Local)
}

// NameFor builds the archive name for t, optionally with seconds.
func NameFor(t time.Time, withSeconds bool) string {
	layout := minuteLayout
	if withSeconds {
		layout = secondLayout
	}
	return "backup_" + t.Format(layout) + Extension
}

// ErrNameTaken is returned when both candidate names for a timestamp exist.
var ErrNameTaken = errors.New("archive name already taken")

// NewArchiveName returns a name for an archive created at now inside dir. The
// minute-granularity name is used unless a file already carries it; if the
// name with seconds is taken too, ErrNameTaken is returned.
func NewArchiveName(now time.Time, dir string) (string, error) {
	name := NameFor(now, false)
	if !exists(filepath.Join(dir, name)) {
		return name, nil
	}

	name = NameFor(now, true)
	if exists(filepath.Join(dir, name)) {
		return "", fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	return name, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Store implements archive bookkeeping for a destination directory.
type Store struct {
	destination string
	logger      zerolog.Logger
}

// New creates a new archive store rooted at destination.
func New(logger zerolog.Logger, destination string) *Store {
	return &Store{
		destination: destination,
		logger:      logger,
	}
}

// Destination returns the configured destination directory.
func (s *Store) Destination() string {
	return s.destination
}

// List returns the archives in dir (the destination when dir is empty), newest
// first. A missing or unreadable directory yields an empty list.
func (s *Store) List(dir string) []models.ArchiveInfo {
	if dir == "" {
		dir = s.destination
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Debug().Err(err).Str("dir", dir).Msg("archive directory not readable")
		return []models.ArchiveInfo{}
	}

	archives := make([]models.ArchiveInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsArchiveName(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		created, _ := ParseArchiveTime(entry.Name())
		archives = append(archives, models.ArchiveInfo{
			Name:      entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			Size:      info.Size(),
			SizeHuman: FormatBytes(info.Size()),
			ModTime:   info.ModTime(),
			CreatedAt: created,
		})
	}

	// The embedded timestamp decides; a -SS collision name sorts after its
	// minute sibling even though '-' < '.' lexically.
	sort.SliceStable(archives, func(i, j int) bool {
		if !archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].CreatedAt.After(archives[j].CreatedAt)
		}
		return archives[i].Name > archives[j].Name
	})

	return archives
}

// Resolve maps an archive name or path to an existing file. Absolute paths
// that exist are returned unchanged; otherwise the base name is looked up in
// dir and then in the destination. Unresolvable input is returned as given.
func (s *Store) Resolve(nameOrPath, dir string) string {
	if filepath.IsAbs(nameOrPath) && fileExists(nameOrPath) {
		return nameOrPath
	}

	base := filepath.Base(nameOrPath)
	if !IsArchiveName(base) {
		return nameOrPath
	}

	if dir != "" {
		if candidate := filepath.Join(dir, base); fileExists(candidate) {
			return candidate
		}
	}

	if candidate := filepath.Join(s.destination, base); fileExists(candidate) {
		return candidate
	}

	return nameOrPath
}

// Delete removes an archive. A file that is already gone is not an error.
func (s *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete archive %s: %w", path, err)
	}

	s.logger.Debug().Str("path", path).Msg("archive deleted")
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatBytes renders a byte count with 1024-based steps up to GB, rounded to
// two decimals without trailing zeros: 0 B, 1.5 MB, 2 GB.
func FormatBytes(bytes int64) string {
	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}

	if unit == 0 {
		return fmt.Sprintf("%d B", bytes)
	}

	rounded := math.Round(value*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + sizeUnits[unit]
}
