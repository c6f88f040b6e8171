package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/stackguard/internal/models"
	"github.com/fgeck/stackguard/internal/services/archive"
	"github.com/fgeck/stackguard/internal/services/backup"
	"github.com/fgeck/stackguard/internal/services/restore"
	"github.com/fgeck/stackguard/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listDir string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and delete stack backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Archive every stack now",
	Long: `Archive every stack directory into a new timestamped tar.gz in the backup
destination, then delete archives beyond the retention count.`,
	Args: cobra.NoArgs,
	RunE: createBackup,
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Scheduled backup entry point",
	Long: `Execute the scheduled backup workflow:
1. Validate configuration
2. Archive every stack and apply retention
3. Send Telegram notification (if configured)`,
	Args: cobra.NoArgs,
	RunE: runScheduledBackup,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives, newest first",
	Args:  cobra.NoArgs,
	RunE:  listBackups,
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <archive>",
	Short: "Delete an archive by name or path",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteBackup,
}

var backupContentsCmd = &cobra.Command{
	Use:   "contents <archive>",
	Short: "List the stacks stored in an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  showContents,
}

func init() {
	backupListCmd.Flags().StringVar(&listDir, "dir", "", "directory to list instead of the backup destination")
	backupDeleteCmd.Flags().StringVar(&listDir, "dir", "", "directory to look in before the backup destination")
	backupContentsCmd.Flags().StringVar(&listDir, "dir", "", "directory to look in before the backup destination")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupContentsCmd)
}

func createBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := backup.New(log.Logger, *cfg).CreateBackup(ctx)
	if err != nil {
		return err
	}
	if result.Error != nil {
		return errors.New(result.Message)
	}

	fmt.Println(result.Message)
	if result.Pruned != nil && len(result.Pruned.Removed) > 0 {
		fmt.Printf("Removed %d old archive(s)\n", len(result.Pruned.Removed))
	}
	return nil
}

func runScheduledBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := runner.New(log.Logger).Run(ctx, *cfg); err != nil {
		log.Error().Err(err).Msg("scheduled backup failed")
		return err
	}

	log.Info().Msg("scheduled backup completed successfully")
	return nil
}

func listBackups(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := archive.New(log.Logger, cfg.Backup.Destination)
	archives := store.List(listDir)

	if len(archives) == 0 {
		dir := listDir
		if dir == "" {
			dir = store.Destination()
		}
		fmt.Printf("No backups found in %s\n", dir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tCREATED")
	for _, a := range archives {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Name, a.SizeHuman, humanize.Time(a.CreatedAt))
	}
	return w.Flush()
}

func deleteBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := archive.New(log.Logger, cfg.Backup.Destination)
	path := store.Resolve(args[0], listDir)

	if !archive.IsArchiveName(filepath.Base(path)) {
		return &models.ValidationError{Field: "archive", Reason: fmt.Sprintf("%q is not a backup archive", args[0])}
	}
	if _, err := os.Stat(path); err != nil {
		return &models.EnvironmentError{Path: args[0], Reason: "backup archive not found"}
	}

	if err := store.Delete(path); err != nil {
		return err
	}

	fmt.Printf("Deleted %s\n", filepath.Base(path))
	return nil
}

func showContents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	path := archive.New(log.Logger, cfg.Backup.Destination).Resolve(args[0], listDir)

	contents, err := restore.New(log.Logger, *cfg).ListStacks(ctx, path)
	if err != nil {
		return err
	}
	if contents.Error != nil {
		return contents.Error
	}
	if len(contents.Stacks) == 0 {
		fmt.Println(contents.Message)
		return nil
	}

	for _, stack := range contents.Stacks {
		fmt.Println(stack)
	}
	return nil
}
