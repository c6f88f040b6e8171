package main

import (
	"errors"
	"fmt"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/fgeck/stackguard/internal/services/archive"
	"github.com/fgeck/stackguard/internal/services/restore"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	restoreAll bool
	restoreDir string
)

var restoreCmd = &cobra.Command{
	Use:   "restore <archive> [stack...]",
	Short: "Restore stacks from an archive",
	Long: `Extract the named stacks from an archive into the stack root, overwriting
existing files. Use --all to restore every stack stored in the archive.

A partial restore (some stacks failed) prints both lists and exits 0.`,
	Args: cobra.MinimumNArgs(1),
	RunE: restoreStacks,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreAll, "all", false, "restore every stack in the archive")
	restoreCmd.Flags().StringVar(&restoreDir, "dir", "", "directory to look in before the backup destination")
}

func restoreStacks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	path := archive.New(log.Logger, cfg.Backup.Destination).Resolve(args[0], restoreDir)
	svc := restore.New(log.Logger, *cfg)

	stacks := args[1:]
	if restoreAll {
		if len(stacks) > 0 {
			return &models.ValidationError{Field: "stacks", Reason: "--all cannot be combined with stack names"}
		}
		contents, err := svc.ListStacks(ctx, path)
		if err != nil {
			return err
		}
		if contents.Error != nil {
			return contents.Error
		}
		stacks = contents.Stacks
	}

	result, err := svc.Restore(ctx, path, stacks)
	if err != nil {
		return err
	}

	for _, stack := range result.Restored {
		fmt.Printf("restored  %s\n", stack)
	}
	for _, msg := range result.Errors {
		fmt.Printf("failed    %s\n", msg)
	}
	fmt.Println(result.Message)

	if result.Status == models.StatusError {
		return errors.New(result.Message)
	}
	return nil
}
