package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/fgeck/stackguard/internal/services/lock"
	"github.com/fgeck/stackguard/internal/services/paths"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var lockTimeout time.Duration

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect and hold per-stack locks",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status <stack>",
	Short: "Show whether a stack is locked and by whom",
	Args:  cobra.ExactArgs(1),
	RunE:  lockStatus,
}

var lockRunCmd = &cobra.Command{
	Use:   "run <stack> -- <command> [args...]",
	Short: "Run a command while holding the stack lock",
	Long: `Acquire the stack's lock, run the command in the stack's resolved directory
and release the lock when it exits. Fails without running the command when
the lock cannot be acquired within --timeout.`,
	Args: cobra.MinimumNArgs(2),
	RunE: lockRun,
}

func init() {
	lockRunCmd.Flags().DurationVar(&lockTimeout, "timeout", lock.DefaultTimeout, "how long to wait for the lock")

	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockRunCmd)
}

func lockStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stack := args[0]
	info, locked := lock.New(log.Logger, cfg.LockDir).IsLocked(stack)
	if !locked {
		fmt.Printf("%s: unlocked\n", stack)
		return nil
	}

	if info.PID == 0 {
		fmt.Printf("%s: locked\n", stack)
		return nil
	}
	fmt.Printf("%s: locked by pid %d since %s\n", stack, info.PID, info.Time)
	return nil
}

func lockRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stack := args[0]
	command := args[1:]

	dir := paths.New(*cfg).Resolve(stack)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return &models.EnvironmentError{Path: dir, Reason: "stack directory does not exist", Err: err}
	}

	ctx, cancel := signalContext()
	defer cancel()

	lockSvc := lock.New(log.Logger, cfg.LockDir)

	return lockSvc.WithLock(ctx, stack, lockTimeout, func() error {
		log.Debug().
			Str("stack", stack).
			Str("dir", dir).
			Strs("command", command).
			Msg("running command under stack lock")

		c := exec.CommandContext(ctx, command[0], command[1:]...) //nolint:gosec // command is supplied by the operator
		c.Dir = dir
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	})
}
