package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"datahub/pkg/locking"
)

func locksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locks",
		Short: "List live locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := newCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			locks, err := cat.Locks.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, lock := range locks {
				fmt.Printf("%s\tscope=%s\trequest=%s\tage=%s\n",
					lock.ID, lock.Scope, lock.RequestID,
					time.Since(lock.AcquiredAt).Round(time.Second))
			}
			fmt.Printf("%d live locks\n", len(locks))
			return nil
		},
	}
}

// unlockCmd clears a stale lock left behind by a request that died while
// holding it. Locks carry no lease expiry, so this is the operational escape
// hatch.
func unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <lock-id>",
		Short: "Release a stale lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := newCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			locks := locking.NewService(cat.Locks, logger)
			if err := locks.ReleaseID(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("released %s\n", args[0])
			return nil
		},
	}
}
