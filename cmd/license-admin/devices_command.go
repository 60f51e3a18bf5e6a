package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"desktop-license-server/config"
	"desktop-license-server/internal/database"
	"desktop-license-server/internal/devices"
)

// openActivationStore connects to the configured activation store. Tests replace it.
var openActivationStore = func(ctx context.Context) (database.ActivationStore, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseConfig.Driver != "postgres" {
		return nil, nil, fmt.Errorf("device administration needs the postgres driver, got %q", cfg.DatabaseConfig.Driver)
	}
	db, err := database.NewDB(ctx, cfg.DatabaseConfig, zerolog.Nop())
	if err != nil {
		return nil, nil, err
	}
	return database.NewRepository(db), db.Close, nil
}

func deviceService(ctx context.Context) (*devices.Service, func(), error) {
	store, closeFn, err := openActivationStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return devices.NewService(store), closeFn, nil
}

// RunSweepStaleCommand deactivates devices that stopped checking in
func RunSweepStaleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep-stale <duration>",
		Short: "Deactivate devices not seen for longer than duration (e.g. 720h)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxIdle, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[0], err)
			}
			if maxIdle <= 0 {
				return errors.New("duration must be positive")
			}

			svc, closeFn, err := deviceService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := svc.SweepStale(cmd.Context(), maxIdle)
			if err != nil {
				return err
			}
			cmd.Printf("Deactivated %d stale device(s)\n", n)
			return nil
		},
	}

	return cmd
}

// RunRevokeCommand deactivates one activation on behalf of an administrator
func RunRevokeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <activation_id>",
		Short: "Revoke a device activation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := deviceService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			err = svc.Deactivate(cmd.Context(), args[0], database.ReasonAdminRevoked)
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("activation %s not found", args[0])
			}
			if err != nil {
				return err
			}
			cmd.Printf("Activation %s revoked\n", args[0])
			return nil
		},
	}

	return cmd
}
