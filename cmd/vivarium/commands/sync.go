package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vivarium/internal/infra/persistence"
	_ "vivarium/internal/infra/persistence/postgres" // register postgres backend
	_ "vivarium/internal/infra/persistence/sqlite"   // register sqlite backend
	"vivarium/pkg/domain"
)

var syncOperator string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Flush the pending sync queue in the persisted snapshot",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncOperator, "operator", "cli", "acting operator name")
	rootCmd.AddCommand(syncCmd)
}

func runSync(_ *cobra.Command, _ []string) error {
	log := newLogger()
	ctx := context.Background()

	backend, err := persistence.Open()
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	svc, err := buildService(ctx, backend, log)
	if err != nil {
		return err
	}

	out := svc.SyncPendingEvents(syncOperator)
	if out.Failed() {
		if out.Kind == domain.KindInvalidState {
			fmt.Println(out.Reason)
			return nil
		}
		return fmt.Errorf("%s", out.Reason)
	}

	// Commit hooks run asynchronously; save once more before exit so the
	// flushed queue is durable.
	rev := svc.Store().Current()
	if err := backend.Save(ctx, rev.Seq, rev.Snapshot); err != nil {
		return err
	}
	fmt.Println("同步队列已处理")
	return nil
}
