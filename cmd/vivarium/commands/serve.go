package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"vivarium/internal/core"
	"vivarium/internal/httpapi"
	"vivarium/internal/infra/blob"
	"vivarium/internal/infra/persistence"
	_ "vivarium/internal/infra/persistence/postgres" // register postgres backend
	_ "vivarium/internal/infra/persistence/sqlite"   // register sqlite backend
	"vivarium/internal/infra/syncremote"
	"vivarium/internal/notify"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default $VIVARIUM_HTTP_ADDR or :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	log := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := persistence.Open()
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	reg := prometheus.NewRegistry()
	svc, err := buildService(ctx, backend, log, core.WithMetrics(core.NewMetrics(reg)))
	if err != nil {
		return err
	}
	return serveHTTP(ctx, svc, reg, log)
}

// buildService loads or seeds the snapshot and wires the engine with
// persistence attached as a commit hook.
func buildService(ctx context.Context, backend persistence.Backend, log zerolog.Logger, extra ...core.Option) (*core.Service, error) {
	initial, err := persistence.Bootstrap(ctx, backend, core.SeedSnapshot(time.Now()))
	if err != nil {
		return nil, err
	}
	opts := []core.Option{
		core.WithLogger(log),
		core.WithCommitHook(func(rev core.Revision) {
			if err := backend.Save(context.Background(), rev.Seq, rev.Snapshot); err != nil {
				log.Error().Err(err).Uint64("revision", rev.Seq).Msg("snapshot save failed")
			}
		}),
	}
	opts = append(opts, extra...)
	return core.NewService(core.NewStore(initial), opts...), nil
}

func serveHTTP(ctx context.Context, svc *core.Service, reg *prometheus.Registry, log zerolog.Logger) error {
	blobs, err := blob.Open(ctx)
	if err != nil {
		return err
	}

	dispatcher := syncremote.New(syncremote.ConfigFromEnv(), svc, log)
	go dispatcher.Run(ctx)

	server := httpapi.New(svc, blobs, notify.NewReadMarks(), reg, log)
	addr := serveAddr
	if addr == "" {
		addr = os.Getenv("VIVARIUM_HTTP_ADDR")
	}
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		svc.Store().Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
