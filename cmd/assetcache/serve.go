package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/assetcache/storage/localfs"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var storageRoot, listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local object store over signed URLs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.configValue()
			if storageRoot != "" {
				cfg.Storage.Root = storageRoot
			}
			if listen != "" {
				cfg.Storage.Listen = listen
			}
			if cfg.Storage.Secret == "" {
				return errors.New("serve requires storage.secret so signers in other processes can produce valid URLs")
			}
			store, err := ctx.openObjectStore()
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", cfg.Storage.Listen)
			if err != nil {
				return err
			}
			ctx.log().Info("serving object store",
				slog.String("root", cfg.Storage.Root),
				slog.String("addr", ln.Addr().String()))
			return serveUntilDone(cmd.Context(), ln, store.Handler())
		},
	}
	cmd.Flags().StringVar(&storageRoot, "storage-root", "", "Object store directory")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address")
	return cmd
}

// serveUntilDone serves h on ln until ctx ends, then shuts down gracefully.
func serveUntilDone(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startLocalServer serves store on an ephemeral loopback port and points
// its signed URLs there. stop shuts the server down.
func startLocalServer(ctx context.Context, store *localfs.Store) (stop func(), err error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	store.SetBaseURL("http://" + ln.Addr().String())
	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = serveUntilDone(serveCtx, ln, store.Handler())
	}()
	return func() {
		cancel()
		<-done
	}, nil
}
