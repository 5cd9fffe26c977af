package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/profilesync/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the profile API over HTTP",
		Long: `Start the synchronizer and serve it over HTTP.

The remembered session, if any, is restored on startup. Sessions started
through the API are remembered the same way the CLI remembers them.

Example:
  profilesync serve --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default HTTP_ADDR or :8080)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	a, err := openApp(cmd, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	addr := opts.Addr
	if addr == "" {
		addr = a.Config.HTTPAddr
	}
	gin.SetMode(a.Config.GinMode)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.Log.WithField("signal", sig.String()).Info("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	if ident, ok := a.Restore(); ok {
		a.Log.WithField("identity_id", ident.ID).Info("session restored")
	}
	a.Start(ctx)

	if err := httpapi.Serve(ctx, addr, httpapi.NewRouter(a, a.Log), a.Log); err != nil {
		return WrapExitError(ExitFailure, "http server error", err)
	}
	a.Log.Info("server stopped gracefully")
	return nil
}
