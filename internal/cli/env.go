package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/profilesync/internal/app"
	"github.com/roach88/profilesync/internal/codec"
	"github.com/roach88/profilesync/internal/config"
	"github.com/roach88/profilesync/internal/logging"
	"github.com/roach88/profilesync/internal/profile"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// commandContext returns the command's context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.ConfigFile != "" {
		if err := cfg.ApplyFile(opts.ConfigFile); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, opts *RootOptions, f *OutputFormatter) *logrus.Logger {
	return logging.New(cfg.AppName, cfg.Env, opts.Verbose, f.GetErrWriter())
}

// openApp loads configuration and builds the application. Errors are already
// reported through f.
func openApp(cmd *cobra.Command, opts *RootOptions, f *OutputFormatter) (*app.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, f.Fail(ExitCommandError, CodeConfig, "cannot load configuration", err)
	}
	log := newLogger(cfg, opts, f)
	a, err := app.New(commandContext(cmd), cfg, log, opts.App)
	if err != nil {
		return nil, f.Fail(ExitCommandError, CodeStore, "cannot open stores", err)
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Log.WithError(err).Error("error closing stores")
	}
}

// settle starts the synchronizer and reports the profile it settles on for id.
func settle(cmd *cobra.Command, a *app.App, f *OutputFormatter, id string) error {
	a.Start(commandContext(cmd))
	p, ok, err := a.Ready(commandContext(cmd), id)
	if err != nil {
		return f.Fail(ExitFailure, CodeNotReady, "profile not ready", err)
	}
	if !ok {
		return f.Fail(ExitFailure, CodeNoProfile, "no profile for "+id, nil)
	}
	return f.Success(newProfileResult(a, p))
}

// profileResult is the command output for a resolved profile.
type profileResult struct {
	State    string          `json:"state"`
	Identity string          `json:"identityId"`
	Kind     string          `json:"kind"`
	Profile  json.RawMessage `json:"profile"`

	text string
}

func newProfileResult(a *app.App, p profile.Profile) profileResult {
	ident, _ := a.Sync.Identity()
	return profileResult{
		State:    a.Sync.State().String(),
		Identity: ident.ID,
		Kind:     ident.Kind.String(),
		Profile:  json.RawMessage(codec.Default().WithLogger(a.Log).Encode(p.ToObject())),
		text:     describe(ident.Kind.String(), p),
	}
}

func (r profileResult) String() string {
	return r.text
}

func describe(kind string, p profile.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s profile %s\n", kind, p.ID)
	fmt.Fprintf(&b, "  displayName: %s\n", p.DisplayName)
	if p.Email != "" {
		fmt.Fprintf(&b, "  email:       %s\n", p.Email)
	}
	if p.PhotoURL != "" {
		fmt.Fprintf(&b, "  photoURL:    %s\n", p.PhotoURL)
	}
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "  createdAt:   %s\n", p.CreatedAt.UTC().Format(time.RFC3339))
	}
	if p.StartDate != nil {
		fmt.Fprintf(&b, "  startDate:   %s\n", p.StartDate.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "  counters:    emergency=%d urge=%d story=%d", p.EmergencyIndex, p.UrgeIndex, p.StoryIndex)
	return b.String()
}
