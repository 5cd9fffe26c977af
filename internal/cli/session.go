package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/profilesync/internal/identity"
)

// NewGuestCommand creates the guest command.
func NewGuestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "guest [id]",
		Short: "Start a guest session",
		Long: `Sign in as a guest and print the guest profile.

The profile is read from the local snapshot store, or created with defaults
when no snapshot exists. Without an id a new UUIDv7 is generated.

Example:
  profilesync guest
  profilesync guest abc12xyz --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			a, err := openApp(cmd, rootOpts, f)
			if err != nil {
				return err
			}
			defer closeApp(a)

			var id string
			if len(args) == 1 {
				id = args[0]
			} else {
				id = a.IDs.Generate()
			}
			ident := identity.Normalize(identity.Guest(id))
			if err := a.SignIn(ident); err != nil {
				return f.Fail(ExitCommandError, CodeIdentity, "invalid identity", err)
			}
			return settle(cmd, a, f, ident.ID)
		},
	}
}

// SignInOptions holds flags for the signin command.
type SignInOptions struct {
	*RootOptions
	DisplayName string
	Email       string
	PhotoURL    string
	Anonymous   bool
}

// NewSignInCommand creates the signin command.
func NewSignInCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignInOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signin <id>",
		Short: "Start an account session",
		Long: `Sign in with an account identity and print the account profile.

A missing remote record is created. A profile without an avatar gets one
picked from the avatar list and written back.

Example:
  profilesync signin bob-42 --name Bob --email bob@example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			a, err := openApp(cmd, rootOpts, f)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ident := identity.Account(args[0])
			ident.DisplayName = opts.DisplayName
			ident.Email = opts.Email
			ident.PhotoURL = opts.PhotoURL
			ident.IsAnonymous = opts.Anonymous
			ident = identity.Normalize(ident)
			if err := a.SignIn(ident); err != nil {
				return f.Fail(ExitCommandError, CodeIdentity, "invalid identity", err)
			}
			return settle(cmd, a, f, ident.ID)
		},
	}

	cmd.Flags().StringVar(&opts.DisplayName, "name", "", "provider display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "provider email")
	cmd.Flags().StringVar(&opts.PhotoURL, "photo", "", "provider photo URL")
	cmd.Flags().BoolVar(&opts.Anonymous, "anonymous", false, "mark the account as an anonymous provider account")

	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the profile of the remembered session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			a, err := openApp(cmd, rootOpts, f)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ident, ok := a.Restore()
			if !ok {
				return f.Fail(ExitFailure, CodeNoSession, "no active session", nil)
			}
			return settle(cmd, a, f, ident.ID)
		},
	}
}

// NewSignOutCommand creates the signout command.
func NewSignOutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "End the remembered session",
		Long: `Sign out of the remembered session.

Signing out of a guest session deletes the guest snapshot.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			a, err := openApp(cmd, rootOpts, f)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ident, ok := a.Restore()
			if !ok {
				return f.Fail(ExitFailure, CodeNoSession, "no active session", nil)
			}
			ctx := commandContext(cmd)
			a.Start(ctx)
			if _, _, err := a.Ready(ctx, ident.ID); err != nil {
				return f.Fail(ExitFailure, CodeNotReady, "profile not ready", err)
			}

			a.SignOut()
			if _, _, err := a.Ready(ctx, ""); err != nil {
				return f.Fail(ExitFailure, CodeNotReady, "sign-out not applied", err)
			}
			if f.Format == "json" {
				return f.Success(map[string]any{"signedOut": ident.ID, "kind": ident.Kind.String()})
			}
			return f.Success("signed out of " + ident.Kind.String() + " " + ident.ID)
		},
	}
}
