package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/profilesync/internal/profile"
)

// AvatarOptions holds flags for the avatar command.
type AvatarOptions struct {
	*RootOptions
	Candidates []string
}

// NewAvatarCommand creates the avatar command.
func NewAvatarCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AvatarOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "avatar <id>",
		Short: "Show the fallback avatar picked for an identity",
		Long: `Show which avatar an identity without a photo is given.

The pick depends only on the id and the candidate list, so it is the same on
every device.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			candidates := opts.Candidates
			if len(candidates) == 0 {
				candidates = profile.DefaultAvatars
			}
			id := args[0]
			idx := profile.AvatarIndex(id, len(candidates))
			url := profile.PickAvatar(id, candidates)

			if f.Format == "json" {
				return f.Success(map[string]any{"identityId": id, "index": idx, "photoURL": url})
			}
			return f.Success(fmt.Sprintf("%s -> [%d] %s", id, idx, url))
		},
	}

	cmd.Flags().StringSliceVar(&opts.Candidates, "candidates", nil, "avatar candidate URLs (default built-in list)")

	return cmd
}
