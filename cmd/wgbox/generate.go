package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wgbox/cmd/wgbox/ui"
)

func generateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate keys and configs without touching the network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.service(cmd)
			if err != nil {
				return err
			}
			res, err := svc.Generate(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Regenerated {
				fmt.Fprintln(out, ui.SuccessMsg("Generated configs for %d peers", len(res.Config.Peers)))
			} else {
				fmt.Fprintln(out, ui.InfoMsg("Configs already up to date"))
			}
			fmt.Fprint(out, ui.KeyValues("  ",
				ui.KV("Root", res.Config.Paths.Root),
				ui.KV("Server config", res.Config.Paths.ServerConf()),
				ui.KV("Digest", res.Digest),
			))
			return nil
		},
	}
}
