package main

import (
	"github.com/spf13/cobra"
)

func showPeerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show-peer <name>...",
		Short: "Print client configs and QR codes of peers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service(cmd)
			if err != nil {
				return err
			}
			return svc.ShowPeer(cmd.Context(), args, cmd.OutOrStdout())
		},
	}
}
