package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"wgbox/cmd/wgbox/ui"
	"wgbox/internal/runtime"
)

func statusCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List provisioned peers with live handshake data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "yaml" {
				return fmt.Errorf("unsupported output %q (want table or yaml)", output)
			}
			svc, err := opts.service(cmd)
			if err != nil {
				return err
			}
			peers, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), output, peers, time.Now())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table or yaml)")
	return cmd
}

func printStatus(w io.Writer, output string, peers []runtime.PeerStatus, now time.Time) error {
	if output == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(peers); err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		return enc.Close()
	}

	if len(peers) == 0 {
		_, err := fmt.Fprintln(w, ui.WarnMsg("No peers provisioned"))
		return err
	}
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		handshake := ui.Muted("never")
		if p.LatestHandshake != nil {
			handshake = now.Sub(*p.LatestHandshake).Round(time.Second).String() + " ago"
		}
		rows = append(rows, []string{
			p.ID,
			strings.Join(p.Addresses, ", "),
			p.Endpoint,
			handshake,
			ui.Bytes(p.ReceiveBytes),
			ui.Bytes(p.TransmitBytes),
		})
	}
	_, err := fmt.Fprintln(w, ui.Table([]string{"PEER", "ADDRESSES", "ENDPOINT", "HANDSHAKE", "RX", "TX"}, rows))
	return err
}
