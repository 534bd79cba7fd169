package nat

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"wgbox/internal/command"
)

const missingTable = "No such file or directory"

// Nft programs nftables by piping a rule script to `nft -f -`. Each family
// gets its own nat and filter table so removal is a table delete.
type Nft struct {
	Runner command.Runner
	Binary string
}

func (n Nft) bin() string {
	if n.Binary == "" {
		return "nft"
	}
	return n.Binary
}

func (n Nft) Name() string { return "nftables" }

func (n Nft) Available(ctx context.Context) error {
	if _, err := n.Runner.Run(ctx, command.Cmd{Name: n.bin(), Args: []string{"--version"}}); err != nil {
		return &MissingDependencyError{Tool: n.bin(), Err: err}
	}
	return nil
}

type nftTables struct {
	family string
	nat    string
	filter string
}

func tablesFor(f Family) nftTables {
	if f == IPv6 {
		return nftTables{family: "ip6", nat: "wg_nat_v6", filter: "wg_filter_v6"}
	}
	return nftTables{family: "ip", nat: "wg_nat_v4", filter: "wg_filter_v4"}
}

var nftScript = template.Must(template.New("nft").Parse(`table {{.Family}} {{.NatTable}} {
	chain postrouting {
		type nat hook postrouting priority 100; policy accept;
		oifname "{{.Egress}}" {{.Family}} saddr {{.Subnet}} masquerade
	}
}
table {{.Family}} {{.FilterTable}} {
	chain forward {
		type filter hook forward priority 0; policy accept;
		iifname "{{.Interface}}" accept
		oifname "{{.Interface}}" accept
	}
}
`))

func renderScript(r Rule) ([]byte, error) {
	t := tablesFor(r.Family)
	var buf bytes.Buffer
	err := nftScript.Execute(&buf, struct {
		Family, NatTable, FilterTable, Egress, Subnet, Interface string
	}{
		Family:      t.family,
		NatTable:    t.nat,
		FilterTable: t.filter,
		Egress:      r.Egress,
		Subnet:      r.Subnet.String(),
		Interface:   r.Interface,
	})
	if err != nil {
		return nil, fmt.Errorf("render nft script: %w", err)
	}
	return buf.Bytes(), nil
}

// Install deletes any previous tables of the family and loads fresh ones in
// a single transaction.
func (n Nft) Install(ctx context.Context, r Rule) error {
	if err := n.Remove(ctx, r); err != nil {
		return err
	}
	script, err := renderScript(r)
	if err != nil {
		return err
	}
	if _, err := n.Runner.Run(ctx, command.Cmd{Name: n.bin(), Args: []string{"-f", "-"}, Stdin: script}); err != nil {
		return fmt.Errorf("apply nft script: %w", err)
	}
	return nil
}

func (n Nft) Remove(ctx context.Context, r Rule) error {
	t := tablesFor(r.Family)
	for _, table := range []string{t.nat, t.filter} {
		_, err := n.Runner.Run(ctx, command.Cmd{Name: n.bin(), Args: []string{"delete", "table", t.family, table}})
		if err != nil && !command.StderrContains(err, missingTable) {
			return fmt.Errorf("delete nft table %s: %w", table, err)
		}
	}
	return nil
}
