package provision

import (
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"sync/atomic"
	"text/template"

	"github.com/moby/sys/atomicwriter"
)

// Writer replaces files atomically: data goes to a temporary sibling that is
// renamed over the destination, so readers never see a partial file.
type Writer struct {
	writes atomic.Int64
}

func (w *Writer) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := atomicwriter.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if w != nil {
		w.writes.Add(1)
	}
	return nil
}

// Secret writes a single key with owner-only permissions.
func (w *Writer) Secret(path, value string) error {
	return w.WriteFile(path, []byte(strings.TrimSpace(value)+"\n"), 0o600)
}

// Writes reports how many files this writer has replaced.
func (w *Writer) Writes() int64 {
	if w == nil {
		return 0
	}
	return w.writes.Load()
}

type serverPeer struct {
	PublicKey    string
	PresharedKey string
	AllowedIPs   []netip.Prefix
}

type serverConf struct {
	Addresses  []netip.Prefix
	ListenPort int
	PrivateKey string
	Peers      []serverPeer
}

type clientConf struct {
	Addresses       []netip.Prefix
	PrivateKey      string
	DNS             []string
	ServerPublicKey string
	Endpoint        string
	AllowedIPs      []string
}

var confFuncs = template.FuncMap{
	"join": func(items any) string {
		switch v := items.(type) {
		case []string:
			return strings.Join(v, ", ")
		case []netip.Prefix:
			parts := make([]string, len(v))
			for i, p := range v {
				parts[i] = p.String()
			}
			return strings.Join(parts, ", ")
		default:
			return fmt.Sprint(v)
		}
	},
}

var serverTmpl = template.Must(template.New("server.conf").Funcs(confFuncs).Parse(`[Interface]
Address = {{join .Addresses}}
ListenPort = {{.ListenPort}}
PrivateKey = {{.PrivateKey}}
{{range .Peers}}
[Peer]
PublicKey = {{.PublicKey}}
PresharedKey = {{.PresharedKey}}
AllowedIPs = {{join .AllowedIPs}}
{{end}}`))

var clientTmpl = template.Must(template.New("client.conf").Funcs(confFuncs).Parse(`[Interface]
Address = {{join .Addresses}}
PrivateKey = {{.PrivateKey}}
{{- if .DNS}}
DNS = {{join .DNS}}
{{- end}}

[Peer]
PublicKey = {{.ServerPublicKey}}
Endpoint = {{.Endpoint}}
AllowedIPs = {{join .AllowedIPs}}
`))

func renderServerConf(c serverConf) ([]byte, error) {
	var buf bytes.Buffer
	if err := serverTmpl.Execute(&buf, c); err != nil {
		return nil, fmt.Errorf("render server config: %w", err)
	}
	return buf.Bytes(), nil
}

func renderClientConf(c clientConf) ([]byte, error) {
	var buf bytes.Buffer
	if err := clientTmpl.Execute(&buf, c); err != nil {
		return nil, fmt.Errorf("render client config: %w", err)
	}
	return buf.Bytes(), nil
}

// endpoint joins host and port, bracketing bare IPv6 literals.
func endpoint(host string, port int) string {
	if addr, err := netip.ParseAddr(host); err == nil && addr.Is6() {
		return fmt.Sprintf("[%s]:%d", host, port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}
