package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgbox/internal/index"
	"wgbox/internal/provision"
)

// ShowPeer prints the client config and a terminal QR code of each named
// peer. A name is accepted verbatim as a peer id, or slugged the way
// configured names are.
func (s *Service) ShowPeer(ctx context.Context, names []string, w io.Writer) error {
	ids, err := s.Engine.Store.IDs()
	if err != nil {
		return err
	}
	existing := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		existing[id] = struct{}{}
	}

	var missing []string
	for i, name := range names {
		id := name
		if _, ok := existing[id]; !ok {
			id = provision.PeerIDForName(name, i)
		}
		if _, ok := existing[id]; !ok {
			missing = append(missing, name)
			continue
		}

		confPath := s.Engine.Paths.PeerClientConf(id)
		data, err := os.ReadFile(confPath)
		if errors.Is(err, os.ErrNotExist) {
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return fmt.Errorf("read client config of %s: %w", id, err)
		}
		if _, err := fmt.Fprintf(w, "# %s\n%s\n", id, data); err != nil {
			return err
		}
		if err := s.Engine.QR.Terminal(ctx, confPath, w); err != nil {
			return fmt.Errorf("peer %s: %w", id, err)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown peers %s: %w", strings.Join(missing, ", "), errdefs.ErrNotFound)
	}
	return nil
}

type PeerStatus struct {
	ID              string     `yaml:"id"`
	PublicKey       string     `yaml:"public_key"`
	Addresses       []string   `yaml:"addresses"`
	Generated       time.Time  `yaml:"generated"`
	Endpoint        string     `yaml:"endpoint,omitempty"`
	LatestHandshake *time.Time `yaml:"latest_handshake,omitempty"`
	ReceiveBytes    int64      `yaml:"rx_bytes"`
	TransmitBytes   int64      `yaml:"tx_bytes"`
}

// Status lists indexed peers joined with live counters from the kernel
// device when it exists.
func (s *Service) Status(ctx context.Context) ([]PeerStatus, error) {
	if _, err := os.Stat(s.indexPath()); errors.Is(err, os.ErrNotExist) {
		return []PeerStatus{}, nil
	}
	x, err := index.Open(s.indexPath())
	if err != nil {
		return nil, err
	}
	defer x.Close()

	records, err := x.Peers(ctx)
	if err != nil {
		return nil, err
	}

	live := s.livePeers()
	out := make([]PeerStatus, 0, len(records))
	for _, r := range records {
		st := PeerStatus{
			ID:        r.ID,
			PublicKey: r.PublicKey,
			Generated: r.UpdatedAt,
		}
		for _, a := range r.Addresses {
			st.Addresses = append(st.Addresses, a.String())
		}
		if p, ok := live[r.PublicKey]; ok {
			if p.Endpoint != nil {
				st.Endpoint = p.Endpoint.String()
			}
			if !p.LastHandshakeTime.IsZero() {
				hs := p.LastHandshakeTime
				st.LatestHandshake = &hs
			}
			st.ReceiveBytes = p.ReceiveBytes
			st.TransmitBytes = p.TransmitBytes
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) livePeers() map[string]wgtypes.Peer {
	live := map[string]wgtypes.Peer{}
	if s.OpenDevice == nil {
		return live
	}
	dev, err := s.OpenDevice()
	if err != nil {
		s.logger().Debug("wireguard control unavailable", "err", err)
		return live
	}
	defer dev.Close()

	d, err := dev.Device(s.Interface)
	if err != nil {
		s.logger().Debug("interface not present", "name", s.Interface, "err", err)
		return live
	}
	for _, p := range d.Peers {
		live[p.PublicKey.String()] = p
	}
	return live
}
