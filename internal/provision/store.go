package provision

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"sort"
	"strings"
)

// PeerStore is the read side of the per-peer records. Allocation and the
// interface controller only see peers through it.
type PeerStore interface {
	// IDs lists existing peer records in lexical order.
	IDs() ([]string, error)
	// Addresses returns the interface addresses recorded for a peer, or nil
	// when the peer has no client config yet.
	Addresses(id string) ([]netip.Prefix, error)
}

// DirStore reads peer records from <root>/peers/<id>/client.conf.
type DirStore struct {
	Paths Paths
}

func (s DirStore) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.Paths.Peers)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read peers dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s DirStore) Addresses(id string) ([]netip.Prefix, error) {
	data, err := os.ReadFile(s.Paths.PeerClientConf(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read client config of %s: %w", id, err)
	}
	return parseAddressLine(data), nil
}

// parseAddressLine extracts the entries of the first "Address = a/n, b/m"
// line. Bare addresses are treated as single-address prefixes; entries that
// do not parse are skipped.
func parseAddressLine(conf []byte) []netip.Prefix {
	sc := bufio.NewScanner(bytes.NewReader(conf))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != "Address" {
			continue
		}
		var out []netip.Prefix
		for _, item := range strings.Split(value, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if pref, err := netip.ParsePrefix(item); err == nil {
				out = append(out, netip.PrefixFrom(pref.Addr().Unmap(), pref.Bits()))
				continue
			}
			if addr, err := netip.ParseAddr(item); err == nil {
				out = append(out, SingleIPPrefix(addr.Unmap()))
				continue
			}
			slog.Warn("ignore unparsable client address", "value", item)
		}
		return out
	}
	return nil
}

// Assigned maps every address found in any peer record to the peer that holds
// it, split by family.
type Assigned struct {
	V4 map[netip.Addr]string
	V6 map[netip.Addr]string
}

func (a Assigned) family(addr netip.Addr) map[netip.Addr]string {
	if addr.Is4() {
		return a.V4
	}
	return a.V6
}

// Claim records addr as taken by owner.
func (a Assigned) Claim(addr netip.Addr, owner string) {
	a.family(addr)[addr] = owner
}

// Owner returns the peer holding addr, if any.
func (a Assigned) Owner(addr netip.Addr) (string, bool) {
	owner, ok := a.family(addr)[addr]
	return owner, ok
}

// GatherAssigned scans every peer record in store.
func GatherAssigned(store PeerStore) (Assigned, map[string][]netip.Prefix, error) {
	assigned := Assigned{V4: map[netip.Addr]string{}, V6: map[netip.Addr]string{}}
	byPeer := map[string][]netip.Prefix{}

	ids, err := store.IDs()
	if err != nil {
		return Assigned{}, nil, err
	}
	for _, id := range ids {
		prefixes, err := store.Addresses(id)
		if err != nil {
			return Assigned{}, nil, err
		}
		if len(prefixes) == 0 {
			continue
		}
		byPeer[id] = prefixes
		for _, p := range prefixes {
			if _, taken := assigned.Owner(p.Addr()); !taken {
				assigned.Claim(p.Addr(), id)
			}
		}
	}
	return assigned, byPeer, nil
}
