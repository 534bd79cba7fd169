package provision

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"wgbox/internal/config"
)

// Slugify lowercases ASCII letters and digits and collapses every other run of
// characters into a single hyphen, trimming hyphens at both ends.
func Slugify(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// PeerIDForName maps a configured name at zero-based position idx to its id.
func PeerIDForName(name string, idx int) string {
	slug := Slugify(name)
	if slug == "" {
		return fmt.Sprintf("peer-unnamed-%d", idx+1)
	}
	return "peer-" + slug
}

// ResolvePeers returns the ordered peer list for the request. Explicit names
// take precedence; otherwise existing records are reused in lexical order and
// topped up with fresh random ids until count is reached.
func ResolvePeers(req config.Peers, store PeerStore) ([]Peer, error) {
	if len(req.Names) > 0 {
		seen := make(map[string]struct{}, len(req.Names))
		out := make([]Peer, 0, len(req.Names))
		for i, name := range req.Names {
			id := PeerIDForName(name, i)
			if _, dup := seen[id]; dup {
				return nil, &DuplicateIdentityError{Name: name, ID: id}
			}
			seen[id] = struct{}{}
			out = append(out, Peer{ID: id})
		}
		return out, nil
	}

	count := 0
	if req.Count != nil {
		count = *req.Count
	}
	if count <= 0 {
		return []Peer{}, nil
	}

	existing, err := store.IDs()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, count)
	out := make([]Peer, 0, count)
	for _, id := range existing {
		if len(out) == count {
			break
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Peer{ID: id})
	}
	for len(out) < count {
		id := "peer-" + uuid.NewString()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Peer{ID: id})
	}
	return out, nil
}
