package provision

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"wgbox/internal/config"
)

// snapshot is exactly the requested inputs. Derived state (addresses, keys,
// rendered files) is deliberately absent.
type snapshot struct {
	Server  config.Server  `json:"server"`
	Network config.Network `json:"network"`
	Peers   config.Peers   `json:"peers"`
	Runtime config.Runtime `json:"runtime"`
}

type inputsState struct {
	Digest string          `json:"digest"`
	Inputs json.RawMessage `json:"inputs"`
}

// Digest returns the canonical JSON of the input sections of cfg and its
// hex SHA-256.
func Digest(cfg config.File) (string, []byte, error) {
	raw, err := json.Marshal(snapshot{
		Server:  cfg.Server,
		Network: cfg.Network,
		Peers:   cfg.Peers,
		Runtime: cfg.Runtime,
	})
	if err != nil {
		return "", nil, fmt.Errorf("serialize inputs: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), raw, nil
}

// Gate compares the current inputs against the digest persisted by the last
// successful regeneration.
type Gate struct {
	Path   string
	Writer *Writer
}

// Changed reports whether digest differs from the stored one. A missing state
// file counts as changed; so does an unreadable one, with a warning.
func (g Gate) Changed(digest string) (bool, error) {
	data, err := os.ReadFile(g.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("read inputs state: %w", err)
	}
	var st inputsState
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("inputs state unreadable, forcing regeneration", "path", g.Path, "err", err)
		return true, nil
	}
	return st.Digest != digest, nil
}

// Save persists digest together with the snapshot it was computed from.
func (g Gate) Save(digest string, inputs []byte) error {
	data, err := json.MarshalIndent(inputsState{Digest: digest, Inputs: inputs}, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize inputs state: %w", err)
	}
	return g.Writer.WriteFile(g.Path, append(data, '\n'), 0o644)
}

// AssetsMissing reports whether any file the rest of the system relies on is
// absent: the server key pair, or any peer's keys or client config.
func AssetsMissing(paths Paths, peers []Peer) bool {
	if !exists(paths.ServerPrivateKey()) || !exists(paths.ServerPublicKey()) {
		return true
	}
	for _, p := range peers {
		for _, name := range []string{privateKeyFile, publicKeyFile, presharedFile, clientConfFile} {
			if !exists(filepath.Join(paths.PeerDir(p.ID), name)) {
				return true
			}
		}
	}
	return false
}
