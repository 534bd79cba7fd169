package provision

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"wgbox/internal/config"
)

func TestDigestCoversOnlyInputSections(t *testing.T) {
	t.Parallel()

	base := config.Default()
	d1, raw, err := Digest(base)
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if len(d1) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(d1))
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("snapshot is not json: %v", err)
	}
	if len(decoded) != 4 {
		t.Fatalf("snapshot sections = %d, want 4", len(decoded))
	}
	for _, k := range []string{"server", "network", "peers", "runtime"} {
		if _, ok := decoded[k]; !ok {
			t.Fatalf("snapshot missing %q", k)
		}
	}

	tools := base
	tools.Tools.QRRenderer = config.QRBuiltin
	if d, _, _ := Digest(tools); d != d1 {
		t.Fatal("tools section changed the digest")
	}

	again, _, _ := Digest(config.Default())
	if again != d1 {
		t.Fatal("digest not stable across calls")
	}

	changed := base
	changed.Server.ListenPort = 51821
	if d, _, _ := Digest(changed); d == d1 {
		t.Fatal("listen port change did not change the digest")
	}
}

func TestGate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	gate := Gate{Path: filepath.Join(dir, "inputs.json"), Writer: &Writer{}}

	changed, err := gate.Changed("abc")
	if err != nil || !changed {
		t.Fatalf("Changed() without state = %v, %v; want true", changed, err)
	}

	if err := gate.Save("abc", []byte(`{"server":{}}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	changed, err = gate.Changed("abc")
	if err != nil || changed {
		t.Fatalf("Changed(same) = %v, %v; want false", changed, err)
	}
	changed, _ = gate.Changed("def")
	if !changed {
		t.Fatal("Changed(different) = false")
	}

	data, err := os.ReadFile(gate.Path)
	if err != nil {
		t.Fatal(err)
	}
	var st inputsState
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("state file not json: %v", err)
	}
	if st.Digest != "abc" || string(st.Inputs) == "" {
		t.Fatalf("state = %+v", st)
	}

	if err := os.WriteFile(gate.Path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, err = gate.Changed("abc")
	if err != nil || !changed {
		t.Fatalf("Changed(corrupt) = %v, %v; want true", changed, err)
	}
}

func TestAssetsMissing(t *testing.T) {
	t.Parallel()

	paths := newTestPaths(t)
	peers := []Peer{{ID: "peer-a"}}
	if !AssetsMissing(paths, nil) {
		t.Fatal("AssetsMissing() = false with no server keys")
	}

	for _, p := range []string{paths.ServerPrivateKey(), paths.ServerPublicKey()} {
		if err := os.WriteFile(p, []byte("k"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if AssetsMissing(paths, nil) {
		t.Fatal("AssetsMissing() = true with server keys and no peers")
	}
	if !AssetsMissing(paths, peers) {
		t.Fatal("AssetsMissing() = false with missing peer dir")
	}

	if err := os.MkdirAll(paths.PeerDir("peer-a"), 0o700); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{privateKeyFile, publicKeyFile, presharedFile, clientConfFile} {
		if err := os.WriteFile(filepath.Join(paths.PeerDir("peer-a"), name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if AssetsMissing(paths, peers) {
		t.Fatal("AssetsMissing() = true with every asset present")
	}
	if err := os.Remove(paths.PeerPresharedKey("peer-a")); err != nil {
		t.Fatal(err)
	}
	if !AssetsMissing(paths, peers) {
		t.Fatal("AssetsMissing() = false after removing preshared.key")
	}
}
