package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgbox/internal/command"
)

// KeyGenerator produces WireGuard key material as base64 strings.
type KeyGenerator interface {
	PrivateKey(ctx context.Context) (string, error)
	PublicKey(ctx context.Context, private string) (string, error)
	PresharedKey(ctx context.Context) (string, error)
}

// WGTool generates keys with the wg(8) binary. The private key reaches
// "wg pubkey" on stdin only.
type WGTool struct {
	Runner command.Runner
	Binary string
}

func (w WGTool) bin() string {
	if w.Binary == "" {
		return "wg"
	}
	return w.Binary
}

func (w WGTool) run(ctx context.Context, sub string, stdin []byte) (string, error) {
	res, err := w.Runner.Run(ctx, command.Cmd{Name: w.bin(), Args: []string{sub}, Stdin: stdin})
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", w.bin(), sub, err)
	}
	out := res.Output()
	if out == "" {
		return "", fmt.Errorf("%s %s: empty output", w.bin(), sub)
	}
	return out, nil
}

func (w WGTool) PrivateKey(ctx context.Context) (string, error) {
	return w.run(ctx, "genkey", nil)
}

func (w WGTool) PublicKey(ctx context.Context, private string) (string, error) {
	return w.run(ctx, "pubkey", []byte(strings.TrimSpace(private)+"\n"))
}

func (w WGTool) PresharedKey(ctx context.Context) (string, error) {
	return w.run(ctx, "genpsk", nil)
}

// BuiltinKeys generates keys in-process with wgtypes.
type BuiltinKeys struct{}

func (BuiltinKeys) PrivateKey(context.Context) (string, error) {
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", fmt.Errorf("generate private key: %w", err)
	}
	return k.String(), nil
}

func (BuiltinKeys) PublicKey(_ context.Context, private string) (string, error) {
	k, err := wgtypes.ParseKey(strings.TrimSpace(private))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	return k.PublicKey().String(), nil
}

func (BuiltinKeys) PresharedKey(context.Context) (string, error) {
	k, err := wgtypes.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generate preshared key: %w", err)
	}
	return k.String(), nil
}

// Credentials is the credential store. Absence of a key file is the only
// trigger for generating it.
type Credentials struct {
	Keys   KeyGenerator
	Writer *Writer
}

// EnsureServerKeys returns the server key pair, generating whatever is missing.
func (c Credentials) EnsureServerKeys(ctx context.Context, paths Paths) (KeyPair, error) {
	kp, err := c.ensurePair(ctx, paths.ServerPrivateKey(), paths.ServerPublicKey())
	if err != nil {
		return KeyPair{}, fmt.Errorf("server keys: %w", err)
	}
	return kp, nil
}

// EnsurePeerKeys returns the peer key pair and makes sure its preshared key
// exists. The preshared key is gated on its own file.
func (c Credentials) EnsurePeerKeys(ctx context.Context, paths Paths, id string) (KeyPair, error) {
	dir := paths.PeerDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return KeyPair{}, fmt.Errorf("create peer dir %s: %w", id, err)
	}
	kp, err := c.ensurePair(ctx, filepath.Join(dir, privateKeyFile), filepath.Join(dir, publicKeyFile))
	if err != nil {
		return KeyPair{}, fmt.Errorf("peer %s keys: %w", id, err)
	}

	pskPath := filepath.Join(dir, presharedFile)
	if !exists(pskPath) {
		psk, err := c.Keys.PresharedKey(ctx)
		if err != nil {
			return KeyPair{}, fmt.Errorf("peer %s preshared key: %w", id, err)
		}
		if err := c.Writer.Secret(pskPath, psk); err != nil {
			return KeyPair{}, err
		}
	}
	return kp, nil
}

// ensurePair reads or creates a private/public pair. An existing private key
// is never replaced; a missing public key is re-derived from it.
func (c Credentials) ensurePair(ctx context.Context, privPath, pubPath string) (KeyPair, error) {
	private, err := readKey(privPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		private, err = c.Keys.PrivateKey(ctx)
		if err != nil {
			return KeyPair{}, err
		}
		if err := c.Writer.Secret(privPath, private); err != nil {
			return KeyPair{}, err
		}
		slog.Debug("private key generated", "path", privPath)
	default:
		return KeyPair{}, err
	}

	public, err := readKey(pubPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		public, err = c.Keys.PublicKey(ctx, private)
		if err != nil {
			return KeyPair{}, err
		}
		if err := c.Writer.Secret(pubPath, public); err != nil {
			return KeyPair{}, err
		}
	default:
		return KeyPair{}, err
	}
	return KeyPair{Private: private, Public: public}, nil
}

func readKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("read key %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
