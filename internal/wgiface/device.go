package wgiface

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Device configures the WireGuard side of a link. *wgctrl.Client satisfies it.
type Device interface {
	ConfigureDevice(name string, cfg wgtypes.Config) error
}

// Inspector reads back live device state. *wgctrl.Client satisfies it.
type Inspector interface {
	Device(name string) (*wgtypes.Device, error)
}

func readKey(path string) (wgtypes.Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("read key: %w", err)
	}
	k, err := wgtypes.ParseKey(strings.TrimSpace(string(data)))
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("parse key %s: %w", path, err)
	}
	return k, nil
}

func allowedIPs(prefixes []netip.Prefix) []net.IPNet {
	out := make([]net.IPNet, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, net.IPNet{
			IP:   p.Addr().AsSlice(),
			Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
		})
	}
	return out
}
