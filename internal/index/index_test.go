package index

import (
	"context"
	"errors"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"

	"wgbox/internal/provision"
)

var prefixCmp = cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })

func openTest(t *testing.T) *Index {
	t.Helper()
	x, err := Open(filepath.Join(t.TempDir(), "state", FileName))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func info(id, pub string, addrs ...string) provision.PeerInfo {
	p := provision.PeerInfo{ID: id, PublicKey: pub}
	for _, a := range addrs {
		p.Addresses = append(p.Addresses, netip.MustParsePrefix(a))
	}
	return p
}

func TestSyncAndList(t *testing.T) {
	t.Parallel()

	x := openTest(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	drift, err := x.Sync(ctx, []provision.PeerInfo{
		info("peer-b", "pub-b", "10.66.0.3/32"),
		info("peer-a", "pub-a", "10.66.0.2/32", "fd42::2/128"),
	}, now, true)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("first Sync() drift = %v", drift)
	}

	got, err := x.Peers(ctx)
	if err != nil {
		t.Fatalf("Peers() error = %v", err)
	}
	want := []Record{
		{ID: "peer-a", PublicKey: "pub-a", Addresses: info("", "", "10.66.0.2/32", "fd42::2/128").Addresses, UpdatedAt: now.UTC()},
		{ID: "peer-b", PublicKey: "pub-b", Addresses: info("", "", "10.66.0.3/32").Addresses, UpdatedAt: now.UTC()},
	}
	if diff := cmp.Diff(want, got, prefixCmp); diff != "" {
		t.Fatalf("Peers() mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncReportsDriftAndDropsRemoved(t *testing.T) {
	t.Parallel()

	x := openTest(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	if _, err := x.Sync(ctx, []provision.PeerInfo{
		info("peer-a", "pub-a", "10.66.0.2/32"),
		info("peer-b", "pub-b", "10.66.0.3/32"),
	}, now, true); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	drift, err := x.Sync(ctx, []provision.PeerInfo{
		info("peer-a", "pub-a", "10.66.0.9/32"),
		info("peer-c", "pub-c", "10.66.0.4/32"),
	}, now.Add(time.Minute), false)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	want := []Drift{{
		ID:      "peer-a",
		Indexed: info("", "", "10.66.0.2/32").Addresses,
		Current: info("", "", "10.66.0.9/32").Addresses,
	}}
	if diff := cmp.Diff(want, drift, prefixCmp); diff != "" {
		t.Fatalf("Sync() drift mismatch (-want +got):\n%s", diff)
	}

	if _, err := x.peer(ctx, "peer-b"); !errors.Is(err, errPeerNotFound) || !errdefs.IsNotFound(err) {
		t.Fatalf("Peer(peer-b) error = %v, want not found", err)
	}
	r, err := x.peer(ctx, "peer-c")
	if err != nil {
		t.Fatalf("Peer(peer-c) error = %v", err)
	}
	if r.PublicKey != "pub-c" {
		t.Fatalf("Peer(peer-c) = %+v", r)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	x, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := x.Sync(context.Background(), []provision.PeerInfo{info("peer-a", "pub-a", "10.66.0.2/32")}, time.Now(), true); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := x.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	x, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer x.Close()
	peers, err := x.Peers(context.Background())
	if err != nil || len(peers) != 1 {
		t.Fatalf("Peers() = %v, %v, want one row", peers, err)
	}
}

func TestSyncLeavesUnchangedRowsAlone(t *testing.T) {
	t.Parallel()

	x := openTest(t)
	ctx := context.Background()
	first := time.Unix(1700000000, 0)
	peers := []provision.PeerInfo{
		info("peer-a", "pub-a", "10.66.0.2/32"),
		info("peer-b", "pub-b", "10.66.0.3/32"),
	}
	if _, err := x.Sync(ctx, peers, first, true); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	later := first.Add(time.Hour)
	if _, err := x.Sync(ctx, []provision.PeerInfo{
		info("peer-a", "pub-a", "10.66.0.2/32"),
		info("peer-b", "pub-b2", "10.66.0.3/32"),
	}, later, false); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	a, err := x.peer(ctx, "peer-a")
	if err != nil {
		t.Fatalf("peer(peer-a) error = %v", err)
	}
	if !a.UpdatedAt.Equal(first) {
		t.Fatalf("unchanged peer-a updated_at = %s, want %s", a.UpdatedAt, first.UTC())
	}
	b, err := x.peer(ctx, "peer-b")
	if err != nil {
		t.Fatalf("peer(peer-b) error = %v", err)
	}
	if !b.UpdatedAt.Equal(later) || b.PublicKey != "pub-b2" {
		t.Fatalf("rekeyed peer-b = %+v, want updated at %s", b, later.UTC())
	}

	regen := later.Add(time.Hour)
	if _, err := x.Sync(ctx, []provision.PeerInfo{
		info("peer-a", "pub-a", "10.66.0.2/32"),
		info("peer-b", "pub-b2", "10.66.0.3/32"),
	}, regen, true); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	a, err = x.peer(ctx, "peer-a")
	if err != nil {
		t.Fatalf("peer(peer-a) error = %v", err)
	}
	if !a.UpdatedAt.Equal(regen) {
		t.Fatalf("regenerated peer-a updated_at = %s, want %s", a.UpdatedAt, regen.UTC())
	}
}
