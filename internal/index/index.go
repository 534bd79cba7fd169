// Package index keeps a SQLite read-model of provisioned peers under the state
// directory. The peers directory stays the source of truth; the index exists
// to report peers quickly and to notice client.conf addresses changing behind
// the digest gate's back.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	_ "modernc.org/sqlite"

	"wgbox/internal/provision"
)

const FileName = "index.db"

var errPeerNotFound = fmt.Errorf("peer not indexed: %w", errdefs.ErrNotFound)

type Record struct {
	ID        string
	PublicKey string
	Addresses []netip.Prefix
	UpdatedAt time.Time
}

// Drift is a peer whose on-disk addresses differ from what was indexed.
type Drift struct {
	ID      string
	Indexed []netip.Prefix
	Current []netip.Prefix
}

type Index struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS peers (
	id         TEXT PRIMARY KEY,
	public_key TEXT NOT NULL,
	addresses  TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	for _, stmt := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init index: %w", err)
		}
	}
	return &Index{db: db}, nil
}

func (x *Index) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}

func formatAddrs(addrs []netip.Prefix) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}

func parseAddrs(s string) []netip.Prefix {
	if s == "" {
		return nil
	}
	var out []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		if p, err := netip.ParsePrefix(part); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Sync replaces the index contents with peers and reports every peer that
// was already indexed with a different address set. A row keeps its
// updated_at unless its key or addresses changed or regenerated is set, so a
// no-op prepare leaves the index untouched.
func (x *Index) Sync(ctx context.Context, peers []provision.PeerInfo, now time.Time, regenerated bool) (drift []Drift, err error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin index sync: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	type row struct{ pub, addrs string }
	indexed := map[string]row{}
	rows, err := tx.QueryContext(ctx, `SELECT id, public_key, addresses FROM peers`)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	for rows.Next() {
		var id string
		var r row
		if err := rows.Scan(&id, &r.pub, &r.addrs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		indexed[id] = r
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("read index: %w", err)
	}
	rows.Close()

	keep := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		keep[p.ID] = struct{}{}
		current := formatAddrs(p.Addresses)
		prev, ok := indexed[p.ID]
		if ok && prev.addrs != current {
			drift = append(drift, Drift{ID: p.ID, Indexed: parseAddrs(prev.addrs), Current: p.Addresses})
		}
		if ok && !regenerated && prev.addrs == current && prev.pub == p.PublicKey {
			continue
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO peers (id, public_key, addresses, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET public_key = excluded.public_key, addresses = excluded.addresses, updated_at = excluded.updated_at`,
			p.ID, p.PublicKey, current, now.Unix())
		if err != nil {
			return nil, fmt.Errorf("index peer %s: %w", p.ID, err)
		}
	}
	for id := range indexed {
		if _, ok := keep[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM peers WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("drop peer %s from index: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit index sync: %w", err)
	}
	slices.SortFunc(drift, func(a, b Drift) int { return strings.Compare(a.ID, b.ID) })
	return drift, nil
}

func scanRecord(scan func(...any) error) (Record, error) {
	var (
		r       Record
		addrs   string
		updated int64
	)
	if err := scan(&r.ID, &r.PublicKey, &addrs, &updated); err != nil {
		return Record{}, err
	}
	r.Addresses = parseAddrs(addrs)
	r.UpdatedAt = time.Unix(updated, 0).UTC()
	return r, nil
}

// Peers lists indexed peers ordered by id.
func (x *Index) Peers(ctx context.Context) ([]Record, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT id, public_key, addresses, updated_at FROM peers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (x *Index) peer(ctx context.Context, id string) (Record, error) {
	row := x.db.QueryRowContext(ctx, `SELECT id, public_key, addresses, updated_at FROM peers WHERE id = ?`, id)
	r, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s: %w", id, errPeerNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("read peer %s: %w", id, err)
	}
	return r, nil
}
