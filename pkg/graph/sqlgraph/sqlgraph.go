// Package sqlgraph implements graph.Driver over database/sql. The sqlite and
// postgres packages open a connection with their driver and hand it here.
package sqlgraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Dialect captures the placeholder syntax differences between backends.
type Dialect int

const (
	// SQLite uses ? placeholders.
	SQLite Dialect = iota

	// Postgres uses $n placeholders.
	Postgres
)

// Driver implements graph.Driver on a *sql.DB.
type Driver struct {
	DB      *sql.DB
	Dialect Dialect
	log     *slog.Logger
}

// New runs the schema migration and returns a driver that owns db.
func New(ctx context.Context, db *sql.DB, dialect Dialect, log *slog.Logger) (*Driver, error) {
	d := &Driver{DB: db, Dialect: dialect, log: logger.OrNop(log)}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create graph schema: %w", err)
		}
	}
	return d, nil
}

// rebind rewrites ? placeholders for the dialect. None of our statements
// carry a literal question mark.
func (d *Driver) rebind(q string) string {
	if d.Dialect != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Write applies the batch in one transaction.
func (d *Driver) Write(ctx context.Context, b *graph.Batch) error {
	if err := graph.ValidateBatch(b); err != nil {
		return err
	}

	node := b.Memory.Clone()
	node.Embedding = nil
	payload, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("%w: encoding memory: %w", memory.ErrInvalidInput, err)
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return memory.AdapterError("graph write", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, d.rebind(insertBatch), b.Token, time.Now().UnixNano())
	if err != nil {
		return memory.AdapterError("graph write", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		d.log.Debug("graph batch already applied", "token", b.Token, "memory_id", node.ID)
		return nil
	}

	if _, err := tx.ExecContext(ctx, d.rebind(upsertMemory), b.OwnerID, node.ID, node.CreatedAt.UnixNano(), string(payload)); err != nil {
		return memory.AdapterError("graph write memory", err)
	}

	for _, e := range b.Entities {
		if _, err := tx.ExecContext(ctx, d.rebind(upsertEntity),
			b.OwnerID, e.ID, e.Name, memory.NormalizeName(e.Name), string(e.Type), e.FirstSeenAt.UnixNano(), e.MentionCount,
		); err != nil {
			return memory.AdapterError("graph write entity", err)
		}
	}

	for _, e := range b.Edges {
		if _, err := tx.ExecContext(ctx, d.rebind(upsertEdge),
			b.OwnerID, string(e.Type), e.From, e.To, e.Weight, e.LastSeenAt.UnixNano(),
		); err != nil {
			return memory.AdapterError("graph write edge", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return memory.AdapterError("graph write commit", err)
	}
	return nil
}

// Traverse walks edges one hop at a time with an IN query per frontier.
func (d *Driver) Traverse(ctx context.Context, req graph.TraverseRequest) ([]graph.Reach, error) {
	return graph.Walk(ctx, req, func(ctx context.Context, frontier []graph.Node) ([]graph.Link, error) {
		ids := make([]any, 0, len(frontier))
		for _, n := range frontier {
			ids = append(ids, n.ID)
		}
		in := placeholders(len(ids))

		q := `SELECT type, from_id, to_id, weight FROM graph_edges
			WHERE owner_id = ? AND (from_id IN (` + in + `) OR to_id IN (` + in + `))`
		args := make([]any, 0, 1+2*len(ids))
		args = append(args, req.OwnerID)
		args = append(args, ids...)
		args = append(args, ids...)

		rows, err := d.DB.QueryContext(ctx, d.rebind(q), args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		inFrontier := make(map[string]struct{}, len(frontier))
		for _, n := range frontier {
			inFrontier[n.ID] = struct{}{}
		}

		var links []graph.Link
		for rows.Next() {
			var (
				typ, from, to string
				weight        float64
			)
			if err := rows.Scan(&typ, &from, &to, &weight); err != nil {
				return nil, err
			}
			et := memory.EdgeType(typ)
			if !req.Allows(et) {
				continue
			}
			if et == memory.EdgeCoOccurs && weight < req.MinWeight {
				continue
			}
			// mentions edges run memory -> entity, so only the reverse
			// direction lands on a memory.
			if _, ok := inFrontier[from]; ok {
				links = append(links, graph.Link{From: from, To: graph.Node{ID: to, Kind: graph.KindEntity}})
			}
			if _, ok := inFrontier[to]; ok {
				kind := graph.KindEntity
				if et == memory.EdgeMentions {
					kind = graph.KindMemory
				}
				links = append(links, graph.Link{From: to, To: graph.Node{ID: from, Kind: kind}})
			}
		}
		return links, rows.Err()
	})
}

// FindEntities narrows candidates with LIKE and confirms whole-word matches
// in Go.
func (d *Driver) FindEntities(ctx context.Context, ownerID string, names []string) ([]memory.Entity, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}

	var (
		conds []string
		args  = []any{ownerID}
	)
	for _, n := range names {
		norm := memory.NormalizeName(n)
		if norm == "" {
			continue
		}
		conds = append(conds, "norm_name LIKE ?")
		args = append(args, "%"+norm+"%")
	}
	if len(conds) == 0 {
		return nil, nil
	}

	q := `SELECT id, name, type, first_seen_at, mention_count FROM graph_entities
		WHERE owner_id = ? AND (` + strings.Join(conds, " OR ") + `) ORDER BY id`
	rows, err := d.DB.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, memory.AdapterError("graph find entities", err)
	}
	defer rows.Close()

	var out []memory.Entity
	for rows.Next() {
		e, err := scanEntity(rows, ownerID)
		if err != nil {
			return nil, memory.AdapterError("graph find entities", err)
		}
		if graph.MatchesAny(e.Name, names) {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, memory.AdapterError("graph find entities", err)
	}
	return out, nil
}

// GetMemories loads memory nodes by ID in the order requested.
func (d *Driver) GetMemories(ctx context.Context, ownerID string, ids []string) ([]*memory.Memory, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, 1+len(ids))
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}

	q := `SELECT payload FROM graph_memories WHERE owner_id = ? AND id IN (` + placeholders(len(ids)) + `)`
	found, err := d.queryMemories(ctx, "graph get memories", q, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*memory.Memory, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	out := make([]*memory.Memory, 0, len(found))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
			delete(byID, id)
		}
	}
	return out, nil
}

// Related self-joins mentions edges on the shared entity.
func (d *Driver) Related(ctx context.Context, ownerID, memoryID string, limit int) ([]graph.Related, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}

	var exists int
	err := d.DB.QueryRowContext(ctx, d.rebind(`SELECT COUNT(*) FROM graph_memories WHERE owner_id = ? AND id = ?`), ownerID, memoryID).Scan(&exists)
	if err != nil {
		return nil, memory.AdapterError("graph related", err)
	}
	if exists == 0 {
		return nil, memory.ErrNotFound
	}

	q := `SELECT b.from_id, COUNT(*) FROM graph_edges a
		JOIN graph_edges b ON b.owner_id = a.owner_id AND b.to_id = a.to_id AND b.type = 'mentions'
		WHERE a.owner_id = ? AND a.type = 'mentions' AND a.from_id = ? AND b.from_id <> ?
		GROUP BY b.from_id`
	rows, err := d.DB.QueryContext(ctx, d.rebind(q), ownerID, memoryID, memoryID)
	if err != nil {
		return nil, memory.AdapterError("graph related", err)
	}
	defer rows.Close()

	var out []graph.Related
	for rows.Next() {
		var r graph.Related
		if err := rows.Scan(&r.MemoryID, &r.Shared); err != nil {
			return nil, memory.AdapterError("graph related", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.AdapterError("graph related", err)
	}

	graph.SortRelated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TopEntities counts mentions within the window.
func (d *Driver) TopEntities(ctx context.Context, ownerID string, since time.Time, limit int) ([]graph.EntityCount, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}

	q := `SELECT e.id, e.name, e.type, e.first_seen_at, e.mention_count, COUNT(*)
		FROM graph_edges ed
		JOIN graph_memories m ON m.owner_id = ed.owner_id AND m.id = ed.from_id
		JOIN graph_entities e ON e.owner_id = ed.owner_id AND e.id = ed.to_id
		WHERE ed.owner_id = ? AND ed.type = 'mentions' AND m.created_at >= ?
		GROUP BY e.id, e.name, e.type, e.first_seen_at, e.mention_count`
	rows, err := d.DB.QueryContext(ctx, d.rebind(q), ownerID, since.UnixNano())
	if err != nil {
		return nil, memory.AdapterError("graph top entities", err)
	}
	defer rows.Close()

	var out []graph.EntityCount
	for rows.Next() {
		var (
			ec        graph.EntityCount
			typ       string
			firstSeen int64
		)
		if err := rows.Scan(&ec.Entity.ID, &ec.Entity.Name, &typ, &firstSeen, &ec.Entity.MentionCount, &ec.Mentions); err != nil {
			return nil, memory.AdapterError("graph top entities", err)
		}
		ec.Entity.OwnerID = ownerID
		ec.Entity.Type = memory.EntityType(typ)
		ec.Entity.FirstSeenAt = time.Unix(0, firstSeen).UTC()
		out = append(out, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.AdapterError("graph top entities", err)
	}

	graph.SortEntityCounts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentMemories lists memories newest first.
func (d *Driver) RecentMemories(ctx context.Context, ownerID string, since time.Time, limit int) ([]*memory.Memory, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}

	q := `SELECT payload FROM graph_memories WHERE owner_id = ? AND created_at >= ? ORDER BY created_at DESC, id ASC`
	args := []any{ownerID, since.UnixNano()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return d.queryMemories(ctx, "graph recent memories", q, args...)
}

// DeleteMemory removes the node and its mentions edges together.
func (d *Driver) DeleteMemory(ctx context.Context, ownerID, memoryID string) error {
	if ownerID == "" {
		return graph.ErrOwnerRequired
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return memory.AdapterError("graph delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM graph_edges WHERE owner_id = ? AND type = 'mentions' AND from_id = ?`), ownerID, memoryID); err != nil {
		return memory.AdapterError("graph delete", err)
	}
	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM graph_memories WHERE owner_id = ? AND id = ?`), ownerID, memoryID); err != nil {
		return memory.AdapterError("graph delete", err)
	}
	if err := tx.Commit(); err != nil {
		return memory.AdapterError("graph delete", err)
	}
	return nil
}

// Decay scales stale co-occurs edges.
func (d *Driver) Decay(ctx context.Context, factor float64, cutoff time.Time) (int64, error) {
	res, err := d.DB.ExecContext(ctx,
		d.rebind(`UPDATE graph_edges SET weight = weight * ? WHERE type = 'co-occurs' AND last_seen_at < ?`),
		factor, cutoff.UnixNano(),
	)
	if err != nil {
		return 0, memory.AdapterError("graph decay", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, memory.AdapterError("graph decay", err)
	}
	return n, nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

func (d *Driver) queryMemories(ctx context.Context, op, q string, args ...any) ([]*memory.Memory, error) {
	rows, err := d.DB.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, memory.AdapterError(op, err)
	}
	defer rows.Close()

	var out []*memory.Memory
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, memory.AdapterError(op, err)
		}
		m := &memory.Memory{}
		if err := json.Unmarshal([]byte(payload), m); err != nil {
			return nil, memory.AdapterError(op, fmt.Errorf("decoding memory payload: %w", err))
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.AdapterError(op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(s scanner, ownerID string) (memory.Entity, error) {
	var (
		e         memory.Entity
		typ       string
		firstSeen int64
	)
	if err := s.Scan(&e.ID, &e.Name, &typ, &firstSeen, &e.MentionCount); err != nil {
		return memory.Entity{}, err
	}
	e.OwnerID = ownerID
	e.Type = memory.EntityType(typ)
	e.FirstSeenAt = time.Unix(0, firstSeen).UTC()
	return e, nil
}
