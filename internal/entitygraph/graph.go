// Package entitygraph maintains the entity adjacency graph derived from
// extracted facts: which entities have been linked to which others, used to
// compute neighbor-coverage (C12) and to assemble ego-subgraph context for
// tree expansion (C15).
package entitygraph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"sovereign-research-orchestrator/internal/logging"
)

// Link is a directed, weighted edge between two entity names.
type Link struct {
	EntityA  string
	Relation string
	EntityB  string
	Weight   float64
	Metadata map[string]interface{}
}

// Graph is a single-writer SQLite-backed entity adjacency store, sharing the
// connection discipline of the fact store but scoped to its own table.
type Graph struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open attaches the entity graph schema to an already-open database
// connection (typically the same *sql.DB as the fact store, so both share
// the single-writer WAL discipline).
func Open(db *sql.DB) (*Graph, error) {
	g := &Graph{db: db}
	if err := g.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize entity graph schema: %w", err)
	}
	return g, nil
}

func (g *Graph) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entity_links (
		entity_a TEXT NOT NULL,
		relation TEXT NOT NULL,
		entity_b TEXT NOT NULL,
		weight REAL NOT NULL,
		metadata_blob TEXT,
		PRIMARY KEY (entity_a, relation, entity_b)
	);
	CREATE INDEX IF NOT EXISTS idx_entity_links_a ON entity_links(entity_a);
	CREATE INDEX IF NOT EXISTS idx_entity_links_b ON entity_links(entity_b);
	`
	_, err := g.db.Exec(schema)
	return err
}

// StoreLink records an edge, replacing any existing edge with the same
// (entityA, relation, entityB) key.
func (g *Graph) StoreLink(entityA, relation, entityB string, weight float64, metadata map[string]interface{}) error {
	timer := logging.StartTimer(logging.CategoryEntityGraph, "StoreLink")
	defer timer.Stop()

	if entityA == "" || relation == "" || entityB == "" {
		return fmt.Errorf("invalid entity link: entityA/relation/entityB must be non-empty")
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("invalid entity link weight: %v", weight)
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal entity link metadata: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	_, err = g.db.Exec(
		`INSERT OR REPLACE INTO entity_links (entity_a, relation, entity_b, weight, metadata_blob)
		 VALUES (?, ?, ?, ?, ?)`,
		entityA, relation, entityB, weight, string(metaJSON),
	)
	if err != nil {
		logging.Get(logging.CategoryEntityGraph).Error("failed to store link %s-%s->%s: %v", entityA, relation, entityB, err)
		return err
	}
	return nil
}

// direction selects which side of the edge must match the queried entity.
type direction string

const (
	DirectionOutgoing direction = "outgoing"
	DirectionIncoming direction = "incoming"
	DirectionBoth     direction = "both"
)

func (g *Graph) queryLinksLocked(entity string, dir direction) ([]Link, error) {
	var query string
	switch dir {
	case DirectionOutgoing:
		query = "SELECT entity_a, relation, entity_b, weight, metadata_blob FROM entity_links WHERE entity_a = ?"
	case DirectionIncoming:
		query = "SELECT entity_a, relation, entity_b, weight, metadata_blob FROM entity_links WHERE entity_b = ?"
	default:
		query = "SELECT entity_a, relation, entity_b, weight, metadata_blob FROM entity_links WHERE entity_a = ? OR entity_b = ?"
	}

	var args []interface{}
	if dir == DirectionBoth {
		args = []interface{}{entity, entity}
	} else {
		args = []interface{}{entity}
	}

	rows, err := g.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var link Link
		var metaJSON sql.NullString
		if err := rows.Scan(&link.EntityA, &link.Relation, &link.EntityB, &link.Weight, &metaJSON); err != nil {
			logging.Get(logging.CategoryEntityGraph).Warn("link row scan failed: %v", err)
			continue
		}
		if metaJSON.Valid && metaJSON.String != "" {
			json.Unmarshal([]byte(metaJSON.String), &link.Metadata)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// QueryLinks retrieves edges touching entity in the given direction.
func (g *Graph) QueryLinks(entity string, dir direction) ([]Link, error) {
	timer := logging.StartTimer(logging.CategoryEntityGraph, "QueryLinks")
	defer timer.Stop()

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.queryLinksLocked(entity, dir)
}

// Neighbors returns the distinct set of entity names directly linked to
// entity (either direction), used by the coverage analyzer's
// neighbor-coverage metric.
func (g *Graph) Neighbors(entity string) ([]string, error) {
	links, err := g.QueryLinks(entity, DirectionBoth)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, l := range links {
		other := l.EntityB
		if l.EntityB == entity {
			other = l.EntityA
		}
		if other != entity && !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out, nil
}

// TraversePath finds a path from -> to via breadth-first search over
// outgoing edges, bounded by maxDepth hops.
func (g *Graph) TraversePath(from, to string, maxDepth int) ([]Link, error) {
	timer := logging.StartTimer(logging.CategoryEntityGraph, "TraversePath")
	defer timer.Stop()

	g.mu.RLock()
	defer g.mu.RUnlock()

	if maxDepth <= 0 {
		maxDepth = 5
	}

	type queueItem struct {
		entity string
		depth  int
	}

	cameFrom := make(map[string]*Link)
	queue := []queueItem{{entity: from, depth: 0}}
	cameFrom[from] = nil

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.entity == to {
			path := make([]Link, current.depth)
			curr := to
			for i := current.depth - 1; i >= 0; i-- {
				link := cameFrom[curr]
				if link == nil {
					break
				}
				path[i] = *link
				curr = link.EntityA
			}
			return path, nil
		}

		if current.depth >= maxDepth {
			continue
		}

		links, err := g.queryLinksLocked(current.entity, DirectionOutgoing)
		if err != nil {
			continue
		}
		for _, link := range links {
			if _, visited := cameFrom[link.EntityB]; !visited {
				l := link
				cameFrom[link.EntityB] = &l
				queue = append(queue, queueItem{entity: link.EntityB, depth: current.depth + 1})
			}
		}
	}

	return nil, fmt.Errorf("no path found from %s to %s", from, to)
}

// EgoSubgraph returns all links within radius hops of center, for assembling
// neighborhood context when expanding a tree node (C15).
func (g *Graph) EgoSubgraph(center string, radius int) ([]Link, error) {
	if radius <= 0 {
		radius = 1
	}
	visited := map[string]bool{center: true}
	frontier := []string{center}
	var all []Link
	seenEdge := make(map[string]bool)

	for hop := 0; hop < radius; hop++ {
		var next []string
		for _, entity := range frontier {
			links, err := g.QueryLinks(entity, DirectionBoth)
			if err != nil {
				continue
			}
			for _, l := range links {
				key := l.EntityA + "|" + l.Relation + "|" + l.EntityB
				if !seenEdge[key] {
					seenEdge[key] = true
					all = append(all, l)
				}
				for _, cand := range []string{l.EntityA, l.EntityB} {
					if !visited[cand] {
						visited[cand] = true
						next = append(next, cand)
					}
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return all, nil
}

// EntityCount returns the number of distinct entities seen across all links.
func (g *Graph) EntityCount() (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rows, err := g.db.Query("SELECT entity_a FROM entity_links UNION SELECT entity_b FROM entity_links")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err == nil {
			count++
		}
	}
	return count, rows.Err()
}
