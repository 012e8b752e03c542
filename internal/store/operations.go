package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sovereign-research-orchestrator/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned by Get for lookups that don't exist. Callers at
// higher layers (C10, the orchestrator) treat this as a false/empty result
// rather than propagating it, per the error taxonomy.
var ErrNotFound = errors.New("triplet not found")

// ErrDuplicateID is returned by Insert when the triplet's id already exists.
var ErrDuplicateID = errors.New("duplicate triplet id")

var allowedTiers = map[Tier]bool{TierBronze: true, TierSilver: true, TierGold: true}

// Insert assigns an id if empty, sets timestamps, validates invariants, and
// persists the triplet. Fails with ErrDuplicateID if the id is already present.
func (s *Store) Insert(t *Triplet) error {
	timer := logging.StartTimer(logging.CategoryStore, "Insert")
	defer timer.Stop()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Confidence = ClampConfidence(t.Confidence)
	if t.Tier == "" {
		t.Tier = TierBronze
	}
	if err := t.Validate(); err != nil {
		return err
	}

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Provenance.ExtractedAt.IsZero() {
		t.Provenance.ExtractedAt = now
	}

	provJSON, err := marshalJSON(t.Provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}
	metaJSON, err := marshalJSON(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow("SELECT 1 FROM spo_triplets WHERE id = ?", t.ID).Scan(&exists); err == nil {
		return ErrDuplicateID
	}

	_, err = s.db.Exec(
		`INSERT INTO spo_triplets (id, subject, predicate, object, confidence, tier, created_at, updated_at, provenance_blob, metadata_blob, source_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Subject, t.Predicate, t.Object, t.Confidence, string(t.Tier),
		t.CreatedAt, t.UpdatedAt, provJSON, metaJSON, t.Provenance.SourceID,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("insert failed for %s: %v", t.ID, err)
		return err
	}
	logging.Audit().TripletInserted(t.ID, t.Provenance.SourceID)
	return nil
}

// Get returns the current triplet, or ErrNotFound.
func (s *Store) Get(id string) (*Triplet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanOne(s.db.QueryRow(
		`SELECT id, subject, predicate, object, confidence, tier, created_at, updated_at, provenance_blob, metadata_blob
		 FROM spo_triplets WHERE id = ?`, id))
}

func (s *Store) scanOne(row *sql.Row) (*Triplet, error) {
	var t Triplet
	var tier string
	var provJSON, metaJSON sql.NullString
	err := row.Scan(&t.ID, &t.Subject, &t.Predicate, &t.Object, &t.Confidence, &tier,
		&t.CreatedAt, &t.UpdatedAt, &provJSON, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Tier = Tier(tier)
	if provJSON.Valid && provJSON.String != "" {
		json.Unmarshal([]byte(provJSON.String), &t.Provenance)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		json.Unmarshal([]byte(metaJSON.String), &t.Metadata)
	}
	return &t, nil
}

// Query is the filter set accepted by Store.Query. Empty string fields are
// treated as "not supplied" (no filter on that column).
type Query struct {
	Subject       string
	Predicate     string
	Object        string
	Tier          Tier
	MinConfidence float64
	Limit         int
}

// QueryTriplets returns triplets matching all supplied exact filters, ordered
// by confidence descending then created_at descending, bounded by limit.
func (s *Store) QueryTriplets(q Query) ([]*Triplet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause := "WHERE confidence >= ?"
	args := []interface{}{q.MinConfidence}
	if q.Subject != "" {
		clause += " AND subject = ?"
		args = append(args, q.Subject)
	}
	if q.Predicate != "" {
		clause += " AND predicate = ?"
		args = append(args, q.Predicate)
	}
	if q.Object != "" {
		clause += " AND object = ?"
		args = append(args, q.Object)
	}
	if q.Tier != "" {
		clause += " AND tier = ?"
		args = append(args, string(q.Tier))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	sqlStr := fmt.Sprintf(
		`SELECT id, subject, predicate, object, confidence, tier, created_at, updated_at, provenance_blob, metadata_blob
		 FROM spo_triplets %s ORDER BY confidence DESC, created_at DESC LIMIT ?`, clause)
	args = append(args, limit)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAll(rows)
}

func (s *Store) scanAll(rows *sql.Rows) ([]*Triplet, error) {
	var out []*Triplet
	for rows.Next() {
		var t Triplet
		var tier string
		var provJSON, metaJSON sql.NullString
		if err := rows.Scan(&t.ID, &t.Subject, &t.Predicate, &t.Object, &t.Confidence, &tier,
			&t.CreatedAt, &t.UpdatedAt, &provJSON, &metaJSON); err != nil {
			return nil, err
		}
		t.Tier = Tier(tier)
		if provJSON.Valid && provJSON.String != "" {
			json.Unmarshal([]byte(provJSON.String), &t.Provenance)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			json.Unmarshal([]byte(metaJSON.String), &t.Metadata)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// QueryBySource returns all triplets whose provenance.source_id equals
// sourceID. Used by C9 to compute fact-quality for a tree node.
func (s *Store) QueryBySource(sourceID string) ([]*Triplet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, subject, predicate, object, confidence, tier, created_at, updated_at, provenance_blob, metadata_blob
		 FROM spo_triplets WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// Search performs full-text ranked retrieval over subject/predicate/object.
// Ties are broken by confidence then recency.
func (s *Store) Search(text string, limit int) ([]*Triplet, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Search")
	defer timer.Stop()

	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT t.id, t.subject, t.predicate, t.object, t.confidence, t.tier, t.created_at, t.updated_at, t.provenance_blob, t.metadata_blob
		 FROM spo_fts f
		 JOIN spo_triplets t ON t.id = f.id
		 WHERE spo_fts MATCH ?
		 ORDER BY bm25(spo_fts), t.confidence DESC, t.created_at DESC
		 LIMIT ?`, escapeFTSQuery(text), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAll(rows)
}

func escapeFTSQuery(text string) string {
	// FTS5 requires double-quoting phrases that contain reserved characters;
	// quoting the whole query keeps arbitrary user text from being interpreted
	// as FTS5 query syntax.
	return `"` + replaceAll(text, `"`, `""`) + `"`
}

func replaceAll(s, old, new string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if i+len(old) <= len(s) && s[i:i+len(old)] == old {
			out = append(out, new...)
			i += len(old) - 1
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// UpdateTier writes the new tier and bumps updated_at. No monotonicity is
// enforced here; the caller (C8 Tier Promoter) is the single writer for tier
// moves and is responsible for that invariant.
func (s *Store) UpdateTier(id string, newTier Tier) error {
	if !allowedTiers[newTier] {
		return fmt.Errorf("invalid tier: %s", newTier)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("UPDATE spo_triplets SET tier = ?, updated_at = ? WHERE id = ?",
		string(newTier), time.Now(), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProvenance sets verified = true and appends newSource to the
// verification set unless already present, incrementing the derived count.
func (s *Store) UpdateProvenance(id string, verified bool, newSource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var provJSON string
	err := s.db.QueryRow("SELECT provenance_blob FROM spo_triplets WHERE id = ?", id).Scan(&provJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var prov Provenance
	if provJSON != "" {
		json.Unmarshal([]byte(provJSON), &prov)
	}
	prov.Verified = prov.Verified || verified
	if newSource != "" && !prov.HasSource(newSource) {
		prov.VerificationSources = append(prov.VerificationSources, newSource)
		prov.DerivedCount++
	}

	newJSON, err := marshalJSON(prov)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("UPDATE spo_triplets SET provenance_blob = ?, updated_at = ? WHERE id = ?",
		newJSON, time.Now(), id)
	return err
}

// Delete removes the triplet and its FTS entry atomically (via trigger).
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM spo_triplets WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats summarizes the store: counts per tier, verified count, mean confidence.
type Stats struct {
	Bronze         int64
	Silver         int64
	Gold           int64
	Total          int64
	Verified       int64
	MeanConfidence float64
}

// ComputeStats runs the per-tier count, total count, and mean-confidence
// aggregates concurrently against the read-only snapshot, since SQLite
// serializes writers but not concurrent reads against the same connection's
// result sets when queried independently. The verified count is computed
// afterwards by a serial scan of provenance blobs.
func (s *Store) ComputeStats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	var g errgroup.Group

	g.Go(func() error {
		return s.db.QueryRow("SELECT COUNT(*) FROM spo_triplets WHERE tier = ?", string(TierBronze)).Scan(&st.Bronze)
	})
	g.Go(func() error {
		return s.db.QueryRow("SELECT COUNT(*) FROM spo_triplets WHERE tier = ?", string(TierSilver)).Scan(&st.Silver)
	})
	g.Go(func() error {
		return s.db.QueryRow("SELECT COUNT(*) FROM spo_triplets WHERE tier = ?", string(TierGold)).Scan(&st.Gold)
	})
	g.Go(func() error {
		return s.db.QueryRow("SELECT COUNT(*) FROM spo_triplets").Scan(&st.Total)
	})
	g.Go(func() error {
		var mean sql.NullFloat64
		if err := s.db.QueryRow("SELECT AVG(confidence) FROM spo_triplets").Scan(&mean); err != nil {
			return err
		}
		st.MeanConfidence = mean.Float64
		return nil
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	// Verified count requires scanning provenance blobs; done serially after
	// the concurrent aggregate queries above since it shares the connection.
	rows, err := s.db.Query("SELECT provenance_blob FROM spo_triplets")
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var blob sql.NullString
		if err := rows.Scan(&blob); err != nil {
			continue
		}
		var prov Provenance
		if blob.Valid && blob.String != "" {
			json.Unmarshal([]byte(blob.String), &prov)
			if prov.Verified {
				st.Verified++
			}
		}
	}
	return st, nil
}
