// Package store is PRISM's Skill Store: authoritative persistence and
// retrieval of Skills (spec.md §4.1). On-disk Markdown is the source of
// truth; the SQLite index is a derived, rebuildable cache.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/antigravity-dev/prism/internal/embedding"
	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/skill"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// typeDirs lists every subdirectory under the memory root that may hold a
// Skill document, per spec.md §6's on-disk layout.
var typeDirs = []string{"skills", "gotchas", "decisions"}

// Store is PRISM's Skill Store handle: the on-disk memory root plus its
// SQLite-backed lexical/vector index.
type Store struct {
	root string
	db   *sql.DB

	mu              sync.RWMutex
	embeddingEngine embedding.EmbeddingEngine
}

// Open initializes a Store rooted at root (typically ~/.prism/memory),
// creating the on-disk directory layout and the index database if absent.
func Open(root string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	for _, d := range append(typeDirs, "episodes") {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "create memory directory %s", d)
		}
	}

	dbPath := filepath.Join(root, "index.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "open index database")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "enable WAL mode")
	}

	s := &Store{root: root, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Skill Store opened at %s", root)
	return s, nil
}

// Close releases the index database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS skills (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			skill_id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			key_insight TEXT NOT NULL DEFAULT '',
			domain_tags TEXT NOT NULL DEFAULT '',
			stack_context TEXT NOT NULL DEFAULT '',
			scope TEXT NOT NULL DEFAULT '',
			created TEXT NOT NULL DEFAULT '',
			last_used TEXT NOT NULL DEFAULT '',
			reuse_count INTEGER NOT NULL DEFAULT 0,
			project_origin TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			verified_by TEXT NOT NULL DEFAULT '',
			embedding BLOB
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS skills_fts USING fts5(
			skill_id UNINDEXED, title, key_insight, body, domain_tags,
			content='', tokenize='unicode61 remove_diacritics 2'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_skills_status ON skills(status)`,
		`CREATE INDEX IF NOT EXISTS idx_skills_type ON skills(type)`,
		`CREATE TABLE IF NOT EXISTS store_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return prismerr.Wrap(prismerr.KindInvariantViolation, err, "migrate index schema")
		}
	}
	return nil
}

// docPath returns the on-disk path for a skill of the given type.
func (s *Store) docPath(t skill.Type, skillID string) string {
	return filepath.Join(s.root, t.Directory(), skillID+".md")
}

// locate scans every type directory for skillID's document, returning its
// path and parsed Skill if found. Scanning disk directly (rather than
// trusting the index) is what lets Put detect a type collision even when
// the index is stale or has never been built.
func (s *Store) locate(skillID string) (path string, sk *skill.Skill, found bool) {
	for _, dir := range typeDirs {
		candidate := filepath.Join(s.root, dir, skillID+".md")
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		parsed, err := skill.Parse(data)
		if err != nil {
			continue
		}
		return candidate, parsed, true
	}
	return "", nil, false
}

// writeDoc writes data to path via the write-temp-then-rename discipline
// from spec.md §4.1/§5: a reader never observes a partial file.
func writeDoc(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "create skill directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "write temp skill file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "rename temp skill file into place")
	}
	return nil
}

// Put creates or updates a Skill by skill_id (spec.md §4.1). The document is
// written durably before the index is updated, so the index write is never
// observable ahead of the disk write.
func (s *Store) Put(ctx context.Context, sk *skill.Skill) error {
	timer := logging.StartTimer(logging.CategoryStore, "Put")
	defer timer.Stop()

	if err := sk.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existing, found := s.locate(sk.Header.SkillID); found && existing.Header.Type != sk.Header.Type {
		return prismerr.Conflict("skill_id %q already stored with type %q, cannot store as %q",
			sk.Header.SkillID, existing.Header.Type, sk.Header.Type)
	}

	data, err := skill.Marshal(sk)
	if err != nil {
		return err
	}

	path := s.docPath(sk.Header.Type, sk.Header.SkillID)
	if err := writeDoc(path, data); err != nil {
		return err
	}

	if err := s.indexSkill(ctx, sk); err != nil {
		logging.Get(logging.CategoryStore).Warn("Put: index update failed for %s: %v", sk.Header.SkillID, err)
		return prismerr.Wrap(prismerr.KindInvariantViolation, err, "update index for %s", sk.Header.SkillID)
	}

	logging.StoreDebug("Put: stored %s (type=%s)", sk.Header.SkillID, sk.Header.Type)
	return nil
}

// indexSkill replaces skillID's row in both the skills table and the FTS5
// index inside one transaction, then refreshes its embedding if an engine is
// configured. Caller must hold s.mu.
func (s *Store) indexSkill(ctx context.Context, sk *skill.Skill) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM skills WHERE skill_id = ?`, sk.Header.SkillID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM skills_fts WHERE skill_id = ?`, sk.Header.SkillID); err != nil {
		return err
	}

	h := sk.Header
	res, err := tx.ExecContext(ctx,
		`INSERT INTO skills(skill_id, type, title, key_insight, domain_tags, stack_context,
			scope, created, last_used, reuse_count, project_origin, status, verified_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.SkillID, string(h.Type), h.Title, h.KeyInsight, joinTags(h.DomainTags), joinTags(h.StackContext),
		string(h.Scope), h.Created, h.LastUsed, h.ReuseCount, h.ProjectOrigin, string(h.Status), string(h.VerifiedBy),
	)
	if err != nil {
		return err
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO skills_fts(rowid, skill_id, title, key_insight, body, domain_tags) VALUES (?, ?, ?, ?, ?, ?)`,
		rowID, h.SkillID, h.Title, h.KeyInsight, sk.Body, joinTags(h.DomainTags),
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	// Caller (Put/RebuildIndex) already holds s.mu, so this uses the
	// lock-free variant rather than embedAndStore's self-locking one.
	if s.embeddingEngine != nil {
		if err := s.embedAndStoreLocked(ctx, sk.Header.SkillID, renderForEmbedding(sk)); err != nil {
			logging.Get(logging.CategoryStore).Warn("indexSkill: embedding failed for %s: %v", sk.Header.SkillID, err)
		}
	}
	return nil
}

func renderForEmbedding(sk *skill.Skill) string {
	return sk.Header.Title + "\n" + sk.Header.KeyInsight + "\n" + sk.Body
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

// Get returns the current document for skill_id, or NotFound.
func (s *Store) Get(skillID string) (*skill.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, sk, found := s.locate(skillID)
	if !found {
		return nil, prismerr.NotFound("skill %q not found", skillID)
	}
	return sk, nil
}

// Filter selects which Skills List returns.
type Filter struct {
	// Status restricts by lifecycle state; "all" (or empty) disables the filter.
	Status string
	// Type restricts by skill.Type; empty disables the filter.
	Type skill.Type
	// Tag restricts to Skills whose domain_tags contains this value; empty disables the filter.
	Tag string
}

// List returns Skills matching filter, ordered by skill_id for determinism.
func (s *Store) List(filter Filter) ([]*skill.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT skill_id FROM skills WHERE 1=1`
	var args []interface{}
	if filter.Status != "" && filter.Status != "all" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Tag != "" {
		query += ` AND (' ' || domain_tags || ' ') LIKE ?`
		args = append(args, "% "+filter.Tag+" %")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "list skills")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(ids)

	result := make([]*skill.Skill, 0, len(ids))
	for _, id := range ids {
		_, sk, found := s.locate(id)
		if !found {
			logging.Get(logging.CategoryStore).Warn("List: index references %s but no document found on disk", id)
			continue
		}
		result = append(result, sk)
	}
	return result, nil
}

// IncrementReuse bumps reuse_count and sets last_used to today. Callers
// invoke this only when a Skill is actually emitted into an artifact
// (spec.md §4.1), never on mere retrieval.
func (s *Store) IncrementReuse(skillID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, sk, found := s.locate(skillID)
	if !found {
		return prismerr.NotFound("skill %q not found", skillID)
	}

	sk.Header.ReuseCount++
	sk.Header.LastUsed = time.Now().UTC().Format(dateLayout)

	data, err := skill.Marshal(sk)
	if err != nil {
		return err
	}
	if err := writeDoc(path, data); err != nil {
		return err
	}

	_, err = s.db.Exec(`UPDATE skills SET reuse_count = ?, last_used = ? WHERE skill_id = ?`,
		sk.Header.ReuseCount, sk.Header.LastUsed, skillID)
	if err != nil {
		return prismerr.Wrap(prismerr.KindInvariantViolation, err, "update reuse_count index for %s", skillID)
	}
	return nil
}

// RebuildIndex discards and recreates the index from the on-disk corpus. It
// holds the Store's write lock for the whole rebuild, so reads as well as
// writes wait until it finishes.
func (s *Store) RebuildIndex(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryStore, "RebuildIndex")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM skills`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM skills_fts`); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	var documents []*skill.Skill
	for _, dir := range typeDirs {
		entries, err := os.ReadDir(filepath.Join(s.root, dir))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return prismerr.Wrap(prismerr.KindInvalidInput, err, "read memory directory %s", dir)
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(s.root, dir, entry.Name()))
			if err != nil {
				logging.Get(logging.CategoryStore).Warn("RebuildIndex: cannot read %s: %v", entry.Name(), err)
				continue
			}
			sk, err := skill.Parse(data)
			if err != nil {
				logging.Get(logging.CategoryStore).Warn("RebuildIndex: cannot parse %s: %v", entry.Name(), err)
				continue
			}
			documents = append(documents, sk)
		}
	}

	for _, sk := range documents {
		if err := s.indexSkill(ctx, sk); err != nil {
			return prismerr.Wrap(prismerr.KindInvariantViolation, err, "reindex %s", sk.Header.SkillID)
		}
	}

	logging.Store("RebuildIndex: reindexed %d skills", len(documents))
	return nil
}
