package index

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nabiya/diarymem/core"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS entries (
		seq       INTEGER PRIMARY KEY,
		id        TEXT NOT NULL UNIQUE,
		content   TEXT NOT NULL,
		metadata  TEXT NOT NULL,
		embedding BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

const generationKey = "generation"

// ErrStale is returned by Commit when another writer has changed the file
// since this index was loaded or last committed.
var ErrStale = errors.New("index file changed on disk")

func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_txlock=immediate"
}

// Load reads the index stored at path. A path that does not exist yields an
// empty index; a path that exists but cannot be read as an index is a
// storage error and is never replaced by an empty index.
func Load(ctx context.Context, path string, embedder Embedder) (*Index, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Info("[INDEX] no index on disk, starting empty")
		return New(embedder)
	}
	if err != nil {
		return nil, core.E(core.ErrStorage, "index.Load", err)
	}
	if info.IsDir() {
		return nil, core.E(core.ErrStorage, "index.Load", fmt.Errorf("%s is a directory", path))
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, core.E(core.ErrStorage, "index.Load", err)
	}
	defer db.Close()

	generation, err := readGeneration(ctx, db)
	if err != nil {
		return nil, core.E(core.ErrStorage, "index.Load", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM entries ORDER BY seq`)
	if err != nil {
		return nil, core.E(core.ErrStorage, "index.Load", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id, content, rawMeta string
			blob                 []byte
		)
		if err := rows.Scan(&id, &content, &rawMeta, &blob); err != nil {
			return nil, core.E(core.ErrStorage, "index.Load", err)
		}
		meta := core.Metadata{}
		if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
			return nil, core.E(core.ErrStorage, "index.Load", fmt.Errorf("entry %s metadata: %w", id, err))
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, core.E(core.ErrStorage, "index.Load", fmt.Errorf("entry %s vector: %w", id, err))
		}
		entries = append(entries, Entry{
			Vector:   vec,
			Document: core.Document{ID: id, Content: content, Metadata: meta},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, core.E(core.ErrStorage, "index.Load", err)
	}

	ix, err := FromEntries(ctx, embedder, entries)
	if err != nil {
		return nil, core.E(core.ErrStorage, "index.Load", err)
	}
	ix.generation = generation
	ix.persisted = len(entries)

	log.WithFields(log.Fields{
		"path":       path,
		"entries":    len(entries),
		"generation": generation,
	}).Info("[INDEX] loaded index")
	return ix, nil
}

// Persist writes the full index to path in one transaction, replacing any
// previous contents. On failure the file keeps its previous state.
func (ix *Index) Persist(ctx context.Context, path string) error {
	db, err := openForWrite(ctx, path)
	if err != nil {
		return core.E(core.ErrStorage, "index.Persist", err)
	}
	defer db.Close()

	next := ix.generation + 1
	if err := ix.writeAll(ctx, db, next); err != nil {
		return core.E(core.ErrStorage, "index.Persist", err)
	}
	ix.generation = next
	ix.persisted = len(ix.entries)

	log.WithFields(log.Fields{
		"path":       path,
		"entries":    len(ix.entries),
		"generation": next,
	}).Debug("[INDEX] persisted index")
	return nil
}

// Commit appends the entries added since the last Load, Persist or Commit
// to path and bumps the generation, in one transaction. It fails with
// ErrStale, leaving the file untouched, when the generation on disk is not
// the one this index holds; the caller reloads and retries.
func (ix *Index) Commit(ctx context.Context, path string) error {
	db, err := openForWrite(ctx, path)
	if err != nil {
		return core.E(core.ErrStorage, "index.Commit", err)
	}
	defer db.Close()

	next := ix.generation + 1
	if err := ix.appendNew(ctx, db, next); err != nil {
		return core.E(core.ErrStorage, "index.Commit", err)
	}

	log.WithFields(log.Fields{
		"path":       path,
		"appended":   len(ix.entries) - ix.persisted,
		"generation": next,
	}).Debug("[INDEX] committed index")
	ix.generation = next
	ix.persisted = len(ix.entries)
	return nil
}

func openForWrite(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (ix *Index) appendNew(ctx context.Context, db *sql.DB, generation int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	onDisk, err := readGeneration(ctx, tx)
	if err != nil {
		return err
	}
	if onDisk != ix.generation {
		return fmt.Errorf("%w: generation %d on disk, %d in memory", ErrStale, onDisk, ix.generation)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (id, content, metadata, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range ix.entries[ix.persisted:] {
		rawMeta, blob, err := encodeEntry(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, e.Document.ID, e.Document.Content, rawMeta, blob); err != nil {
			return err
		}
	}

	if err := writeGeneration(ctx, tx, generation); err != nil {
		return err
	}
	return tx.Commit()
}

func (ix *Index) writeAll(ctx context.Context, db *sql.DB, generation int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (seq, id, content, metadata, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for seq, e := range ix.entries {
		rawMeta, blob, err := encodeEntry(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, seq, e.Document.ID, e.Document.Content, rawMeta, blob); err != nil {
			return err
		}
	}

	if err := writeGeneration(ctx, tx, generation); err != nil {
		return err
	}
	return tx.Commit()
}

func encodeEntry(e Entry) (string, []byte, error) {
	meta := e.Document.Metadata
	if meta == nil {
		meta = core.Metadata{}
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return "", nil, fmt.Errorf("entry %s metadata: %w", e.Document.ID, err)
	}
	blob, err := encodeVector(e.Vector)
	if err != nil {
		return "", nil, fmt.Errorf("entry %s vector: %w", e.Document.ID, err)
	}
	return string(rawMeta), blob, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func writeGeneration(ctx context.Context, tx *sql.Tx, generation int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		generationKey, strconv.FormatInt(generation, 10))
	return err
}

// ReadGeneration returns the generation persisted at path without loading
// the entries. A missing file has generation zero.
func ReadGeneration(ctx context.Context, path string) (int64, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return 0, core.E(core.ErrStorage, "index.ReadGeneration", err)
	}
	defer db.Close()

	gen, err := readGeneration(ctx, db)
	if err != nil {
		return 0, core.E(core.ErrStorage, "index.ReadGeneration", err)
	}
	return gen, nil
}

func readGeneration(ctx context.Context, db queryer) (int64, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, generationKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func encodeVector(vec []float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, vec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, vec); err != nil {
		return nil, err
	}
	return vec, nil
}
