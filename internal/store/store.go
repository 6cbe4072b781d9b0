// Package store persists all pipeline entities in SQLite. Conflict
// resolution relies on native ON CONFLICT upserts, never on
// read-modify-write, so concurrent triggers converge on the same rows.
package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	peer_id INTEGER NOT NULL UNIQUE,
	username TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	added_at INTEGER NOT NULL,
	last_fetched_at INTEGER
);

CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	message_id INTEGER NOT NULL,
	posted_at INTEGER NOT NULL,
	edited_at INTEGER,
	text TEXT NOT NULL DEFAULT '',
	has_media INTEGER NOT NULL DEFAULT 0,
	views INTEGER NOT NULL DEFAULT 0,
	forwards INTEGER NOT NULL DEFAULT 0,
	permalink TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	lang TEXT NOT NULL DEFAULT '',
	embedding BLOB,
	created_at INTEGER NOT NULL,
	UNIQUE (channel_id, message_id)
);
CREATE INDEX IF NOT EXISTS posts_time_idx ON posts(posted_at);
CREATE INDEX IF NOT EXISTS posts_hash_idx ON posts(content_hash);

CREATE TABLE IF NOT EXISTS post_summaries (
	post_id INTEGER PRIMARY KEY REFERENCES posts(id) ON DELETE CASCADE,
	key_point TEXT NOT NULL,
	why_it_matters TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	category TEXT NOT NULL DEFAULT 'OTHER_USEFUL',
	importance INTEGER NOT NULL DEFAULT 3,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS windows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	start_at INTEGER NOT NULL,
	end_at INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'new',
	created_at INTEGER NOT NULL,
	UNIQUE (start_at, end_at)
);

CREATE TABLE IF NOT EXISTS dedup_clusters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	window_id INTEGER NOT NULL REFERENCES windows(id) ON DELETE CASCADE,
	label TEXT NOT NULL DEFAULT '',
	representative_post_id INTEGER NOT NULL REFERENCES posts(id),
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dedup_cluster_posts (
	cluster_id INTEGER NOT NULL REFERENCES dedup_clusters(id) ON DELETE CASCADE,
	post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	similarity REAL NOT NULL,
	PRIMARY KEY (cluster_id, post_id)
);

CREATE TABLE IF NOT EXISTS digests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	window_id INTEGER NOT NULL UNIQUE REFERENCES windows(id) ON DELETE CASCADE,
	channel_id INTEGER NOT NULL,
	message_ids TEXT NOT NULL DEFAULT '[]',
	content TEXT NOT NULL,
	stats TEXT NOT NULL DEFAULT '{}',
	published_at INTEGER
);
`

// Store owns the SQLite handle and hands out repository views.
type Store struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

// Open creates (if needed) and migrates the database at path. The
// special path ":memory:" yields an in-process test database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps :memory: databases coherent and is
	// enough for the sequential pipeline.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, builder: sq.StatementBuilder}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Windows returns the window repository view.
func (s *Store) Windows() *WindowRepo { return &WindowRepo{store: s} }

// Channels returns the channel repository view.
func (s *Store) Channels() *ChannelRepo { return &ChannelRepo{store: s} }

// Posts returns the post repository view.
func (s *Store) Posts() *PostRepo { return &PostRepo{store: s} }

// Summaries returns the summary repository view.
func (s *Store) Summaries() *SummaryRepo { return &SummaryRepo{store: s} }

// Clusters returns the cluster repository view.
func (s *Store) Clusters() *ClusterRepo { return &ClusterRepo{store: s} }

// Digests returns the digest repository view.
func (s *Store) Digests() *DigestRepo { return &DigestRepo{store: s} }

// vectorToBlob packs an embedding into a little-endian float32 blob.
func vectorToBlob(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// blobToVector unpacks a float32 blob written by vectorToBlob.
func blobToVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
