// Package store persists projects, messages, file revisions, and
// artifacts in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"codeloom/internal/logging"
	"codeloom/internal/types"
)

// Store wraps the SQLite database. A single connection is used
// (SetMaxOpenConns(1)) so writes serialize at the pool rather than
// fighting over the file lock; the mutex guards multi-statement
// sequences.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path, creating the
// parent directory and schema as needed.
func Open(path string) (*Store, error) {
	logging.Store("Opening store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("Store schema ready")
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, created_at);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		path TEXT NOT NULL,
		language TEXT NOT NULL,
		content TEXT NOT NULL,
		additions INTEGER NOT NULL DEFAULT 0,
		deletions INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_project_path ON files(project_id, path, created_at);
	CREATE INDEX IF NOT EXISTS idx_files_message ON files(message_id);

	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		title TEXT NOT NULL,
		file_ids TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_project ON artifacts(project_id, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// CreateProject creates a new project row.
func (s *Store) CreateProject(name string) (*types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := &types.Project{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(
		"INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		p.ID, p.Name, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}
	logging.StoreDebug("Created project %s (%q)", p.ID, p.Name)
	return p, nil
}

// GetProject fetches a project by ID. Returns (nil, nil) when no such
// project exists.
func (s *Store) GetProject(id string) (*types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p types.Project
	err := s.db.QueryRow(
		"SELECT id, name, created_at, updated_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	return &p, nil
}

// TouchProject bumps the project's updated_at timestamp.
func (s *Store) TouchProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE projects SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch project: %w", err)
	}
	return nil
}

// InsertMessage appends a conversation turn half to a project.
func (s *Store) InsertMessage(projectID string, role types.Role, content string) (*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &types.Message{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		"INSERT INTO messages (id, project_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		m.ID, m.ProjectID, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

// ListMessages returns a project's conversation in chronological order.
func (s *Store) ListMessages(projectID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, project_id, role, content, created_at FROM messages WHERE project_id = ? ORDER BY created_at ASC, rowid ASC",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastUserMessage returns the most recent user-authored turn in a
// project, or (nil, nil) when the project has none.
func (s *Store) LastUserMessage(projectID string) (*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m types.Message
	err := s.db.QueryRow(
		"SELECT id, project_id, role, content, created_at FROM messages WHERE project_id = ? AND role = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		projectID, types.RoleUser,
	).Scan(&m.ID, &m.ProjectID, &m.Role, &m.Content, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last user message: %w", err)
	}
	return &m, nil
}

// InsertFile records a new file revision. Revisions are never updated in
// place; each extraction writes a fresh row.
func (s *Store) InsertFile(projectID, messageID, path, language, content string, additions, deletions int) (*types.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := &types.FileRecord{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		MessageID: messageID,
		Path:      path,
		Language:  language,
		Content:   content,
		Additions: additions,
		Deletions: deletions,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		"INSERT INTO files (id, project_id, message_id, path, language, content, additions, deletions, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		f.ID, f.ProjectID, f.MessageID, f.Path, f.Language, f.Content, f.Additions, f.Deletions, f.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert file revision: %w", err)
	}
	return f, nil
}

// LatestFileByPath returns the most recent revision of a path within a
// project, or (nil, nil) when the path has never been written.
func (s *Store) LatestFileByPath(projectID, path string) (*types.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f types.FileRecord
	err := s.db.QueryRow(
		"SELECT id, project_id, message_id, path, language, content, additions, deletions, created_at FROM files WHERE project_id = ? AND path = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		projectID, path,
	).Scan(&f.ID, &f.ProjectID, &f.MessageID, &f.Path, &f.Language, &f.Content, &f.Additions, &f.Deletions, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest file: %w", err)
	}
	return &f, nil
}

// LatestFilesSnapshot returns the latest content for every path in a
// project in one query. Persistence reads this once at turn start so
// concurrent file writes within the turn never re-read the table.
func (s *Store) LatestFilesSnapshot(projectID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT f.path, f.content FROM files f
		 WHERE f.project_id = ?
		   AND f.rowid = (SELECT f2.rowid FROM files f2 WHERE f2.project_id = f.project_id AND f2.path = f.path ORDER BY f2.created_at DESC, f2.rowid DESC LIMIT 1)`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query file snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]string)
	for rows.Next() {
		var path, content string
		if err := rows.Scan(&path, &content); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshot[path] = content
	}
	return snapshot, rows.Err()
}

// GetFile fetches one file revision by ID, or (nil, nil) when absent.
func (s *Store) GetFile(id string) (*types.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f types.FileRecord
	err := s.db.QueryRow(
		"SELECT id, project_id, message_id, path, language, content, additions, deletions, created_at FROM files WHERE id = ?", id,
	).Scan(&f.ID, &f.ProjectID, &f.MessageID, &f.Path, &f.Language, &f.Content, &f.Additions, &f.Deletions, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file: %w", err)
	}
	return &f, nil
}

// PreviousFileRevision returns the revision of the same path that
// immediately precedes the given file revision, or (nil, nil) when the
// given revision is the first.
func (s *Store) PreviousFileRevision(fileID string) (*types.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f types.FileRecord
	err := s.db.QueryRow(
		`SELECT id, project_id, message_id, path, language, content, additions, deletions, created_at FROM files
		 WHERE project_id = (SELECT project_id FROM files WHERE id = ?)
		   AND path = (SELECT path FROM files WHERE id = ?)
		   AND rowid < (SELECT rowid FROM files WHERE id = ?)
		 ORDER BY rowid DESC LIMIT 1`,
		fileID, fileID, fileID,
	).Scan(&f.ID, &f.ProjectID, &f.MessageID, &f.Path, &f.Language, &f.Content, &f.Additions, &f.Deletions, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query previous revision: %w", err)
	}
	return &f, nil
}

// InsertArtifact records the file grouping for one assistant turn.
// fileIDs must be in source-text extraction order.
func (s *Store) InsertArtifact(projectID, messageID, title string, fileIDs []string) (*types.ArtifactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.Marshal(fileIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file ids: %w", err)
	}
	a := &types.ArtifactRecord{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		MessageID: messageID,
		Title:     title,
		FileIDs:   fileIDs,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.Exec(
		"INSERT INTO artifacts (id, project_id, message_id, title, file_ids, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		a.ID, a.ProjectID, a.MessageID, a.Title, string(encoded), a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert artifact: %w", err)
	}
	return a, nil
}

// GetArtifact fetches one artifact by ID, or (nil, nil) when absent.
func (s *Store) GetArtifact(id string) (*types.ArtifactRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a types.ArtifactRecord
	var encoded string
	err := s.db.QueryRow(
		"SELECT id, project_id, message_id, title, file_ids, created_at FROM artifacts WHERE id = ?", id,
	).Scan(&a.ID, &a.ProjectID, &a.MessageID, &a.Title, &encoded, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query artifact: %w", err)
	}
	if err := json.Unmarshal([]byte(encoded), &a.FileIDs); err != nil {
		return nil, fmt.Errorf("failed to decode file ids: %w", err)
	}
	return &a, nil
}
