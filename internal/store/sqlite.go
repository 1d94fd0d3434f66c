package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/runtime"
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db  *sql.DB
	now func() time.Time
}

var _ DB = (*SQLiteDB)(nil)

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &SQLiteDB{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteDB) Migrate() error {
	baseMigrations := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			blueprint_json TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS saves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			state_json TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		)`,
	}

	for _, migration := range baseMigrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("base migration failed: %w", err)
		}
	}

	// Columns added after the first release.
	alterMigrations := []string{
		`ALTER TABLE saves ADD COLUMN session_id TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE saves ADD COLUMN ticks INTEGER NOT NULL DEFAULT 0`,
	}

	for _, migration := range alterMigrations {
		if _, err := s.db.Exec(migration); err != nil {
			if !isDuplicateColumnError(err) {
				return fmt.Errorf("alter migration failed: %w", err)
			}
		}
	}

	indexMigrations := []string{
		`CREATE INDEX IF NOT EXISTS idx_projects_updated_at ON projects(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_title ON projects(title)`,
		`CREATE INDEX IF NOT EXISTS idx_saves_project ON saves(project_id, id DESC)`,
	}

	for _, migration := range indexMigrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("index migration failed: %w", err)
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return strings.Contains(err.Error(), "duplicate column name")
}

func encodeProject(p *Project) (string, error) {
	if p.Blueprint == nil {
		return "", fmt.Errorf("%w: project has no blueprint", blueprint.ErrInvalidValue)
	}
	data, err := blueprint.Encode(p.Blueprint)
	if err != nil {
		return "", fmt.Errorf("encode blueprint: %w", err)
	}
	p.SchemaVersion = p.Blueprint.Version
	if strings.TrimSpace(p.Title) == "" {
		p.Title = p.Blueprint.GameTitle
	}
	return string(data), nil
}

// SaveProject inserts p, assigning an id and timestamps when missing.
func (s *SQLiteDB) SaveProject(p *Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	data, err := encodeProject(p)
	if err != nil {
		return err
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err = s.db.Exec(`INSERT INTO projects (
		id, title, schema_version, blueprint_json, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.SchemaVersion, data, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// UpdateProject replaces the title and blueprint of an existing project.
func (s *SQLiteDB) UpdateProject(p *Project) error {
	data, err := encodeProject(p)
	if err != nil {
		return err
	}
	p.UpdatedAt = s.now()

	res, err := s.db.Exec(`UPDATE projects SET
		title = ?, schema_version = ?, blueprint_json = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.SchemaVersion, data, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, p.ID)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return nil
}

// GetProject retrieves a project by ID. Stored blueprints are migrated to the
// current schema version on read.
func (s *SQLiteDB) GetProject(id string) (*Project, error) {
	var p Project
	var data string
	err := s.db.QueryRow(`SELECT id, title, schema_version, blueprint_json, created_at, updated_at
		FROM projects WHERE id = ?`, id).Scan(
		&p.ID, &p.Title, &p.SchemaVersion, &data, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	p.Blueprint, err = blueprint.Decode([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", id, err)
	}
	return &p, nil
}

// ListProjects retrieves projects with pagination, most recently updated
// first.
func (s *SQLiteDB) ListProjects(query ProjectsQuery) (*ProjectsList, error) {
	whereClause := ""
	args := []interface{}{}

	if query.Title != "" {
		whereClause = "WHERE title LIKE ?"
		args = append(args, "%"+query.Title+"%")
	}

	var totalCount int
	err := s.db.QueryRow("SELECT COUNT(*) FROM projects "+whereClause, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = 50
	}
	if query.Page <= 0 {
		query.Page = 1
	}

	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	offset := (query.Page - 1) * query.PerPage

	mainQuery := `SELECT id, title, schema_version, created_at, updated_at
		FROM projects ` + whereClause + `
		ORDER BY updated_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	args = append(args, query.PerPage, offset)

	rows, err := s.db.Query(mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []ProjectSummary{}
	for rows.Next() {
		var p ProjectSummary
		if err := rows.Scan(&p.ID, &p.Title, &p.SchemaVersion, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return &ProjectsList{
		Projects:   projects,
		TotalCount: totalCount,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}

// DeleteProject removes a project and its saves.
func (s *SQLiteDB) DeleteProject(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM saves WHERE project_id = ?", id); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return err
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveState appends a state snapshot for a project.
func (s *SQLiteDB) SaveState(projectID, sessionID string, st *runtime.State) error {
	if st == nil {
		return fmt.Errorf("%w: nil state", blueprint.ErrInvalidValue)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	var exists int
	err = s.db.QueryRow("SELECT COUNT(*) FROM projects WHERE id = ?", projectID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}

	_, err = s.db.Exec(`INSERT INTO saves (project_id, session_id, ticks, state_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		projectID, sessionID, st.Ticks, string(data), s.now(),
	)
	return err
}

// LatestState returns the newest save for a project.
func (s *SQLiteDB) LatestState(projectID string) (*Save, error) {
	var sv Save
	var data string
	err := s.db.QueryRow(`SELECT id, project_id, session_id, ticks, state_json, created_at
		FROM saves WHERE project_id = ?
		ORDER BY id DESC LIMIT 1`, projectID).Scan(
		&sv.ID, &sv.ProjectID, &sv.SessionID, &sv.Ticks, &data, &sv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no saves for project %s", ErrNotFound, projectID)
	}
	if err != nil {
		return nil, err
	}

	sv.State = &runtime.State{}
	if err := json.Unmarshal([]byte(data), sv.State); err != nil {
		return nil, fmt.Errorf("decode save %d: %w", sv.ID, err)
	}
	return &sv, nil
}
