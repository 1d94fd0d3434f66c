package store

import (
	"errors"
	"time"

	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/runtime"
)

// ErrNotFound is returned when a project or save does not exist.
var ErrNotFound = errors.New("store: not found")

// DB represents the database interface
type DB interface {
	Close() error
	Migrate() error
	SaveProject(p *Project) error
	UpdateProject(p *Project) error
	GetProject(id string) (*Project, error)
	ListProjects(query ProjectsQuery) (*ProjectsList, error)
	DeleteProject(id string) error
	SaveState(projectID, sessionID string, st *runtime.State) error
	LatestState(projectID string) (*Save, error)
}

// ProjectsQuery represents query parameters for listing projects
type ProjectsQuery struct {
	Title   string `json:"title,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// ProjectsList represents a paginated projects response. Blueprints are not
// loaded for listings.
type ProjectsList struct {
	Projects   []ProjectSummary `json:"projects"`
	TotalCount int              `json:"totalCount"`
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalPages int              `json:"totalPages"`
}

// Project is a stored blueprint.
type Project struct {
	ID            string                   `json:"id"`
	Title         string                   `json:"title"`
	SchemaVersion int                      `json:"schemaVersion"`
	Blueprint     *blueprint.GameBlueprint `json:"blueprint"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// ProjectSummary is a Project without its blueprint.
type ProjectSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	SchemaVersion int       `json:"schemaVersion"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Save is a runtime state snapshot taken for a project.
type Save struct {
	ID        int64          `json:"id"`
	ProjectID string         `json:"projectId"`
	SessionID string         `json:"sessionId"`
	Ticks     int64          `json:"ticks"`
	State     *runtime.State `json:"state"`
	CreatedAt time.Time      `json:"createdAt"`
}

// SessionSaver adapts a DB to runtime.Saver for one project.
type SessionSaver struct {
	DB        DB
	ProjectID string
}

// SaveState implements runtime.Saver.
func (s SessionSaver) SaveState(sessionID string, st *runtime.State) error {
	return s.DB.SaveState(s.ProjectID, sessionID, st)
}
