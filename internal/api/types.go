package api

import (
	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/formula"
	"github.com/MJE43/idleforge/internal/runtime"
)

// APIError represents a structured error response with context
type APIError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeValidation       = "validation_error"
	ErrTypeInvalidID        = "invalid_id"
	ErrTypeDuplicateID      = "duplicate_id"
	ErrTypeUnknownReference = "unknown_reference"
	ErrTypeInvalidValue     = "invalid_value"
	ErrTypeUnsupported      = "unsupported_version"

	// Resource errors
	ErrTypeNotFound = "not_found"
	ErrTypeInUse    = "in_use"
	ErrTypeConflict = "conflict"

	// Auth errors
	ErrTypeUnauthorized = "unauthorized"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryResource   ErrorCategory = "resource"
	CategoryAuth       ErrorCategory = "auth"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidID, ErrTypeDuplicateID, ErrTypeUnknownReference,
		ErrTypeInvalidValue, ErrTypeUnsupported:
		return CategoryValidation
	case ErrTypeNotFound, ErrTypeInUse, ErrTypeConflict:
		return CategoryResource
	case ErrTypeUnauthorized:
		return CategoryAuth
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains build information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
	SchemaVersion int    `json:"schema_version"`
}

// TitleRequest sets the game title.
type TitleRequest struct {
	Title string `json:"title"`
}

// TierItemRequest adds or removes a tier member.
type TierItemRequest struct {
	Kind   blueprint.ItemKind `json:"kind"`
	ItemID string             `json:"itemId"`
}

// EvaluateRequest evaluates a formula at a level. Resources, generators and
// upgrades supply values for referencing steps.
type EvaluateRequest struct {
	Formula    formula.Formula          `json:"formula"`
	Level      bignum.Number            `json:"level"`
	Resources  map[string]bignum.Number `json:"resources,omitempty"`
	Generators map[string]bignum.Number `json:"generators,omitempty"`
	Upgrades   map[string]bignum.Number `json:"upgrades,omitempty"`
}

// EvaluateResponse is the result of a formula evaluation.
type EvaluateResponse struct {
	Value       bignum.Number `json:"value"`
	Formatted   string        `json:"formatted"`
	Description string        `json:"description"`
}

// CheckRequest checks a formula against the current blueprint.
type CheckRequest struct {
	Formula formula.Formula `json:"formula"`
}

// CheckResponse lists formula problems. Valid is true when there are none.
type CheckResponse struct {
	Valid       bool            `json:"valid"`
	Issues      []formula.Issue `json:"issues"`
	Description string          `json:"description"`
}

// FormulaRegistryResponse lists the known step types and operations.
type FormulaRegistryResponse struct {
	Sources    []formula.SourceType `json:"sources"`
	Operations []formula.Operation  `json:"operations"`
}

// SaveProjectRequest stores the editor blueprint as a project.
type SaveProjectRequest struct {
	Title string `json:"title,omitempty"`
}

// CreateSessionRequest starts a game. With ProjectID the project's
// blueprint is played and, when Resume is set, its latest save restored;
// otherwise the current editor blueprint is played.
type CreateSessionRequest struct {
	ProjectID string `json:"projectId,omitempty"`
	Resume    bool   `json:"resume,omitempty"`
	Offline   bool   `json:"offline,omitempty"`
}

// SessionResponse wraps a session snapshot.
type SessionResponse struct {
	ProjectID string           `json:"projectId,omitempty"`
	Snapshot  runtime.Snapshot `json:"snapshot"`
}

// PurchaseResponse reports a purchase attempt.
type PurchaseResponse struct {
	Purchased bool             `json:"purchased"`
	Snapshot  runtime.Snapshot `json:"snapshot"`
}

// PrestigeResponse reports a prestige attempt.
type PrestigeResponse struct {
	Prestiged bool             `json:"prestiged"`
	Payout    bignum.Number    `json:"payout"`
	Snapshot  runtime.Snapshot `json:"snapshot"`
}

// AdvanceRequest runs ticks immediately.
type AdvanceRequest struct {
	Ticks int `json:"ticks"`
}
