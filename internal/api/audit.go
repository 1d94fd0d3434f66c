package api

import (
	"io"
	"log"
	"strings"
	"time"

	"github.com/MJE43/idleforge/internal/config"
)

// AuditLogger records mutations and security events. Tokens and
// authorization headers never reach the log.
type AuditLogger struct {
	logger *log.Logger
}

// NewAuditLogger creates an audit logger writing to w.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{logger: log.New(w, "[AUDIT] ", log.LstdFlags|log.LUTC)}
}

// LogAuditEvent logs a completed action.
func (al *AuditLogger) LogAuditEvent(
	requestID string,
	action string,
	resource string,
	outcome string,
	details map[string]interface{},
) {
	al.logger.Printf(
		"audit_event request_id=%s action=%s resource=%s outcome=%s details=%+v engine_version=%s timestamp=%s",
		requestID,
		action,
		resource,
		outcome,
		sanitize(details),
		config.Version,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSecurityEvent logs failed validations and rejected credentials.
func (al *AuditLogger) LogSecurityEvent(
	requestID string,
	eventType string,
	description string,
	context map[string]interface{},
	remoteAddr string,
) {
	al.logger.Printf(
		"security_event request_id=%s type=%s description=%q context=%+v remote_addr=%s engine_version=%s timestamp=%s",
		requestID,
		eventType,
		description,
		sanitize(context),
		remoteAddr,
		config.Version,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSystemStartup logs the server configuration at startup.
func (al *AuditLogger) LogSystemStartup(details map[string]interface{}) {
	al.logger.Printf(
		"system_startup details=%+v engine_version=%s git_commit=%s timestamp=%s",
		sanitize(details),
		config.Version,
		config.GitCommit,
		time.Now().UTC().Format(time.RFC3339),
	)
}

func sanitize(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "token") || strings.Contains(lower, "authorization") {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}
