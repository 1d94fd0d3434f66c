package api

import (
	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/config"
)

// GetVersionInfo returns the current version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		EngineVersion: config.Version,
		GitCommit:     config.GitCommit,
		BuildTime:     config.BuildTime,
		SchemaVersion: blueprint.CurrentVersion,
	}
}
