package services

import (
	"fmt"
	"os"
	"path/filepath"
)

type WorkspaceManager struct {
	baseDir string
}

func NewWorkspaceManager(baseDir string) *WorkspaceManager {
	return &WorkspaceManager{
		baseDir: baseDir,
	}
}

// PrepareWorkspace creates the directory holding a job's log sink.
// Path: baseDir/jobs/{id}
func (s *WorkspaceManager) PrepareWorkspace(id string) (string, error) {
	path := s.GetPath(id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}
	return path, nil
}

// CleanupWorkspace removes the job workspace directory
func (s *WorkspaceManager) CleanupWorkspace(id string) error {
	return os.RemoveAll(s.GetPath(id))
}

// GetPath returns the path of a job's workspace
func (s *WorkspaceManager) GetPath(id string) string {
	return filepath.Join(s.baseDir, "jobs", id)
}
