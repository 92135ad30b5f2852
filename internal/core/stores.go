package core

import "github.com/valter-silva-au/taskloop/pkg/models"

// BacklogStore persists the backlog. Save must replace the stored backlog
// atomically. It is defined here so core does not import storage.
type BacklogStore interface {
	Load() (*models.Backlog, error)
	Save(backlog *models.Backlog) error
}

// CheckpointStore persists the single checkpoint record. Load returns a
// zero checkpoint when nothing has been stored yet.
type CheckpointStore interface {
	Load() (*models.Checkpoint, error)
	Save(cp *models.Checkpoint) error
}

// ProgressLogStore persists the raw progress document. Load returns an
// empty string when no document exists. Save replaces the document
// atomically; Append adds text to the end without reading it back.
type ProgressLogStore interface {
	Load() (string, error)
	Save(doc string) error
	Append(text string) error
}
