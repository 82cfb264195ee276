// Package intake consumes task submissions from the external queue and turns
// each into a registered, independently cancellable pipeline run.
package intake

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Submission is the task intake contract. Exactly one of SourcePath or
// ChunkSource supplies the text: a path to a plain-text file, or the text
// itself carried inline.
type Submission struct {
	RunID         string `json:"runId"`
	BookID        string `json:"bookId"`
	SourcePath    string `json:"sourcePath,omitempty"`
	ChunkSource   string `json:"chunkSource,omitempty"`
	ClearExisting bool   `json:"clearExisting,omitempty"`
}

// Decode parses and validates a queue payload. A missing runId gets a fresh
// one assigned.
func Decode(payload []byte) (Submission, error) {
	var sub Submission
	if err := json.Unmarshal(payload, &sub); err != nil {
		return Submission{}, fmt.Errorf("intake: decode submission: %w", err)
	}

	sub.RunID = strings.TrimSpace(sub.RunID)
	sub.BookID = strings.TrimSpace(sub.BookID)
	sub.SourcePath = strings.TrimSpace(sub.SourcePath)

	if sub.BookID == "" {
		return Submission{}, fmt.Errorf("intake: submission missing bookId")
	}
	if sub.SourcePath == "" && strings.TrimSpace(sub.ChunkSource) == "" {
		return Submission{}, fmt.Errorf("intake: submission carries neither sourcePath nor chunkSource")
	}
	if sub.RunID == "" {
		sub.RunID = uuid.NewString()
	}
	return sub, nil
}

// SourceName labels the submission's text for reporting.
func (s *Submission) SourceName() string {
	if s.SourcePath != "" {
		return s.SourcePath
	}
	return "inline:" + s.BookID
}
