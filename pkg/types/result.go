// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Artifact sources recorded on an AcquisitionResult.
const (
	SourceBrowserSession    = "browser-session"
	SourceCredentialSession = "credential-session"
	SourceInstructions      = "instructions"
)

// AcquisitionResult is the outcome of one acquisition attempt.
//
// Success means an artifact was produced, not that a PDF was obtained: a
// result with Success set and a non-empty Error is the fallback case where
// only the manual-access instructions file was written.
type AcquisitionResult struct {
	Identifier    string `json:"pmid" yaml:"pmid"`
	Success       bool   `json:"success" yaml:"success"`
	FilePath      string `json:"filePath,omitempty" yaml:"file_path,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
	FileSizeBytes int64  `json:"fileSize,omitempty" yaml:"file_size,omitempty"`
	Source        string `json:"source,omitempty" yaml:"source,omitempty"`
}

// IsFallback reports whether the result is an instructions file rather than a PDF.
func (r AcquisitionResult) IsFallback() bool {
	return r.Success && r.Error != ""
}

// IsPDF reports whether a PDF was written.
func (r AcquisitionResult) IsPDF() bool {
	return r.Success && r.Error == ""
}

// Progress is reported before each identifier of a batch is attempted.
// Current runs from 1 to Total.
type Progress struct {
	Current           int    `json:"current"`
	Total             int    `json:"total"`
	CurrentIdentifier string `json:"currentPmid"`
}

// QueueStatus is the lifecycle state of a queued download.
type QueueStatus string

const (
	StatusPending     QueueStatus = "pending"
	StatusDownloading QueueStatus = "downloading"
	StatusCompleted   QueueStatus = "completed"
	StatusFailed      QueueStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s QueueStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// QueueItem is one article waiting in (or processed from) the download queue.
type QueueItem struct {
	ID           int64       `json:"id"`
	PMID         string      `json:"pmid"`
	Title        string      `json:"title,omitempty"`
	Status       QueueStatus `json:"status"`
	FilePath     string      `json:"filePath,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// QueueUpdate carries the QueueItem fields to change. Nil fields are left
// untouched.
type QueueUpdate struct {
	Status       *QueueStatus
	FilePath     *string
	ErrorMessage *string
}

// EventType names a progress event pushed to subscribers.
type EventType string

const (
	EventProgress         EventType = "progress"
	EventItemComplete     EventType = "item_complete"
	EventDownloadComplete EventType = "download_complete"
)

// Event is a progress notification. Only the fields relevant to Type are set.
type Event struct {
	Type EventType `json:"type"`

	// progress
	Current           int    `json:"current,omitempty"`
	Total             int    `json:"total,omitempty"`
	CurrentIdentifier string `json:"currentPmid,omitempty"`

	// item_complete
	Identifier string `json:"pmid,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Error      string `json:"error,omitempty"`
	FilePath   string `json:"filePath,omitempty"`

	// download_complete
	Completed *int `json:"completed,omitempty"`
}

// ProgressEvent builds a progress event.
func ProgressEvent(p Progress) Event {
	return Event{Type: EventProgress, Current: p.Current, Total: p.Total, CurrentIdentifier: p.CurrentIdentifier}
}

// ItemCompleteEvent builds an item_complete event from a result.
func ItemCompleteEvent(r AcquisitionResult) Event {
	ok := r.Success
	return Event{Type: EventItemComplete, Identifier: r.Identifier, Success: &ok, Error: r.Error, FilePath: r.FilePath}
}

// DownloadCompleteEvent builds the final event of a batch.
func DownloadCompleteEvent(completed, total int) Event {
	return Event{Type: EventDownloadComplete, Completed: &completed, Total: total}
}
