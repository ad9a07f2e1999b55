// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package entrystore

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seedarr/seedarr/core"
)

// Status is the lifecycle state of a file entry.
type Status string

// Entry statuses, in pipeline order.
const (
	StatusPending           Status = "PENDING"
	StatusScanned           Status = "SCANNED"
	StatusAnalyzed          Status = "ANALYZED"
	StatusApproved          Status = "APPROVED"
	StatusPrepared          Status = "PREPARED"
	StatusRenamed           Status = "RENAMED"
	StatusMetadataGenerated Status = "METADATA_GENERATED"
	StatusUploaded          Status = "UPLOADED"
	StatusFailed            Status = "FAILED"
	StatusCancelled         Status = "CANCELLED"
)

var statusRank = map[Status]int{
	StatusPending:           0,
	StatusScanned:           1,
	StatusAnalyzed:          2,
	StatusApproved:          3,
	StatusPrepared:          4,
	StatusRenamed:           5,
	StatusMetadataGenerated: 6,
	StatusUploaded:          7,
}

// Terminal returns whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusUploaded || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo returns whether s -> t is an allowed transition: one step
// forward along the pipeline chain, or to FAILED / CANCELLED from any
// non-terminal state.
func (s Status) CanTransitionTo(t Status) bool {
	if s.Terminal() {
		return false
	}
	if t == StatusFailed || t == StatusCancelled {
		return true
	}
	return statusRank[t] == statusRank[s]+1
}

// Stage identifies a pipeline stage and the checkpoint it owns.
type Stage string

// Pipeline stages, in execution order.
const (
	StageScan     Stage = "scan"
	StageAnalyze  Stage = "analyze"
	StageApprove  Stage = "approve"
	StagePrepare  Stage = "prepare"
	StageRename   Stage = "rename"
	StageGenerate Stage = "generate"
	StageUpload   Stage = "upload"
)

// Stages lists all stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageScan, StageAnalyze, StageApprove, StagePrepare,
		StageRename, StageGenerate, StageUpload,
	}
}

type stageInfo struct {
	status Status // Status after the stage succeeds.
	column string // Checkpoint timestamp column.
}

var stageInfos = map[Stage]stageInfo{
	StageScan:     {StatusScanned, "scanned_at"},
	StageAnalyze:  {StatusAnalyzed, "analyzed_at"},
	StageApprove:  {StatusApproved, "approved_at"},
	StagePrepare:  {StatusPrepared, "prepared_at"},
	StageRename:   {StatusRenamed, "renamed_at"},
	StageGenerate: {StatusMetadataGenerated, "metadata_generated_at"},
	StageUpload:   {StatusUploaded, "uploaded_at"},
}

// Status returns the entry status recorded when the stage succeeds.
func (s Stage) Status() Status {
	return stageInfos[s].status
}

// Metadata is the structured blob of analysis results attached to an entry.
type Metadata struct {
	Release   core.Release        `json:"release"`
	Movie     *core.MovieMetadata `json:"movie,omitempty"`
	MediaInfo *core.MediaInfo     `json:"media_info,omitempty"`
}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// TorrentPaths maps tracker slug to generated .torrent path.
type TorrentPaths map[string]string

// Value implements driver.Valuer.
func (p TorrentPaths) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *TorrentPaths) Scan(src interface{}) error {
	return scanJSON(src, p)
}

// ScreenshotURLs is the ordered list of hosted screenshot urls.
type ScreenshotURLs []string

// Value implements driver.Valuer.
func (u ScreenshotURLs) Value() (driver.Value, error) {
	return json.Marshal(u)
}

// Scan implements sql.Scanner.
func (u *ScreenshotURLs) Scan(src interface{}) error {
	return scanJSON(src, u)
}

func scanJSON(src, dst interface{}) error {
	switch b := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(b, dst)
	case string:
		return json.Unmarshal([]byte(b), dst)
	}
	return fmt.Errorf("cannot scan %T into json blob", src)
}

// Entry is one source media file moving through the pipeline.
type Entry struct {
	ID             string         `db:"id"`
	FilePath       string         `db:"file_path"`
	ReleaseName    string         `db:"release_name"`
	Status         Status         `db:"status"`
	ErrorMessage   string         `db:"error_message"`
	ErrorKind      string         `db:"error_kind"`
	Metadata       Metadata       `db:"metadata"`
	TorrentPaths   TorrentPaths   `db:"torrent_paths"`
	NfoPath        string         `db:"nfo_path"`
	ScreenshotURLs ScreenshotURLs `db:"screenshot_urls"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`

	ScannedAt           *time.Time `db:"scanned_at"`
	AnalyzedAt          *time.Time `db:"analyzed_at"`
	ApprovedAt          *time.Time `db:"approved_at"`
	PreparedAt          *time.Time `db:"prepared_at"`
	RenamedAt           *time.Time `db:"renamed_at"`
	MetadataGeneratedAt *time.Time `db:"metadata_generated_at"`
	UploadedAt          *time.Time `db:"uploaded_at"`
}

// CheckpointAt returns the checkpoint timestamp for stage, or nil if the
// stage has not completed.
func (e *Entry) CheckpointAt(stage Stage) *time.Time {
	switch stage {
	case StageScan:
		return e.ScannedAt
	case StageAnalyze:
		return e.AnalyzedAt
	case StageApprove:
		return e.ApprovedAt
	case StagePrepare:
		return e.PreparedAt
	case StageRename:
		return e.RenamedAt
	case StageGenerate:
		return e.MetadataGeneratedAt
	case StageUpload:
		return e.UploadedAt
	}
	return nil
}

// NextStage returns the first stage whose checkpoint is unset, or false if
// every stage has completed.
func (e *Entry) NextStage() (Stage, bool) {
	for _, s := range Stages() {
		if e.CheckpointAt(s) == nil {
			return s, true
		}
	}
	return "", false
}

// ErrAwaitingApproval is returned by the approve stage when approval policy
// is manual and no approval has been recorded. The worker parks the entry at
// ANALYZED without consuming a retry.
var ErrAwaitingApproval = errors.New("entry awaiting manual approval")

// TrackerOutcome is the per-tracker result of the upload stage.
type TrackerOutcome string

// Tracker outcomes.
const (
	OutcomeUploaded         TrackerOutcome = "UPLOADED"
	OutcomeSkippedDuplicate TrackerOutcome = "SKIPPED_DUPLICATE"
	OutcomeFailed           TrackerOutcome = "FAILED"
)

// TrackerResult records what happened on one tracker for one entry.
type TrackerResult struct {
	FileEntryID     string         `db:"file_entry_id"`
	TrackerSlug     string         `db:"tracker_slug"`
	Outcome         TrackerOutcome `db:"outcome"`
	RemoteTorrentID string         `db:"remote_torrent_id"`
	RemoteURL       string         `db:"remote_url"`
	Error           string         `db:"error"`
	CreatedAt       time.Time      `db:"created_at"`
}
