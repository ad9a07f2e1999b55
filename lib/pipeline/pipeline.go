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

// Package pipeline implements the release processing stages. Each stage is
// entered only when its predecessor's checkpoint is set and its own is not;
// completed stages commit their artifacts and checkpoint atomically through
// the entry store, which makes resume-after-crash a pure skip.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/lib/entrystore"
	"github.com/seedarr/seedarr/lib/events"
	"github.com/seedarr/seedarr/lib/services"
	"github.com/seedarr/seedarr/lib/torrentgen"
	"github.com/seedarr/seedarr/lib/trackers"
	"github.com/seedarr/seedarr/utils/log"
)

// Pipeline advances file entries through the publication stages.
type Pipeline struct {
	config    Config
	entries   *entrystore.Store
	registry  *services.Registry
	adapters  []*trackers.Adapter
	generator *torrentgen.Generator
	sink      events.Sink
}

// New creates a new Pipeline.
func New(
	config Config,
	entries *entrystore.Store,
	registry *services.Registry,
	adapters []*trackers.Adapter,
	generator *torrentgen.Generator,
	sink events.Sink) (*Pipeline, error) {

	config = config.applyDefaults()
	if config.InputDir == "" || config.OutputDir == "" {
		return nil, fmt.Errorf("input_dir and output_dir are required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one tracker adapter is required")
	}
	return &Pipeline{
		config:    config,
		entries:   entries,
		registry:  registry,
		adapters:  adapters,
		generator: generator,
		sink:      sink,
	}, nil
}

// Run executes one stage. A stage whose checkpoint is already set is a
// no-op; previously recorded artifacts are reused.
func (p *Pipeline) Run(
	ctx context.Context, entry *entrystore.Entry, stage entrystore.Stage) error {

	if entry.CheckpointAt(stage) != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	switch stage {
	case entrystore.StageScan:
		return p.runScan(ctx, entry)
	case entrystore.StageAnalyze:
		return p.runAnalyze(ctx, entry)
	case entrystore.StageApprove:
		return p.runApprove(ctx, entry)
	case entrystore.StagePrepare:
		return p.runPrepare(ctx, entry)
	case entrystore.StageRename:
		return p.runRename(ctx, entry)
	case entrystore.StageGenerate:
		return p.runGenerate(ctx, entry)
	case entrystore.StageUpload:
		return p.runUpload(ctx, entry)
	}
	return core.Errorf(core.ErrKindInternalInvariant, "unknown stage %q", stage)
}

// Approve records a manual approval for an entry parked at ANALYZED.
func (p *Pipeline) Approve(entryID string) error {
	entry, err := p.entries.GetByID(entryID)
	if err != nil {
		return err
	}
	if entry.Status != entrystore.StatusAnalyzed {
		return fmt.Errorf("entry %s is %s, not awaiting approval", entryID, entry.Status)
	}
	return p.entries.Checkpoint(entry, entrystore.StageApprove)
}

// insideRoot reports whether path resolves inside root, rejecting
// traversal.
func insideRoot(path, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (p *Pipeline) runScan(ctx context.Context, entry *entrystore.Entry) error {
	if !insideRoot(entry.FilePath, p.config.InputDir) {
		return core.Errorf(
			core.ErrKindValidation, "path %s is outside input root", entry.FilePath)
	}
	f, err := os.Open(entry.FilePath)
	if err != nil {
		return core.Errorf(core.ErrKindValidation, "open media file: %s", err)
	}
	f.Close()

	release, err := core.ParseReleaseName(entry.FilePath)
	if err != nil {
		return core.Errorf(core.ErrKindValidation, "parse release name: %s", err)
	}
	entry.Metadata.Release = release
	return p.entries.Checkpoint(entry, entrystore.StageScan)
}

func (p *Pipeline) runAnalyze(ctx context.Context, entry *entrystore.Entry) error {
	mediaInfo, err := p.registry.MediaInfo.Analyze(ctx, entry.FilePath)
	if err != nil {
		return fmt.Errorf("analyze media: %w", err)
	}
	entry.Metadata.MediaInfo = &mediaInfo

	release := entry.Metadata.Release
	movie, err := p.registry.Metadata.SearchMovie(ctx, release.Title, release.Year)
	if err != nil {
		if err == services.ErrMovieNotFound {
			return core.Errorf(
				core.ErrKindValidation, "no tmdb match for %q (%d)", release.Title, release.Year)
		}
		return fmt.Errorf("tmdb lookup: %w", err)
	}
	entry.Metadata.Movie = &movie
	return p.entries.Checkpoint(entry, entrystore.StageAnalyze)
}

func (p *Pipeline) runApprove(ctx context.Context, entry *entrystore.Entry) error {
	if p.config.ApprovePolicy == ApproveManual {
		return entrystore.ErrAwaitingApproval
	}
	return p.entries.Checkpoint(entry, entrystore.StageApprove)
}

func (p *Pipeline) runPrepare(ctx context.Context, entry *entrystore.Entry) error {
	// Screenshots are best effort: a missing tool skips the step entirely.
	if p.registry.Screenshots == nil {
		return p.entries.Checkpoint(entry, entrystore.StagePrepare)
	}
	images, err := p.registry.Screenshots.Capture(
		ctx, entry.FilePath, p.config.ScreenshotCount)
	if err != nil {
		log.With("entry", entry.ID).Warnf("Screenshot capture failed, skipping: %s", err)
		return p.entries.Checkpoint(entry, entrystore.StagePrepare)
	}
	// Uploads are independent; the image host bucket paces them. Order is
	// preserved by index.
	urls := make(entrystore.ScreenshotURLs, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			url, err := p.registry.Images.Upload(gctx, img)
			if err != nil {
				return fmt.Errorf("upload screenshot: %w", err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	entry.ScreenshotURLs = urls
	return p.entries.Checkpoint(entry, entrystore.StagePrepare)
}

// releaseFor merges the parsed name tokens with authoritative metadata.
func releaseFor(entry *entrystore.Entry) core.Release {
	release := entry.Metadata.Release
	if m := entry.Metadata.Movie; m != nil {
		if m.Title != "" {
			release.Title = m.Title
		}
		if m.Year != 0 {
			release.Year = m.Year
		}
	}
	if mi := entry.Metadata.MediaInfo; mi != nil {
		if r := mi.Resolution(); r != "" {
			release.Resolution = r
		}
	}
	return release
}

func (p *Pipeline) runRename(ctx context.Context, entry *entrystore.Entry) error {
	release := releaseFor(entry)
	name := release.Name()
	target := filepath.Join(p.config.OutputDir, name+filepath.Ext(entry.FilePath))
	if !insideRoot(target, p.config.OutputDir) {
		return core.Errorf(core.ErrKindValidation, "target %s is outside output root", target)
	}
	if err := os.MkdirAll(p.config.OutputDir, 0775); err != nil {
		return fmt.Errorf("mkdir output: %s", err)
	}

	if _, err := os.Stat(target); err == nil {
		// Already moved by a previous attempt.
	} else if _, err := os.Stat(entry.FilePath); err != nil {
		return core.Errorf(
			core.ErrKindInternalInvariant, "media file missing from %s", entry.FilePath)
	} else if err := os.Rename(entry.FilePath, target); err != nil {
		return fmt.Errorf("move media file: %s", err)
	}

	entry.FilePath = target
	entry.ReleaseName = name
	entry.Metadata.Release = release
	return p.entries.Checkpoint(entry, entrystore.StageRename)
}

func (p *Pipeline) runGenerate(ctx context.Context, entry *entrystore.Entry) error {
	if entry.ReleaseName == "" {
		return core.Errorf(core.ErrKindInternalInvariant, "entry has no release name")
	}
	if entry.TorrentPaths == nil {
		entry.TorrentPaths = entrystore.TorrentPaths{}
	}
	for _, adapter := range p.adapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, err := adapter.SanitizeName(entry.ReleaseName)
		if err != nil {
			return fmt.Errorf("sanitize name for %s: %w", adapter.Slug(), err)
		}
		torrentPath, _, err := p.generator.Generate(
			entry.FilePath, name, core.MetaInfoOptions{
				Announce:  adapter.AnnounceURL(),
				Source:    adapter.Slug(),
				CreatedBy: "seedarr",
			})
		if err != nil {
			return fmt.Errorf("generate torrent for %s: %w", adapter.Slug(), err)
		}
		entry.TorrentPaths[adapter.Slug()] = torrentPath
	}

	if p.registry.Renderer != nil {
		rc := services.RenderContext{
			Release:        entry.Metadata.Release,
			Movie:          entry.Metadata.Movie,
			MediaInfo:      entry.Metadata.MediaInfo,
			ScreenshotURLs: entry.ScreenshotURLs,
		}
		nfo, err := p.registry.Renderer.RenderNFO(ctx, rc)
		if err != nil {
			return fmt.Errorf("render nfo: %w", err)
		}
		nfoPath := filepath.Join(p.config.OutputDir, entry.ReleaseName+".nfo")
		if err := os.WriteFile(nfoPath, []byte(nfo), 0664); err != nil {
			return fmt.Errorf("write nfo: %s", err)
		}
		entry.NfoPath = nfoPath
	}
	return p.entries.Checkpoint(entry, entrystore.StageGenerate)
}

func (p *Pipeline) runUpload(ctx context.Context, entry *entrystore.Entry) error {
	existing, err := p.entries.GetTrackerResults(entry.ID)
	if err != nil {
		return err
	}
	done := make(map[string]entrystore.TrackerOutcome, len(existing))
	for _, r := range existing {
		done[r.TrackerSlug] = r.Outcome
	}

	var succeeded, permanent int
	var retryable error
	for _, adapter := range p.adapters {
		slug := adapter.Slug()
		// Non-failed results recorded by a previous attempt are final; a
		// recorded failure is tried again.
		if outcome, ok := done[slug]; ok && outcome != entrystore.OutcomeFailed {
			succeeded++
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := p.uploadToTracker(ctx, entry, adapter)
		if err != nil {
			if core.IsRetryable(err) {
				log.With("entry", entry.ID, "tracker", slug).
					Warnf("Retryable upload failure: %s", err)
				retryable = err
				continue
			}
			permanent++
			p.recordResult(entry, &entrystore.TrackerResult{
				FileEntryID: entry.ID,
				TrackerSlug: slug,
				Outcome:     entrystore.OutcomeFailed,
				Error:       err.Error(),
			})
			continue
		}
		succeeded++
		if outcome == entrystore.OutcomeSkippedDuplicate {
			p.sink.Publish(events.Event{
				Kind:        events.DuplicateDetected,
				FileEntryID: entry.ID,
				ReleaseName: entry.ReleaseName,
				TrackerSlug: slug,
			})
		}
	}

	switch {
	case succeeded > 0 && (!p.config.RequireAllTrackers || permanent == 0):
		if retryable != nil && !p.config.RequireAllTrackers {
			log.With("entry", entry.ID).
				Warnf("Completing upload with a tracker still failing: %s", retryable)
		}
		return p.entries.Checkpoint(entry, entrystore.StageUpload)
	case retryable != nil:
		return retryable
	default:
		return core.Errorf(
			core.ErrKindTrackerPermanent, "upload failed on all %d trackers", len(p.adapters))
	}
}

func (p *Pipeline) uploadToTracker(
	ctx context.Context,
	entry *entrystore.Entry,
	adapter *trackers.Adapter) (entrystore.TrackerOutcome, error) {

	slug := adapter.Slug()

	q := trackers.DuplicateQueryFromMetadata(entry.Metadata.Release, entry.Metadata.Movie)
	q.ReleaseName = entry.ReleaseName
	matches, err := adapter.DuplicateCheck(ctx, q)
	if err != nil {
		return "", fmt.Errorf("duplicate check: %w", err)
	}
	if len(matches) > 0 && adapter.SkipOnDuplicate() {
		result := &entrystore.TrackerResult{
			FileEntryID:     entry.ID,
			TrackerSlug:     slug,
			Outcome:         entrystore.OutcomeSkippedDuplicate,
			RemoteURL:       matches[0].URL,
			RemoteTorrentID: remoteIDFromURL(matches[0].URL),
		}
		p.recordResult(entry, result)
		return entrystore.OutcomeSkippedDuplicate, nil
	}

	torrentPath, ok := entry.TorrentPaths[slug]
	if !ok {
		return "", core.Errorf(
			core.ErrKindInternalInvariant, "no torrent generated for %s", slug)
	}
	torrent, err := os.ReadFile(torrentPath)
	if err != nil {
		return "", core.Errorf(core.ErrKindInternalInvariant, "read torrent: %s", err)
	}

	var nfo string
	if entry.NfoPath != "" {
		data, err := os.ReadFile(entry.NfoPath)
		if err != nil {
			return "", core.Errorf(core.ErrKindInternalInvariant, "read nfo: %s", err)
		}
		nfo = string(data)
	}

	release := entry.Metadata.Release
	options := adapter.BuildOptions(trackers.OptionInput{
		Release:   release,
		Movie:     entry.Metadata.Movie,
		MediaInfo: entry.Metadata.MediaInfo,
	})
	var category interface{}
	if mi := entry.Metadata.MediaInfo; mi != nil {
		category, _ = adapter.Category("movie_" + mi.Resolution())
	}

	bctx, err := trackers.NewBuildContext(
		release, entry.Metadata.Movie, entry.Metadata.MediaInfo,
		nfo, nfo, torrent, options, category)
	if err != nil {
		return "", err
	}

	uploaded, err := adapter.Upload(ctx, bctx)
	if err != nil {
		return "", err
	}
	p.recordResult(entry, &entrystore.TrackerResult{
		FileEntryID:     entry.ID,
		TrackerSlug:     slug,
		Outcome:         entrystore.OutcomeUploaded,
		RemoteTorrentID: uploaded.TorrentID,
		RemoteURL:       uploaded.URL,
	})

	if err := p.registry.Torrents.AddTorrent(ctx, torrent, ""); err != nil {
		// The release is live on the tracker; seeding injection failure must
		// not undo that.
		log.With("entry", entry.ID, "tracker", slug).
			Errorf("Error adding torrent to seed client: %s", err)
	}
	return entrystore.OutcomeUploaded, nil
}

func (p *Pipeline) recordResult(entry *entrystore.Entry, r *entrystore.TrackerResult) {
	if err := p.entries.RecordTrackerResult(r); err != nil {
		log.With("entry", entry.ID, "tracker", r.TrackerSlug).
			Errorf("Error recording tracker result: %s", err)
	}
}

// remoteIDFromURL extracts a trailing numeric id from a download url, best
// effort.
func remoteIDFromURL(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	last := parts[len(parts)-1]
	for _, c := range last {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return last
}
