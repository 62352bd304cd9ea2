package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"noir-registry/internal/core"
	"noir-registry/internal/ports"
	"noir-registry/internal/types"
)

// Ingest pulls the curated index, enriches every entry with repository
// metadata and merges the result into the store by package name. A failure
// on one entry is counted and the batch moves on; only a failed index fetch
// or a cancelled context ends the run early.
func (s Service) Ingest(ctx context.Context, req IngestRequest) (types.IngestionReport, error) {
	report := types.IngestionReport{}
	if err := s.requireStore(); err != nil {
		return report, err
	}
	logger := log.Ctx(ctx)
	started := s.now()
	document, err := s.Index.FetchIndex(ctx)
	if err != nil {
		return report, err
	}
	parsed := s.Parser.Parse(document)
	report.Found = len(parsed.Entries)
	report.Discarded = parsed.Discarded
	for _, name := range parsed.Duplicates {
		logger.Warn().Str("package", name).Msg("duplicate index entry ignored")
	}
	categories, err := s.Store.ListCategories(ctx)
	if err != nil {
		return report, err
	}
	logger.Info().Int("entries", report.Found).Int("discarded", report.Discarded).Msg("index parsed")

	defer func() {
		if s.Cache != nil {
			s.Cache.Flush(ctx)
		}
	}()
	for i, entry := range parsed.Entries {
		if i > 0 {
			if err := sleepContext(ctx, req.Delay); err != nil {
				return report, interrupted(err)
			}
		} else if err := ctx.Err(); err != nil {
			return report, interrupted(err)
		}
		s.ingestEntry(ctx, entry, categories, req, &report)
	}
	logger.Info().
		Int("found", report.Found).
		Int("enriched", report.Enriched).
		Int("partial", report.Partial).
		Int("inserted", report.Inserted).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("failed", report.Failed).
		Int("versions", report.Versions).
		Dur("took", s.now().Sub(started)).
		Msg("ingestion finished")
	return report, nil
}

// ScheduleIngest registers a recurring ingestion run on scheduler.
func (s Service) ScheduleIngest(ctx context.Context, scheduler ports.SchedulerPort, schedule string, req IngestRequest) error {
	return scheduler.AddJob(ctx, schedule, "ingest", func(jobCtx context.Context) {
		if _, err := s.Ingest(jobCtx, req); err != nil {
			log.Ctx(jobCtx).Error().Err(err).Msg("scheduled ingestion failed")
		}
	})
}

func (s Service) ingestEntry(ctx context.Context, entry types.IndexEntry, categories []types.Category, req IngestRequest, report *types.IngestionReport) {
	logger := log.Ctx(ctx).With().Str("package", entry.Name).Logger()
	ref, err := core.ParseGithubURL(entry.RepositoryURL)
	if err != nil {
		logger.Warn().Err(err).Msg("skipping entry with malformed repository url")
		report.Failed++
		return
	}
	metadata, status, err := s.enrich(ctx, ref)
	if status == types.EnrichmentFailed {
		logger.Warn().Err(err).Msg("skipping entry, repository metadata unavailable")
		report.Failed++
		return
	}
	if status == types.EnrichmentPartial {
		logger.Warn().Err(err).Msg("enrichment incomplete, storing index data only")
	}

	existing, err := s.Store.FindPackage(ctx, entry.Name)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load stored package")
		report.Failed++
		return
	}
	record := core.MergePackage(ctx, existing, types.IndexedPackage{Entry: entry, Ref: ref, Metadata: metadata})
	result, err := s.Store.UpsertPackage(ctx, record)
	if err != nil {
		logger.Error().Err(err).Msg("failed to upsert package")
		report.Failed++
		return
	}
	if err := s.persistAssociations(ctx, result.ID, entry, metadata, categories); err != nil {
		logger.Error().Err(err).Msg("failed to store keywords or category")
		report.Failed++
		return
	}

	switch {
	case result.Created:
		report.Inserted++
	case result.Changed:
		report.Updated++
	default:
		report.Unchanged++
	}
	if status == types.EnrichmentComplete {
		report.Enriched++
	} else {
		report.Partial++
	}
	if req.Releases && metadata != nil {
		report.Versions += s.recordReleases(ctx, logger, result.ID, ref)
	}
	logger.Debug().Str("enrichment", string(status)).Bool("created", result.Created).Msg("package ingested")
}

// enrich classifies the metadata lookup: unavailable upstreams degrade to
// partial enrichment, every other failure rejects the entry.
func (s Service) enrich(ctx context.Context, ref types.SourceRef) (*types.RepoMetadata, types.EnrichmentStatus, error) {
	if s.Metadata == nil {
		return nil, types.EnrichmentPartial, nil
	}
	metadata, err := s.Metadata.Repository(ctx, ref)
	if err == nil {
		return &metadata, types.EnrichmentComplete, nil
	}
	if errbuilder.CodeOf(err) == errbuilder.CodeUnavailable {
		return nil, types.EnrichmentPartial, err
	}
	return nil, types.EnrichmentFailed, err
}

func (s Service) persistAssociations(ctx context.Context, packageID int64, entry types.IndexEntry, metadata *types.RepoMetadata, categories []types.Category) error {
	if metadata != nil {
		if err := s.Store.ReplaceKeywords(ctx, packageID, metadata.Topics); err != nil {
			return err
		}
	}
	category, ok := core.MatchCategory(entry.Sections, categories)
	if !ok {
		return nil
	}
	return s.Store.SetCategory(ctx, packageID, &category.ID)
}

func (s Service) recordReleases(ctx context.Context, logger zerolog.Logger, packageID int64, ref types.SourceRef) int {
	releases, err := s.Metadata.Releases(ctx, ref)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to list releases")
		return 0
	}
	inserted := 0
	for _, release := range releases {
		exists, err := s.Store.VersionExists(ctx, packageID, release.Tag)
		if err != nil {
			logger.Warn().Err(err).Str("version", release.Tag).Msg("failed to check version")
			continue
		}
		if exists {
			continue
		}
		if _, err := s.Store.InsertVersion(ctx, packageID, releaseVersion(release)); err != nil {
			if errbuilder.CodeOf(err) != errbuilder.CodeAlreadyExists {
				logger.Warn().Err(err).Str("version", release.Tag).Msg("failed to record version")
			}
			continue
		}
		inserted++
	}
	return inserted
}

func releaseVersion(release types.Release) types.VersionRecord {
	record := types.VersionRecord{
		Version:     release.Tag,
		PublishedAt: release.PublishedAt,
	}
	if release.Body != "" {
		body := release.Body
		record.Changelog = &body
	}
	if release.TarballURL != "" {
		url := release.TarballURL
		record.DownloadURL = &url
	}
	return record
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func interrupted(err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("ingestion interrupted: %v", err)).
		WithCause(err)
}
