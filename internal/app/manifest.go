package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"noir-registry/internal/core"
	"noir-registry/internal/shared"
	"noir-registry/internal/types"
)

// AddDependency looks name up in the remote registry and appends it to the
// project's manifest as a git dependency. An existing entry under the raw
// or sanitized key leaves the file untouched.
func (s Service) AddDependency(ctx context.Context, req AddRequest) (AddResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return AddResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("package name is required")
	}
	path, err := s.locateManifest(req.ManifestPath, req.WorkDir)
	if err != nil {
		return AddResult{}, err
	}
	logger := log.Ctx(ctx).With().Str("package", name).Str("manifest", path).Logger()

	detail, err := s.Registry.Package(ctx, name)
	if err != nil {
		return AddResult{}, err
	}
	if strings.TrimSpace(detail.GithubRepositoryURL) == "" {
		return AddResult{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("registry entry for %q has no repository url", name))
	}

	data, err := s.Manifests.Read(path)
	if err != nil {
		return AddResult{}, err
	}
	manifest, err := core.ParseManifest(data)
	if err != nil {
		return AddResult{}, err
	}
	if existing, ok := manifest.Find(name); ok {
		return AddResult{}, errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(fmt.Sprintf("dependency %q already exists in %s as %q", name, path, existing.Key))
	}

	tag, source := s.resolveTag(ctx, req.Tag, detail)
	dep := types.Dependency{
		Key: core.SanitizeDependencyKey(name),
		Git: detail.GithubRepositoryURL,
		Tag: tag,
	}
	updated, err := manifest.AddDependency(dep)
	if err != nil {
		return AddResult{}, err
	}
	if err := s.Manifests.Replace(path, updated); err != nil {
		return AddResult{}, err
	}
	logger.Info().Str("key", dep.Key).Str("tag", dep.Tag).Msg("dependency added")

	result := AddResult{ManifestPath: path, Dependency: dep, TagSource: source}
	if source == TagSourceNone {
		result.Warnings = append(result.Warnings, "no version tag found; add a tag to the entry once the package publishes a release")
	}
	if req.NoFetch || dep.Tag == "" || s.Toolchain == nil {
		return result, nil
	}
	ran, err := s.Toolchain.Check(ctx, filepath.Dir(path))
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("dependency added but nargo check failed")
		result.Warnings = append(result.Warnings, fmt.Sprintf("nargo check failed: %s; run `noir-registry remove %s` to undo", shared.ErrorMessage(err), name))
	case !ran:
		result.Warnings = append(result.Warnings, "nargo not found in PATH; run `nargo check` to fetch the dependency")
	default:
		result.Checked = true
	}
	return result, nil
}

// resolveTag prefers an explicit tag, then the registry's latest version,
// then the newest tag on the hosting platform.
func (s Service) resolveTag(ctx context.Context, explicit string, detail types.PackageDetail) (string, TagSource) {
	if tag := strings.TrimSpace(explicit); tag != "" {
		return tag, TagSourceFlag
	}
	if latest := strings.TrimSpace(shared.StringValue(detail.LatestVersion)); latest != "" {
		return latest, TagSourceRegistry
	}
	if s.Metadata == nil {
		return "", TagSourceNone
	}
	ref, err := core.ParseGithubURL(detail.GithubRepositoryURL)
	if err != nil {
		return "", TagSourceNone
	}
	tag, err := s.Metadata.LatestTag(ctx, ref)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("repository", detail.GithubRepositoryURL).Msg("no tag available")
		return "", TagSourceNone
	}
	return tag, TagSourceGithub
}

// RemoveDependencies drops every requested name present in the manifest in
// a single write. Names that are absent are reported per name. Cache purge
// failures become warnings and never undo the manifest edit.
func (s Service) RemoveDependencies(ctx context.Context, req RemoveRequest) (RemoveResult, error) {
	if len(req.Names) == 0 {
		return RemoveResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("at least one package name is required")
	}
	path, err := s.locateManifest(req.ManifestPath, req.WorkDir)
	if err != nil {
		return RemoveResult{}, err
	}
	data, err := s.Manifests.Read(path)
	if err != nil {
		return RemoveResult{}, err
	}
	manifest, err := core.ParseManifest(data)
	if err != nil {
		return RemoveResult{}, err
	}

	result := RemoveResult{ManifestPath: path}
	var keys []string
	picked := map[string]struct{}{}
	found := map[string]types.Dependency{}
	for _, raw := range req.Names {
		name := strings.TrimSpace(raw)
		dep, ok := manifest.Find(name)
		if !ok {
			result.Outcomes = append(result.Outcomes, types.RemoveOutcome{
				Name: name,
				Err: errbuilder.New().
					WithCode(errbuilder.CodeNotFound).
					WithMsg(fmt.Sprintf("dependency %q not found in %s", name, path)),
			})
			continue
		}
		found[name] = dep
		result.Outcomes = append(result.Outcomes, types.RemoveOutcome{Name: name, Key: dep.Key, Removed: true})
		if _, dup := picked[dep.Key]; !dup {
			picked[dep.Key] = struct{}{}
			keys = append(keys, dep.Key)
		}
	}
	if len(keys) == 0 {
		return result, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("none of %s found in %s", strings.Join(req.Names, ", "), path))
	}

	updated, err := manifest.RemoveDependencies(keys)
	if err != nil {
		return RemoveResult{}, err
	}
	if err := s.Manifests.Replace(path, updated); err != nil {
		return RemoveResult{}, err
	}
	log.Ctx(ctx).Info().Strs("keys", keys).Str("manifest", path).Msg("dependencies removed")

	if req.Purge {
		purged := map[string]struct{}{}
		for i, outcome := range result.Outcomes {
			if !outcome.Removed {
				continue
			}
			if _, done := purged[outcome.Key]; done {
				continue
			}
			purged[outcome.Key] = struct{}{}
			result.Outcomes[i].Warning = s.purgeSource(ctx, found[outcome.Name])
		}
	}
	return result, nil
}

func (s Service) purgeSource(ctx context.Context, dep types.Dependency) string {
	if s.Sources == nil {
		return ""
	}
	if strings.TrimSpace(dep.Git) == "" {
		return fmt.Sprintf("dependency %q has no git url; nothing to purge", dep.Key)
	}
	path, err := s.Sources.Purge(dep.Git)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("git", dep.Git).Msg("failed to purge cached source")
		return fmt.Sprintf("failed to purge cached source for %s: %s", dep.Git, shared.ErrorMessage(err))
	}
	log.Ctx(ctx).Debug().Str("path", path).Msg("cached source purged")
	return ""
}

// PackageInfo fetches one package from the remote registry.
func (s Service) PackageInfo(ctx context.Context, name string) (types.PackageDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.PackageDetail{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("package name is required")
	}
	return s.Registry.Package(ctx, name)
}

// SearchRegistry runs a search against the remote registry.
func (s Service) SearchRegistry(ctx context.Context, term string, query types.ListQuery) ([]types.Package, error) {
	normalized, err := core.NormalizeListQuery(query)
	if err != nil {
		return nil, err
	}
	return s.Registry.Search(ctx, strings.TrimSpace(term), normalized)
}

func (s Service) locateManifest(hint string, workDir string) (string, error) {
	start := strings.TrimSpace(workDir)
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to determine working directory").
				WithCause(err)
		}
		start = cwd
	}
	return s.Manifests.Locate(strings.TrimSpace(hint), start)
}
