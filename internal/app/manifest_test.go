package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"noir-registry/internal/adapters"
	"noir-registry/internal/core"
	"noir-registry/internal/types"
)

const baseManifest = `[package]
name = "circuit"
type = "bin"

[dependencies]
`

const ecCryptoGit = "https://github.com/noir-lang/ec-crypto"

type manifestFixture struct {
	svc       Service
	dir       string
	path      string
	registry  *mockRegistry
	metadata  *mockMetadata
	toolchain *stubToolchain
	cacheRoot string
}

func newManifestFixture(t *testing.T, manifest string) manifestFixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, adapters.ManifestFileName)
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	cacheRoot := filepath.Join(t.TempDir(), "nargo")
	fixture := manifestFixture{
		dir:       dir,
		path:      path,
		registry:  &mockRegistry{},
		metadata:  &mockMetadata{},
		toolchain: &stubToolchain{ran: true},
		cacheRoot: cacheRoot,
	}
	fixture.svc = Service{
		Manifests: adapters.NewManifestFileAdapter(),
		Registry:  fixture.registry,
		Metadata:  fixture.metadata,
		Sources:   adapters.NewSourceCacheAdapter(cacheRoot),
		Toolchain: fixture.toolchain,
	}
	return fixture
}

func (f manifestFixture) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	return string(data)
}

func ecCryptoDetail(latest *string) types.PackageDetail {
	return types.PackageDetail{Package: types.Package{
		ID:            1,
		PackageRecord: types.PackageRecord{Name: "ec-crypto", GithubRepositoryURL: ecCryptoGit},
		LatestVersion: latest,
	}}
}

func TestAddDependencyWritesGitEntry(t *testing.T) {
	f := newManifestFixture(t, baseManifest)
	f.registry.On("Package", mock.Anything, "ec-crypto").Return(ecCryptoDetail(strPtr("v0.2.0")), nil)

	result, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "ec-crypto", WorkDir: f.dir})
	require.NoError(t, err)
	assert.Equal(t, f.path, result.ManifestPath)
	assert.Equal(t, types.Dependency{Key: "ec_crypto", Git: ecCryptoGit, Tag: "v0.2.0"}, result.Dependency)
	assert.Equal(t, TagSourceRegistry, result.TagSource)
	assert.True(t, result.Checked)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, []string{f.dir}, f.toolchain.calls)

	content := f.read(t)
	assert.Equal(t, baseManifest+`ec_crypto = { git = "https://github.com/noir-lang/ec-crypto", tag = "v0.2.0" }`+"\n", content)
	manifest, err := core.ParseManifest([]byte(content))
	require.NoError(t, err)
	dep, ok := manifest.Find("ec-crypto")
	require.True(t, ok)
	assert.Equal(t, "v0.2.0", dep.Tag)
	f.metadata.AssertNotCalled(t, "LatestTag", mock.Anything, mock.Anything)
}

func TestAddDependencyFindsManifestInParent(t *testing.T) {
	f := newManifestFixture(t, baseManifest)
	nested := filepath.Join(f.dir, "src", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	f.registry.On("Package", mock.Anything, "ec-crypto").Return(ecCryptoDetail(strPtr("v0.2.0")), nil)

	result, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "ec-crypto", WorkDir: nested, Tag: "v9.9.9", NoFetch: true})
	require.NoError(t, err)
	assert.Equal(t, f.path, result.ManifestPath)
	assert.Equal(t, "v9.9.9", result.Dependency.Tag)
	assert.Equal(t, TagSourceFlag, result.TagSource)
	assert.False(t, result.Checked)
	assert.Empty(t, f.toolchain.calls)
}

func TestAddDependencyRejectsDuplicate(t *testing.T) {
	manifest := baseManifest + `ec_crypto = { git = "https://github.com/noir-lang/ec-crypto", tag = "v0.1.0" }` + "\n"
	f := newManifestFixture(t, manifest)
	f.registry.On("Package", mock.Anything, "ec-crypto").Return(ecCryptoDetail(strPtr("v0.2.0")), nil)

	_, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "ec-crypto", WorkDir: f.dir})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeAlreadyExists, errbuilder.CodeOf(err))
	assert.Equal(t, manifest, f.read(t))
	assert.Empty(t, f.toolchain.calls)
}

func TestAddDependencyFallsBackToGithubTag(t *testing.T) {
	f := newManifestFixture(t, baseManifest)
	f.registry.On("Package", mock.Anything, "ec-crypto").Return(ecCryptoDetail(nil), nil)
	f.metadata.On("LatestTag", mock.Anything, ecCryptoRef).Return("v0.3.1", nil)

	result, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "ec-crypto", WorkDir: f.dir})
	require.NoError(t, err)
	assert.Equal(t, "v0.3.1", result.Dependency.Tag)
	assert.Equal(t, TagSourceGithub, result.TagSource)
	f.metadata.AssertExpectations(t)
}

func TestAddDependencyWithoutAnyTag(t *testing.T) {
	f := newManifestFixture(t, baseManifest)
	f.registry.On("Package", mock.Anything, "ec-crypto").Return(ecCryptoDetail(nil), nil)
	f.metadata.On("LatestTag", mock.Anything, ecCryptoRef).Return("",
		errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg("no tags"))

	result, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "ec-crypto", WorkDir: f.dir})
	require.NoError(t, err)
	assert.Equal(t, TagSourceNone, result.TagSource)
	assert.Empty(t, result.Dependency.Tag)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "no version tag")
	assert.Empty(t, f.toolchain.calls)
	assert.Contains(t, f.read(t), `ec_crypto = { git = "https://github.com/noir-lang/ec-crypto" }`)
}

func TestAddDependencyUnknownPackageLeavesManifest(t *testing.T) {
	f := newManifestFixture(t, baseManifest)
	f.registry.On("Package", mock.Anything, "ghost").Return(types.PackageDetail{},
		errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg(`package "ghost" not found in registry`))

	_, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "ghost", WorkDir: f.dir})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
	assert.Equal(t, baseManifest, f.read(t))
}

func TestAddDependencyReportsFailedCheck(t *testing.T) {
	f := newManifestFixture(t, baseManifest)
	f.toolchain.err = errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition).WithMsg("nargo check failed")
	f.registry.On("Package", mock.Anything, "ec-crypto").Return(ecCryptoDetail(strPtr("v0.2.0")), nil)

	result, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "ec-crypto", WorkDir: f.dir})
	require.NoError(t, err)
	assert.False(t, result.Checked)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "noir-registry remove ec-crypto")
	assert.Contains(t, f.read(t), "ec_crypto = ")
}

func TestAddDependencyWithoutNargo(t *testing.T) {
	f := newManifestFixture(t, baseManifest)
	f.toolchain.ran = false
	f.registry.On("Package", mock.Anything, "ec-crypto").Return(ecCryptoDetail(strPtr("v0.2.0")), nil)

	result, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "ec-crypto", WorkDir: f.dir})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "nargo not found in PATH")
}

func TestAddDependencyRequiresName(t *testing.T) {
	f := newManifestFixture(t, baseManifest)
	_, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "  ", WorkDir: f.dir})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

const twoDependencyManifest = `[package]
name = "circuit"
type = "bin"

[dependencies]
ec_crypto = { git = "https://github.com/noir-lang/ec-crypto", tag = "v0.1.0" }
hasher = { git = "https://github.com/noir-lang/hasher", tag = "v1.0.0" }
`

func TestRemoveDependenciesReportsMissingNames(t *testing.T) {
	f := newManifestFixture(t, twoDependencyManifest)

	result, err := f.svc.RemoveDependencies(context.Background(), RemoveRequest{
		Names:   []string{"ec-crypto", "ghost", "hasher"},
		WorkDir: f.dir,
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)
	assert.True(t, result.Outcomes[0].Removed)
	assert.Equal(t, "ec_crypto", result.Outcomes[0].Key)
	assert.False(t, result.Outcomes[1].Removed)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(result.Outcomes[1].Err))
	assert.True(t, result.Outcomes[2].Removed)
	assert.Equal(t, []string{"ghost"}, result.Missing())

	assert.Equal(t, "[package]\nname = \"circuit\"\ntype = \"bin\"\n\n[dependencies]\n", f.read(t))
}

func TestRemoveDependenciesNothingMatched(t *testing.T) {
	f := newManifestFixture(t, twoDependencyManifest)

	result, err := f.svc.RemoveDependencies(context.Background(), RemoveRequest{Names: []string{"ghost"}, WorkDir: f.dir})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
	assert.Equal(t, []string{"ghost"}, result.Missing())
	assert.Equal(t, twoDependencyManifest, f.read(t))
}

func TestRemoveDependenciesPurgesCachedSource(t *testing.T) {
	f := newManifestFixture(t, twoDependencyManifest)
	target := filepath.Join(f.cacheRoot, "github.com", "noir-lang", "ec-crypto")
	sibling := filepath.Join(f.cacheRoot, "github.com", "noir-lang", "hasher")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "lib.nr"), []byte("fn main() {}"), 0o644))

	result, err := f.svc.RemoveDependencies(context.Background(), RemoveRequest{
		Names:   []string{"ec-crypto", "ec_crypto"},
		WorkDir: f.dir,
		Purge:   true,
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	for _, outcome := range result.Outcomes {
		assert.True(t, outcome.Removed)
		assert.Empty(t, outcome.Warning)
	}
	assert.NoDirExists(t, target)
	assert.DirExists(t, sibling)
	assert.Contains(t, f.read(t), "hasher = ")
}

func TestRemoveDependenciesPurgeWarningKeepsEdit(t *testing.T) {
	manifest := baseManifest + `local = { path = "../local" }` + "\n"
	f := newManifestFixture(t, manifest)

	result, err := f.svc.RemoveDependencies(context.Background(), RemoveRequest{Names: []string{"local"}, WorkDir: f.dir, Purge: true})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Removed)
	assert.Contains(t, result.Outcomes[0].Warning, "no git url")
	assert.Equal(t, baseManifest, f.read(t))
}

func TestAddDependencyAgainstFlakyRegistry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(ecCryptoDetail(strPtr("v0.2.0")))
	}))
	defer server.Close()

	f := newManifestFixture(t, baseManifest)
	f.svc.Registry = adapters.NewRegistryClientAdapter(server.URL+"/api", time.Second, 3, time.Millisecond)

	result, err := f.svc.AddDependency(context.Background(), AddRequest{Name: "ec-crypto", WorkDir: f.dir, NoFetch: true})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "v0.2.0", result.Dependency.Tag)
	assert.Contains(t, f.read(t), `ec_crypto = { git = "https://github.com/noir-lang/ec-crypto", tag = "v0.2.0" }`)
}
