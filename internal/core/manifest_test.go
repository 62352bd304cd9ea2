package core

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"noir-registry/internal/types"
)

const sampleManifest = `[package]
name = "circuit"
type = "bin"
authors = [
  "alice",  # lead
  "bob",
]
compiler_version = ">=0.36.0"

# registry packages
[dependencies]
ec_crypto = { git = "https://github.com/noir-lang/ec-crypto", tag = "v0.1.0" }
noir-bignum = { git = "https://github.com/noir-lang/noir-bignum", tag = "v0.4.2" }

[dependencies.sha512]
git = "https://github.com/someone/sha512"
tag = "v1.0.0"

[workspace]
members = ["a", "b"]
`

func mustParseManifest(t *testing.T, data string) Manifest {
	t.Helper()
	manifest, err := ParseManifest([]byte(data))
	require.NoError(t, err)
	return manifest
}

func TestParseManifestInvalid(t *testing.T) {
	_, err := ParseManifest([]byte("[package\nname = 1"))
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestSanitizeDependencyKey(t *testing.T) {
	assert.Equal(t, "ec_crypto", SanitizeDependencyKey("ec-crypto"))
	assert.Equal(t, "noir_jwt", SanitizeDependencyKey(" noir jwt "))
	assert.Equal(t, "already_ok", SanitizeDependencyKey("already_ok"))
}

func TestManifestFind(t *testing.T) {
	manifest := mustParseManifest(t, sampleManifest)

	dep, ok := manifest.Find("ec-crypto")
	require.True(t, ok)
	assert.Equal(t, types.Dependency{Key: "ec_crypto", Git: "https://github.com/noir-lang/ec-crypto", Tag: "v0.1.0"}, dep)

	dep, ok = manifest.Find("noir-bignum")
	require.True(t, ok)
	assert.Equal(t, "noir-bignum", dep.Key)

	dep, ok = manifest.Find("sha512")
	require.True(t, ok)
	assert.Equal(t, "v1.0.0", dep.Tag)

	_, ok = manifest.Find("missing")
	assert.False(t, ok)
}

func TestManifestAddDependencyAppendsToTable(t *testing.T) {
	manifest := mustParseManifest(t, sampleManifest)

	out, err := manifest.AddDependency(types.Dependency{Key: "poseidon", Git: "https://github.com/noir-lang/poseidon", Tag: "v0.2.0"})
	require.NoError(t, err)

	want := strings.Replace(sampleManifest,
		"tag = \"v0.4.2\" }\n",
		"tag = \"v0.4.2\" }\nposeidon = { git = \"https://github.com/noir-lang/poseidon\", tag = \"v0.2.0\" }\n", 1)
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestManifestAddDependencyWithoutTag(t *testing.T) {
	manifest := mustParseManifest(t, "[dependencies]\n")
	out, err := manifest.AddDependency(types.Dependency{Key: "lib", Git: "https://github.com/o/lib"})
	require.NoError(t, err)
	assert.Equal(t, "[dependencies]\nlib = { git = \"https://github.com/o/lib\" }\n", string(out))
}

func TestManifestAddDependencyCreatesTable(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "trailing newline",
			input: "[package]\nname = \"x\"\n",
			want:  "[package]\nname = \"x\"\n\n[dependencies]\nlib = { git = \"https://github.com/o/lib\", tag = \"v1\" }\n",
		},
		{
			name:  "no trailing newline",
			input: "[package]\nname = \"x\"",
			want:  "[package]\nname = \"x\"\n\n[dependencies]\nlib = { git = \"https://github.com/o/lib\", tag = \"v1\" }",
		},
		{
			name:  "crlf",
			input: "[package]\r\nname = \"x\"\r\n",
			want:  "[package]\r\nname = \"x\"\r\n\r\n[dependencies]\r\nlib = { git = \"https://github.com/o/lib\", tag = \"v1\" }\r\n",
		},
		{
			name:  "empty document",
			input: "",
			want:  "[dependencies]\nlib = { git = \"https://github.com/o/lib\", tag = \"v1\" }\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest := mustParseManifest(t, tt.input)
			out, err := manifest.AddDependency(types.Dependency{Key: "lib", Git: "https://github.com/o/lib", Tag: "v1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestManifestAddDependencyConflict(t *testing.T) {
	manifest := mustParseManifest(t, sampleManifest)
	_, err := manifest.AddDependency(types.Dependency{Key: "ec_crypto", Git: "https://github.com/x/y"})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeAlreadyExists, errbuilder.CodeOf(err))
}

func TestManifestAddDependencyQuotesUnusualValues(t *testing.T) {
	manifest := mustParseManifest(t, "[dependencies]\n")
	out, err := manifest.AddDependency(types.Dependency{Key: "odd.key", Git: `https://github.com/o/"quoted"`, Tag: "v1\\2"})
	require.NoError(t, err)

	doc := map[string]any{}
	require.NoError(t, toml.Unmarshal(out, &doc))
	deps := doc["dependencies"].(map[string]any)
	entry := deps["odd.key"].(map[string]any)
	assert.Equal(t, `https://github.com/o/"quoted"`, entry["git"])
	assert.Equal(t, "v1\\2", entry["tag"])
}

func TestManifestAddDependencyInlineTableRejected(t *testing.T) {
	manifest := mustParseManifest(t, "dependencies = { a = { git = \"https://github.com/o/a\" } }\n")
	_, err := manifest.AddDependency(types.Dependency{Key: "lib", Git: "https://github.com/o/lib"})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
}

func TestManifestRemoveDependencies(t *testing.T) {
	manifest := mustParseManifest(t, sampleManifest)

	out, err := manifest.RemoveDependencies([]string{"ec_crypto", "sha512"})
	require.NoError(t, err)

	want := `[package]
name = "circuit"
type = "bin"
authors = [
  "alice",  # lead
  "bob",
]
compiler_version = ">=0.36.0"

# registry packages
[dependencies]
noir-bignum = { git = "https://github.com/noir-lang/noir-bignum", tag = "v0.4.2" }


[workspace]
members = ["a", "b"]
`
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}
	reparsed := mustParseManifest(t, string(out))
	deps, err := reparsed.Dependencies()
	require.NoError(t, err)
	assert.Len(t, deps, 1)
}

func TestManifestRemoveMultilineEntry(t *testing.T) {
	input := "[dependencies]\nkeep = { git = \"https://github.com/o/keep\" }\nlist = [\n  \"[not-a-header]\",\n]\nlast = \"x\"\n"
	manifest := mustParseManifest(t, input)

	out, err := manifest.RemoveDependencies([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, "[dependencies]\nkeep = { git = \"https://github.com/o/keep\" }\nlast = \"x\"\n", string(out))
}

func TestManifestRemoveKeepsNeighbouringComments(t *testing.T) {
	input := "[dependencies]\n# crypto\nec = { git = \"https://github.com/o/ec\" } # pinned later\n# hashing\nsha = { git = \"https://github.com/o/sha\" }\n"
	manifest := mustParseManifest(t, input)

	out, err := manifest.RemoveDependencies([]string{"ec"})
	require.NoError(t, err)
	assert.Equal(t, "[dependencies]\n# crypto\n# hashing\nsha = { git = \"https://github.com/o/sha\" }\n", string(out))
}

func TestManifestRemoveMissing(t *testing.T) {
	manifest := mustParseManifest(t, sampleManifest)
	_, err := manifest.RemoveDependencies([]string{"missing"})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}

func TestManifestAddThenRemoveRestoresDocument(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 5).Draw(t, "count")
		var b strings.Builder
		b.WriteString("[package]\nname = \"prop\"\n")
		if rapid.Bool().Draw(t, "comment") {
			b.WriteString("# dependencies follow\n")
		}
		b.WriteString("\n[dependencies]\n")
		keys := map[string]struct{}{}
		for i := 0; i < count; i++ {
			key := rapid.StringMatching(`[a-z][a-z0-9_]{0,8}`).Draw(t, "key")
			if _, dup := keys[key]; dup || key == "added" {
				continue
			}
			keys[key] = struct{}{}
			fmt.Fprintf(&b, "%s = { git = \"https://github.com/o/%s\" }\n", key, key)
			if rapid.Bool().Draw(t, "blank") {
				b.WriteString("\n")
			}
		}
		if rapid.Bool().Draw(t, "trailer") {
			b.WriteString("\n[workspace]\nmembers = []\n")
		}
		original := b.String()

		manifest, err := ParseManifest([]byte(original))
		if err != nil {
			t.Fatalf("parse original: %v", err)
		}
		added, err := manifest.AddDependency(types.Dependency{Key: "added", Git: "https://github.com/o/added", Tag: "v1"})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		edited, err := ParseManifest(added)
		if err != nil {
			t.Fatalf("parse edited: %v", err)
		}
		if _, ok := edited.Find("added"); !ok {
			t.Fatalf("added dependency missing from:\n%s", added)
		}
		restored, err := edited.RemoveDependencies([]string{"added"})
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		if string(restored) != original {
			t.Fatalf("round trip changed the document:\n--- original\n%s\n--- restored\n%s", original, restored)
		}
	})
}
