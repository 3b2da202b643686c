package cli

import (
	"encoding/json"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/aidanlsb/kiln/internal/buildinfo"
	"github.com/aidanlsb/kiln/internal/catalog"
)

func stampBuildinfo(t *testing.T, version, commit, date string) {
	t.Helper()
	prevV, prevC, prevD := buildinfo.Version, buildinfo.Commit, buildinfo.Date
	t.Cleanup(func() { buildinfo.Version, buildinfo.Commit, buildinfo.Date = prevV, prevC, prevD })
	buildinfo.Version, buildinfo.Commit, buildinfo.Date = version, commit, date
}

func TestReadVersion(t *testing.T) {
	host := runtime.GOOS + "/" + runtime.GOARCH

	tests := []struct {
		name  string
		bi    *debug.BuildInfo
		stamp [3]string
		want  versionInfo
	}{
		{
			name: "release with storage deps",
			bi: &debug.BuildInfo{
				GoVersion: "go1.24.1",
				Main:      debug.Module{Path: "github.com/aidanlsb/kiln", Version: "v0.3.0"},
				Deps: []*debug.Module{
					{Path: "modernc.org/sqlite", Version: "v1.29.1"},
					{Path: "github.com/dgraph-io/badger/v4", Version: "v4.9.1"},
					{Path: "github.com/spf13/cobra", Version: "v1.8.0"},
				},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abc123"},
					{Key: "vcs.time", Value: "2026-09-01T10:00:00Z"},
					{Key: "vcs.modified", Value: "true"},
					{Key: "GOOS", Value: "windows"},
					{Key: "GOARCH", Value: "amd64"},
				},
			},
			want: versionInfo{
				Version: "v0.3.0", Commit: "abc123", Built: "2026-09-01T10:00:00Z", Dirty: true,
				Go: "go1.24.1", Platform: "windows/amd64", Catalog: catalog.CurrentVersion,
				Storage: map[string]string{
					"catalog": "modernc.org/sqlite v1.29.1",
					"buffers": "github.com/dgraph-io/badger/v4 v4.9.1",
				},
			},
		},
		{
			name: "no build info",
			want: versionInfo{Version: "devel", Go: runtime.Version(), Platform: host, Catalog: catalog.CurrentVersion},
		},
		{
			name:  "stamped devel build",
			bi:    &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			stamp: [3]string{"v0.4.0", "fff000", "2026-10-01"},
			want: versionInfo{
				Version: "v0.4.0", Commit: "fff000", Built: "2026-10-01",
				Go: runtime.Version(), Platform: host, Catalog: catalog.CurrentVersion,
			},
		},
		{
			name: "vcs info wins over stamp",
			bi: &debug.BuildInfo{
				Main:     debug.Module{Version: "v1.0.0"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "from-vcs"}},
			},
			stamp: [3]string{"v9.9.9", "from-ldflags", ""},
			want: versionInfo{
				Version: "v1.0.0", Commit: "from-vcs",
				Go: runtime.Version(), Platform: host, Catalog: catalog.CurrentVersion,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stampBuildinfo(t, tt.stamp[0], tt.stamp[1], tt.stamp[2])
			if got := readVersion(tt.bi); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("readVersion() = %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestShortCommit(t *testing.T) {
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("shortCommit = %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Errorf("shortCommit = %q", got)
	}
}

func TestVersionCommand(t *testing.T) {
	stampBuildinfo(t, "", "", "")
	prevRead := readBuildInfo
	t.Cleanup(func() { readBuildInfo = prevRead })
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "(devel)"},
			Deps: []*debug.Module{{Path: "modernc.org/sqlite", Version: "v1.29.1"}},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "deadbeefdeadbeef"},
				{Key: "vcs.modified", Value: "true"},
			},
		}, true
	}
	prevJSON := jsonOutput
	t.Cleanup(func() { jsonOutput = prevJSON })

	t.Run("json", func(t *testing.T) {
		jsonOutput = true
		out := captureStdout(t, func() {
			if err := versionCmd.RunE(versionCmd, nil); err != nil {
				t.Errorf("RunE: %v", err)
			}
		})
		var resp struct {
			OK   bool        `json:"ok"`
			Data versionInfo `json:"data"`
		}
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("parse: %v; out=%s", err, out)
		}
		if !resp.OK || resp.Data.Commit != "deadbeefdeadbeef" || resp.Data.Catalog != catalog.CurrentVersion {
			t.Errorf("response = %+v", resp)
		}
		if resp.Data.Storage["catalog"] != "modernc.org/sqlite v1.29.1" {
			t.Errorf("storage = %v", resp.Data.Storage)
		}
	})

	t.Run("text", func(t *testing.T) {
		jsonOutput = false
		out := captureStdout(t, func() {
			if err := versionCmd.RunE(versionCmd, nil); err != nil {
				t.Errorf("RunE: %v", err)
			}
		})
		for _, want := range []string{"devel", "deadbeefdead (dirty)", "schema v1", "modernc.org/sqlite v1.29.1"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "buffers engine") {
			t.Errorf("absent engine should not be listed:\n%s", out)
		}
	})
}
