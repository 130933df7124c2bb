package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stubBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
	t.Cleanup(func() { readBuildInfo = orig })
}

func stubLdflags(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, Date
	Version, Commit, Date = version, commit, date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
}

func TestGetInfoPrefersLdflags(t *testing.T) {
	stubLdflags(t, "1.2.0", "abc123def456", "2026-01-01T12:00:00Z")
	stubBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v0.9.0"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffff"}},
	})

	info := GetInfo()
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, "abc123def456", info.Commit)
	assert.Equal(t, "2026-01-01T12:00:00Z", info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestGetInfoFallsBackToBuildInfo(t *testing.T) {
	stubLdflags(t, "dev", "unknown", "unknown")
	stubBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-03-04T05:06:07Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	info := GetInfo()
	assert.Equal(t, "v0.4.1", info.Version)
	assert.Equal(t, "0123456789abcdef", info.Commit)
	assert.Equal(t, "2026-03-04T05:06:07Z", info.Date)
	assert.True(t, info.Modified)
	assert.Contains(t, info.String(), "(01234567-dirty)")
}

func TestGetInfoDevelBuild(t *testing.T) {
	stubLdflags(t, "dev", "unknown", "unknown")
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	assert.Equal(t, "dev", GetInfo().Version)

	stubBuildInfo(t, nil)
	assert.Equal(t, "unknown", GetInfo().Commit)
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "1.0.0", Commit: "abc", Date: "2026-01-01", GoVersion: "go1.24.6", Platform: "linux/amd64"}
	assert.Equal(t, "pipescope 1.0.0 (abc) built 2026-01-01 with go1.24.6 for linux/amd64", info.String())
	assert.Equal(t, "1.0.0", info.Short())
}
