package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildInfo(version string) *debug.BuildInfo {
	return &debug.BuildInfo{Main: debug.Module{Version: version}}
}

func TestDescribeSemanticVersion(t *testing.T) {
	r := require.New(t)
	info := describe(buildInfo("v1.2.3"))
	r.Equal("1", info.Major)
	r.Equal("2", info.Minor)
	r.Equal("3", info.Patch)
	r.Equal("1.2.3", info.GitVersion)
	r.Empty(info.PreRelease)
	r.Empty(info.BuildDate)
	r.Empty(info.GitCommit)
	r.NotEmpty(info.GoVersion)
	r.NotEmpty(info.Platform)
}

func TestDescribePseudoVersion(t *testing.T) {
	r := require.New(t)
	info := describe(buildInfo("v1.2.3-20240101120000-abcdef123456+dirty"))
	r.Equal("1", info.Major)
	r.Equal("20240101120000-abcdef123456", info.PreRelease)
	r.Equal("20240101120000", info.BuildDate)
	r.Equal("abcdef123456", info.GitCommit)
	r.Equal("dirty", info.Meta)
}

func TestDescribeNonSemanticVersion(t *testing.T) {
	r := require.New(t)
	info := describe(buildInfo("(devel)"))
	r.Equal("(devel)", info.GitVersion)
	r.Equal("0", info.Major)
	r.Equal("0", info.Minor)
	r.Equal("0", info.Patch)
}
