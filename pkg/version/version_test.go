package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestVersionString(t *testing.T) {
	v := Version{Major: "1", Minor: "2", Patch: "3", Metadata: "dev", Build: "abcdef"}
	if got := v.String(); got != "Version: 1.2.3-dev\nBuild: abcdef" {
		t.Errorf("unexpected version string %q", got)
	}
	if !strings.HasPrefix(RVFrameVersion.String(), "Version: 0.3.1") {
		t.Errorf("unexpected version string %q", RVFrameVersion.String())
	}
}

func TestVCSBuild(t *testing.T) {
	for _, tc := range []struct {
		settings []debug.BuildSetting
		want     string
	}{
		{nil, "$Id$"},
		{[]debug.BuildSetting{{Key: "vcs.revision", Value: "4c74548"}}, "4c74548"},
		{[]debug.BuildSetting{{Key: "vcs.revision", Value: "4c74548"}, {Key: "vcs.modified", Value: "true"}}, "4c74548-dirty"},
		{[]debug.BuildSetting{{Key: "vcs.modified", Value: "true"}}, "$Id$"},
	} {
		if got := vcsBuild(tc.settings); got != tc.want {
			t.Errorf("%v: got %q expected %q", tc.settings, got, tc.want)
		}
	}
}
