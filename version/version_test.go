package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	tests := []struct {
		name   string
		start  Info
		expect Info
	}{
		{
			name:   "fills gaps",
			start:  Info{Version: "dev"},
			expect: Info{Version: "v0.3.1", Commit: "0123456789abcdef0123", BuildDate: "2026-10-01T12:00:00Z", Modified: true},
		},
		{
			name:   "ldflags win",
			start:  Info{Version: "v1.0.0", Commit: "feedface", BuildDate: "yesterday"},
			expect: Info{Version: "v1.0.0", Commit: "feedface", BuildDate: "yesterday", Modified: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.start
			fromBuildInfo(&info, bi)
			assert.Equal(t, tt.expect, info)
		})
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "v1", Commit: "0123456789abcdef", Modified: true, GoVersion: "go1.24", Platform: "linux/amd64"}
	s := info.String()
	assert.Contains(t, s, "0123456789ab (modified)")
	assert.Contains(t, s, "linux/amd64")
	assert.NotContains(t, s, "Built")
}
