package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	defer func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	}()

	Version = "1.2.3"
	Commit = "abc1234"
	BuildTime = "2024-01-15T10:00:00Z"

	assert.Equal(t, "1.2.3 (abc1234) built 2024-01-15T10:00:00Z", String())
	assert.Equal(t, "engine-bridge/1.2.3 ("+runtime.GOOS+"/"+runtime.GOARCH+")", UserAgent())
}

func TestDefaultValues(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Commit)
	assert.NotEmpty(t, BuildTime)
}
