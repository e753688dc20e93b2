package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoPrefersLinkerValues(t *testing.T) {
	defer func(v, c string) { Version, Commit = v, c }(Version, Commit)
	Version, Commit = "1.2.3", "abc123"

	info := Info()
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "abc123", info["commit"])
	assert.NotEmpty(t, info["goVersion"])
}
