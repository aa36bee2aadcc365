// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package version_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/rpi-shrink/internal/pkg/version"
)

func TestWriteLongVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, version.WriteLongVersion(&buf, version.Version{
		Name:          "rpi-shrink",
		Tag:           "v1.2.0",
		SHA:           "abcdef0",
		Built:         "2026-10-19T08:00:00Z",
		GoVersion:     "go1.24.1",
		Os:            "linux",
		Arch:          "arm64",
		ParserVersion: "1",
	}))

	assert.Equal(t, `rpi-shrink:
	Tag:            v1.2.0
	SHA:            abcdef0
	Built:          2026-10-19T08:00:00Z
	Go version:     go1.24.1
	OS/Arch:        linux/arm64
	Parser version: 1
`, buf.String())
}

func TestNewVersion(t *testing.T) {
	t.Parallel()

	v := version.NewVersion()

	assert.Equal(t, version.Name, v.Name)
	assert.Equal(t, "1", v.ParserVersion)
	assert.Equal(t, version.Name+" "+version.Tag, v.Short())
}
