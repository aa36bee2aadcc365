// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package version defines version information.
package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"text/template"

	"github.com/siderolabs/rpi-shrink/internal/pkg/geometry"
)

var (
	// Name is set at build time.
	Name = "rpi-shrink"
	// Tag is set at build time.
	Tag = "v0.0.0-dev"
	// SHA is set at build time.
	SHA string
	// Built is set at build time.
	Built string
)

const versionTemplate = `{{ .Name }}:
	Tag:            {{ .Tag }}
	SHA:            {{ .SHA }}
	Built:          {{ .Built }}
	Go version:     {{ .GoVersion }}
	OS/Arch:        {{ .Os }}/{{ .Arch }}
	Parser version: {{ .ParserVersion }}
`

// Version contains verbose version information.
type Version struct {
	Name          string
	Tag           string
	SHA           string
	Built         string
	GoVersion     string
	Os            string
	Arch          string
	ParserVersion string
}

// NewVersion returns the version of the running binary.
//
// SHA and Built fall back to the VCS stamp of the build when not set at build time.
func NewVersion() Version {
	v := Version{
		Name:          Name,
		Tag:           Tag,
		SHA:           SHA,
		Built:         Built,
		GoVersion:     runtime.Version(),
		Os:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		ParserVersion: geometry.ParserVersion,
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch {
			case setting.Key == "vcs.revision" && v.SHA == "":
				v.SHA = setting.Value
			case setting.Key == "vcs.time" && v.Built == "":
				v.Built = setting.Value
			}
		}
	}

	return v
}

// WriteLongVersion writes verbose version information to w.
func WriteLongVersion(w io.Writer, v Version) error {
	tmpl, err := template.New("version").Parse(versionTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, v)
}

// Short returns the name and the tag.
func (v Version) Short() string {
	return fmt.Sprintf("%s %s", v.Name, v.Tag)
}
