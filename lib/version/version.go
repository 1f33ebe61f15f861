// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the agent binary.
//
// Version is set for releases with -ldflags:
//
//	go build -ldflags "-X github.com/rocketbot/rocket/lib/version.Version=1.2.0" ./cmd/rocket-agent
//
// The commit is read from the module's embedded VCS metadata.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the semantic version of the build.
var Version = "0.1.0-dev"

// ProjectURL identifies the agent in the platform's required
// User-Agent format.
const ProjectURL = "https://github.com/rocketbot/rocket"

// Commit returns the VCS revision the binary was built from, shortened
// to 12 characters, with a "-dirty" suffix for modified trees.
func Commit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	var revision, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}
	if revision == "" {
		return "unknown"
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if modified == "true" {
		revision += "-dirty"
	}
	return revision
}

// Info returns the --version line.
func Info() string {
	return fmt.Sprintf("rocket-agent %s (%s, %s %s/%s)",
		Version, Commit(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent returns the User-Agent the platform requires of bots.
func UserAgent() string {
	return fmt.Sprintf("DiscordBot (%s, %s)", ProjectURL, Version)
}
