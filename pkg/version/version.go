/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-02

This file provides the build information embedded during build time.
*/

package version

import (
	"strings"

	"github.com/coreos/go-semver/semver"
)

// Version and Commit are set during build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

// MinimumOpenShiftVersion is the oldest OpenShift release the installed
// operators support, overridable via ldflags
var MinimumOpenShiftVersion = "4.12.0"

// OpenShiftSupported reports whether version is at least MinimumOpenShiftVersion.
// Versions that cannot be parsed are treated as supported.
func OpenShiftSupported(version string) bool {
	v, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return true
	}
	min, err := semver.NewVersion(MinimumOpenShiftVersion)
	if err != nil {
		return true
	}
	return !v.LessThan(*min)
}
