package internal

import "fmt"

// -ldflags "-X github.com/hyperclast/pagesync/internal.branch=main"
var branch string

// -ldflags "-X github.com/hyperclast/pagesync/internal.build=alpha"
var build string

const (
	VersionMajor = 0
	VersionMinor = 3
	VersionPatch = 0
	VersionTag   = "" // example: "rc1"
)

func VersionString() string {
	version := fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
	if VersionTag != "" {
		version += "-" + VersionTag
	}
	if branch != "" {
		version += fmt.Sprintf("+%s", branch)
	}
	if build != "" {
		version += fmt.Sprintf(".%s", build)
	}
	return version
}
