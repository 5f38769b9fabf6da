// Package buildinfo carries version metadata injected at link time.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

// Info is the version metadata of the running binary, injected with
// -ldflags "-X main.version=... -X main.buildDate=...".
type Info struct {
	Version   string
	BuildDate string
}

// New returns Info with empty values replaced by UnknownValue.
func New(version, buildDate string) Info {
	if version == "" {
		version = UnknownValue
	}
	if buildDate == "" {
		buildDate = UnknownValue
	}
	return Info{Version: version, BuildDate: buildDate}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (built %s)", i.Version, i.BuildDate)
}
