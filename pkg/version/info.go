// Package version reports build metadata and compares MongoDB server versions.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	driverversion "go.mongodb.org/mongo-driver/version"
)

const (
	Unknown            = "unknown"
	DevelopmentVersion = "dev"
)

// Set at link time, for example:
//
//	go build -ldflags="-X github.com/vbouzoukos/vbmongoengine/pkg/version.AppVersion=v1.2.3"
var (
	AppVersion = DevelopmentVersion
	GitCommit  = Unknown
	// BuildTime is RFC3339.
	BuildTime = Unknown
)

// Info is the build metadata of the engine and, once connected, the server version.
type Info struct {
	Service   string `json:"service" yaml:"service"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Driver    string `json:"driver" yaml:"driver"`
	Server    string `json:"server,omitempty" yaml:"server,omitempty"`
}

// Current returns the metadata of the running binary. Values not set at link time fall back
// to the VCS stamp of the Go toolchain when there is one.
func Current(serviceName string) Info {
	commit, built := vcsStamp()
	return Info{
		Service:   orDefault(serviceName, Unknown),
		Version:   orDefault(AppVersion, DevelopmentVersion),
		Commit:    orDefault(GitCommit, commit, Unknown),
		BuildTime: orDefault(BuildTime, built, Unknown),
		GoVersion: runtime.Version(),
		Driver:    driverversion.Driver,
	}
}

func vcsStamp() (revision, at string) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			at = s.Value
		}
	}
	return revision, at
}

// orDefault returns the first candidate that is neither blank nor Unknown.
func orDefault(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" && c != Unknown {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

// WithServer returns a copy of i carrying the MongoDB server version.
func (i Info) WithServer(server string) Info {
	i.Server = strings.TrimSpace(server)
	return i
}

// ParseBuildTime parses BuildTime when it is a RFC3339 timestamp.
func (i Info) ParseBuildTime() (time.Time, bool) {
	ts, err := time.Parse(time.RFC3339, i.BuildTime)
	return ts, err == nil
}

// SemVer parses the engine version when it is a semantic version.
func (i Info) SemVer() (SemVer, bool) {
	v, err := Parse(i.Version)
	return v, err == nil
}

func (i Info) String() string {
	s := fmt.Sprintf("%s@%s (commit=%s, build_time=%s, driver=%s)", i.Service, i.Version, i.Commit, i.BuildTime, i.Driver)
	if i.Server != "" {
		s += " server=" + i.Server
	}
	return s
}
