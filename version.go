package main

import (
	"os/exec"
	"runtime/debug"
	"strings"
	"time"
)

// Overridable with -ldflags "-X main.commit=... -X main.buildDate=...".
var (
	commit    = "dev"
	buildDate = ""
)

// readVersion resolves the build commit and date from ldflags, VCS build
// info or the local checkout, in that order.
func readVersion() (string, string) {
	c, date := commit, buildDate
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && c == "dev" && s.Value != "":
				c = shortCommit(s.Value)
			case s.Key == "vcs.time" && date == "" && s.Value != "":
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
					date = t.Format("2006-01-02")
				}
			}
		}
	}
	if c == "dev" {
		if out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
			c = strings.TrimSpace(string(out))
		}
	}
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	return c, date
}

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
