package metadata

import (
	"regexp"
	"strconv"
)

var (
	versionPattern = regexp.MustCompile(`(\d+)\.(\d+)`)
	buildPattern   = regexp.MustCompile(`-(\d+)-`)
)

// Version is a producer version such as "3.4-18-gabcdef".
type Version struct {
	Major    int
	Minor    int
	Build    int
	HasBuild bool
	Valid    bool
}

// ParseVersion extracts major.minor and the optional -build- token.
// Strings without a major.minor part return a Version with Valid=false.
func ParseVersion(s string) Version {
	var v Version
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return v
	}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	v.Valid = true

	if b := buildPattern.FindStringSubmatch(s); b != nil {
		v.Build, _ = strconv.Atoi(b[1])
		v.HasBuild = true
	}
	return v
}

// HasViewDirectionAngle reports whether images of this version carry a
// heading angle. The field appeared after 3.4 build 18.
func (v Version) HasViewDirectionAngle() bool {
	if !v.Valid {
		return false
	}
	if v.Major != 3 {
		return v.Major > 3
	}
	if v.Minor != 4 {
		return v.Minor > 4
	}
	return v.HasBuild && v.Build > 18
}
