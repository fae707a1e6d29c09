package matbridge

import (
	"fmt"
	"strings"
)

// Version represents an engine version with major, minor, and patch components.
// Minor and Patch may be -1 if not specified (e.g., "7" parses as {7, -1, -1}).
type Version struct {
	// Major is the major version number (required).
	Major int

	// Minor is the minor version number (-1 if not specified).
	Minor int

	// Patch is the patch version number (-1 if not specified).
	Patch int
}

// ParseVersion parses a version string into a Version struct.
// Accepts formats: "X.Y.Z", "X.Y", or "X". Any trailing text is ignored.
//
// Examples:
//   - "8.4.0" -> {8, 4, 0}
//   - "9.2" -> {9, 2, -1}
//   - "7" -> {7, -1, -1}
func ParseVersion(versionStr string) (Version, error) {
	version := Version{
		Minor: -1,
		Patch: -1,
	}
	_, err := fmt.Sscanf(versionStr, "%d.%d.%d", &version.Major, &version.Minor, &version.Patch)
	if err != nil {
		// If the version string is not in the format "X.Y.Z", try parsing it as "X.Y"
		_, err = fmt.Sscanf(versionStr, "%d.%d", &version.Major, &version.Minor)
		if err != nil {
			// If the version string is not in the format "X.Y", try parsing it as "X"
			_, err = fmt.Sscanf(versionStr, "%d", &version.Major)
			if err != nil {
				return Version{}, fmt.Errorf("error parsing version: %v", err)
			}
		}
	}
	if version.Major < 0 || version.Minor < -1 || version.Patch < -1 {
		return Version{}, fmt.Errorf("invalid version: %s", versionStr)
	}
	return version, nil
}

// ParseOctaveVersion parses the first line of "octave --version" output
// (e.g., "GNU Octave, version 8.4.0").
func ParseOctaveVersion(versionStr string) (Version, error) {
	line := versionStr
	if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}
	const marker = "version "
	idx := strings.Index(line, marker)
	if idx < 0 || !strings.Contains(line, "Octave") {
		return Version{}, fmt.Errorf("invalid octave version string: %s", versionStr)
	}
	return ParseVersion(strings.TrimSpace(line[idx+len(marker):]))
}

// ParseMatlabVersion parses MATLAB version output (e.g., "9.14.0.2206163 (R2023a)"
// from "matlab -batch disp(version)"). The release token in parentheses is ignored.
func ParseMatlabVersion(versionStr string) (Version, error) {
	fields := strings.Fields(strings.TrimSpace(versionStr))
	if len(fields) == 0 {
		return Version{}, fmt.Errorf("invalid matlab version string: %s", versionStr)
	}
	return ParseVersion(fields[0])
}

// Compare returns -1 if v < other, 0 if v == other, or 1 if v > other.
// Comparison is done component by component (major, then minor, then patch).
func (v *Version) Compare(other Version) int {
	if v.Major > other.Major {
		return 1
	}
	if v.Major < other.Major {
		return -1
	}
	if v.Minor > other.Minor {
		return 1
	}
	if v.Minor < other.Minor {
		return -1
	}
	if v.Patch > other.Patch {
		return 1
	}
	if v.Patch < other.Patch {
		return -1
	}
	return 0
}

// String returns the version as a string, omitting unspecified components.
// Examples: "8.4.0", "9.2", "7"
func (v *Version) String() string {
	if v.Patch != -1 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	if v.Minor != -1 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d", v.Major)
}
