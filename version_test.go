package matbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := map[string]struct {
		in     string
		exp    Version
		expErr bool
	}{
		"Full version should parse all components": {
			in:  "8.4.0",
			exp: Version{Major: 8, Minor: 4, Patch: 0},
		},

		"Major.minor should leave patch unset": {
			in:  "9.2",
			exp: Version{Major: 9, Minor: 2, Patch: -1},
		},

		"Bare major should leave minor and patch unset": {
			in:  "7",
			exp: Version{Major: 7, Minor: -1, Patch: -1},
		},

		"Trailing text should be ignored": {
			in:  "6.1.0-beta",
			exp: Version{Major: 6, Minor: 1, Patch: 0},
		},

		"Garbage should fail": {
			in:     "not a version",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseVersion(test.in)
			if test.expErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.exp, got)
			}
		})
	}
}

func TestParseOctaveVersion(t *testing.T) {
	tests := map[string]struct {
		in     string
		exp    Version
		expErr bool
	}{
		"Standard --version banner should parse": {
			in:  "GNU Octave, version 8.4.0\nCopyright (C) 2023 The Octave Project Developers.",
			exp: Version{Major: 8, Minor: 4, Patch: 0},
		},

		"Single line banner should parse": {
			in:  "GNU Octave, version 9.2.0",
			exp: Version{Major: 9, Minor: 2, Patch: 0},
		},

		"Non-octave output should fail": {
			in:     "Python 3.10.5",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseOctaveVersion(test.in)
			if test.expErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.exp, got)
			}
		})
	}
}

func TestParseMatlabVersion(t *testing.T) {
	got, err := ParseMatlabVersion("9.14.0.2206163 (R2023a)")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 9, Minor: 14, Patch: 0}, got)

	_, err = ParseMatlabVersion("")
	assert.Error(t, err)
}

func TestVersionCompare(t *testing.T) {
	v := Version{Major: 8, Minor: 4, Patch: 0}
	assert.Equal(t, 0, v.Compare(Version{Major: 8, Minor: 4, Patch: 0}))
	assert.Equal(t, 1, v.Compare(Version{Major: 7, Minor: 9, Patch: 9}))
	assert.Equal(t, -1, v.Compare(Version{Major: 8, Minor: 5, Patch: 0}))
}

func TestVersionString(t *testing.T) {
	full := Version{Major: 8, Minor: 4, Patch: 0}
	assert.Equal(t, "8.4.0", full.String())

	noPatch := Version{Major: 9, Minor: 2, Patch: -1}
	assert.Equal(t, "9.2", noPatch.String())

	majorOnly := Version{Major: 7, Minor: -1, Patch: -1}
	assert.Equal(t, "7", majorOnly.String())
}
