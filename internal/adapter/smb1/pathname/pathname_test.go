package pathname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tolerant = Options{Wildcards: true}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		opts     Options
		want     string
		wantWild bool
		wantErr  error
	}{
		{"Simple", `dir\file.txt`, Options{}, "dir/file.txt", false, nil},
		{"DotDot", "a/./b/../c", tolerant, "a/c", false, nil},
		{"EscapeRoot", "../x", tolerant, "", false, ErrPathSyntaxBad},
		{"EscapeAfterClimb", `a\..\..\x`, tolerant, "", false, ErrPathSyntaxBad},
		{"ClimbToRoot", `a\..`, tolerant, "", false, nil},
		{"SeparatorRuns", `\\a\\\b//c\`, Options{}, "a/b/c", false, nil},
		{"TrailingDot", `a\.`, tolerant, "a", false, nil},
		{"LeadingDot", `.\a`, tolerant, "a", false, nil},
		{"DotStrict", `a\.\b`, Options{}, "", false, ErrNameInvalid},
		{"DotsInName", `a\...\..b`, Options{}, "a/.../..b", false, nil},
		{"Wildcard", `dir\*.TXT`, tolerant, "dir/*.TXT", true, nil},
		{"DOSWildcards", `dir\<.>`, tolerant, "dir/<.>", true, nil},
		{"WildcardStrict", `dir\*.TXT`, Options{}, "", false, ErrNameInvalid},
		{"WildcardInDir", `d*r\file`, tolerant, "", false, ErrObjectPathInvalid},
		{"WildcardTrailingSep", `dir\*\`, tolerant, "dir/*", true, nil},
		{"ControlChar", "a\x01b", tolerant, "", false, ErrNameInvalid},
		{"Pipe", "a|b", Options{}, "", false, ErrNameInvalid},
		{"Stream", `dir\file:stream:$DATA`, Options{}, "dir/file:stream:$DATA", false, nil},
		{"StreamEmpty", "file:", Options{}, "", false, ErrNameInvalid},
		{"StreamSeparator", `file:a\b`, Options{}, "", false, ErrNameInvalid},
		{"StreamRelaxed", `file:a*?|`, Options{}, "file:a*?|", false, nil},
		{"Multibyte", `répertoire\日本.txt`, Options{}, "répertoire/日本.txt", false, nil},
		{"TruncatedMultibyte", "a\xe6\x97", Options{}, "", false, ErrNameInvalid},
		{"PosixBackslash", `a\b/c`, Options{Posix: true}, `a\b/c`, false, nil},
		{"PosixColon", "a:b", Options{Posix: true}, "a:b", false, nil},
		{"PosixStar", "a*", Options{Posix: true}, "a*", false, nil},
		{"PosixDotDot", "a/../../b", Options{Posix: true}, "", false, ErrPathSyntaxBad},
		{"Root", `\`, Options{}, "", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.raw, tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Path)
			assert.Equal(t, tt.wantWild, got.HasWildcards)
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		`a\.\b\..\c`,
		`\\server\\share\\dir\\`,
		`x\y\z\..\..\w\*.*`,
		`doc:stream`,
		`é\ü\..\ö`,
		`a\b\c`,
		`dir\*\`,
		`dir\?.txt\\`,
	}
	for _, raw := range inputs {
		first, err := Canonicalize(raw, tolerant)
		require.NoError(t, err, raw)
		second, err := Canonicalize(first.Path, tolerant)
		require.NoError(t, err, raw)
		assert.Equal(t, first, second, raw)
	}
}

func TestCanonicalizeNeverEscapes(t *testing.T) {
	for _, raw := range []string{"..", `a\..\..`, `a\b\..\..\..\c`, `.\..`} {
		_, err := Canonicalize(raw, tolerant)
		assert.ErrorIs(t, err, ErrPathSyntaxBad, raw)
	}
}

func TestSplitHelpers(t *testing.T) {
	dir, mask := SplitDirMask("a/b/*.TXT")
	assert.Equal(t, "a/b", dir)
	assert.Equal(t, "*.TXT", mask)

	dir, mask = SplitDirMask("FILE")
	assert.Equal(t, "", dir)
	assert.Equal(t, "FILE", mask)

	assert.Equal(t, "FILE", Join("", "FILE"))
	assert.Equal(t, "a/FILE", Join("a", "FILE"))
	assert.Equal(t, "b", Base("a/b"))
	assert.Equal(t, "a", Dir("a/b"))

	base, stream := SplitStream("dir/file:s1")
	assert.Equal(t, "dir/file", base)
	assert.Equal(t, "s1", stream)

	base, stream = SplitStream("dir:x/file")
	assert.Equal(t, "dir:x/file", base)
	assert.Empty(t, stream)

	assert.True(t, HasWildcards("a?"))
	assert.True(t, HasWildcards(`"`))
	assert.False(t, HasWildcards("plain.txt"))
}
