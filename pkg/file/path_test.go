package file

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplaceExt(t *testing.T) {
	tests := []struct {
		path, ext, want string
	}{
		{"movie.en.vtt", "srt", "movie.en.srt"},
		{filepath.Join("subs", "track.vtt"), ".srt", filepath.Join("subs", "track.srt")},
		{filepath.Join("subs", ".hidden"), "srt", filepath.Join("subs", ".hidden.srt")},
		{"noext", "srt", "noext.srt"},
		{"", "srt", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReplaceExt(tt.path, tt.ext), tt.path)
	}
}
