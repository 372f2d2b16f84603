package pathcmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/media/tv/", "/media/tv"},
		{"/media//tv/./Show", "/media/tv/Show"},
		{`C:\Media\TV\`, "C:/Media/TV"},
		{`C:\`, "C:/"},
		{"C:", "C:"},
		{"/", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.in), tt.in)
	}
}

func TestWithin(t *testing.T) {
	assert.True(t, Within("/media/tv/Show/a.mkv", "/media/tv"))
	assert.True(t, Within("/media/tv/", "/media/tv"))
	assert.False(t, Within("/media/tv2/a.mkv", "/media/tv"))
	assert.True(t, Within("/anything", "/"))
}

func TestParents(t *testing.T) {
	prev := CaseInsensitive
	CaseInsensitive = false
	defer func() { CaseInsensitive = prev }()

	assert.Equal(t, []string{"/media/tv", "/media", "/"}, Parents("/media/tv/Show"))
	assert.Equal(t, []string{"C:/Media", "C:/"}, Parents(`C:\Media\TV`))
	assert.Empty(t, Parents("/"))
}

func TestNormalizeFoldsWhenCaseInsensitive(t *testing.T) {
	prev := CaseInsensitive
	defer func() { CaseInsensitive = prev }()

	CaseInsensitive = true
	assert.True(t, Equal("/Media/TV", "/media/tv/"))

	CaseInsensitive = false
	assert.False(t, Equal("/Media/TV", "/media/tv"))
}
