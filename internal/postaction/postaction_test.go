package postaction

import (
	"errors"
	"strings"
	"testing"

	"github.com/raaddl/raad/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type launch struct {
	name string
	args []string
}

func newTestRunner(goos string, fail map[string]bool) (*Runner, *[]launch) {
	var got []launch
	r := NewRunner(logger.NewMockLogger())
	r.goos = goos
	r.start = func(name string, args ...string) error {
		if fail[name] {
			return errors.New("not found")
		}
		got = append(got, launch{name, args})
		return nil
	}
	return r, &got
}

func TestRunLinux(t *testing.T) {
	r, got := newTestRunner("linux", nil)
	ran, err := r.Run(Actions{RevealFolder: true, OpenFile: true, Extract: true, Script: "echo {file} > {dir}/log"}, "/dl/pkg.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, []string{"reveal", "open", "extract", "script"}, ran)
	require.Len(t, *got, 4)
	assert.Equal(t, launch{"xdg-open", []string{"/dl"}}, (*got)[0])
	assert.Equal(t, launch{"xdg-open", []string{"/dl/pkg.tar.gz"}}, (*got)[1])
	assert.Equal(t, launch{"tar", []string{"-xf", "/dl/pkg.tar.gz", "-C", "/dl"}}, (*got)[2])
	assert.Equal(t, launch{"/bin/sh", []string{"-c", "echo /dl/pkg.tar.gz > /dl/log"}}, (*got)[3])
}

func TestRunDarwinZip(t *testing.T) {
	r, got := newTestRunner("darwin", nil)
	_, err := r.Run(Actions{RevealFolder: true, Extract: true}, "/Users/me/a.zip")
	require.NoError(t, err)
	assert.Equal(t, launch{"open", []string{"-R", "/Users/me/a.zip"}}, (*got)[0])
	assert.Equal(t, launch{"unzip", []string{"-o", "/Users/me/a.zip", "-d", "/Users/me"}}, (*got)[1])
}

func TestRunContinuesAfterFailure(t *testing.T) {
	r, got := newTestRunner("linux", map[string]bool{"xdg-open": true})
	ran, err := r.Run(Actions{OpenFile: true, Script: "true"}, "/dl/x.bin")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "open:"))
	assert.Equal(t, []string{"script"}, ran)
	assert.Len(t, *got, 1)
}

func TestExtractUnknownType(t *testing.T) {
	r, _ := newTestRunner("linux", nil)
	_, err := r.Run(Actions{Extract: true}, "/dl/movie.mkv")
	assert.ErrorIs(t, err, ErrNoExtractor)
}

func TestExpand(t *testing.T) {
	assert.Equal(t, "mv /a/b.iso /a/done/", Expand("mv {file} {dir}/done/", "/a/b.iso"))
}
