package transfer

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// merge concatenates the segment files in index order into the final path
// and removes each one after it has been copied.
func (t *Task) merge() {
	if err := t.mergeSegments(); err != nil {
		t.fail(fmt.Errorf("merge: %w", err))
		return
	}
	t.finish(true)
}

func (t *Task) mergeSegments() (err error) {
	out, err := t.fs.OpenFile(t.path, openFlags(false), 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	buf := make([]byte, mergeChunk)
	for _, s := range t.segments {
		n, err := copySegment(t.fs, out, s.path, buf)
		if err != nil {
			return fmt.Errorf("segment %d: %w", s.index, err)
		}
		if n != s.Len() {
			return fmt.Errorf("segment %d: %w: got %d, want %d", s.index, ErrMergeSize, n, s.Len())
		}
		if err := t.fs.Remove(s.path); err != nil {
			return err
		}
	}
	return nil
}

// copySegment appends the file at path to out and checks that every write
// was complete.
func copySegment(fs afero.Fs, out io.Writer, path string, buf []byte) (written int64, err error) {
	in, err := fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			w, werr := out.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
