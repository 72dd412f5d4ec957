package stream

import (
	"bufio"
	"errors"
	"io"
)

// lineReader reads newline-terminated lines of bounded length. Unlike
// bufio.Scanner it can drop an oversized line and carry on with the next.
type lineReader struct {
	r      *bufio.Reader
	limit  int
	lineNo int
}

func newLineReader(r io.Reader, limit int) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024), limit: limit}
}

// next returns the next line without its '\n'. tooLong reports that the
// line exceeded the limit and was discarded. err is io.EOF once no input
// is left.
func (lr *lineReader) next() (line string, tooLong bool, err error) {
	var buf []byte
	read := false
	for {
		frag, rerr := lr.r.ReadSlice('\n')
		read = read || len(frag) > 0

		if !tooLong {
			content := len(buf) + len(frag)
			if len(frag) > 0 && frag[len(frag)-1] == '\n' {
				content--
			}
			if content > lr.limit {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}

		switch {
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		case errors.Is(rerr, io.EOF):
			if !read {
				return "", false, io.EOF
			}
		case rerr != nil:
			return "", false, rerr
		}

		lr.lineNo++
		if tooLong {
			return "", true, nil
		}
		if n := len(buf); n > 0 && buf[n-1] == '\n' {
			buf = buf[:n-1]
		}
		return string(buf), false, nil
	}
}
