package ingest

import (
	"bufio"
	"io"
)

const (
	initialLineBufSize = 64 * 1024
	// maxLineLen bounds a single record. Conversation payloads
	// carry full email bodies, so this is generous.
	maxLineLen = 32 * 1024 * 1024
)

// lineReader reads JSONL files line by line, skipping lines that
// exceed maxLen rather than aborting.
type lineReader struct {
	r       *bufio.Reader
	maxLen  int
	buf     []byte
	lineNo  int
	skipped int
	err     error
}

func newLineReader(r io.Reader, maxLen int) *lineReader {
	return &lineReader{
		r:      bufio.NewReaderSize(r, initialLineBufSize),
		maxLen: maxLen,
		buf:    make([]byte, 0, initialLineBufSize),
	}
}

// next returns the next non-blank line and true, or ("", false)
// at EOF or on a read error (see Err).
func (lr *lineReader) next() (string, bool) {
	for {
		line, err := lr.readLine()
		if err != nil {
			if err != io.EOF {
				lr.err = err
			}
			return "", false
		}
		if line != "" {
			return line, true
		}
	}
}

// Err returns the first non-EOF read error.
func (lr *lineReader) Err() error {
	return lr.err
}

func (lr *lineReader) readLine() (string, error) {
	lr.buf = lr.buf[:0]
	oversized := false

	for {
		chunk, isPrefix, err := lr.r.ReadLine()
		if err != nil {
			if len(lr.buf) > 0 && err == io.EOF {
				break
			}
			return "", err
		}

		if oversized {
			if !isPrefix {
				lr.lineNo++
				return "", nil
			}
			continue
		}

		lr.buf = append(lr.buf, chunk...)

		if len(lr.buf) > lr.maxLen {
			oversized = true
			lr.skipped++
			lr.buf = lr.buf[:0]
			if !isPrefix {
				lr.lineNo++
				return "", nil
			}
			continue
		}

		if !isPrefix {
			break
		}
	}

	lr.lineNo++
	return string(lr.buf), nil
}
