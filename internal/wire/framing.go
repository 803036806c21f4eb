package wire

import "bytes"

// SplitFrames is a bufio.SplitFunc that tokenizes on Delim instead of '\n'.
// It is the NUL-delimited analogue of bufio.ScanLines — see the worked
// example at https://golang.org/pkg/bufio/#example_Scanner_custom, which the
// teacher's pkg/devtools/transport.go scanMessages already follows for the
// newline case.
func SplitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, Delim); i >= 0 {
		return i + 1, data[0:i], nil
	}
	if atEOF {
		// A final, non-terminated frame: the spec requires every write to
		// append the delimiter, so this only happens when the browser's
		// write end closed mid-frame. Surface it as-is; the caller (the
		// transport's read loop) treats any parse failure as recoverable.
		return len(data), data, nil
	}
	return 0, nil, nil
}
