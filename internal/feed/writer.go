package feed

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Output encodings supported by the writers.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1251 = "windows-1251"
)

// lineWriter appends newline-terminated lines to a feed file.
// The first write error sticks and is reported by Close.
type lineWriter struct {
	file  *os.File
	enc   io.WriteCloser
	buf   *bufio.Writer
	err   error
	lines int
}

// createLineWriter removes any existing file at path and opens a fresh one
// for appending. Parent directories are created as needed.
func createLineWriter(path, encodingName string) (*lineWriter, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove previous feed file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create feed directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed file: %w", err)
	}

	w := &lineWriter{file: f}
	var out io.Writer = f
	if enc := lookupEncoding(encodingName); enc != nil {
		w.enc = transform.NewWriter(f, encoding.HTMLEscapeUnsupported(enc.NewEncoder()))
		out = w.enc
	}
	w.buf = bufio.NewWriter(out)
	return w, nil
}

// Line appends s followed by a newline.
func (w *lineWriter) Line(s string) {
	if w.err != nil {
		return
	}
	if _, err := w.buf.WriteString(s); err != nil {
		w.err = err
		return
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		w.err = err
		return
	}
	w.lines++
}

// Linef appends a formatted line.
func (w *lineWriter) Linef(format string, args ...interface{}) {
	w.Line(fmt.Sprintf(format, args...))
}

// Close flushes buffered lines and closes the file.
func (w *lineWriter) Close() error {
	err := w.err
	if ferr := w.buf.Flush(); err == nil && ferr != nil {
		err = ferr
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}
	if cerr := w.file.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write feed file: %w", err)
	}
	return nil
}

// lookupEncoding returns nil for UTF-8 output.
func lookupEncoding(name string) encoding.Encoding {
	switch strings.ToLower(name) {
	case EncodingWindows1251, "cp1251":
		return charmap.Windows1251
	}
	return nil
}

// encodingLabel is the name written into the XML declaration.
func encodingLabel(name string) string {
	if lookupEncoding(name) != nil {
		return EncodingWindows1251
	}
	return "UTF-8"
}
