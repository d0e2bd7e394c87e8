package sidecar

import (
	"bytes"
)

// maxLineLen flushes a partial line that grows past this many bytes.
const maxLineLen = 4096

// lineWriter logs a child's output one line at a time. exec copies each
// stream on its own goroutine, so a lineWriter is never written
// concurrently.
type lineWriter struct {
	logger Logger
	name   string
	stream string
	buf    []byte
}

func newLineWriter(logger Logger, name, stream string) *lineWriter {
	return &lineWriter{logger: logger, name: name, stream: stream}
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) >= maxLineLen {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(b), nil
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	if w.stream == "stderr" {
		w.logger.Info("sidecar output", "name", w.name, "stream", w.stream, "line", string(line))
		return
	}
	w.logger.Debug("sidecar output", "name", w.name, "stream", w.stream, "line", string(line))
}
