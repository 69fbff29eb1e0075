package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const maxLine = 1 << 20

// frame is one dispatched event.
type frame struct {
	Event string
	ID    string
	Data  []byte
}

// frameReader parses a text/event-stream. Data lines are joined with "\n",
// a blank line dispatches, comment lines are skipped and an event cut off
// by end of stream is discarded.
type frameReader struct {
	sc *bufio.Scanner
}

func newFrameReader(r io.Reader) *frameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	return &frameReader{sc: sc}
}

// Next returns the next event, or io.EOF once the stream ends cleanly.
func (fr *frameReader) Next() (frame, error) {
	var (
		f       frame
		data    bytes.Buffer
		hasData bool
	)
	for fr.sc.Scan() {
		line := strings.TrimSuffix(fr.sc.Text(), "\r")
		if line == "" {
			if !hasData {
				f = frame{}
				continue
			}
			f.Data = data.Bytes()
			return f, nil
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			f.Event = value
		case "id":
			f.ID = value
		}
	}
	if err := fr.sc.Err(); err != nil {
		return frame{}, err
	}
	return frame{}, io.EOF
}
