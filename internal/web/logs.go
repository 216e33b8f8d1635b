package web

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// LogBuffer keeps the most recent log lines in a fixed ring. Every line gets
// a sequence number so clients can ask only for what they have not seen.
type LogBuffer struct {
	mu      sync.Mutex
	ring    []string
	head    int    // slot for the next line
	count   int    // lines currently held
	seq     uint64 // sequence number of the next line
	partial string
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &LogBuffer{ring: make([]string, capacity)}
}

// Write implements io.Writer so the buffer can be teed into the standard
// logger. Bytes after the last newline are held until the line completes.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.partial + string(p)
	for {
		line, rest, ok := strings.Cut(data, "\n")
		if !ok {
			break
		}
		if line = strings.TrimRight(line, "\r"); line != "" {
			b.push(line)
		}
		data = rest
	}
	b.partial = data
	return len(p), nil
}

func (b *LogBuffer) push(line string) {
	b.ring[b.head] = line
	b.head = (b.head + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
	b.seq++
}

// Since returns the held lines numbered since and later, the sequence number
// to pass next time, and how many requested lines were already overwritten.
func (b *LogBuffer) Since(since uint64) (lines []string, next, missed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest := b.seq - uint64(b.count)
	if since < oldest {
		missed = oldest - since
		since = oldest
	}
	if since > b.seq {
		since = b.seq
	}
	n := int(b.seq - since)
	lines = make([]string, 0, n)
	start := b.head - n
	if start < 0 {
		start += len(b.ring)
	}
	for i := 0; i < n; i++ {
		lines = append(lines, b.ring[(start+i)%len(b.ring)])
	}
	return lines, b.seq, missed
}

type LogsResponse struct {
	Next   uint64   `json:"next"`
	Missed uint64   `json:"missed"`
	Lines  []string `json:"lines"`
}

func logsHandler(b *LogBuffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since uint64
		if s := strings.TrimSpace(r.URL.Query().Get("since")); s != "" {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				http.Error(w, "since must be a non-negative integer", http.StatusBadRequest)
				return
			}
			since = v
		}
		lines, next, missed := b.Since(since)
		writeJSON(w, http.StatusOK, LogsResponse{Next: next, Missed: missed, Lines: lines})
	}
}
