package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultBufferSize is the number of entries kept for the progress view.
const DefaultBufferSize = 100

// Entry is one captured log record.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
}

// String renders the entry as "component: message key=value ...".
func (e Entry) String() string {
	return e.Component + ": " + e.Message
}

// Buffer keeps the most recent entries in a fixed-size ring. It is safe
// for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewBuffer returns a ring holding up to size entries.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{entries: make([]Entry, size)}
}

// Add stores e, overwriting the oldest entry when the ring is full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.len()
}

func (b *Buffer) len() int {
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// Last returns up to n of the newest entries, oldest first.
func (b *Buffer) Last(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.len()
	if n > count || n < 0 {
		n = count
	}
	out := make([]Entry, n)
	start := b.next - n
	for i := range n {
		out[i] = b.entries[(start+i+len(b.entries))%len(b.entries)]
	}
	return out
}

// formatMessage appends key=value pairs to msg.
func formatMessage(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", args[i], args[i+1])
	}
	return sb.String()
}
