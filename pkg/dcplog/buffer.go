package dcplog

import (
	"container/list"
	"sync"

	"avaneesh/dcp-go/pkg/types"
)

type bufferedEntry struct {
	seq   uint64
	entry Entry
}

// Buffer holds log entries of LOG_ON_REQUEST categories until INF_log
// collects them. Each category keeps at most maxSize entries; the oldest
// entry is dropped on overflow.
type Buffer struct {
	categories map[types.LogCategory]*list.List
	maxSize    uint
	seq        uint64
	mu         sync.Mutex
}

// NewBuffer creates a new log buffer
func NewBuffer(maxSize uint) *Buffer {
	if maxSize == 0 {
		maxSize = 1
	}
	return &Buffer{
		categories: make(map[types.LogCategory]*list.List),
		maxSize:    maxSize,
	}
}

// Add buffers e under category
func (b *Buffer) Add(category types.LogCategory, e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.categories[category]
	if !ok {
		l = list.New()
		b.categories[category] = l
	}

	// Check capacity
	if uint(l.Len()) >= b.maxSize {
		l.Remove(l.Front())
	}

	b.seq++
	l.PushBack(&bufferedEntry{seq: b.seq, entry: e})
}

// Pop removes and returns up to max of the oldest entries of category.
// LogCategoryAll takes from every category in insertion order.
func (b *Buffer) Pop(category types.LogCategory, max int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Entry
	if category != types.LogCategoryAll {
		l, ok := b.categories[category]
		if !ok {
			return nil
		}
		for len(out) < max && l.Len() > 0 {
			out = append(out, l.Remove(l.Front()).(*bufferedEntry).entry)
		}
		return out
	}

	for len(out) < max {
		var oldest *list.List
		var oldestSeq uint64
		for _, l := range b.categories {
			if l.Len() == 0 {
				continue
			}
			s := l.Front().Value.(*bufferedEntry).seq
			if oldest == nil || s < oldestSeq {
				oldest, oldestSeq = l, s
			}
		}
		if oldest == nil {
			break
		}
		out = append(out, oldest.Remove(oldest.Front()).(*bufferedEntry).entry)
	}
	return out
}

// Count returns the number of buffered entries of category, or of all categories
func (b *Buffer) Count(category types.LogCategory) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if category != types.LogCategoryAll {
		if l, ok := b.categories[category]; ok {
			return l.Len()
		}
		return 0
	}
	n := 0
	for _, l := range b.categories {
		n += l.Len()
	}
	return n
}

// Clear drops all entries
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.categories = make(map[types.LogCategory]*list.List)
}
