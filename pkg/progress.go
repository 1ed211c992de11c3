package pkg

import (
	"sync"

	"github.com/gosuri/uiprogress"
)

// Progress define the progress of one node
type Progress struct {
	Name  string
	Total int
	// Bar is nil when no bars are rendered
	Bar *uiprogress.Bar

	mu      sync.Mutex
	state   string
	current int
}

// SetText define text to display during progress
func (progress *Progress) SetText(text string) {
	if text == "" {
		return
	}
	progress.mu.Lock()
	defer progress.mu.Unlock()
	progress.state = text
}

// Text returns the displayed text
func (progress *Progress) Text() string {
	progress.mu.Lock()
	defer progress.mu.Unlock()
	return progress.state
}

// Incr advances the progress by one phase
func (progress *Progress) Incr() {
	progress.mu.Lock()
	if progress.current < progress.Total {
		progress.current++
	}
	progress.mu.Unlock()
	if progress.Bar != nil {
		progress.Bar.Incr()
	}
}

// Current returns the number of completed phases
func (progress *Progress) Current() int {
	progress.mu.Lock()
	defer progress.mu.Unlock()
	return progress.current
}

// Done reports whether all phases completed
func (progress *Progress) Done() bool {
	return progress.Current() >= progress.Total
}
