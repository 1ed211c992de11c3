package pkg

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-kit/kit/log/term"
	"github.com/gosuri/uiprogress"
	"github.com/gosuri/uiprogress/util/strutil"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// CompletedEvent is the text of a finished progress
const CompletedEvent = "complete!"

// ProgressCoordinator renders one progress bar per node from the event stream.
// Without a terminal it prints one line per event instead.
type ProgressCoordinator struct {
	mu         sync.Mutex
	progresses map[string]*Progress
	ui         *uiprogress.Progress
	out        io.Writer
}

var _ clustermanager.EventService = &ProgressCoordinator{}

// NewProgressCoordinator creates a coordinator writing to out. Bars are only
// rendered when renderBars is set and out is a terminal.
func NewProgressCoordinator(out io.Writer, renderBars bool) *ProgressCoordinator {
	pc := &ProgressCoordinator{
		progresses: make(map[string]*Progress),
		out:        out,
	}
	if renderBars && isTerminal(out) {
		pc.ui = uiprogress.New()
		pc.ui.Out = out
		pc.ui.Start()
	}
	return pc
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	return ok && term.IsTerminal(file)
}

func shortLeftPadRight(s string, padWidth int) string {
	if len(s) > padWidth {
		l := len(s)
		return "..." + s[(l-(padWidth-3)):l]
	}
	return strutil.PadRight(s, padWidth, ' ')
}

// StartProgress adds a progress of the given number of phases
func (c *ProgressCoordinator) StartProgress(name string, steps int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	progress := &Progress{
		Name:  name,
		Total: steps,
	}
	progress.SetText("waiting")
	if c.ui != nil {
		progress.Bar = c.ui.AddBar(steps)
		progress.Bar.Width = 16
		progress.Bar.PrependFunc(func(b *uiprogress.Bar) string {
			percent := strutil.PadLeft(fmt.Sprintf("%.01f%%", b.CompletedPercent()), 6, ' ')
			return fmt.Sprintf("%s : %s  %s",
				shortLeftPadRight(name, 20),
				shortLeftPadRight(progress.Text(), 32),
				percent,
			)
		})
	}
	c.progresses[name] = progress
}

// AddEvent implements clustermanager.EventService
func (c *ProgressCoordinator) AddEvent(event clustermanager.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	progress, isPresent := c.progresses[event.Node]
	if !isPresent {
		return
	}

	switch event.Type {
	case clustermanager.EventPhaseSucceeded:
		progress.Incr()
		if progress.Done() {
			progress.SetText(CompletedEvent)
		} else {
			progress.SetText(event.Phase + " done")
		}
	case clustermanager.EventPhaseFailed:
		progress.SetText("failed: " + event.Phase)
	case clustermanager.EventPhaseSkipped, clustermanager.EventPhaseCancelled:
		progress.SetText(string(event.Type[len("phase."):]) + ": " + event.Phase)
	default:
		progress.SetText(event.Message)
	}

	if c.ui == nil {
		fmt.Fprintf(c.out, "%s: %s (%d/%d)\n", progress.Name, progress.Text(), progress.Current(), progress.Total)
	}
}

// Stop stops rendering
func (c *ProgressCoordinator) Stop() {
	if c.ui != nil {
		c.ui.Stop()
	}
}
