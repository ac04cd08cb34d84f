package executor

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

var faint = color.New(color.Faint).SprintFunc()

const timeFormat = "2006-01-02 15:04:05"

// Printer writes one line when a step attempt starts and one when it ends.
type Printer struct {
	w           io.Writer
	color       *color.Color
	lock        sync.Mutex
	maxAttempts int
}

func NewPrinter(w io.Writer, maxAttempts int) *Printer {
	return &Printer{w: w, color: color.New(color.FgCyan), maxAttempts: maxAttempts}
}

func (p *Printer) start(step string, attempt int) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if attempt > 1 {
		p.color.Fprintf(p.w, "[%s] Retrying: %s (attempt %d/%d)\n", time.Now().Format(timeFormat), step, attempt, p.maxAttempts)
		return
	}
	p.color.Fprintf(p.w, "[%s] Starting: %s\n", time.Now().Format(timeFormat), step)
}

func (p *Printer) finish(step string, duration time.Duration, err error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	res := "Finished"
	printer := p.color
	if err != nil {
		res = "Failed"
		printer = color.New(color.FgRed)
	}

	durationString := fmt.Sprintf("(%s)", duration.Truncate(time.Millisecond).String())
	printer.Fprintf(p.w, "[%s] %s: %s %s\n", time.Now().Format(timeFormat), res, step, faint(durationString))
}
