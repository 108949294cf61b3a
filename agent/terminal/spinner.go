package terminal

import (
	"fmt"
	"sync"
	"time"
)

var (
	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	spinnerDots   = []string{"", ".", "..", "..."}
)

// spinner animates a "Thinking" indicator on its own goroutine until the
// first response token arrives.
type spinner struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startSpinner(label string) *spinner {
	s := &spinner{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		frame := 0
		for {
			select {
			case <-s.stop:
				fmt.Print("\r\x1b[K")
				return
			case <-ticker.C:
				dots := spinnerDots[(frame/4)%len(spinnerDots)]
				fmt.Printf("\r\x1b[K\x1b[38;5;141m%s\x1b[0m \x1b[38;5;103m%s%s\x1b[0m",
					spinnerFrames[frame%len(spinnerFrames)], label, dots)
				frame++
			}
		}
	}()
	return s
}

// Stop signals the spinner goroutine and waits briefly for it to clear the
// line. Safe to call more than once.
func (s *spinner) Stop() {
	s.once.Do(func() { close(s.stop) })
	select {
	case <-s.done:
	case <-time.After(200 * time.Millisecond):
	}
}
