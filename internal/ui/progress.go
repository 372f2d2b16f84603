package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Spinner shows an animated spinner while a blocking run is in progress.
type Spinner struct {
	chars  []string
	index  int
	label  string
	out    io.Writer
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	active bool
}

// NewSpinner creates a new spinner
func NewSpinner(label string) *Spinner {
	return &Spinner{
		chars: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		label: label,
		out:   Out,
		done:  make(chan struct{}),
	}
}

// Start starts the spinner animation. Off a terminal it prints the label once.
func (s *Spinner) Start() {
	if !IsTerminal() {
		fmt.Fprintf(s.out, "%s...\n", s.label)
		return
	}

	s.active = true
	ticker := time.NewTicker(100 * time.Millisecond)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				fmt.Fprintf(s.out, "\r%s %s", s.chars[s.index], s.label)
				s.index = (s.index + 1) % len(s.chars)
			}
		}
	}()
}

// Stop stops the spinner and clears its line. Safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.active {
			fmt.Fprint(s.out, "\r"+strings.Repeat(" ", len(s.label)+10)+"\r")
		}
	})
}
