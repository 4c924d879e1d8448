package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/geoaware/backend/internal/eventgen"
	"github.com/geoaware/backend/internal/models"
)

var (
	bold    = color.New(color.Bold)
	entry   = color.New(color.FgGreen)
	exit    = color.New(color.FgRed)
	view    = color.New(color.FgCyan)
	warning = color.New(color.FgYellow)
)

func colorFor(t models.EventType) *color.Color {
	switch t {
	case models.EventEntry:
		return entry
	case models.EventExit:
		return exit
	default:
		return view
	}
}

// printEvent writes one accepted event. Past events also show their age.
func printEvent(e eventgen.Emitted) {
	when := e.Timestamp.Local().Format("15:04:05")
	if time.Since(e.Timestamp) > time.Minute {
		when = fmt.Sprintf("%s, %s", e.Timestamp.Local().Format("Mon 15:04"), humanize.Time(e.Timestamp))
	}
	name := e.User.Username
	if name == "" {
		name = "Unknown"
	}
	fmt.Fprintf(color.Output, "[%s] %s\n", when,
		colorFor(e.Type).Sprintf("%-10s %-12s -> %s", name, e.Type, e.Fence.Name))
}
