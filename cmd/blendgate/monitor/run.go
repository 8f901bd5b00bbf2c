// Package monitor is the live terminal dashboard: it polls a running
// gateway's status and recent batches over HTTP and renders them with
// bubbletea.
package monitor

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// Run launches the dashboard against the gateway at addr.
func Run(addr string) {
	p := tea.NewProgram(
		NewModel(addr),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running monitor: %v\n", err)
		os.Exit(1)
	}
}
