package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zenwell/roomchat/internal/config"
)

func main() {
	cfg := config.Load()

	p := tea.NewProgram(initialModel(cfg), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
}
