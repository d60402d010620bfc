package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zephh/chronobind/internal/app"
	"github.com/zephh/chronobind/internal/config"
)

// Run launches the interactive TUI on the configured preferred branch.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	eng, err := app.BuildEngine(cfg, "")
	if err != nil {
		return err
	}

	m, err := NewModel(eng, cfg)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
