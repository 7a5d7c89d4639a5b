// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"github.com/charmbracelet/bubbletea"
)

// Main TUI model that routes between screens
type model struct {
	currentScreen screen
	width         int
	height        int
	quitting      bool

	setupModel   SetupModel
	controlModel ControlModel
}

func initialModel() model {
	return model{
		currentScreen: screenSetup,
		setupModel:    NewSetupModel(),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "q":
			if m.currentScreen == screenSetup {
				m.quitting = true
				return m, tea.Quit
			}
			// In the control screen, 'q' goes back to setup
			m.currentScreen = screenSetup
			m.setupModel = NewSetupModel()
			return m, nil
		}
	}

	// Route messages to the active screen
	switch m.currentScreen {
	case screenSetup:
		var cmd tea.Cmd
		m.setupModel, cmd = m.setupModel.Update(msg)

		if m.setupModel.IsConnected() {
			m.controlModel = NewControlModel(m.setupModel.Session(), m.setupModel.Status())
			m.currentScreen = screenControl
		}

		return m, cmd

	case screenControl:
		var cmd tea.Cmd
		m.controlModel, cmd = m.controlModel.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return successStyle.Render("Thanks for using Kiln!") + "\n"
	}

	switch m.currentScreen {
	case screenSetup:
		return m.setupModel.View()
	case screenControl:
		return m.controlModel.View()
	default:
		return "Unknown screen"
	}
}

// StartTUI runs the interactive interface
func StartTUI() error {
	p := tea.NewProgram(
		initialModel(),
		tea.WithAltScreen(),
	)

	// Ensure proper cleanup on panic or interrupt
	defer func() {
		if r := recover(); r != nil {
			p.Kill()
		}
	}()

	_, err := p.Run()
	return err
}
