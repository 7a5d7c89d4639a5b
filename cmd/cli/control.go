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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"

	"kiln/internal/printer"
)

const historyLimit = 8

// opResultMsg carries the outcome of an async printer operation
type opResultMsg struct {
	operation string
	response  printer.RPCResponse
	err       error
}

// ControlModel handles the printer control screen
type ControlModel struct {
	session *printer.Session
	status  printer.RPCResponse
	busy    bool
	history []historyEntry
}

// NewControlModel creates the control screen for a connected session
func NewControlModel(session *printer.Session, status printer.RPCResponse) ControlModel {
	return ControlModel{
		session: session,
		status:  status,
	}
}

// Update handles control screen messages
func (m ControlModel) Update(msg tea.Msg) (ControlModel, tea.Cmd) {
	switch msg := msg.(type) {
	case opResultMsg:
		m.busy = false

		entry := historyEntry{
			Timestamp: time.Now(),
			Operation: msg.operation,
			Success:   msg.err == nil,
		}
		if msg.err != nil {
			entry.Detail = msg.err.Error()
		} else if temp, ok := msg.response.Number("temperature"); ok {
			entry.Detail = fmt.Sprintf("temperature %.0f", temp)
		}
		m.history = append([]historyEntry{entry}, m.history...)
		if len(m.history) > historyLimit {
			m.history = m.history[:historyLimit]
		}

		if msg.operation == "status" && msg.err == nil {
			m.status = msg.response
		}
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}

		switch msg.String() {
		case "r":
			return m.run("status", func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
				return s.SystemInformation(ctx)
			})
		case "p":
			return m.run("preheat", func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
				return s.Preheat(ctx, []int{200})
			})
		case "c":
			return m.run("cool", func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
				return s.Cool(ctx, false)
			})
		case "l":
			return m.run("load filament", func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
				return s.LoadFilament(ctx, 0)
			})
		case "u":
			return m.run("unload filament", func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
				return s.UnloadFilament(ctx, 0)
			})
		case "x":
			return m.run("cancel", func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error) {
				return s.Cancel(ctx)
			})
		}
	}

	return m, nil
}

// run launches one printer operation off the UI goroutine
func (m ControlModel) run(operation string, fn func(ctx context.Context, s *printer.Session) (printer.RPCResponse, error)) (ControlModel, tea.Cmd) {
	m.busy = true
	session := m.session

	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		resp, err := fn(ctx, session)
		return opResultMsg{operation: operation, response: resp, err: err}
	}
}

// View renders the control screen
func (m ControlModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Kiln - Printer Control"))
	b.WriteString("\n\n")

	b.WriteString(subtitleStyle.Render("Status:"))
	b.WriteString("\n")
	if name, ok := m.status.String("machine_name"); ok {
		b.WriteString(fmt.Sprintf("  machine:     %s\n", name))
	}
	if firmware, ok := m.status.String("firmware_version"); ok {
		b.WriteString(fmt.Sprintf("  firmware:    %s\n", firmware))
	}
	if temp, ok := m.status.Number("temperature"); ok {
		b.WriteString(fmt.Sprintf("  temperature: %.0f°C\n", temp))
	}
	if process, ok := m.status.String("process"); ok && process != "" {
		b.WriteString(fmt.Sprintf("  process:     %s\n", process))
	}
	b.WriteString("\n")

	if m.busy {
		b.WriteString(subtitleStyle.Render("Working..."))
		b.WriteString("\n\n")
	}

	if len(m.history) > 0 {
		b.WriteString(subtitleStyle.Render("History:"))
		b.WriteString("\n")
		for _, entry := range m.history {
			marker := successStyle.Render("ok")
			if !entry.Success {
				marker = errorStyle.Render("failed")
			}
			line := fmt.Sprintf("  %s  %-16s %s", entry.Timestamp.Format("15:04:05"), entry.Operation, marker)
			if entry.Detail != "" {
				line += "  " + entry.Detail
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("r: Refresh • p: Preheat 200 • c: Cool • l: Load • u: Unload • x: Cancel • q: Back"))

	return b.String()
}
