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
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"

	"kiln/internal/printer"
)

// Setup screen input fields
type setupField int

const (
	setupFieldHost setupField = iota
	setupFieldAuthCode
	setupFieldConnect
)

// connectResultMsg carries the outcome of the async connect attempt
type connectResultMsg struct {
	session *printer.Session
	status  printer.RPCResponse
	err     error
}

// SetupModel handles the printer setup screen
type SetupModel struct {
	focusedField setupField

	host     string
	authCode string

	hostCursor     int
	authCodeCursor int

	connecting      bool
	connectionError string

	session *printer.Session
	status  printer.RPCResponse
}

// NewSetupModel creates a new setup screen model
func NewSetupModel() SetupModel {
	return SetupModel{focusedField: setupFieldHost}
}

// IsConnected reports whether setup completed
func (m SetupModel) IsConnected() bool {
	return m.session != nil
}

// Session returns the connected session
func (m SetupModel) Session() *printer.Session {
	return m.session
}

// Status returns the system information fetched during connect
func (m SetupModel) Status() printer.RPCResponse {
	return m.status
}

// Update handles setup screen messages
func (m SetupModel) Update(msg tea.Msg) (SetupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case connectResultMsg:
		m.connecting = false
		if msg.err != nil {
			m.connectionError = msg.err.Error()
			return m, nil
		}
		m.session = msg.session
		m.status = msg.status
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "shift+tab", "down", "up":
			reverse := msg.String() == "shift+tab" || msg.String() == "up"
			return m.handleNavigation(reverse), nil

		case "enter":
			if m.focusedField == setupFieldConnect {
				return m.handleConnect()
			}
			return m.handleNavigation(false), nil

		case "left":
			return m.moveCursor(-1), nil

		case "right":
			return m.moveCursor(1), nil

		case "backspace":
			return m.handleBackspace(), nil

		default:
			return m.handleTextInput(msg.String()), nil
		}
	}

	return m, nil
}

// View renders the setup screen
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Kiln - Printer Setup"))
	b.WriteString("\n\n")

	b.WriteString(subtitleStyle.Render("Printer Host (IP or IP:Port):"))
	b.WriteString("\n")
	hostStyle := inputStyle
	showHostCursor := m.focusedField == setupFieldHost
	if showHostCursor {
		hostStyle = inputFocusedStyle
	}
	b.WriteString(hostStyle.Render(renderTextWithCursor(m.host, m.hostCursor, showHostCursor)))
	b.WriteString("\n\n")

	b.WriteString(subtitleStyle.Render("Authorization Code (from pairing):"))
	b.WriteString("\n")
	codeStyle := inputStyle
	showCodeCursor := m.focusedField == setupFieldAuthCode
	if showCodeCursor {
		codeStyle = inputFocusedStyle
	}
	b.WriteString(codeStyle.Render(renderTextWithCursor(m.authCode, m.authCodeCursor, showCodeCursor)))
	b.WriteString("\n\n")

	connectStyle := buttonStyle
	if m.focusedField == setupFieldConnect {
		connectStyle = buttonActiveStyle
	}
	connectText := "Connect"
	if m.connecting {
		connectText = "Connecting..."
	}
	b.WriteString(connectStyle.Render(connectText))
	b.WriteString("\n\n")

	if m.connectionError != "" {
		b.WriteString(errorStyle.Render("Error: " + m.connectionError))
		b.WriteString("\n\n")
	}

	b.WriteString(helpStyle.Render("Tab: Next field • Enter: Action • q: Quit"))

	return b.String()
}

func (m SetupModel) handleNavigation(reverse bool) SetupModel {
	fields := []setupField{setupFieldHost, setupFieldAuthCode, setupFieldConnect}

	current := 0
	for i, field := range fields {
		if field == m.focusedField {
			current = i
			break
		}
	}

	if reverse {
		current--
		if current < 0 {
			current = len(fields) - 1
		}
	} else {
		current = (current + 1) % len(fields)
	}

	m.focusedField = fields[current]
	return m
}

func (m SetupModel) handleConnect() (SetupModel, tea.Cmd) {
	if m.connecting {
		return m, nil
	}
	if m.host == "" {
		m.connectionError = "host is required"
		return m, nil
	}
	if m.authCode == "" {
		m.connectionError = "authorization code is required (run 'kiln printer pair' first)"
		return m, nil
	}

	m.connecting = true
	m.connectionError = ""

	host := m.host
	authCode := m.authCode

	return m, func() tea.Msg {
		session := printer.NewSession(printer.SessionConfig{
			Host:     host,
			AuthCode: printer.AuthorizationCode(authCode),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		status, err := session.SystemInformation(ctx)
		if err != nil {
			return connectResultMsg{err: err}
		}
		return connectResultMsg{session: session, status: status}
	}
}

func (m SetupModel) moveCursor(delta int) SetupModel {
	switch m.focusedField {
	case setupFieldHost:
		m.hostCursor = clamp(m.hostCursor+delta, 0, len(m.host))
	case setupFieldAuthCode:
		m.authCodeCursor = clamp(m.authCodeCursor+delta, 0, len(m.authCode))
	}
	return m
}

func (m SetupModel) handleBackspace() SetupModel {
	switch m.focusedField {
	case setupFieldHost:
		if m.hostCursor > 0 {
			m.host = m.host[:m.hostCursor-1] + m.host[m.hostCursor:]
			m.hostCursor--
		}
	case setupFieldAuthCode:
		if m.authCodeCursor > 0 {
			m.authCode = m.authCode[:m.authCodeCursor-1] + m.authCode[m.authCodeCursor:]
			m.authCodeCursor--
		}
	}
	return m
}

func (m SetupModel) handleTextInput(key string) SetupModel {
	// Single printable characters only; everything else is a control key
	if len(key) != 1 {
		return m
	}

	switch m.focusedField {
	case setupFieldHost:
		m.host = m.host[:m.hostCursor] + key + m.host[m.hostCursor:]
		m.hostCursor++
	case setupFieldAuthCode:
		m.authCode = m.authCode[:m.authCodeCursor] + key + m.authCode[m.authCodeCursor:]
		m.authCodeCursor++
	}
	return m
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
