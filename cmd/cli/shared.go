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
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Screen types
type screen int

const (
	screenSetup screen = iota
	screenControl
)

// Common styles
var (
	titleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#D2691E")).
		Padding(0, 1).
		Bold(true)

	subtitleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#D2691E")).
		Bold(true)

	inputStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#D2691E")).
		Padding(0, 1).
		Width(50)

	inputFocusedStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#FF79C6")).
		Padding(0, 1).
		Width(50)

	buttonStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("#D2691E")).
		Foreground(lipgloss.Color("#FAFAFA")).
		Padding(0, 2).
		Margin(0, 1)

	buttonActiveStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("#FF79C6")).
		Foreground(lipgloss.Color("#FAFAFA")).
		Padding(0, 2).
		Margin(0, 1)

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF5555")).
		Bold(true)

	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#50FA7B")).
		Bold(true)

	helpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6272A4"))
)

// Operation history entry shown on the control screen
type historyEntry struct {
	Timestamp time.Time
	Operation string
	Success   bool
	Detail    string
}

// renderTextWithCursor renders an input value with a visible cursor
func renderTextWithCursor(text string, cursor int, showCursor bool) string {
	if !showCursor {
		if text == "" {
			return " "
		}
		return text
	}

	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(text) {
		cursor = len(text)
	}

	return text[:cursor] + "█" + text[cursor:]
}
