// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)

	keyStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1).Align(lipgloss.Right)
	valueStyle = lipgloss.NewStyle().
			PaddingLeft(1).PaddingRight(1).Align(lipgloss.Left)

	expectedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"}).Bold(true)
	surpriseStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).Bold(true)
)

// newPlainTable returns a two columns key/value table.
func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return keyStyle
			}
			return valueStyle
		})
}

// styleBool renders value, in red if it is not the expected one.
func styleBool(value, expected bool) string {
	text := "false"
	if value {
		text = "true"
	}
	if value == expected {
		return expectedStyle.Render(text)
	}
	return surpriseStyle.Render(text)
}
