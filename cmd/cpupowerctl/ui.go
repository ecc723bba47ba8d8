package main

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorOK     = lipgloss.Color("#2CD7C7")
	colorFail   = lipgloss.Color("#E74C3C")
	colorMuted  = lipgloss.Color("#2C4A54")
	colorHeader = lipgloss.Color("#4FD1C5")
)

var styles = struct {
	Title  lipgloss.Style
	OK     lipgloss.Style
	Fail   lipgloss.Style
	Muted  lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
}{
	Title:  lipgloss.NewStyle().Bold(true).Foreground(colorHeader),
	OK:     lipgloss.NewStyle().Foreground(colorOK),
	Fail:   lipgloss.NewStyle().Foreground(colorFail),
	Muted:  lipgloss.NewStyle().Foreground(colorMuted),
	Header: lipgloss.NewStyle().Bold(true).Foreground(colorHeader).Padding(0, 1),
	Cell:   lipgloss.NewStyle().Padding(0, 1),
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.Muted).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			return styles.Cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func mhz(khz int) string {
	if khz <= 0 {
		return "-"
	}
	return strconv.Itoa(khz / 1000)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
