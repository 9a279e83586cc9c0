package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
)

const (
	white       = lipgloss.Color("#fafafa")
	gray        = lipgloss.Color("#bbbbbb")
	crystal     = lipgloss.Color("#5fd7ff")
	deepCrystal = lipgloss.Color("#3a8fb7")
	red         = lipgloss.Color("#ff5f87")
)

const contentWidth = 60

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240")).
	Padding(0, 1)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(crystal)
	textStyle  = lipgloss.NewStyle().Foreground(white).Width(contentWidth)
	mutedStyle = lipgloss.NewStyle().Foreground(gray)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(red)
)

func getBaseTheme() *huh.Theme {
	theme := huh.ThemeCharm()

	theme.Focused.TextInput.Prompt = theme.Focused.TextInput.Prompt.Foreground(crystal)
	theme.Focused.TextInput.Text = theme.Focused.TextInput.Text.Foreground(white)
	theme.Blurred.TextInput.Prompt = theme.Blurred.TextInput.Prompt.Foreground(gray)

	theme.Focused.Title = theme.Focused.Title.Foreground(crystal)
	theme.Focused.Description = theme.Focused.Description.Foreground(white)
	theme.Focused.SelectSelector = theme.Focused.SelectSelector.Foreground(crystal)

	theme.Focused.FocusedButton = theme.Focused.FocusedButton.Foreground(white).Background(crystal).Bold(true)
	theme.Blurred.FocusedButton = theme.Blurred.FocusedButton.Foreground(gray).Background(deepCrystal)

	theme.Blurred.Title = theme.Blurred.Title.Foreground(gray)

	return theme
}

func banner() string {
	title := figure.NewFigure("Crystal", "small", true).String()
	return lipgloss.NewStyle().Foreground(crystal).Render(title)
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}
