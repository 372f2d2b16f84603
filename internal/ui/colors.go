package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/Nomadcxx/embress/internal/media"
)

var (
	// Base styles - will be initialized based on terminal support
	successStyle  lipgloss.Style
	errorStyle    lipgloss.Style
	warningStyle  lipgloss.Style
	infoStyle     lipgloss.Style
	dimStyle      lipgloss.Style
	renameStyle   lipgloss.Style
	deleteStyle   lipgloss.Style
	showStyle     lipgloss.Style
	actionStyle   lipgloss.Style
	pathStyle     lipgloss.Style
	selectedStyle lipgloss.Style

	// Out receives every message helper's output.
	Out io.Writer = os.Stdout
)

func init() {
	initStyles()
}

func initStyles() {
	if !IsTerminal() {
		plain := lipgloss.NewStyle()
		successStyle, errorStyle, warningStyle, infoStyle = plain, plain, plain, plain
		dimStyle, renameStyle, deleteStyle, showStyle = plain, plain, plain, plain
		actionStyle, pathStyle = plain, plain
		selectedStyle = lipgloss.NewStyle().Reverse(true)
		return
	}

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	renameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	showStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	pathStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12"))
}

func Success(text string) string { return successStyle.Render(text) }
func Error(text string) string   { return errorStyle.Render(text) }
func Warning(text string) string { return warningStyle.Render(text) }
func Info(text string) string    { return infoStyle.Render(text) }
func Dim(text string) string     { return dimStyle.Render(text) }
func Show(text string) string    { return showStyle.Render(text) }
func Action(text string) string  { return actionStyle.Render(text) }
func Path(text string) string    { return pathStyle.Render(text) }

// Operation renders an operation name colored by what it does to the library.
func Operation(op media.Operation) string {
	if !op.Reversible() {
		return deleteStyle.Render(op.String())
	}
	return renameStyle.Render(op.String())
}

// SuccessMsg prints a success message
func SuccessMsg(format string, args ...interface{}) {
	fmt.Fprintln(Out, Success("✓")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints an error message
func ErrorMsg(format string, args ...interface{}) {
	fmt.Fprintln(Out, Error("✗")+" "+fmt.Sprintf(format, args...))
}

// WarningMsg prints a warning message
func WarningMsg(format string, args ...interface{}) {
	fmt.Fprintln(Out, Warning("⚠")+" "+fmt.Sprintf(format, args...))
}

// InfoMsg prints an info message
func InfoMsg(format string, args ...interface{}) {
	fmt.Fprintln(Out, Info("ℹ")+" "+fmt.Sprintf(format, args...))
}
