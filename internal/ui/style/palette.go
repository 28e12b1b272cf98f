package style

import "github.com/charmbracelet/lipgloss"

var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Warnings
	Green   = lipgloss.Color("#2AFFAA") // Success
	Red     = lipgloss.Color("#FF5555") // Errors
	Blue    = lipgloss.Color("#3B82F6") // Info

	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
	Base1  = lipgloss.Color("#B4BCC8") // Secondary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Info      lipgloss.Color

	Text          lipgloss.Color
	TextMuted     lipgloss.Color
	TextSecondary lipgloss.Color
}

func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Info:      Blue,

		Text:          Base2,
		TextMuted:     Base01,
		TextSecondary: Base1,
	}
}

var palette = DefaultPalette()

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true).
			MarginBottom(1)

	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(palette.Primary).
				Bold(true).
				Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Foreground(palette.Text).
			Padding(0, 1)

	MutedStyle   = lipgloss.NewStyle().Foreground(palette.TextMuted)
	SuccessStyle = lipgloss.NewStyle().Foreground(palette.Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(palette.Error).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(palette.Warning)
)
