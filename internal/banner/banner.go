package banner

import (
	"github.com/charmbracelet/lipgloss"

	"hookstorm/internal/tui/styles"
)

const Tagline = "concurrent load tester for the webhook shell API"

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
    __                __        __                      
   / /_  ____  ____  / /_______/ /_____  _________ ___ 
  / __ \/ __ \/ __ \/ //_/ ___/ __/ __ \/ ___/ __ '__ \
 / / / / /_/ / /_/ / ,< (__  ) /_/ /_/ / /  / / / / / /
/_/ /_/\____/\____/_/|_/____/\__/\____/_/  /_/ /_/ /_/ `

	return "\n" + style.Render(ascii) + "\n" + styles.Subtle.Render("  "+Tagline) + "\n"
}
