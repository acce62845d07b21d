package formatter

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// SetColor enables colored output. Colors stay off when f is not a
// terminal, whatever enabled says.
func SetColor(f *os.File, enabled bool) {
	color.NoColor = !enabled || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
