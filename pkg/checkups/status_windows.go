//go:build windows
// +build windows

package checkups

// Emoji returns plain markers, since the Windows console does not render the glyphs.
func (s Status) Emoji() string {
	switch s {
	case Informational:
		return "  "
	case Passing:
		return "OK"
	case Warning:
		return "!!"
	case Failing:
		return "XX"
	case Erroring:
		return "XX"
	case Unknown:
		return "? "
	default:
		return "  "
	}
}
