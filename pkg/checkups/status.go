package checkups

// statusField is the observation field carrying the run's status.
const statusField = "status"

func (s Status) field() string {
	switch s {
	case Passing:
		return "passing"
	case Warning:
		return "warning"
	case Failing, Erroring:
		return "failing"
	case Informational:
		return "informational"
	default:
		return "unknown"
	}
}
