package domain

// ActionType selects the execution variant of a command.
type ActionType string

const (
	ActionShell    ActionType = "shell"
	ActionFunction ActionType = "function"
	ActionBuiltin  ActionType = "builtin"
)

// Action describes what a matched command runs. Exactly one variant is
// populated depending on Type.
type Action struct {
	Type ActionType

	// Shell: one or more command-line templates, run sequentially.
	Commands []string

	// Function: registry lookup keys.
	Module   string
	Function string

	// Builtin: builtin name ("exit", "help").
	Builtin string
}

// CommandSpec is one configured voice command. The command set is loaded once
// at startup and read-only for the process lifetime.
type CommandSpec struct {
	Phrases     []string
	Action      Action
	Description string
}

// MatchResult is the outcome of matching a transcript against the configured
// command set. Created and discarded within one orchestration cycle.
type MatchResult struct {
	Spec       *CommandSpec
	Phrase     string
	Score      float64
	Parameters map[string]string
}
