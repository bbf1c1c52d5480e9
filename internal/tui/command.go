package tui

import "strings"

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// commandNames are the commands the prompt completes.
var commandNames = []string{"close", "help", "login", "open", "quit", "read", "search", "start"}

var commandAliases = map[string]string{
	"q":    "quit",
	"exit": "quit",
	"h":    "help",
	"s":    "search",
	"o":    "open",
	"new":  "start",
	"dm":   "start",
}

// ParseCommand parses a command string (without the leading ':'). Aliases
// are resolved to their full name.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	name, args, _ := strings.Cut(input, " ")
	cmd := Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
	if full, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = full
	}
	return cmd
}
