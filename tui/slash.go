package tui

import "strings"

// SlashCommand is a parsed leading-/ input line per §6's CLI surface.
type SlashCommand struct {
	Name string
	Args []string
}

func ParseSlash(line string) SlashCommand {
	line = strings.TrimPrefix(strings.TrimSpace(line), "/")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return SlashCommand{}
	}
	return SlashCommand{Name: fields[0], Args: fields[1:]}
}
