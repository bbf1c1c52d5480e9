package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"quit", Command{Name: "quit"}},
		{"  Q  ", Command{Name: "quit"}},
		{"search blue umbrella", Command{Name: "search", Args: "blue umbrella"}},
		{"s   keys ", Command{Name: "search", Args: "keys"}},
		{"start 64f1c2", Command{Name: "start", Args: "64f1c2"}},
		{"dm 64f1c2", Command{Name: "start", Args: "64f1c2"}},
		{"open c-9", Command{Name: "open", Args: "c-9"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestCommandNamesParseToThemselves(t *testing.T) {
	for _, name := range commandNames {
		if got := ParseCommand(name).Name; got != name {
			t.Errorf("ParseCommand(%q).Name = %q", name, got)
		}
		if _, alias := commandAliases[name]; alias {
			t.Errorf("%q is listed as both a command and an alias", name)
		}
	}
}
