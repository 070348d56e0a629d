package cli

import (
	"os"
	"path/filepath"
	"strings"
)

// Completer suggests commands and arguments for the input line. It
// satisfies readline's AutoCompleter contract: Do returns the candidate
// suffixes for the word at the cursor plus the rune length of that word.
// The getters are called on every keystroke so suggestions track the
// live dispatcher state.
type Completer struct {
	Commands    func() []string
	LoadedPaths func() []string
	Snippets    func() []string
}

// Argument classes per command. Path commands complete from the file
// system; loaded-file commands only from what is already in context.
var (
	pathCommands = map[string]bool{
		"/file": true, "/folder": true, "/unload-folder": true,
	}
	loadedFileCommands = map[string]bool{
		"/show": true, "/unload": true, "/pin": true, "/unpin": true,
		"/fix": true, "/refactor": true, "/patch": true, "/apply": true,
	}
	snippetSubcommands = []string{"save", "list", "show", "del"}
)

// Do implements completion for the text before the cursor. Input that
// does not start with a slash gets no suggestions.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])
	if !strings.HasPrefix(text, "/") {
		return nil, 0
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, 0
	}
	cmd := strings.ToLower(fields[0])

	// Still typing the command itself.
	if len(fields) == 1 && !strings.HasSuffix(text, " ") {
		return suffixes(c.Commands(), cmd, " ")
	}

	// The word in flight, empty right after a separator.
	arg := ""
	if !strings.HasSuffix(text, " ") {
		arg = fields[len(fields)-1]
	}

	switch {
	case pathCommands[cmd]:
		return completePath(arg)
	case loadedFileCommands[cmd]:
		return suffixes(c.LoadedPaths(), arg, " ")
	case cmd == "/snippet":
		return c.completeSnippet(fields, arg)
	}
	return nil, 0
}

func (c *Completer) completeSnippet(fields []string, arg string) ([][]rune, int) {
	// One argument in flight means the subcommand; a name follows only
	// for show and del.
	if len(fields) == 1 || (len(fields) == 2 && arg != "") {
		return suffixes(snippetSubcommands, arg, " ")
	}
	sub := strings.ToLower(fields[1])
	if sub != "show" && sub != "del" {
		return nil, 0
	}
	return suffixes(c.Snippets(), arg, " ")
}

// suffixes returns the remainders of every candidate that starts with
// word (case-insensitive), each followed by sep, plus the rune length
// of word.
func suffixes(candidates []string, word, sep string) ([][]rune, int) {
	w := []rune(word)
	var out [][]rune
	for _, cand := range candidates {
		cr := []rune(cand)
		if len(cr) < len(w) || !strings.EqualFold(string(cr[:len(w)]), word) {
			continue
		}
		out = append(out, []rune(string(cr[len(w):])+sep))
	}
	if len(out) == 0 {
		return nil, 0
	}
	return out, len(w)
}

// completePath lists directory entries matching the partial path, the
// way shells complete file arguments. Directories gain a trailing
// separator so completion can continue into them.
func completePath(arg string) ([][]rune, int) {
	if strings.HasPrefix(arg, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			arg = filepath.Join(home, arg[2:]) + lastSeparator(arg)
		}
	}
	dir, base := filepath.Split(arg)
	searchDir := dir
	if searchDir == "" {
		searchDir = "."
	}
	entries, err := os.ReadDir(searchDir)
	if err != nil {
		return nil, 0
	}

	w := []rune(base)
	var out [][]rune
	for _, entry := range entries {
		nr := []rune(entry.Name())
		if len(nr) < len(w) || !strings.EqualFold(string(nr[:len(w)]), base) {
			continue
		}
		suffix := string(nr[len(w):])
		if entry.IsDir() {
			suffix += string(filepath.Separator)
		} else {
			suffix += " "
		}
		out = append(out, []rune(suffix))
	}
	if len(out) == 0 {
		return nil, 0
	}
	return out, len(w)
}

// lastSeparator preserves a trailing separator that filepath.Join would
// strip, so "~/sub/" keeps completing inside sub.
func lastSeparator(path string) string {
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return string(filepath.Separator)
	}
	return ""
}
