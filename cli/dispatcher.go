package cli

import (
	gocontext "context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fuwadog/patchpilot/context"
	"github.com/fuwadog/patchpilot/files"
	"github.com/fuwadog/patchpilot/parser"
	"github.com/fuwadog/patchpilot/patch"
	"github.com/fuwadog/patchpilot/prompt"
	"github.com/fuwadog/patchpilot/session"
)

const helpText = `Available commands:

  /exit                          Quit the assistant.
  /reset                         Clear conversation (keeps loaded project files).
  /help                          Show this help text.

  --- File management ---
  /file <path>                   Load a single file into project context.
  /folder <path>                 Discover and load up to the file cap from a folder.
  /list                          List all loaded files.
  /show <path>                   Print truncated content of a loaded file.
  /unload <path>                 Remove a file from context.
  /unload-all [--force]          Unload all non-pinned files.
  /unload-folder <path>          Unload all files from a folder.
  /unload-pattern <glob>         Unload files matching a pattern.

  --- Code operations ---
  /fix <path> [instructions]     Ask the assistant to fix bugs in a file.
  /refactor <path> [instr]       Ask the assistant to refactor a file.
  /patch <path> [instr]          Ask assistant to produce and optionally apply a patch.
  /apply <path>                  Apply the last assistant code block to a file.

  --- Snippets & Pins ---
  /pin <path>                    Pin a file to prevent accidental unloading.
  /unpin <path>                  Remove pin from a file.
  /snippet save <name>           Save the last assistant code block as a named snippet.
  /snippet show <name>           Print a saved snippet.
  /snippet list                  List all saved snippet names.
  /snippet del <name>            Delete a snippet.

  --- Info ---
  /tokens                        Show estimated token usage.
  /context-info                  Detailed token and file stats.

Anything else is sent as a regular chat message.`

// Chatter is the slice of the session API the dispatcher needs.
type Chatter interface {
	Send(ctx gocontext.Context, userText string, record bool, sink session.Sink) (string, error)
	RecordUserIntent(text string)
	Reset()
}

// Dispatcher routes one line of user input to the matching handler.
// Unrecognized input becomes a chat turn.
type Dispatcher struct {
	session  Chatter
	files    *files.Manager
	ctx      *context.Manager
	applier  *patch.Applier
	snippets *patch.Snippets
	display  *Display

	// AskInstructions, if set, prompts for missing code-op instructions.
	AskInstructions func() string

	maxFileChars int
	lastResponse string
}

// NewDispatcher wires the command layer together. maxFileTokens sizes
// the /show display cap.
func NewDispatcher(chat Chatter, fm *files.Manager, cm *context.Manager, applier *patch.Applier, snippets *patch.Snippets, display *Display, maxFileTokens int) *Dispatcher {
	return &Dispatcher{
		session:      chat,
		files:        fm,
		ctx:          cm,
		applier:      applier,
		snippets:     snippets,
		display:      display,
		maxFileChars: maxFileTokens * 4,
	}
}

// Dispatch handles one line of input. It returns false when the user
// asked to exit.
func (d *Dispatcher) Dispatch(ctx gocontext.Context, raw string) bool {
	raw = strings.TrimRight(raw, " \t\r\n")
	if raw == "" {
		return true
	}

	parts := strings.Fields(raw)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "/exit":
		return false
	case "/help":
		d.display.Info(helpText)
	case "/reset":
		d.session.Reset()
		d.display.Info("Conversation history cleared (project files retained).")
	case "/tokens":
		d.cmdTokens()
	case "/list":
		d.cmdList()
	case "/file":
		d.cmdFile(parts)
	case "/folder":
		d.cmdFolder(parts)
	case "/show":
		d.cmdShow(parts)
	case "/unload":
		d.cmdUnload(parts)
	case "/unload-all":
		d.cmdUnloadAll(parts)
	case "/unload-folder":
		d.cmdUnloadFolder(parts)
	case "/unload-pattern":
		d.cmdUnloadPattern(parts)
	case "/pin":
		d.cmdPin(parts)
	case "/unpin":
		d.cmdUnpin(parts)
	case "/context-info":
		d.cmdContextInfo()
	case "/apply":
		d.cmdApply(parts)
	case "/fix", "/refactor", "/patch":
		d.cmdCodeOp(ctx, cmd, raw)
	case "/snippet":
		d.cmdSnippet(parts)
	default:
		d.chat(ctx, raw)
	}
	return true
}

// Commands returns every top-level slash command, for autocompletion.
func (d *Dispatcher) Commands() []string {
	return []string{
		"/exit", "/reset", "/help", "/file", "/folder", "/list", "/show",
		"/unload", "/unload-all", "/unload-folder", "/unload-pattern",
		"/pin", "/unpin", "/tokens", "/context-info", "/fix", "/refactor",
		"/patch", "/apply", "/snippet",
	}
}

// LoadedPaths returns the loaded file paths, for autocompletion.
func (d *Dispatcher) LoadedPaths() []string { return d.files.Paths() }

// SnippetNames returns the saved snippet names, for autocompletion.
func (d *Dispatcher) SnippetNames() []string { return d.snippets.Names() }

func (d *Dispatcher) chat(ctx gocontext.Context, text string) {
	d.display.AssistantHeader()
	response, err := d.session.Send(ctx, text, true, d.display)
	d.display.Newline()
	if err != nil {
		d.display.Error(err.Error())
	}
	if response != "" {
		d.lastResponse = response
	}
}

func (d *Dispatcher) cmdTokens() {
	stats := d.ctx.Stats()
	d.display.Info(fmt.Sprintf("Estimated context tokens: ~%d", stats.TotalTokens))
	if stats.BudgetExceeded {
		d.display.Warning(fmt.Sprintf(
			"Pinned content alone exceeds the %d-token budget; unpin or unload to recover.",
			stats.MaxTokens))
	}
}

func (d *Dispatcher) cmdList() {
	paths := d.files.Paths()
	if len(paths) == 0 {
		d.display.Info("No files loaded.")
		return
	}
	for _, p := range paths {
		d.display.Info(p)
	}
}

func (d *Dispatcher) cmdFile(parts []string) {
	if len(parts) < 2 {
		d.display.Info("Usage: /file <path>")
		return
	}
	path := strings.Join(parts[1:], " ")
	if err := d.files.Load(path); err != nil {
		if errors.Is(err, files.ErrNoRoom) {
			d.display.Warning("Not loaded: pinned content leaves no room for " + path)
			return
		}
		d.display.Error(fmt.Sprintf("Failed to load: %v", err))
		return
	}
	d.display.Info("Loaded: " + path)
}

func (d *Dispatcher) cmdFolder(parts []string) {
	folder := "."
	if len(parts) > 1 {
		folder = parts[1]
	}
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		d.display.Error("Folder not found: " + folder)
		return
	}
	count, errs := d.files.LoadFolder(folder, nil)
	for _, e := range errs {
		d.display.Info(fmt.Sprintf("  Skipped: %v", e))
	}
	d.display.Info(fmt.Sprintf("Loaded %d file(s) from %s.", count, folder))
}

func (d *Dispatcher) cmdShow(parts []string) {
	if len(parts) < 2 {
		d.display.Info("Usage: /show <path>")
		return
	}
	path := strings.Join(parts[1:], " ")
	content, ok := d.files.Content(path)
	if !ok {
		d.display.Info("File not loaded. Use /file to load it first.")
		return
	}
	if runes := []rune(content); len(runes) > d.maxFileChars {
		content = string(runes[:d.maxFileChars]) + "\n…[truncated]"
	}
	d.display.Info("\n--- " + path + " ---\n")
	d.display.Info(content)
	d.display.Info("\n--- end ---")
}

func (d *Dispatcher) cmdUnload(parts []string) {
	if len(parts) < 2 {
		d.display.Info("Usage: /unload <path>")
		return
	}
	path := strings.Join(parts[1:], " ")
	if d.files.Unload(path, false) {
		d.display.Success("Unloaded: " + path)
		return
	}
	d.display.Warning("Skipped (likely pinned): " + path)
}

func (d *Dispatcher) cmdUnloadAll(parts []string) {
	force := false
	for _, p := range parts[1:] {
		if p == "--force" {
			force = true
		}
	}
	count := d.files.UnloadAll(!force)
	d.display.Success(fmt.Sprintf("Unloaded %d files.", count))
}

func (d *Dispatcher) cmdUnloadFolder(parts []string) {
	if len(parts) < 2 {
		d.display.Info("Usage: /unload-folder <path>")
		return
	}
	path := strings.Join(parts[1:], " ")
	count := d.files.UnloadFolder(path)
	d.display.Success(fmt.Sprintf("Unloaded %d files from %s.", count, path))
}

func (d *Dispatcher) cmdUnloadPattern(parts []string) {
	if len(parts) < 2 {
		d.display.Info("Usage: /unload-pattern <glob>")
		return
	}
	pattern := strings.Join(parts[1:], " ")
	count := d.files.UnloadPattern(pattern)
	d.display.Success(fmt.Sprintf("Unloaded %d files matching %s.", count, pattern))
}

func (d *Dispatcher) cmdPin(parts []string) {
	if len(parts) < 2 {
		d.display.Info("Usage: /pin <path>")
		return
	}
	path := strings.Join(parts[1:], " ")
	err := d.ctx.Pin(canonical(path))
	switch {
	case errors.Is(err, context.ErrNotFound):
		d.display.Error(fmt.Sprintf("Cannot pin %s. Is it loaded?", path))
	case errors.Is(err, context.ErrPinLimitExceeded):
		d.display.Error(fmt.Sprintf("Pin limit reached (%d). Unpin something first.", d.ctx.PinLimit()))
	case err != nil:
		d.display.Error(err.Error())
	default:
		d.display.Success("Pinned: " + path)
	}
}

func (d *Dispatcher) cmdUnpin(parts []string) {
	if len(parts) < 2 {
		d.display.Info("Usage: /unpin <path>")
		return
	}
	path := strings.Join(parts[1:], " ")
	if err := d.ctx.Unpin(canonical(path)); err != nil {
		d.display.Error(fmt.Sprintf("Cannot unpin %s: %v", path, err))
		return
	}
	d.display.Success("Unpinned: " + path)
}

func (d *Dispatcher) cmdContextInfo() {
	stats := d.ctx.Stats()
	d.display.Info(fmt.Sprintf("Total tokens: %d / %d", stats.TotalTokens, stats.MaxTokens))
	d.display.Info(fmt.Sprintf("Loaded files: %d (%d pinned, pin limit %d)",
		stats.EntryCount, stats.PinnedCount, stats.PinLimit))
	if usage := stats.Usage; usage.Total() > 0 {
		d.display.Info(fmt.Sprintf("Provider usage: %d prompt + %d completion tokens",
			usage.PromptTokens, usage.CompletionTokens))
	}
	if stats.BudgetExceeded {
		d.display.Warning("Pinned content exceeds the token budget.")
	}
	d.display.Newline()

	rows := make([][]string, 0, len(stats.Entries))
	for _, e := range stats.Entries {
		pinned := "No"
		if e.Pinned {
			pinned = "Yes"
		}
		rows = append(rows, []string{e.ID, fmt.Sprintf("%d", e.Tokens), pinned})
	}
	d.display.Table([]string{"File", "Tokens", "Pinned"}, rows)
}

// cmdCodeOp handles /fix, /refactor and /patch. The structured prompt is
// sent ephemerally; only a short intent line enters the history.
func (d *Dispatcher) cmdCodeOp(ctx gocontext.Context, cmd, raw string) {
	fields := strings.SplitN(raw, " ", 3)
	if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
		d.display.Info(fmt.Sprintf("Usage: %s <path> [instructions]", cmd))
		return
	}
	path := fields[1]
	instructions := ""
	if len(fields) > 2 {
		instructions = strings.TrimSpace(fields[2])
	}

	if !d.files.IsLoaded(path) {
		if err := d.files.Load(path); err != nil {
			d.display.Error(fmt.Sprintf("Cannot load file: %v", err))
			return
		}
	}
	if instructions == "" && d.AskInstructions != nil {
		instructions = strings.TrimSpace(d.AskInstructions())
	}

	content, _ := d.files.Content(path)
	rendered, err := prompt.Render(prompt.Op(strings.TrimPrefix(cmd, "/")), prompt.Input{
		Path:         path,
		Content:      content,
		Instructions: instructions,
	})
	if err != nil {
		d.display.Error(err.Error())
		return
	}

	d.session.RecordUserIntent(fmt.Sprintf("%s %s: %s", cmd, path, instructions))
	d.display.AssistantHeader()
	response, err := d.session.Send(ctx, rendered, false, d.display)
	d.display.Newline()
	if err != nil {
		d.display.Error(err.Error())
		return
	}
	d.lastResponse = response

	if cmd == "/patch" && response != "" {
		d.applyPatch(path, response)
	}
}

// cmdApply writes the last assistant code block to a file, with the same
// preview, confirm, and backup path as /patch.
func (d *Dispatcher) cmdApply(parts []string) {
	if len(parts) < 2 {
		d.display.Info("Usage: /apply <path>")
		return
	}
	if d.lastResponse == "" {
		d.display.Info("No assistant response to apply from.")
		return
	}
	d.applyPatch(strings.Join(parts[1:], " "), d.lastResponse)
}

func (d *Dispatcher) applyPatch(path, response string) {
	newCode := parser.FirstCode(response, "")
	if newCode == "" {
		d.display.Info("No code block found in response to apply.")
		return
	}
	applied, err := d.applier.Apply(path, newCode)
	if err != nil {
		d.display.Error(fmt.Sprintf("Patch failed: %v", err))
		return
	}
	if !applied {
		d.display.Info("Patch not applied.")
		return
	}
	d.display.Success("Patch applied: " + path)
	// Refresh the in-context copy.
	if err := d.files.Load(path); err != nil {
		d.display.Warning(fmt.Sprintf("Reload after patch failed: %v", err))
	}
}

func (d *Dispatcher) cmdSnippet(parts []string) {
	sub := ""
	if len(parts) > 1 {
		sub = strings.ToLower(parts[1])
	}
	switch {
	case sub == "list":
		names := d.snippets.Names()
		if len(names) == 0 {
			d.display.Info("No snippets saved.")
			return
		}
		d.display.Info(strings.Join(names, "\n"))
	case sub == "show" && len(parts) > 2:
		block, ok := d.snippets.ContextBlock(parts[2])
		if !ok {
			d.display.Info(fmt.Sprintf("Snippet %q not found.", parts[2]))
			return
		}
		d.display.Info(block)
	case sub == "del" && len(parts) > 2:
		if d.snippets.Delete(parts[2]) {
			d.display.Info(fmt.Sprintf("Deleted %q.", parts[2]))
			return
		}
		d.display.Info("Not found.")
	case sub == "save" && len(parts) > 2:
		d.saveSnippet(parts[2])
	default:
		d.display.Info("Usage: /snippet save|show|list|del [name]")
	}
}

func (d *Dispatcher) saveSnippet(name string) {
	if d.lastResponse == "" {
		d.display.Info("No assistant response to save from.")
		return
	}
	code := parser.FirstCode(d.lastResponse, "")
	if code == "" {
		d.display.Info("No code block found in last response.")
		return
	}
	d.snippets.Save(name, code)
	d.display.Info(fmt.Sprintf("Snippet %q saved.", name))
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
