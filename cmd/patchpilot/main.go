// Command patchpilot is an interactive terminal assistant for reading,
// explaining, and patching project files. This file only reads config,
// wires the components together, and runs the input loop.
package main

import (
	gocontext "context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/fuwadog/patchpilot/cli"
	"github.com/fuwadog/patchpilot/config"
	"github.com/fuwadog/patchpilot/context"
	"github.com/fuwadog/patchpilot/files"
	"github.com/fuwadog/patchpilot/patch"
	"github.com/fuwadog/patchpilot/provider/openai"
	"github.com/fuwadog/patchpilot/session"
	"github.com/fuwadog/patchpilot/watch"
)

const inputPrompt = "\nYou: "

func main() {
	setupLogging()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	display := cli.NewDisplay(nil)

	if cfg.APIKey == "" {
		key, err := readline.Line("Enter API key (or set OPENAI_API_KEY env var): ")
		if err != nil || strings.TrimSpace(key) == "" {
			display.Error("No API key provided. Exiting.")
			os.Exit(1)
		}
		cfg.APIKey = strings.TrimSpace(key)
	}

	client, err := openai.New(openai.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay.Std(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "provider:", err)
		os.Exit(1)
	}
	defer client.Close()

	cm := context.NewManager(cfg.MaxContextTokens, cfg.PinnedFilesLimit, nil)
	fm := files.NewManager(cm, cfg.MaxFiles, cfg.MaxFileTokens, cfg.Extensions)

	sess := session.New(client, cm, session.Config{
		SystemPrompt:       cfg.SystemPrompt,
		Temperature:        cfg.Temperature,
		MaxResponseTokens:  cfg.MaxResponseTokens,
		MaxPromptTokens:    cfg.MaxContextTokens,
		MaxHistoryMessages: cfg.MaxConvoMessages,
	})

	// The line editor and the dispatcher reference each other: the
	// applier's confirm prompt reads through the editor, while the
	// editor completes from dispatcher state. Bind late via closures.
	var rl *readline.Instance

	ask := func(label string) string {
		if rl == nil {
			return ""
		}
		rl.SetPrompt(label)
		defer rl.SetPrompt(inputPrompt)
		line, err := rl.Readline()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(line)
	}

	applier := patch.NewApplier(patch.Options{
		Backup:      cfg.BackupOnWrite,
		DiffPreview: cfg.DiffPreview,
		Confirm: func(path string) bool {
			answer := strings.ToLower(ask(fmt.Sprintf("Apply changes to %s? [y/N] ", path)))
			return answer == "y" || answer == "yes"
		},
	})

	dispatcher := cli.NewDispatcher(sess, fm, cm, applier, patch.NewSnippets(), display, cfg.MaxFileTokens)
	dispatcher.AskInstructions = func() string {
		return ask("Instructions (one line): ")
	}

	rl, err = readline.NewEx(&readline.Config{
		Prompt: inputPrompt,
		AutoComplete: &cli.Completer{
			Commands:    dispatcher.Commands,
			LoadedPaths: dispatcher.LoadedPaths,
			Snippets:    dispatcher.SnippetNames,
		},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "terminal:", err)
		os.Exit(1)
	}
	defer rl.Close()

	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	defer cancel()

	var watcher *watch.Watcher
	if cfg.WatchFiles {
		watcher, err = watch.New(fm)
		if err != nil {
			display.Warning(fmt.Sprintf("File watching unavailable: %v", err))
		} else {
			defer watcher.Close()
			watcher.OnReload = func(path string) {
				display.Info("Reloaded (changed on disk): " + path)
			}
			go watcher.Run(ctx)
		}
	}

	display.Info(fmt.Sprintf("Patchpilot session %s", sess.ID()))
	display.Info("Type /help for commands.")
	display.Separator()

	tracked := make(map[string]bool)
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				display.Info("Exiting.")
				return
			}
			continue
		}
		if err != nil {
			display.Info("Exiting.")
			return
		}
		if !dispatcher.Dispatch(ctx, line) {
			return
		}
		if watcher != nil {
			syncWatches(watcher, fm, tracked)
		}
	}
}

// setupLogging wires a text handler to stderr; PATCHPILOT_LOG=debug
// raises the level.
func setupLogging() {
	level := slog.LevelWarn
	switch strings.ToLower(os.Getenv("PATCHPILOT_LOG")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// syncWatches reconciles the watcher's tracked set with the currently
// loaded files.
func syncWatches(w *watch.Watcher, fm *files.Manager, tracked map[string]bool) {
	loaded := make(map[string]bool)
	for _, p := range fm.Paths() {
		loaded[p] = true
		if !tracked[p] {
			if err := w.Track(p); err != nil {
				slog.Warn("cannot watch file", "path", p, "error", err)
				continue
			}
			tracked[p] = true
		}
	}
	for p := range tracked {
		if !loaded[p] {
			w.Untrack(p)
			delete(tracked, p)
		}
	}
}
