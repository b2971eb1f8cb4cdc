package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tcross-assistant/internal/domain/model"
	"tcross-assistant/internal/safety"
	"tcross-assistant/internal/usecase"
)

const cliIdentity = "cli:local"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat in the terminal",
	Long: `Start an interactive chat with the assistant. Replies are rendered as
Markdown. Type /help for the commands, /sair or Ctrl+D to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var logOut io.Writer = io.Discard
		if devMode {
			logOut = os.Stderr
		}
		a, err := buildApp(cmd.Context(), logOut)
		if err != nil {
			return err
		}
		defer a.Close()

		chat, err := a.hub.Get(cliIdentity)
		if err != nil {
			return err
		}
		r := &repl{
			chat:   chat,
			hub:    a.hub,
			export: a.export,
			text:   a.text,
			render: markdownRenderer(100),
			log:    a.log,
			in:     cmd.InOrStdin(),
			out:    cmd.OutOrStdout(),
		}
		return r.run(cmd.Context())
	},
}

// markdownRenderer returns a glamour renderer, or the identity function when
// the terminal style cannot be loaded.
func markdownRenderer(width int) func(string) string {
	tr, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return func(s string) string { return s }
	}
	return func(s string) string {
		out, err := tr.Render(s)
		if err != nil {
			return s
		}
		return out
	}
}

type repl struct {
	chat   *usecase.SecureChat
	hub    *usecase.SessionHub
	export usecase.ExportUseCase
	text   safety.Localizer
	render func(string) string
	log    *zerolog.Logger
	in     io.Reader
	out    io.Writer
}

func (r *repl) run(ctx context.Context) error {
	r.println(r.text.T("bot.welcome", r.chat.Vehicle().Label()))

	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if quit := r.command(ctx, line); quit {
				return nil
			}
		default:
			r.ask(ctx, line)
		}
	}
}

func (r *repl) ask(ctx context.Context, line string) {
	_, reply, status, err := r.chat.Ask(ctx, line, cliIdentity)
	if err != nil {
		r.fail(err)
		return
	}
	if status != r.text.T("chat.sent") {
		r.println(status)
	}
	fmt.Fprint(r.out, r.render(reply.Content))
}

// command runs a slash command and reports whether the REPL should stop.
func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/sair", "/exit", "/quit":
		return true
	case "/help", "/start":
		r.println(r.text.T("bot.help"))
		r.println(r.text.T("cli.extra_help"))
	case "/nova":
		sess, err := r.chat.StartNewSession(arg)
		if err != nil {
			r.println(r.text.T("bot.unknown_model", arg))
			return false
		}
		r.println(r.text.T("bot.new_session", sess.Model))
	case "/limpar":
		r.chat.ClearSession()
		r.println(r.text.T("bot.cleared"))
	case "/veiculo":
		v, ok := model.ParseVehicle(arg)
		if !ok {
			years, versions := r.hub.Vehicles()
			r.println(r.text.T("bot.vehicle_usage", strings.Join(years, ", "), strings.Join(versions, ", ")))
			return false
		}
		if err := r.chat.SelectVehicle(v); err != nil {
			r.fail(err)
			return false
		}
		r.println(r.text.T("bot.vehicle_set", v.Label()))
	case "/stats":
		if r.chat.CurrentSession() == nil {
			r.println(r.text.T("chat.no_session"))
			return false
		}
		st := r.chat.Stats()
		r.println(r.text.T("bot.stats", st.UserMessages, st.AssistantMessages, st.TotalCharacters))
	case "/modelos":
		r.println(r.text.T("bot.models_header"))
		for _, m := range r.hub.Models().List(ctx) {
			r.println(fmt.Sprintf("• %s (%s) - %s", m.Name, m.Provider, m.Description))
		}
	case "/exportar":
		r.exportTo(arg)
	case "/importar":
		r.importFrom(arg)
	default:
		r.println(r.text.T("bot.unknown_command"))
	}
	return false
}

// exportTo writes Markdown for *.md paths and JSON otherwise.
func (r *repl) exportTo(path string) {
	if path == "" {
		r.println(r.text.T("cli.file_usage"))
		return
	}
	sess := r.chat.CurrentSession()
	if sess == nil {
		r.println(r.text.T("chat.no_session"))
		return
	}
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		data = []byte(r.export.ExportMarkdown(sess))
	default:
		b, err := r.export.ExportJSON(sess)
		if err != nil {
			r.fail(err)
			return
		}
		data = b
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.println(r.text.T("cli.file_error", err.Error()))
		return
	}
	r.println(r.text.T("cli.exported", path))
}

func (r *repl) importFrom(path string) {
	if path == "" {
		r.println(r.text.T("cli.file_usage"))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.println(r.text.T("cli.file_error", err.Error()))
		return
	}
	sess, err := r.export.ImportJSON(data)
	if err != nil {
		r.println(r.text.T("cli.file_error", err.Error()))
		return
	}
	loaded, err := r.chat.LoadSession(sess)
	if err != nil {
		r.println(r.text.T("bot.unknown_model", sess.Model))
		return
	}
	r.println(r.text.T("cli.imported", loaded.Title, len(loaded.Messages)))
}

func (r *repl) fail(err error) {
	msg, known := usecase.Explain(err, r.text)
	if !known {
		r.log.Error().Err(err).Msg("chat turn failed")
	}
	r.println(msg)
}

func (r *repl) println(s string) {
	fmt.Fprintln(r.out, s)
}
