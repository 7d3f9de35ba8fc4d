package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nugget/kith/internal/assistant"
	"github.com/nugget/kith/internal/export"
	"github.com/nugget/kith/internal/format"
	"github.com/nugget/kith/internal/guard"
	"github.com/nugget/kith/internal/llm"
	"github.com/nugget/kith/internal/prompts"
	"github.com/nugget/kith/internal/session"
	"github.com/nugget/kith/internal/translator"
	"github.com/nugget/kith/internal/workflow"
)

// maxSummaries caps the records listed in a confirmation prompt.
const maxSummaries = 10

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runChat(cmd.Context())
		},
	}
}

func (c *cli) askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <request>",
		Short: "Handle a single request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAsk(cmd.Context(), strings.Join(args, " "))
		},
	}
}

// runAsk handles one request in a fresh session. Confirmations are
// only possible when attached to a terminal; otherwise operations that
// need one are cancelled.
func (c *cli) runAsk(ctx context.Context, request string) error {
	e, err := c.open()
	if err != nil {
		return err
	}
	defer e.Close()

	in := bufio.NewReader(c.stdin)
	p := newPrinter(c.stdout, c.output)
	a, opts, err := e.assistant(ctx, "ask", c.confirmer(in), p.renderer())
	if err != nil {
		return err
	}

	sess := session.New(opts)
	defer sess.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return p.response(a.Handle(ctx, sess, request))
}

// runChat reads requests line by line until EOF or "exit". Ctrl-C
// cancels the request in flight without ending the session.
func (c *cli) runChat(ctx context.Context) error {
	e, err := c.open()
	if err != nil {
		return err
	}
	defer e.Close()

	in := bufio.NewReader(c.stdin)
	p := newPrinter(c.stdout, c.output)
	a, opts, err := e.assistant(ctx, "chat", c.confirmer(in), p.renderer())
	if err != nil {
		return err
	}

	sess := session.New(opts)
	defer sess.Close()
	e.logger.Info("chat started", "session", sess.ID, "model", e.cfg.Model.Name, "provider", e.cfg.Model.Provider)

	interactive := isTerminal(c.stdin, c.stdout)
	if interactive {
		fmt.Fprintf(c.stdout, "kith %s. Type \"exit\" to quit.\n", e.cfg.Model.Name)
	}

	for {
		if interactive {
			fmt.Fprint(c.stdout, "\n> ")
		}
		line, err := in.ReadString('\n')
		msg := strings.TrimSpace(line)
		switch {
		case msg == "exit" || msg == "quit":
			return nil
		case msg != "":
			msgCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
			resp := a.Handle(msgCtx, sess, msg)
			stop()
			if perr := p.response(resp); perr != nil {
				return perr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// confirmer returns a terminal prompt reading from in, or nil when
// stdin and stdout are not both a terminal.
func (c *cli) confirmer(in *bufio.Reader) guard.Confirmer {
	if !isTerminal(c.stdin, c.stdout) {
		return nil
	}
	return &terminalConfirmer{in: in, out: c.stdout}
}

// assistant wires the model client, translator, guard and workflow
// engine for one front end ("chat" or "ask") and returns the session
// options to start sessions with.
func (e *env) assistant(ctx context.Context, source string, confirmer guard.Confirmer, renderer *format.Renderer) (*assistant.Assistant, session.Options, error) {
	cfg := e.cfg

	client, err := llm.NewFromConfig(ctx, cfg, e.logger)
	if err != nil {
		return nil, session.Options{}, err
	}
	if source == "chat" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Ping(pingCtx); err != nil {
			e.logger.Warn("model provider is not answering", "provider", cfg.Model.Provider, "error", err)
		}
		cancel()
	}
	tr := translator.New(client, translator.Config{
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
		Timeout:     time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
	}, e.logger)

	g := guard.New(guard.Config{
		Policy:    guard.PolicyFromConfig(cfg.Permissions),
		Confirmer: confirmer,
		Backups:   e.backups,
		Audit:     e.audit,
		KeepAuto:  cfg.Backup.KeepAuto,
		Logger:    e.logger,
	})

	engine := workflow.New(workflow.Config{
		Data:     e.store,
		Exporter: export.New(cfg.ExportDir, e.logger),
		Guard:    g,
		Backups:  e.backups,
		Renderer: renderer,
		Source:   source,
		Logger:   e.logger,
	})

	base, err := cfg.SystemPromptText()
	if err != nil {
		return nil, session.Options{}, err
	}
	opts := session.Options{
		System:      prompts.System(base),
		TokenBudget: cfg.Context.TokenBudget,
		MaxTurns:    cfg.Context.MaxTurns,
		Mode:        session.Mode(cfg.Context.Mode),
		Logger:      e.logger,
	}
	return assistant.New(tr, engine, e.logger), opts, nil
}

// terminalConfirmer asks on the terminal before guarded operations.
type terminalConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func (t *terminalConfirmer) Confirm(ctx context.Context, req guard.ConfirmationRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintf(t.out, "\nAbout to %s %d %s (%s):\n", req.Kind, req.Count, req.EntityType.Noun(req.Count), req.Reason)
	for i, s := range req.Summaries {
		if i == maxSummaries {
			fmt.Fprintf(t.out, "  ... and %d more\n", len(req.Summaries)-maxSummaries)
			break
		}
		fmt.Fprintf(t.out, "  - %s\n", s)
	}
	fmt.Fprint(t.out, "Proceed? [y/N] ")

	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
