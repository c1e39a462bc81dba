// Command server runs the a2alite runtime with a small echo agent, mainly
// as a reference for embedding the runtime behind a real agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hamidra/a2alite/internal/cleanup"
	"github.com/hamidra/a2alite/internal/config"
	"github.com/hamidra/a2alite/internal/execution"
	"github.com/hamidra/a2alite/internal/logger"
	"github.com/hamidra/a2alite/internal/protocol"
	"github.com/hamidra/a2alite/internal/rpc"
	"github.com/hamidra/a2alite/internal/server"
	"github.com/hamidra/a2alite/internal/stream"
	"github.com/hamidra/a2alite/internal/taskstore"
)

func main() {
	configDir := flag.String("config", "", "directory containing a2alite.jsonc")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(config.FindConfigPath(*configDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}

	if err := logger.Init(cfg.Log.Dir, cfg.Log.JSON); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Close() }()

	store, err := openStore(cfg)
	if err != nil {
		logger.Slog().Error("failed to open task store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	sweeper, err := cleanup.New(store, cfg.Cleanup.Schedule)
	if err != nil {
		logger.Slog().Error("invalid cleanup schedule", "error", err)
		os.Exit(1)
	}
	if cfg.Cleanup.Enabled {
		sweeper.Start()
		defer sweeper.Stop()
	}

	handlers := rpc.NewHandlers(store, stream.NewManager(), &echoAgent{}, cfg.TaskTTL())
	dispatcher := rpc.NewDispatcher()
	handlers.Register(dispatcher)

	card := cfg.Card
	if card == nil {
		card = defaultCard(cfg.Server.Address)
	}

	ready := func(ctx context.Context) error {
		_, err := store.Keys(ctx)
		return err
	}

	srv := server.New(cfg, dispatcher, card, ready)

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		logger.Slog().Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	if err := srv.ListenAndServe(); err != nil {
		logger.Slog().Info("server stopped", "reason", err)
	}
}

func openStore(cfg *config.Config) (taskstore.Store, error) {
	if cfg.Store.Backend == "sqlite" {
		return taskstore.NewSQLiteStore(cfg.Store.DataDir)
	}
	return taskstore.NewMemoryStore(), nil
}

func defaultCard(addr string) *protocol.AgentCard {
	return &protocol.AgentCard{
		Name:        "echo",
		Description: "Echoes each text part back as an artifact.",
		URL:         "http://localhost" + addr + "/a2a",
		Version:     "0.1.0",
		Capabilities: protocol.AgentCapabilities{
			Streaming: true,
		},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills: []protocol.AgentSkill{{
			ID:          "echo",
			Name:        "Echo",
			Description: "Repeats the message text back to the caller.",
			Tags:        []string{"demo"},
		}},
	}
}

// echoAgent is the reference executor: it streams one artifact per inbound
// text part and completes. A message ending in "?" parks the task waiting
// for input, so multi-turn flows can be exercised end to end.
type echoAgent struct{}

func (a *echoAgent) Execute(ctx context.Context, ec *execution.Context) (execution.Result, error) {
	texts := textParts(ec.Request().Params.Message)
	if len(texts) == 0 {
		return &execution.ErrorResult{Err: protocol.ErrContentTypeNotSupported()}, nil
	}

	if strings.HasSuffix(strings.TrimSpace(texts[len(texts)-1]), "?") {
		task, err := ec.InputRequired(execution.TaskUpdate{
			Message: &execution.StatusMessage{
				Parts: []protocol.Part{protocol.NewTextPart("how many times should I echo that?")},
			},
		})
		if err != nil {
			return nil, err
		}
		return &execution.TaskResult{Task: task}, nil
	}

	return ec.Stream(func(ts *execution.TaskStream) {
		for i, text := range texts {
			err := ts.WriteArtifact(execution.ArtifactUpdate{
				Artifact: protocol.Artifact{
					ArtifactID: fmt.Sprintf("echo-%d", i),
					Parts:      []protocol.Part{protocol.NewTextPart(text)},
				},
			})
			if err != nil {
				return
			}
		}
		_ = ts.Complete(execution.TaskUpdate{})
	})
}

func (a *echoAgent) Cancel(ctx context.Context, task *protocol.Task) (*protocol.Task, error) {
	return nil, protocol.ErrTaskNotCancelable(task.ID)
}

func textParts(msg protocol.Message) []string {
	var texts []string
	for _, part := range msg.Parts {
		if part.Kind == protocol.PartKindText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return texts
}
