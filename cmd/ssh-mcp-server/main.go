// Command ssh-mcp-server is the process entry point for the remote-ops
// engine (spec §1/§6). It wires configuration, logging and a minimal
// line-delimited stdio dispatcher over the tool surface.
//
// The JSON-RPC / streamable-HTTP transport proper is, per spec §1, an
// external collaborator — this stdio loop is a thin illustrative driver
// only, not a protocol implementation, grounded on the teacher's
// cmd/server/main.go startup/shutdown shape.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sshremote/ssh-mcp-server/internal/config"
	"github.com/sshremote/ssh-mcp-server/internal/toolsurface"
)

func main() {
	cfg := config.LoadProcess()
	setupLogger(cfg)

	log.Info().Int("mcp_port", cfg.MCPPort).Msg("starting ssh-mcp-server")

	engine := toolsurface.New()

	ctx, cancel := context.WithCancel(context.Background())
	go engine.RunInactivityJanitor(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutting down")
		cancel()
		os.Exit(0)
	}()

	runStdioLoop(ctx, engine)
}

func setupLogger(cfg config.Process) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// runStdioLoop reads one JSON request per line from stdin and writes one
// JSON response per line to stdout, dispatching each to the tool surface.
func runStdioLoop(ctx context.Context, engine *toolsurface.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(writer, response{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		result, err := dispatch(ctx, engine, req)
		resp := response{ID: req.ID, Result: result}
		if err != nil {
			resp.Error = err.Error()
		}
		writeResponse(writer, resp)
	}
}

type request struct {
	ID   string          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

type response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func writeResponse(w *bufio.Writer, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("marshal response")
		return
	}
	w.Write(data)
	w.WriteByte('\n')
	w.Flush()
}
