package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/normanking/lipsync/internal/animator"
	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/config"
	"github.com/normanking/lipsync/internal/logging"
	"github.com/normanking/lipsync/internal/metrics"
	"github.com/normanking/lipsync/internal/morph"
	"github.com/normanking/lipsync/internal/stream"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var modelPath, expression string
	var loop bool
	var rate int

	cmd := &cobra.Command{
		Use:   "serve <file.wav | ->",
		Short: "Play a WAV file in real time and stream frames over WebSocket",
		Long: `Play a WAV file in real time and stream frames over WebSocket.

With "-" the input is live raw signed 16-bit little-endian mono PCM read
from stdin at --rate, for example:

  arecord -f S16_LE -c 1 -r 16000 | lipsync serve -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			log := ctx.logger.Component("serve")
			live := args[0] == "-"

			var clip *audio.Clip
			var err error
			if !live {
				if clip, err = audio.LoadWAV(args[0]); err != nil {
					return err
				}
			}

			var dict *morph.Dictionary
			if modelPath != "" {
				if dict, err = morph.LoadDictionary(modelPath); err != nil {
					return err
				}
				report := dict.Coverage(drivenTargets())
				log.Info().Int("covered", len(report.Covered)).Strs("missing", report.Missing).Msg("Model bound")
			}

			events := bus.NewEventBus()
			events.Subscribe(bus.EventTypeVisemeChanged, func(e bus.Event) {
				log.Debug().Interface("viseme", e.Data["viseme"]).Interface("volume", e.Data["volume"]).Msg("Viseme changed")
			})

			hub := stream.NewHub(cfg.Stream.FPS, events, ctx.logger.Component("stream"))
			defer hub.Close()

			streamLogs(ctx.logger, hub)
			defer ctx.logger.SetOnLog(nil)

			opts := animator.Options{
				Events: events,
				Sink:   hub,
				Morphs: dict,
				Logger: ctx.logger.Zerolog(),
				Loop:   loop,
			}
			var a *animator.Animator
			if live {
				a, err = animator.NewLive(cmd.InOrStdin(), rate, cfg, opts)
			} else {
				a, err = animator.New(clip, cfg, opts)
			}
			if err != nil {
				return err
			}
			hub.SetControlHandler(func(_ string, c stream.Control) error {
				return a.HandleControl(c)
			})
			if expression != "" {
				if err := a.SetExpression(expression); err != nil {
					return err
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if path := ctx.watchPath(); path != "" {
				err := config.Watch(runCtx, path, log, func(c *config.Config) {
					a.SetConfig(c)
				})
				if err != nil {
					log.Warn().Err(err).Msg("Config hot reload disabled")
				}
			}

			server := stream.NewServer(cfg.Stream.Addr, routes(cfg, hub, ctx.logger), ctx.logger.Zerolog())
			serverErr := make(chan error, 1)
			serverCtx, stopServer := context.WithCancel(runCtx)
			defer stopServer()
			go func() { serverErr <- server.Run(serverCtx) }()

			ev := log.Info().Str("ws", "ws://"+cfg.Stream.Addr+cfg.Stream.Path)
			if live {
				ev = ev.Str("input", "stdin").Int("rate", rate)
			} else {
				ev = ev.Str("file", args[0]).Dur("duration", clip.Duration())
			}
			ev.Msg("Serving")

			animErr := make(chan error, 1)
			go func() { animErr <- a.Run(runCtx) }()

			select {
			case err := <-serverErr:
				stop()
				<-animErr
				return err
			case err := <-animErr:
				stopServer()
				if serr := <-serverErr; err == nil {
					err = serr
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "glTF model whose morph targets frames should address")
	cmd.Flags().StringVar(&expression, "expression", "", "Facial expression preset")
	cmd.Flags().BoolVar(&loop, "loop", false, "Restart the clip when it ends")
	cmd.Flags().IntVar(&rate, "rate", defaultPCMRate, "Sample rate of raw PCM read from stdin")
	return cmd
}

func routes(cfg *config.Config, hub *stream.Hub, logger *logging.Logger) map[string]http.Handler {
	r := map[string]http.Handler{
		cfg.Stream.Path: hub,
		"/logs":         logsHandler(logger),
	}
	if cfg.Metrics.Enabled {
		r[cfg.Metrics.Path] = metrics.Handler()
	}
	return r
}

// streamLogs forwards every log entry to stream clients.
func streamLogs(logger *logging.Logger, hub *stream.Hub) {
	logger.SetOnLog(func(e logging.LogEntry) {
		hub.Broadcast(stream.LogMessage{
			Type:      stream.TypeLog,
			Timestamp: e.Timestamp,
			Level:     e.Level,
			Component: e.Component,
			Message:   e.Message,
			Data:      e.Data,
		})
	})
}

// logsHandler serves recent log entries; ?limit=n bounds the count.
func logsHandler(logger *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(logger.GetHistory(limit))
	})
}
