package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"camfeed/native/internal/config"
	"camfeed/native/internal/domain"
	"camfeed/native/internal/logging"
	"camfeed/native/internal/media"
	"camfeed/native/internal/session"
	sigchan "camfeed/native/internal/signal"
	"camfeed/native/internal/webrtc"
)

const helpText = `camfeed - receive a WebRTC video feed and write it to stdout as H264

Usage:
  camfeed [options]

The raw H264 stream is written to stdout. Pipe to ffplay or ffmpeg for
playback. Commands are read from stdin, one per line.

Examples:
  # Live playback of the camera source
  camfeed --source camera | ffplay -f h264 -

  # Remux to MP4
  camfeed --source file | ffmpeg -f h264 -i - -c copy output.mp4

Configuration is read from flags, CAMFEED_* environment variables, a .env
file and an optional YAML file (--config), in that order of precedence.

`

func main() {
	if err := logging.Setup("info", os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		fmt.Fprint(os.Stderr, helpText)
		os.Exit(0)
	}
	if err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("load config")
	}
	if err := logging.Setup(cfg.LogLevel, os.Stderr); err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("setup logging")
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderer := media.NewRenderer(os.Stdout)
	recorder := media.NewRecorder(media.FileSink{Dir: cfg.RecordDir})
	pionLogs := logging.NewPionFactory()

	coord := session.New(session.Options{
		Endpoint: cfg.SignalURL,
		NewChannel: func(endpoint string) domain.Channel {
			return sigchan.NewChannel(endpoint,
				sigchan.WithPingInterval(cfg.PingInterval),
				sigchan.WithHandshakeTimeout(cfg.HandshakeTimeout),
				sigchan.WithWriteTimeout(cfg.WriteTimeout),
			)
		},
		NewEngine: func() (domain.Engine, error) {
			return webrtc.NewPeer(cfg.ICEServers,
				webrtc.WithLoopbackFilter(cfg.FilterLoopback),
				webrtc.WithLoggerFactory(pionLogs),
			)
		},
		Renderer: renderer,
		OnDiscard: func(d session.Discard) {
			log.Warn().Str("module", "main").Str("sid", d.SessionID).Str("type", string(d.Type)).
				Err(d.Reason).Msg("message discarded")
		},
		OnError: func(sid string, err error) {
			log.Error().Str("module", "main").Str("sid", sid).Err(err).Msg("session error")
		},
	})

	log.Info().Str("module", "main").Str("signal_url", cfg.SignalURL).Int("ice_servers", len(cfg.ICEServers)).Msg("camfeed ready")
	if cfg.Source != "" {
		coord.Start(cfg.Source)
	}

	lines := make(chan string)
	go readLines(lines)

	for running := true; running; {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "main").Msg("received signal, shutting down")
			running = false
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep streaming until signaled.
				lines = nil
				continue
			}
			running = handle(line, coord, recorder)
		}
	}

	if _, err := recorder.StopRecording(); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("save recording")
	}
	coord.Close()
	log.Info().Str("module", "main").Msg("done")
}

func readLines(out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// handle runs one stdin command and reports whether to keep running.
func handle(line string, coord *session.Coordinator, recorder *media.Recorder) bool {
	cmd, ok, err := parseCommand(line)
	if err != nil {
		log.Warn().Err(err).Str("module", "main").Msg("type 'help' for commands")
		return true
	}
	if !ok {
		return true
	}

	switch cmd.kind {
	case cmdStart:
		coord.Start(cmd.source)
	case cmdStop:
		coord.Stop()
	case cmdRecord:
		if err := recorder.StartRecording(coord.Stream()); err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("cannot record")
		}
	case cmdStopRecord:
		a, err := recorder.StopRecording()
		switch {
		case err != nil:
			log.Error().Err(err).Str("module", "main").Msg("save recording")
		case a == nil:
			log.Info().Str("module", "main").Msg("not recording")
		}
	case cmdStatus:
		status(coord, recorder)
	case cmdHelp:
		fmt.Fprint(os.Stderr, commandHelp)
	case cmdQuit:
		return false
	}
	return true
}

func status(coord *session.Coordinator, recorder *media.Recorder) {
	ev := log.Info().Str("module", "main").
		Bool("recording", recorder.Recording()).
		Int("recorded_chunks", recorder.Chunks())

	info, ok := coord.Current()
	if !ok {
		ev.Msg("no active session")
		return
	}
	ev.Str("sid", info.ID).
		Str("source", info.Source).
		Str("signaling", string(info.State.Signaling)).
		Str("ice", string(info.State.ICE)).
		Str("connection", string(info.State.Connection)).
		Msg("session status")
}
