// kioskguide runs the conversational engine behind the kiosk AI guide.
// It wires the transcript log, language models, speech synthesis, avatar
// mouth driver and presence detection together, and serves state to the
// display over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/normanking/kioskguide/internal/audio"
	"github.com/normanking/kioskguide/internal/backend"
	"github.com/normanking/kioskguide/internal/bus"
	"github.com/normanking/kioskguide/internal/config"
	"github.com/normanking/kioskguide/internal/engine"
	"github.com/normanking/kioskguide/internal/frontend"
	"github.com/normanking/kioskguide/internal/history"
	"github.com/normanking/kioskguide/internal/knowledge"
	"github.com/normanking/kioskguide/internal/llm"
	"github.com/normanking/kioskguide/internal/logging"
	"github.com/normanking/kioskguide/internal/presence"
	"github.com/normanking/kioskguide/internal/stt"
	"github.com/normanking/kioskguide/internal/tts"
	"github.com/normanking/kioskguide/internal/viseme"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kioskguide:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(nil)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	log := logger.Zerolog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.New()
	logger.SetOnLog(func(e logging.Entry) {
		eventBus.Publish(bus.LogEmitted{Timestamp: e.Timestamp, Level: e.Level, Message: e.Message})
	})

	doc := knowledge.NewLoader(log, cfg.Document.Source, cfg.Document.Watch)
	if err := doc.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Starting without knowledge document")
	}
	defer doc.Close()

	hist := history.New(history.Config{
		MaxLength:          cfg.Engine.MaxHistoryLength,
		InactivityTimeout:  cfg.Engine.ConversationTimeout,
		ChatCountThreshold: cfg.Engine.ChatCountThreshold,
		VisibleTurns:       cfg.Engine.VisibleTurns,
	})
	if len(cfg.Engine.BlockedWords) > 0 {
		hist.SetCensor(history.NewCensor(cfg.Engine.BlockedWords))
	}

	generator := llm.NewGeminiClient(log, &llm.GeminiConfig{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	greeter := llm.NewGreeter(log, &llm.GreeterConfig{
		APIKey:      cfg.Greeting.APIKey,
		Model:       cfg.Greeting.Model,
		MaxTokens:   cfg.Greeting.MaxTokens,
		Temperature: cfg.Greeting.Temperature,
		Timeout:     cfg.Greeting.Timeout,
	})

	speaker := tts.NewSynthesizer(log,
		tts.NewElevenLabsProvider(log, &tts.ElevenLabsConfig{
			APIKey:          cfg.TTS.APIKey,
			VoiceID:         cfg.TTS.VoiceID,
			ModelID:         cfg.TTS.ModelID,
			Stability:       cfg.TTS.Stability,
			SimilarityBoost: cfg.TTS.SimilarityBoost,
		}),
		tts.NewLocalSpeaker(log, &tts.LocalConfig{
			Rate:   cfg.TTS.FallbackRate,
			Pitch:  cfg.TTS.FallbackPitch,
			Volume: cfg.TTS.FallbackVolume,
		}),
		audio.NewCommandPlayer(),
	)

	transcriber := stt.NewSource(log, stt.NewWSRecognizer(log, &stt.WSConfig{
		ServerURL: cfg.STT.ServerURL,
		Language:  cfg.STT.Language,
		Timeout:   cfg.STT.Timeout,
	}))

	sessions := backend.New(log, &backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
	})

	eng := engine.New(log, eventBus, hist, engine.Components{
		Generator:       generator,
		Greeter:         greeter,
		Speaker:         speaker,
		Visemes:         viseme.NewDriver(log, nil, eventBus, viseme.DefaultCadence),
		TimelineLipSync: cfg.Engine.LipSync == "timeline",
		Sessions:        sessions,
		Document:        doc,
		Transcriber:     transcriber,
	})

	detector := presence.NewDetector(log, eventBus, &presence.Config{
		FeedURL:        cfg.Presence.ServerURL,
		ScoreThreshold: cfg.Presence.ScoreThreshold,
		Cooldown:       cfg.Presence.Cooldown,
		CheckInterval:  cfg.Presence.ReconnectDelay,
	}, eng.CanTrigger, func() {
		go eng.SpeakGreeting(context.Background())
	})
	detector.Start(ctx)
	defer detector.Stop()

	feed := frontend.New(log, eventBus, &frontend.Config{Addr: cfg.Frontend.Addr}, eng, hist, sessions, logger)
	if err := feed.Start(); err != nil {
		return fmt.Errorf("start frontend feed: %w", err)
	}

	log.Info().Msg("Kiosk guide running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down")
	eng.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return feed.Shutdown(shutdownCtx)
}
