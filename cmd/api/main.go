package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/zhouzirui/live-interpreter/backend/internal/config"
	"github.com/zhouzirui/live-interpreter/backend/internal/handler"
	relayhandler "github.com/zhouzirui/live-interpreter/backend/internal/handler/relay"
	"github.com/zhouzirui/live-interpreter/backend/internal/handler/translate"
	speechmodel "github.com/zhouzirui/live-interpreter/backend/internal/model/speech"
	"github.com/zhouzirui/live-interpreter/backend/internal/observe"
	relaysvc "github.com/zhouzirui/live-interpreter/backend/internal/service/relay"
	"github.com/zhouzirui/live-interpreter/backend/internal/service/speech"
	"github.com/zhouzirui/live-interpreter/backend/internal/service/translation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Warn("failed to load .env file, continuing with system environment variables only", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}

	if level, err := log.ParseLevel(cfg.Server.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warn("invalid LOG_LEVEL, using info", "value", cfg.Server.LogLevel)
	}

	for _, warning := range cfg.Validate() {
		log.Warn(warning)
	}

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		log.Fatal("failed to initialize metrics provider", "err", err)
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Warn("failed to create instruments, metrics disabled", "err", err)
		metrics = nil
	}

	recognizers := newRecognizers(cfg)
	translator := newTranslator(ctx, cfg, metrics)

	registry := relaysvc.NewRegistry(metrics)

	sessionOpts := relaysvc.Options{
		Credential:         cfg.Translator.Key,
		TranslationTimeout: cfg.Relay.TranslationTimeout,
		StopTimeout:        cfg.Relay.StopTimeout,
		Metrics:            metrics,
	}
	if cfg.Relay.TranslateFinals && cfg.TranslatorConfigured() {
		sessionOpts.Translator = translator
	}

	realtime := relayhandler.NewWebSocketHandler(recognizers, registry, relayhandler.Config{
		PingInterval:         cfg.Relay.PingInterval,
		ReadTimeout:          cfg.Relay.ReadTimeout,
		WriteTimeout:         cfg.Relay.WriteTimeout,
		AllowedOrigins:       cfg.Server.AllowedOrigins,
		TranslatorConfigured: cfg.TranslatorConfigured(),
		Session:              sessionOpts,
	})

	translateHandler := translate.New(translator, translate.Config{
		DefaultKey:        cfg.Translator.Key,
		RequireCredential: cfg.Translator.Variant != config.TranslatorVariantLLM,
	})

	router := handler.NewRouter(handler.Deps{
		Realtime:       realtime,
		Translate:      translateHandler,
		Metrics:        metrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)

	registry.CloseAll()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownMetrics(flushCtx); err != nil {
		log.Warn("failed to shut down metrics provider", "err", err)
	}
}

// newRecognizers 返回 nil 接口表示语音识别未启用
func newRecognizers(cfg *config.Config) relaysvc.Recognizers {
	if !cfg.Speech.Enabled {
		log.Info("语音服务凭证未配置，跳过语音识别初始化")
		return nil
	}

	svc, err := speech.NewService(&speechmodel.SpeechConfig{
		Provider:       cfg.Speech.Provider,
		AppID:          cfg.Speech.AppID,
		AccessToken:    cfg.Speech.AccessToken,
		ConcurrentMode: cfg.Speech.ConcurrentMode,
		BaseURL:        cfg.Speech.BaseURL,
		ASRModel:       cfg.Speech.ASRModel,
		DeepgramAPIKey: cfg.Speech.DeepgramAPIKey,
		DeepgramModel:  cfg.Speech.DeepgramModel,
		Timeout:        time.Duration(cfg.Speech.Timeout) * time.Second,
		AudioBuffer:    cfg.Relay.AudioBuffer,
	})
	if err != nil {
		log.Warn("failed to initialize speech service, continuing without recognition", "err", err)
		return nil
	}

	log.Info("speech service initialized", "engine", svc.EngineName())
	return svc
}

func newTranslator(ctx context.Context, cfg *config.Config, metrics *observe.Metrics) translation.Translator {
	if cfg.Translator.Variant == config.TranslatorVariantLLM {
		if !cfg.AI.Enabled() {
			return nil
		}
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Warn("failed to initialize chat model, translation disabled", "err", err)
			return nil
		}
		log.Info("llm translator initialized", "model", cfg.AI.Model)
		return translation.NewLLMTranslator(chatModel, metrics)
	}

	client, err := translation.NewClient(translation.Config{
		Variant:    translation.Variant(cfg.Translator.Variant),
		Endpoint:   cfg.Translator.Endpoint,
		APIVersion: cfg.Translator.APIVersion,
		Region:     cfg.Translator.Region,
		Timeout:    cfg.Translator.Timeout,
	}, translation.WithMetrics(metrics))
	if err != nil {
		log.Warn("failed to initialize translator, /api/translate will return 503", "err", err)
		return nil
	}

	log.Info("http translator initialized", "variant", cfg.Translator.Variant, "endpoint", cfg.Translator.Endpoint)
	return client
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("live interpreter backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
