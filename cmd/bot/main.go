package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"alertbot/internal/alert"
	"alertbot/internal/broker"
	"alertbot/internal/config"
	"alertbot/internal/dashboard"
	"alertbot/internal/discord"
)

const liveBaseURL = "https://api.tradestation.com/v3"

// shutdownTimeout bounds the dashboard drain after the gateway stops.
const shutdownTimeout = 5 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := setupLogger(cfg.Environment.LogLevel)
	logger.Infof("Starting alert bot in %s mode", cfg.Environment.Mode)
	if cfg.IsLive() {
		logger.Warn("LIVE TRADING MODE - orders route to the live API")
	}
	if !cfg.BrokerConfigured() {
		logger.Warn("Broker credentials incomplete; order submissions will fail until configured")
	}

	session := broker.NewTradeStationAPI(brokerCredentials(cfg), brokerBaseURL(cfg), logger).
		WithTimeout(cfg.GetHTTPTimeout())
	var b broker.Broker = session
	if cfg.Broker.UseCircuitBreaker {
		b = broker.NewCircuitBreakerBroker(session, logger)
	}

	recorder := dashboard.NewRecorder(0)
	handler := NewHandler(alert.NewParser(), b, recorder, logger, cfg.Discord.ChannelID, cfg.GetOrderQuantity())

	gateway := discord.NewGateway(cfg.Discord.Token, handler.HandleMessage, logger).
		WithURL(cfg.Discord.GatewayURL)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return gateway.Run(ctx)
	})

	if cfg.Dashboard.Enabled {
		srv := dashboard.NewServer(dashboard.Config{
			Port:      cfg.GetDashboardPort(),
			AuthToken: cfg.Dashboard.AuthToken,
			Mode:      cfg.Environment.Mode,
		}, b, recorder, logger)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	handler.Wait()
	if err != nil && sigCtx.Err() == nil {
		logger.Fatalf("Bot error: %v", err)
	}
	logger.Info("Bot stopped")
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func brokerCredentials(cfg *config.Config) broker.Credentials {
	return broker.Credentials{
		ClientID:     cfg.Broker.ClientID,
		ClientSecret: cfg.Broker.ClientSecret,
		AccountKey:   cfg.Broker.AccountKey,
		RedirectURI:  cfg.Broker.RedirectURI,
		RefreshToken: cfg.Broker.RefreshToken,
	}
}

// brokerBaseURL resolves the API endpoint: an explicit override wins, the
// mode picks between simulator and live otherwise.
func brokerBaseURL(cfg *config.Config) string {
	if cfg.Broker.BaseURL != "" {
		return cfg.Broker.BaseURL
	}
	if cfg.IsLive() {
		return liveBaseURL
	}
	return "" // NewTradeStationAPI defaults to the simulator
}
