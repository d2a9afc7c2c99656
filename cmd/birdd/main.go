package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vjiki/music-ios-bird/internal/adapters/mqttclient"
	"github.com/vjiki/music-ios-bird/internal/birdd"
	"github.com/vjiki/music-ios-bird/internal/library"
	"github.com/vjiki/music-ios-bird/internal/mediacache"
	"github.com/vjiki/music-ios-bird/internal/modules/cachemgr"
	embeddedmqtt "github.com/vjiki/music-ios-bird/internal/modules/embedded_mqtt"
	"github.com/vjiki/music-ios-bird/internal/modules/player"
	"github.com/vjiki/music-ios-bird/internal/playback"
	"github.com/vjiki/music-ios-bird/pkg/bird"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath string
		broker     string
		identity   string
		topicBase  string
		logLevel   string
		logFormat  string
		dryRun     bool
	)

	defaultConfig, err := birdd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "server identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (text|json)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := birdd.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, identity, topicBase, logLevel, logFormat)

	if dryRun {
		return
	}

	logger, err := birdd.NewLogger(birdd.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	usingEmbedded := cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedBrokerURL(cfg)
	if usingEmbedded {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
	}
	if cfg.Server.Broker == "" {
		logger.Error("broker is required")
		os.Exit(1)
	}

	logger.Info("birdd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("log_level", cfg.Server.LogLevel),
		zap.Strings("modules", enabledModules(cfg)),
	)

	client, err := mqttclient.NewClient(mqttclient.Options{
		BrokerURL: cfg.Server.Broker,
		ClientID:  fmt.Sprintf("birdd-%d", time.Now().UnixNano()),
		Username:  cfg.Server.Auth.User,
		Password:  cfg.Server.Auth.Pass,
		TLSCA:     cfg.Server.TLS.CA,
		TLSCert:   cfg.Server.TLS.Cert,
		TLSKey:    cfg.Server.TLS.Key,
		Timeout:   2 * time.Second,
		Logger:    logger.With(zap.String("component", "mqtt")),
	})
	if err != nil {
		logger.Error("mqtt connection failed", zap.Error(err))
		os.Exit(1)
	}
	defer client.Disconnect()

	modules, err := buildModules(cfg, client, logger, usingEmbedded)
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}

	supervisor := birdd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *birdd.Config, broker, identity, topicBase, logLevel, logFormat string) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if identity != "" {
		cfg.Server.Identity = identity
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = bird.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

func buildModules(cfg birdd.Config, client *mqttclient.Client, logger *zap.Logger, skipEmbedded bool) ([]birdd.ModuleRunner, error) {
	modules := []birdd.ModuleRunner{}

	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded {
		mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
			Listen:         cfg.Modules.EmbeddedMQTT.Listen,
			AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
			Username:       cfg.Modules.EmbeddedMQTT.Username,
			Password:       cfg.Modules.EmbeddedMQTT.Password,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, birdd.ModuleRunner{Name: "embedded_mqtt", Run: mod.Run})
	}

	var cache *mediacache.Cache
	if cfg.Modules.Player.Enabled || cfg.Modules.CacheManager.Enabled {
		root := cfg.Cache.Root
		if root == "" {
			var err error
			root, err = birdd.DefaultCacheRoot()
			if err != nil {
				return nil, err
			}
		}
		var err error
		cache, err = mediacache.New(logger.With(zap.String("component", "mediacache")), root)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Modules.Player.Enabled {
		driver, err := playback.NewGstDriver(cfg.Modules.Player.Pipeline, cfg.Modules.Player.Device)
		if err != nil {
			return nil, err
		}
		fetcher := mediacache.NewFetcher(logger.With(zap.String("component", "fetcher")), cache, nil)

		var source library.TrackSource
		var engagement library.EngagementSink
		if len(cfg.Library.Feeds) > 0 {
			source = library.NewFeedSource(logger.With(zap.String("component", "library")), cfg.Library.Feeds)
		} else if cfg.Library.BaseURL != "" {
			rest := library.NewRESTClient(logger.With(zap.String("component", "library")), cfg.Library.BaseURL, nil)
			source = rest
			engagement = rest
		}

		mod, err := player.NewModule(logger.With(zap.String("module", "player")), client, player.Deps{
			Driver:     driver,
			Fetcher:    fetcher,
			Source:     source,
			Engagement: engagement,
			Identity:   library.NewIdentity(cfg.Library.UserID),
		}, player.Config{
			NodeID:    cfg.Modules.Player.NodeID,
			TopicBase: cfg.Server.TopicBase,
			Name:      cfg.Modules.Player.Name,
			Tick:      time.Duration(cfg.Modules.Player.TickMS) * time.Millisecond,
			Looping:   cfg.Modules.Player.Looping,
			PageSize:  cfg.Library.PageSize,
			Volume:    cfg.Modules.Player.Volume,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, birdd.ModuleRunner{Name: "player", Run: mod.Run})
	}

	if cfg.Modules.CacheManager.Enabled {
		mod, err := cachemgr.NewModule(logger.With(zap.String("module", "cache_manager")), client, cache, cachemgr.Config{
			NodeID:    cfg.Modules.CacheManager.NodeID,
			TopicBase: cfg.Server.TopicBase,
			Name:      cfg.Modules.CacheManager.Name,
			MaxBytes:  cfg.Cache.MaxSizeMB * 1024 * 1024,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, birdd.ModuleRunner{Name: "cache_manager", Run: mod.Run})
	}

	return modules, nil
}

func enabledModules(cfg birdd.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.Player.Enabled {
		out = append(out, "player")
	}
	if cfg.Modules.CacheManager.Enabled {
		out = append(out, "cache_manager")
	}
	return out
}

func embeddedBrokerURL(cfg birdd.Config) string {
	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	return embeddedmqtt.BrokerURL(listen)
}

func startEmbeddedBroker(ctx context.Context, cfg birdd.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
	})
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()
	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	return waitForListen(listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
