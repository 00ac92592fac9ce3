package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/anacrolix/ffprobe"
	"github.com/anacrolix/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/mediabrowse/config"
	"github.com/anacrolix/mediabrowse/dlna"
	"github.com/anacrolix/mediabrowse/dlna/dms"
	"github.com/anacrolix/mediabrowse/localsource"
	"github.com/anacrolix/mediabrowse/mediasource"
	"github.com/anacrolix/mediabrowse/ssdp"
	"github.com/anacrolix/mediabrowse/webapi"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	listen := flag.String("http", "", "address to serve the API on, overriding the configuration")
	logLevel := flag.String("logLevel", "", "debug, info, warning or error, overriding the configuration")
	flag.Parse()
	if flag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "%s: unexpected positional arguments\n", os.Args[0])
		flag.Usage()
		os.Exit(2)
	}
	cfg, err := loadConfig(*configPath, *listen, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(2)
	}
	logger := log.Default.FilterLevel(cfg.Level())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Levelf(log.Error, "%v", err)
		os.Exit(1)
	}
}

func loadConfig(path, listen, level string) (cfg *config.Config, err error) {
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		return
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if level != "" {
		cfg.LogLevel = level
	}
	err = cfg.Validate()
	return
}

func interfaces(names []string) (ret []net.Interface, err error) {
	for _, name := range names {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, *ifi)
	}
	return
}

func run(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	manager := mediasource.NewManager(logger)
	srv := &webapi.Server{
		Manager:        manager,
		RequestTimeout: cfg.BrowseTimeout,
		Logger:         logger.WithNames("webapi"),
	}
	if len(cfg.RendererProtocolInfo) != 0 {
		srv.RendererFilter = dlna.SinkFilter(cfg.RendererProtocolInfo)
	}

	if len(cfg.LocalMedia.Dirs) != 0 {
		lc := localsource.Config{
			Name:      cfg.LocalMedia.Name,
			Dirs:      cfg.LocalMedia.Dirs,
			PublicURL: cfg.BaseURL(),
		}
		if cfg.LocalMedia.ProbeEnabled() {
			lc.Probe = ffprobe.Run
		}
		srv.Local = localsource.New(lc, logger)
		if err := manager.Register(srv.Local); err != nil {
			return err
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	var discovery dms.Discovery
	if cfg.SSDP.IsEnabled() {
		scanner := ssdp.NewScanner(logger)
		scanner.SearchInterval = cfg.SSDP.SearchInterval
		ifs, err := interfaces(cfg.SSDP.Interfaces)
		if err != nil {
			return fmt.Errorf("ssdp interfaces: %w", err)
		}
		scanner.Interfaces = ifs
		defer scanner.Close()
		eg.Go(func() error {
			if err := scanner.Run(ctx); err != nil {
				// Configured servers can still be browsed at their locations.
				logger.Levelf(log.Warning, "ssdp discovery stopped: %v", err)
			}
			return nil
		})
		discovery = scanner
		srv.Searcher = scanner
	}

	registry := dms.NewRegistry(dms.NewDeviceFactory(cfg.RequestTimeout, logger), discovery, logger)
	defer registry.Close()
	srv.Registry = registry
	if err := manager.Register(dms.NewSource(registry)); err != nil {
		return err
	}
	entries := make([]dms.Entry, 0, len(cfg.DLNAServers))
	for _, s := range cfg.DLNAServers {
		entries = append(entries, dms.Entry{ID: s.ID, Name: s.Name, Location: s.Location, USN: s.USN})
	}
	if err := registry.Setup(ctx, entries); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	logger.Levelf(log.Info, "serving on %s", cfg.Listen)
	eg.Go(func() error {
		return srv.Run(ctx, cfg.Listen)
	})
	return eg.Wait()
}
