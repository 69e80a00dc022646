package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/intfreactor/internal/action"
	"github.com/dmdmdm-nz/intfreactor/internal/api"
	"github.com/dmdmdm-nz/intfreactor/internal/logging"
	"github.com/dmdmdm-nz/intfreactor/internal/netmon"
	"github.com/dmdmdm-nz/intfreactor/internal/options"
	"github.com/dmdmdm-nz/intfreactor/internal/platform"
	"github.com/dmdmdm-nz/intfreactor/internal/reactor"
	"github.com/dmdmdm-nz/intfreactor/internal/runtime"
	"github.com/dmdmdm-nz/intfreactor/internal/status"
	"github.com/dmdmdm-nz/intfreactor/pkg/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand(run).ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("intfreactor failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *cli.Config) error {
	// Configure logging
	setters := []logging.Setter{logging.Text(), logging.Level(cfg.LogLevel)}
	if cfg.Syslog {
		setters = append(setters, logging.Syslog(logging.SyslogTag))
	}
	if err := logging.Configure(setters...); err != nil {
		return err
	}

	log.Infof("Config: Options=%s", cfg.ConfigPath)
	log.Infof("Config: Host=%s", cfg.Host)
	log.Infof("Config: Port=%d", cfg.Port)
	log.Infof("Config: LogLevel=%s", cfg.LogLevel)
	log.Infof("Config: Syslog=%v", cfg.Syslog)

	provider, err := options.NewProvider(cfg.ConfigPath)
	if err != nil {
		return err
	}
	netmonSvc := netmon.NewService(netmon.NewWatcher())
	store := status.NewStore()

	host := platform.NewHost(provider, netmonSvc, store)
	agent, err := reactor.New(host, host, action.NewRunner(logging.New("action")), logging.New("reactor"))
	if err != nil {
		return err
	}
	host.Register(agent, agent)

	go reloadOnHangup(ctx, provider)

	// Start in dependency order: netmon → options → host → api
	super := runtime.NewSupervisor()
	super.Add("netmon", netmonSvc.Start, netmonSvc.Close)
	super.Add("options", provider.Start, provider.Close)
	// Closing the store ends any status streams still open.
	super.Add("host", host.Start, store.Close)
	if cfg.Port > 0 {
		apiSvc := api.NewService(cfg.Host, cfg.Port, store, netmonSvc, host)
		super.Add("api", apiSvc.Start, apiSvc.Close)
	} else {
		log.Info("Status API disabled")
	}

	if err := super.Start(ctx); err != nil {
		return err
	}
	return super.Wait(ctx)
}

// reloadOnHangup re-reads the options file on SIGHUP.
func reloadOnHangup(ctx context.Context, provider *options.Provider) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.WithField("path", provider.Path()).Info("SIGHUP received, reloading options")
			if err := provider.Reload(); err != nil {
				log.WithError(err).Warn("Failed to reload options")
			}
		}
	}
}
