package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"github.com/GabrielNunesIT/log-analyzer/internal/sink"
	"github.com/GabrielNunesIT/log-analyzer/internal/source"
)

const (
	notifyReady     = daemon.SdNotifyReady
	notifyStopping  = daemon.SdNotifyStopping
	notifyReloading = daemon.SdNotifyReloading
	notifyWatchdog  = daemon.SdNotifyWatchdog
)

// Notifier reports service state to the init system.
type Notifier interface {
	Notify(state string) (bool, error)
	// WatchdogInterval returns 0 when no watchdog is configured.
	WatchdogInterval() time.Duration
}

// systemdNotifier talks to systemd through NOTIFY_SOCKET. Outside systemd
// every call is a no-op.
type systemdNotifier struct{}

func (systemdNotifier) Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

func (systemdNotifier) WatchdogInterval() time.Duration {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return interval
}

// watch analyses new log files as they appear until ctx is cancelled.
func (p *Pipeline) watch(ctx context.Context, finder *source.Finder) error {
	watcher := source.NewWatcher(finder, p.logger, p.watchOpts...)
	files := make(chan source.LogFile)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Start(gCtx, files)
	})

	g.Go(func() error {
		p.keepAlive(gCtx)
		return nil
	})

	g.Go(func() error {
		if ok, err := p.notifier.Notify(notifyReady); err != nil {
			p.logger.Warningf("service notify failed: %v", err)
		} else if ok {
			p.logger.Debug("notified service manager: ready")
		}

		workers, wCtx := errgroup.WithContext(gCtx)
		workers.SetLimit(p.config().Source.Workers)
		for f := range files {
			workers.Go(func() error {
				err := p.Process(wCtx, f)
				switch {
				case err == nil:
				case errors.Is(err, sink.ErrReportExists):
					p.logger.Infof("report already exists, skipping: file=%s", f.Path)
				default:
					p.logger.Errorf("analysis failed: file=%s error=%v", f.Path, err)
				}
				return nil
			})
		}
		return workers.Wait()
	})

	err := g.Wait()
	_, _ = p.notifier.Notify(notifyStopping)

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// keepAlive pings the service watchdog at half its interval.
func (p *Pipeline) keepAlive(ctx context.Context) {
	interval := p.notifier.WatchdogInterval()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.notifier.Notify(notifyWatchdog); err != nil {
				p.logger.Debugf("watchdog notify failed: %v", err)
			}
		}
	}
}
