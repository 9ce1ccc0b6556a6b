// Command evserved wires evserve's components into a runnable server:
// Options, a logger, a tableflip-backed Binder for zero-downtime
// restarts, and a minimal VHost, then drives the lifecycle from process
// signals. Grounded on badu-http's own cmd-less ListenAndServe wiring,
// generalized into a small daemon entrypoint since the spec expects a
// standalone server process rather than a library called from tests
// alone.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/sirupsen/logrus"

	"github.com/badu/evserve"
	"github.com/badu/evserve/driverhttp1"
	"github.com/badu/evserve/evlog"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	pidFile := flag.String("pid-file", "", "tableflip PID file (enables zero-downtime restarts when set)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	base := logrus.New()
	if *debug {
		base.SetLevel(logrus.DebugLevel)
	}
	log := evlog.New(base)

	opts := evserve.DefaultOptions()
	opts.Debug = *debug

	vhosts := evserve.NewVHostSet()
	vhosts.Register(&evserve.VHost{
		Handler: evserve.HandlerFunc(func(resp *evserve.Response, req *evserve.Request) {
			resp.Header.Set(evserve.ContentType, "text/plain; charset=utf-8")
			resp.WriteHeader(evserve.StatusOK)
			_, _ = resp.Write([]byte("evserve\n"))
		}),
	})

	driverFactory := func(proto string) evserve.Driver {
		return driverhttp1.New()
	}

	srv := evserve.NewServer(opts, vhosts, []evserve.ListenerSpec{{Network: "tcp", Address: *addr}}, driverFactory, log)
	srv.AddObserver(evserve.ObserverFunc(func(from, to evserve.LifecycleState) {
		log.WithField("from", from.String()).WithField("to", to.String()).Infof("lifecycle transition")
	}))

	var upg *tableflip.Upgrader
	if *pidFile != "" {
		var err error
		upg, err = tableflip.New(tableflip.Options{PIDFile: *pidFile})
		if err != nil {
			log.WithError(err).Errorf("tableflip init failed")
			os.Exit(1)
		}
		srv.SetBinder(evserve.NewTableflipBinder(upg))
	}

	if err := srv.Start(); err != nil {
		log.WithError(err).Errorf("start failed")
		os.Exit(1)
	}

	if upg != nil {
		if err := upg.Ready(); err != nil {
			log.WithError(err).Errorf("tableflip ready failed")
		}
		go func() {
			sighup := make(chan os.Signal, 1)
			signal.Notify(sighup, syscall.SIGHUP)
			for range sighup {
				log.Infof("SIGHUP received, upgrading")
				if err := srv.Upgrade(); err != nil {
					log.WithError(err).Errorf("upgrade failed")
				}
			}
		}()
	}

	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)
	<-term

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.WithError(err).Errorf("stop failed")
		os.Exit(1)
	}
}
