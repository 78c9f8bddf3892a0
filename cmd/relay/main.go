// Command relay runs the peer-discovery and rendezvous-bridging server
// described in SPEC_FULL.md: it listens for WebSocket upgrades at
// /introduction/{id} and /connection/{from}/{to}/{key} and serves a
// liveness page at /.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/okdistribute/relay/pkg/relay/config"
	"github.com/okdistribute/relay/pkg/relay/relaylog"
	"github.com/okdistribute/relay/pkg/relay/server"
)

func main() {
	log := relaylog.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Errorf("invalid configuration: %v", err)
		os.Exit(1)
	}

	srv := server.New(log, cfg.Addr())

	done := make(chan error, 1)
	go func() {
		log.Infof("relay listening on %s", cfg.Addr())
		done <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-done:
		if err != nil {
			log.Errorf("listener failed: %v", err)
			os.Exit(1)
		}
	case <-sig:
		log.Infof("shutting down")
		if err := srv.Close(); err != nil {
			log.Errorf("shutdown error: %v", err)
			os.Exit(1)
		}
		<-done
	}
}
