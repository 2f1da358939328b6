// Command votingd runs one voting replica. It requires a replica id,
// registers with the name server, syncs state from the first live peer
// and then serves voters and peers until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"distvote/internal/config"
	"distvote/internal/node"
	"distvote/internal/registry"
	"distvote/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	id := flag.String("id", cfg.ReplicaID, "replica id (required)")
	listen := flag.String("listen", cfg.ListenAddr, "listen address")
	registryAddr := flag.String("registry", cfg.RegistryAddr, "name server address")
	dataDir := flag.String("data", cfg.DataDir, "data directory")
	flag.Parse()

	if *id == "" {
		logrus.Error("a replica id is required (-id or DV_REPLICA_ID)")
		flag.Usage()
		os.Exit(1)
	}

	config.SetupLogger(cfg)
	log := logrus.WithField("replica", *id)

	reg := registry.NewClient(*registryAddr, cfg.RPCTimeout)

	// The name server is a hard dependency at startup: refuse to
	// boot without it.
	probeCtx, cancel := context.WithTimeout(context.Background(), cfg.RPCTimeout)
	_, err = reg.List(probeCtx, registry.ReplicaPrefix)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("name server unreachable, start registryd first")
	}

	store, err := storage.Open(*id, *dataDir)
	if err != nil {
		log.WithError(err).Fatal("opening local state")
	}

	n := node.New(store, reg, *listen, cfg.RPCTimeout)
	if err := n.Start(context.Background()); err != nil {
		log.WithError(err).Fatal("starting replica")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RPCTimeout)
	defer cancel()
	if err := n.Stop(ctx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
}
