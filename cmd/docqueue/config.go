package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/docqueue/pkg/config"
	"github.com/dmitrymomot/docqueue/pkg/queue"
)

// Store drivers selectable with STORE_DRIVER.
const (
	driverMemory   = "memory"
	driverMongo    = "mongo"
	driverPostgres = "postgres"
	driverRedis    = "redis"
)

var errUnknownDriver = errors.New("unknown store driver")

type appConfig struct {
	StoreDriver      string        `env:"STORE_DRIVER" envDefault:"memory"`
	TopologyFile     string        `env:"QUEUE_TOPOLOGY_FILE"`
	DoneTTL          time.Duration `env:"QUEUE_DONE_TTL"`
	StatsInterval    time.Duration `env:"QUEUE_STATS_INTERVAL" envDefault:"1m"`
	CleanDone        bool          `env:"QUEUE_CLEAN_DONE" envDefault:"false"`
	ReadinessTimeout time.Duration `env:"HTTP_READINESS_TIMEOUT" envDefault:"5s"`
}

func (c appConfig) validate() error {
	switch c.StoreDriver {
	case driverMemory, driverMongo, driverPostgres, driverRedis:
		return nil
	}
	return fmt.Errorf("%w: %q", errUnknownDriver, c.StoreDriver)
}

// loadTopology reads the topology file when one is configured, otherwise a
// single queue from QUEUE_* variables. A dead-letter queue named by that
// queue but not declared is added with default settings.
func loadTopology(cfg appConfig) (queue.Topology, error) {
	var topo queue.Topology
	if cfg.TopologyFile != "" {
		if err := config.LoadFile(cfg.TopologyFile, &topo); err != nil {
			return queue.Topology{}, err
		}
		return topo, nil
	}

	var qc queue.Config
	if err := config.Load(&qc); err != nil {
		return queue.Topology{}, err
	}
	topo.Queues = append(topo.Queues, qc)
	if qc.DeadLetterQueue != "" && qc.DeadLetterQueue != qc.Name {
		topo.Queues = append(topo.Queues, queue.Config{
			Name:       qc.DeadLetterQueue,
			Visibility: queue.DefaultVisibility,
		})
	}
	return topo, nil
}
