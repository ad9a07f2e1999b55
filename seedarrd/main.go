// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/andres-erbsen/clock"

	"github.com/seedarr/seedarr/lib/entrystore"
	"github.com/seedarr/seedarr/lib/events"
	"github.com/seedarr/seedarr/lib/jobqueue"
	"github.com/seedarr/seedarr/lib/pipeline"
	"github.com/seedarr/seedarr/lib/services"
	"github.com/seedarr/seedarr/lib/torrentgen"
	"github.com/seedarr/seedarr/lib/trackers"
	"github.com/seedarr/seedarr/localdb"
	"github.com/seedarr/seedarr/metrics"
	"github.com/seedarr/seedarr/utils/configutil"
	"github.com/seedarr/seedarr/utils/log"
)

func main() {
	configFile := flag.String("config", "", "configuration file path")
	cluster := flag.String("cluster", "", "cluster name")
	flag.Parse()

	var config Config
	if err := configutil.Load(*configFile, &config); err != nil {
		panic(err)
	}
	log.ConfigureLogger(config.ZapLogging)

	stats, closer, err := metrics.New(config.Metrics, *cluster)
	if err != nil {
		log.Fatalf("Failed to init metrics: %s", err)
	}
	defer closer.Close()

	db, err := localdb.New(config.Database)
	if err != nil {
		log.Fatalf("Error connecting to local db: %s", err)
	}
	defer db.Close()

	analyzer := services.NewMediaInfoTool(config.MediaInfo)
	registry, err := services.NewRegistry(config.Services, analyzer, nil, nil)
	if err != nil {
		log.Fatalf("Error building service registry: %s", err)
	}

	trackerStore := trackers.NewStore(db)
	for _, seed := range config.Trackers {
		doc, err := os.ReadFile(seed.SchemaFile)
		if err != nil {
			log.Fatalf("Error reading tracker schema %s: %s", seed.SchemaFile, err)
		}
		schema, err := trackerStore.Upsert(doc, seed.Credentials, seed.Enabled)
		if err != nil {
			log.Fatalf("Error loading tracker schema %s: %s", seed.SchemaFile, err)
		}
		log.Infof("Loaded tracker %s (enabled=%t)", schema.Tracker.Slug, seed.Enabled)
	}
	adapters, err := trackerStore.BuildAdapters(registry.Limits, registry.Cloudflare)
	if err != nil {
		log.Fatalf("Error building tracker adapters: %s", err)
	}

	generator, err := torrentgen.New(config.TorrentGen, config.Pipeline.OutputDir)
	if err != nil {
		log.Fatalf("Error building torrent generator: %s", err)
	}

	sink := events.NopSink{}
	entries := entrystore.NewStore(db)
	p, err := pipeline.New(
		config.Pipeline, entries, registry, adapters, generator, sink)
	if err != nil {
		log.Fatalf("Error building pipeline: %s", err)
	}

	clk := clock.New()
	queue := jobqueue.NewStore(db, clk)
	worker := jobqueue.NewWorker(
		config.Worker, stats, queue, entries, p, sink, clk)
	if err := worker.Start(); err != nil {
		log.Fatalf("Error starting worker: %s", err)
	}
	log.Infof("Starting seedarr worker with concurrency %d", config.Worker.Concurrency)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Shutting down")
	worker.Stop()
}
