// Command distributornode runs the two-phase update coordinator as a
// standalone distributor-node process.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/docstore/distributor/childops"
	"github.com/docstore/distributor/clock"
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/cmn"
	"github.com/docstore/distributor/stats"
)

type cliFlags struct {
	bucketDBPath string
	numBuckets   uint64
	adminAddr    string
	configPath   string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.bucketDBPath, "bucket-db", "", "path to the bucket database file (empty: in-memory)")
	flag.Uint64Var(&f.numBuckets, "num-buckets", 64, "default bucket space for document hashing")
	flag.StringVar(&f.adminAddr, "admin-listen", ":9100", "address the admin server (metrics, debug) listens on")
	flag.StringVar(&f.configPath, "config", "", "path to a JSON config overriding the defaults (empty: defaults only)")
	flag.Parse()
	return f
}

func main() {
	defer glog.Flush()

	cli := parseFlags()
	if cli.configPath != "" {
		data, err := os.ReadFile(cli.configPath)
		if err != nil {
			glog.Fatalf("read config %s: %v", cli.configPath, err)
		}
		if err := cmn.GCO.LoadJSON(data); err != nil {
			glog.Fatalf("parse config %s: %v", cli.configPath, err)
		}
	}

	bucketDB, err := cluster.NewBucketDB(cli.bucketDBPath)
	if err != nil {
		glog.Fatalf("open bucket db: %v", err)
	}
	defer bucketDB.Close()

	mgr := &childops.Manager{
		BucketDB:   bucketDB,
		NumBuckets: cli.numBuckets,
		Clock:      clock.NewAllocator(),
		Stats:      stats.NewUpdateStats(defaultRegisterer()),
		TypeRepo:   childops.NewDocumentTypeRepo(),
	}

	admin := newAdminServer(cli.adminAddr, mgr)
	go func() {
		if err := admin.ListenAndServe(); err != nil {
			glog.Errorf("admin server exited: %v", err)
		}
	}()

	glog.Infof("distributor node up: admin=%s num-buckets=%d", cli.adminAddr, cli.numBuckets)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	glog.Infof("terminated by signal %v", sig)
	admin.Shutdown()
}
