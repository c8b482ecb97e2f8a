// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides a command line companion for the cascade engine.
// It validates configurations and runs the classifier, mode selector, and
// confidence evaluator against ad-hoc input, which is useful when tuning
// tables and steering rules without embedding the SDK.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/tierwise/cascade/internal/buildinfo"
	"github.com/tierwise/cascade/internal/logging"
	"github.com/tierwise/cascade/sdk/cascade"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to the configuration file")
		showVersion = flag.Bool("version", false, "print version information and exit")
		checkOnly   = flag.Bool("check", false, "validate the configuration and exit")
		classify    = flag.String("classify", "", "classify the given task text")
		selectMode  = flag.String("select", "", "pick an execution strategy for the given task text")
		evaluate    = flag.String("evaluate", "", "evaluate confidence for the given category")
		recent      = flag.Int("recent", 0, "print the N most recent persisted run outcomes")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("cascade %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	svc, err := cascade.NewService(*configPath, false)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *configPath, err)
	}
	defer svc.Close()

	if *checkOnly {
		fmt.Printf("%s: configuration OK\n", *configPath)
		return
	}

	switch {
	case *classify != "":
		printJSON(svc.ClassifyIntent(*classify, nil))
	case *selectMode != "":
		printJSON(svc.SelectMode(*selectMode, nil))
	case *evaluate != "":
		printJSON(svc.Evaluate(*evaluate, "", nil))
	case *recent > 0:
		records, err := svc.RecentOutcomes(*recent)
		if err != nil {
			log.Fatalf("Failed to read outcomes: %v", err)
		}
		printJSON(records)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(string(out))
}
