// Package main provides a command-line client for the admin gRPC service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/wizwac/internal/admin"
	"github.com/cory-johannsen/wizwac/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	addr := flag.String("addr", "", "admin gRPC address; overrides the configured admin host and port")
	recent := flag.Int("recent", 0, "also list up to this many recent matches")
	timeout := flag.Duration("timeout", 5*time.Second, "per-call timeout")
	flag.Parse()

	target := *addr
	if target == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		target = cfg.Admin.Addr()
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dialing %s: %v", target, err)
	}
	defer conn.Close()
	client := admin.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stats, err := client.Stats(ctx)
	if err != nil {
		log.Fatalf("fetching stats: %v", err)
	}
	printJSON(stats)

	if *recent > 0 {
		matches, err := client.RecentMatches(ctx, *recent)
		if err != nil {
			log.Fatalf("fetching recent matches: %v", err)
		}
		printJSON(matches)
	}
}

func printJSON(s *structpb.Struct) {
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		log.Fatalf("encoding response: %v", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
}
