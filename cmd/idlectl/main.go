package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"idlegame/engine/internal/journal"
	"idlegame/engine/internal/rpc"
	"idlegame/engine/tools/journal_player"
	"idlegame/engine/tools/save_catalog"
)

const usage = `usage: idlectl <command> [flags]

commands:
  saves    list and decode save files in a directory
  journal  print a journal and check its transitions
  state    fetch the live view over gRPC
  do       apply an action over gRPC (tick|upgrade|save|load|reset)
  watch    stream live views over gRPC until interrupted
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "saves":
		err = runSaves(os.Args[2:], os.Stdout)
	case "journal":
		err = runJournal(os.Args[2:], os.Stdout)
	case "state", "do", "watch":
		err = runRemote(os.Args[1], os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runSaves(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("saves", flag.ContinueOnError)
	dir := fs.String("dir", "saves", "directory containing save files")
	jsonFlag := fs.Bool("json", false, "emit JSON instead of human-readable output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := savecatalog.List(*dir, time.Now())
	if err != nil {
		return err
	}
	if *jsonFlag {
		payload, err := savecatalog.MarshalEntries(entries)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(payload))
		return nil
	}
	for _, entry := range entries {
		fmt.Fprintf(out, "%s (%s, %d bytes)\n", entry.Path, entry.Codec, entry.SizeBytes)
		if entry.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", entry.Error)
			continue
		}
		fmt.Fprintf(out, "  counter: %s (%s)\n", entry.View.CounterDisplay, entry.View.Counter)
		fmt.Fprintf(out, "  production: %s (%s)\n", entry.View.ProductionDisplay, entry.View.Production)
		fmt.Fprintf(out, "  last saved: %s\n", entry.View.LastSaved)
		fmt.Fprintf(out, "  offline seconds if loaded now: %d\n", entry.OfflineSeconds)
	}
	return nil
}

func runJournal(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	path := fs.String("path", "", "path to a journal file")
	verify := fs.Bool("verify", false, "only report transition mismatches")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("path flag is required")
	}

	entries, err := journal.Read(*path)
	if err != nil {
		return err
	}
	summary, err := journalplayer.Replay(entries)
	if err != nil {
		return err
	}

	//1.- Render as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if *verify {
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		payload := struct {
			Summary journalplayer.Summary `json:"summary"`
			Entries []journal.Entry       `json:"entries"`
		}{Summary: summary, Entries: entries}
		if err := enc.Encode(payload); err != nil {
			return err
		}
	}
	if len(summary.Mismatches) > 0 {
		return fmt.Errorf("%d transition mismatches", len(summary.Mismatches))
	}
	return nil
}

func runRemote(command string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	addr := fs.String("addr", "localhost:9090", "gRPC address of idled")
	secret := fs.String("secret", os.Getenv("IDLE_GRPC_SECRET"), "shared secret expected by idled")
	timeout := fs.Duration("timeout", 5*time.Second, "deadline for unary calls")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, rpc.DialOptions(*secret)...)
	conn, err := grpc.NewClient(*addr, dialOpts...)
	if err != nil {
		return err
	}
	defer conn.Close()
	client := rpc.NewClient(conn)
	enc := json.NewEncoder(out)

	switch command {
	case "state":
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		view, err := client.State(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(view.AsMap())
	case "do":
		if fs.NArg() != 1 {
			return errors.New("do expects exactly one action")
		}
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		view, err := client.Dispatch(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		return enc.Encode(view.AsMap())
	default:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		stream, err := client.Watch(ctx)
		if err != nil {
			return err
		}
		for {
			view, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := enc.Encode(view.AsMap()); err != nil {
				return err
			}
		}
	}
}
