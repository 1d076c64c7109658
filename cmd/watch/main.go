// Package main watches a directory server from the terminal.
//
// Usage:
//
//	watch [flags] list <trainers|posts> [region]
//	watch [flags] region <region>
//	watch [flags] like <item-id>
//	watch [flags] bookmark <item-id>
//	watch [flags] login <email> <password>
//
// list keeps running and reprints whenever the server reports a change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ceskapp/directory/internal/backend/remote"
	"github.com/ceskapp/directory/internal/config"
	"github.com/ceskapp/directory/internal/directory"
	"github.com/ceskapp/directory/internal/domain"
	"github.com/ceskapp/directory/internal/engagement"
	"github.com/ceskapp/directory/internal/identity"
	"github.com/ceskapp/directory/internal/logger"
	"github.com/ceskapp/directory/internal/region"
)

var errUsage = errors.New("usage: watch [flags] <list|region|like|bookmark|login> [args]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	cfg, rest, err := config.LoadClientConfig(fs, args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return errUsage
	}

	log := logger.New(logger.Config{
		Writer:  os.Stderr,
		Level:   logger.ParseLevel(cfg.LogLevel),
		NoColor: true,
	}).Logger

	client, err := remote.New(cfg.ServerURL, remote.WithToken(cfg.Token), remote.WithLogger(log))
	if err != nil {
		return err
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "login" {
		if len(cmdArgs) != 2 {
			return errUsage
		}
		session, err := client.Login(ctx, cmdArgs[0], cmdArgs[1])
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s\n", session.DisplayName)
		fmt.Printf("export DIRECTORY_TOKEN=%s\n", client.Token())
		return nil
	}

	storage, err := identity.OpenBadgerStorage(cfg.StateDir)
	if err != nil {
		return err
	}
	defer storage.Close()

	resolver := identity.NewResolver(client, storage, log)
	recorder := engagement.NewRecorder(client, resolver, log)
	// Views are written in the background; let them land before exiting.
	defer recorder.Wait()

	switch cmd {
	case "list":
		return runList(ctx, client, recorder, cmdArgs)
	case "region":
		return runRegion(ctx, client, recorder, cmdArgs)
	case "like", "bookmark":
		if len(cmdArgs) != 1 {
			return errUsage
		}
		return runToggle(ctx, recorder, cmdArgs[0], domain.EngagementKind(cmd))
	default:
		return errUsage
	}
}

func runList(ctx context.Context, client *remote.Client, recorder *engagement.Recorder, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errUsage
	}
	resource, err := domain.ParseResource(args[0])
	if err != nil {
		return err
	}
	q := domain.Query{Resource: resource}
	if len(args) == 2 {
		q.Region = args[1]
	}

	list := directory.NewList(client, q, logger.Discard())
	list.OnChange(func(s directory.State) {
		if s.Loading {
			return
		}
		if s.Err != nil {
			fmt.Fprintf(os.Stderr, "refresh failed: %v\n", s.Err)
			return
		}
		printItems(s.Items)
		recordViews(ctx, recorder, s.Items)
	})
	if err := list.Start(ctx); err != nil {
		return err
	}
	defer list.Close()

	<-ctx.Done()
	return nil
}

func runRegion(ctx context.Context, client *remote.Client, recorder *engagement.Recorder, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	c := region.NewController(ctx, client, region.ModeTap)
	defer c.Stop()

	c.Tap(args[0])
	c.Wait()

	snap := c.Snapshot()
	if snap.Err != nil {
		return snap.Err
	}
	fmt.Printf("%s: %d trainers\n", snap.Region, len(snap.OverlayItems))
	printItems(snap.OverlayItems)
	recordViews(ctx, recorder, snap.OverlayItems)
	return nil
}

func runToggle(ctx context.Context, recorder *engagement.Recorder, itemID string, kind domain.EngagementKind) error {
	present, err := recorder.Toggle(ctx, itemID, kind)
	if err != nil {
		return err
	}
	state, _ := recorder.Snapshot(itemID)
	verb := "removed"
	if present {
		verb = "added"
	}
	fmt.Printf("%s %s on %s (%d likes)\n", kind, verb, itemID, state.LikeCount)
	return nil
}

// recordViews marks every printed item as seen. The recorder skips items it has
// already recorded for the current viewer.
func recordViews(ctx context.Context, recorder *engagement.Recorder, items []domain.Item) {
	for _, item := range items {
		recorder.RecordView(ctx, item.ID)
	}
}

func printItems(items []domain.Item) {
	fmt.Println("----")
	for _, item := range items {
		fmt.Printf("%-20s %-16s %-20s ♥ %d\n", item.ID, item.Title, item.Region, item.LikeCount)
	}
}
