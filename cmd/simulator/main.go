// Command simulator plays both sides of the booking flow against a running server: "book"
// submits a third-party style booking, "watch" mirrors the calendar and prints notifications.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/reconciler"
	"github.com/diagnosis/goodvibes-bookings/pkg/config"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: simulator [-server URL] book|watch [flags]\n")
	flag.PrintDefaults()
}

func main() {
	cfg := config.Load()
	server := flag.String("server", "http://localhost:"+cfg.Server.Port, "booking server base URL")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch flag.Arg(0) {
	case "book":
		err = book(ctx, *server, flag.Args()[1:])
	case "watch":
		err = watch(ctx, *server, cfg.Notify.Dedup, flag.Args()[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("simulator failed", "error", err)
		os.Exit(1)
	}
}

func book(ctx context.Context, server string, args []string) error {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	name := fs.String("name", "Sam", "customer name")
	email := fs.String("email", "", "customer email")
	svc := fs.String("service", "Standard Haircut", "service label as a booking form would send it")
	date := fs.String("date", time.Now().Format(domain.DateLayout), "YYYY-MM-DD")
	at := fs.String("time", "2:30 PM", "12-hour time, e.g. 2:30 PM")
	fs.Parse(args)

	body, err := json.Marshal(map[string]string{
		"id":      uuid.NewString(),
		"name":    *name,
		"email":   *email,
		"service": *svc,
		"date":    *date,
		"time":    *at,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/bookings", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	out, _ := io.ReadAll(res.Body)
	fmt.Printf("%d %s\n", res.StatusCode, bytes.TrimSpace(out))
	if res.StatusCode >= 300 {
		return fmt.Errorf("booking rejected with status %d", res.StatusCode)
	}
	return nil
}

// watchPolicy reads the watch flags; -dedup defaults to NOTIFY_DEDUP.
func watchPolicy(defaultDedup string, args []string) (reconciler.DedupPolicy, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	dedup := fs.String("dedup", defaultDedup, "notification dedup policy: slot or id (NOTIFY_DEDUP)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	policy, ok := reconciler.ParseDedupPolicy(*dedup)
	if !ok {
		return "", fmt.Errorf("unknown dedup policy %q", *dedup)
	}
	return policy, nil
}

func watch(ctx context.Context, server, defaultDedup string, args []string) error {
	policy, err := watchPolicy(defaultDedup, args)
	if err != nil {
		return err
	}
	mirror := reconciler.NewMirror(domain.DefaultCatalog(), policy)
	client, err := reconciler.NewClient(server, mirror)
	if err != nil {
		return err
	}
	client.OnNotify = func(n domain.Notification) {
		fmt.Printf("[%s] %s (%s, %s, $%.2f) unread=%d\n",
			n.Timestamp.Format(time.Kitchen), n.Message, n.Details.ServiceName, n.Details.Date, n.Details.Price, mirror.UnreadCount())
	}
	go func() {
		select {
		case <-client.Ready():
			fmt.Printf("watching %s, %d bookings on the calendar\n", server, len(mirror.Bookings()))
		case <-ctx.Done():
		}
	}()
	return client.Run(ctx)
}
