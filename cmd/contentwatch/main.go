// Command contentwatch tails content changes on a running contentd server.
// It polls the update-status endpoint for the requested types and prints a
// line whenever a document's lastModified advances, which makes it handy for
// verifying deploys and out-of-band edits without opening the site.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rgeddes/contentd/internal/content"
	"github.com/rgeddes/contentd/internal/log"
	"github.com/rgeddes/contentd/internal/poller"
	v "github.com/rgeddes/contentd/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		server      = flag.String("server", "http://localhost:8080", "base URL of the content server")
		interval    = flag.Duration("interval", poller.DefaultInterval, "poll interval")
		types       = flag.String("types", "", "comma-separated content types to watch (default: all registered)")
		logLevel    = flag.String("log-level", "warn", "debug|info|warn|error")
		showVersion = flag.Bool("V", false, "Print version+build information and exit")
	)
	flag.Parse()

	vi := v.Get()
	if *showVersion {
		fmt.Printf("contentwatch %s (commit=%s, go=%s)\n", vi.Version, vi.Commit, vi.GoVersion)
		os.Exit(0)
	}

	lvl, err := log.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{App: "contentwatch", Version: vi.Version, Level: lvl})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer lg.Sync()

	watch := content.DefaultRegistry().Types()
	if *types != "" {
		watch = watch[:0]
		for _, t := range strings.Split(*types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				watch = append(watch, t)
			}
		}
	}
	if len(watch) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to watch")
		os.Exit(1)
	}

	p, err := poller.New(poller.Options{
		BaseURL:  *server,
		Interval: *interval,
		Logger:   lg,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, typ := range watch {
		p.Register(typ, 0, func(typ string, ts int64) {
			fmt.Printf("%s  %s changed (lastModified=%d)\n",
				time.Now().Format(time.RFC3339), typ, ts)
		})
	}

	fmt.Printf("watching %s for changes to %s every %s\n",
		*server, strings.Join(watch, ", "), *interval)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
