// Quickstart shows how a host application embeds the attribution SDK.
//
// Usage:
//
//	go run ./cmd/devserver &
//	DEEPLINK_LIVE_KEY=any go run ./docs/examples/quickstart "myapp://open/product/42?utm_source=qr"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/penshort/deeplink/pkg/attribution"
	"github.com/penshort/deeplink/pkg/session"
	"github.com/penshort/deeplink/pkg/transport"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	apiURL := os.Getenv("DEEPLINK_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	client, err := transport.New(apiURL, transport.WithLogger(logger))
	if err != nil {
		logger.Error("invalid service URL", "error", err)
		os.Exit(1)
	}

	store, err := session.OpenBadgerStore(filepath.Join(os.TempDir(), "deeplink-quickstart"))
	if err != nil {
		logger.Error("failed to open marker store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	coord := attribution.NewCoordinator(client, session.NewTracker(store, logger),
		attribution.WithCredentials(attribution.Credentials{
			Test: os.Getenv("DEEPLINK_TEST_KEY"),
			Live: os.Getenv("DEEPLINK_LIVE_KEY"),
		}),
		attribution.WithLogger(logger),
	)
	defer coord.Close()

	done := make(chan struct{}, 1)
	coord.Configure(attribution.ModeLive, func(data *attribution.AttributionData, err error) {
		defer func() {
			select {
			case done <- struct{}{}:
			default:
			}
		}()
		if err != nil {
			fmt.Println("attribution failed:", err)
			return
		}
		route(data)
	})

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		fmt.Println("no attribution response")
	}

	// Links opened while running go straight to the handler.
	for _, arg := range os.Args[1:] {
		if u, err := url.Parse(arg); err == nil && coord.TrackURL(u) {
			<-done
		}
	}

	link, err := coord.CreateLink(context.Background(),
		attribution.NewLinkConfiguration("/product/42", "quickstart-share").
			WithSocialTitle("Check this out").
			WithMarketingSource("quickstart").
			WithMarketingMedium("cli"))
	if err != nil {
		fmt.Println("create link failed:", err)
		return
	}
	fmt.Println("share:", link)
}

func route(data *attribution.AttributionData) {
	path, ok := data.RoutePath()
	if !ok {
		fmt.Println("no destination, first session:", data.IsFirstSession())
		return
	}
	if id, ok := data.ExtractID("/product/"); ok {
		fmt.Println("open product", id)
	} else {
		fmt.Println("open", path)
	}
	if data.HasMarketingData() {
		source, _ := data.Source()
		campaign, _ := data.Campaign()
		fmt.Printf("attributed to source=%q campaign=%q\n", source, campaign)
	}
}
