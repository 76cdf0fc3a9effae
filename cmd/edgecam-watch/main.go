// Edgecam-watch - follow a running edgecam's stats from another terminal
//
// Usage:
//
//	edgecam-watch -addr localhost:8080
//	edgecam-watch -addr localhost:8080 -toggle
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/preview"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "Preview server address")
	toggle := flag.Bool("toggle", false, "Toggle edge detection and exit")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log.Init(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *toggle {
		if err := preview.Toggle(ctx, *addr); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		fmt.Println("🔁 Toggle sent")
		return
	}

	fmt.Printf("👀 Watching %s (Ctrl+C to stop)\n", *addr)
	err := preview.Watch(ctx, *addr, func(st preview.FrameStats) {
		fmt.Printf("\rFPS: %.1f | Processing: %dms | %dx%d | %s   ",
			st.FPS, st.ProcessingTime, st.Width, st.Height, st.FilterType)
	})
	fmt.Println()
	if err != nil {
		log.Error("watch failed", "error", err)
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
