// Command hotdogctl is a terminal client for a hotdog classification
// endpoint. It keeps its own local history and stats, the way the web UI
// kept them in browser storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/MLeys/hotdog-classifier/internal/classifier"
	"github.com/MLeys/hotdog-classifier/internal/config"
	"github.com/MLeys/hotdog-classifier/internal/controller"
	"github.com/MLeys/hotdog-classifier/internal/history"
	"github.com/MLeys/hotdog-classifier/internal/logging"
	"github.com/MLeys/hotdog-classifier/internal/pipeline"
	"github.com/MLeys/hotdog-classifier/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	kv, err := store.Open(cfg.DataPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := kv.AutoMigrate(ctx); err != nil {
		return err
	}

	hist := history.New(kv, logger)
	if err := hist.Load(ctx); err != nil {
		return err
	}

	if len(os.Args) < 2 {
		usage()
		return fmt.Errorf("missing command")
	}

	switch os.Args[1] {
	case "classify":
		return classify(ctx, cfg, hist, logger, os.Args[2:])
	case "history":
		return printHistory(hist)
	case "stats":
		return printStats(hist)
	case "reset":
		return reset(ctx, cfg, hist, logger, os.Args[2:])
	default:
		usage()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  hotdogctl classify -file <path> | -url <url> | -base64 <data:image/...>
  hotdogctl history
  hotdogctl stats
  hotdogctl reset -yes`)
}

func classify(ctx context.Context, cfg *config.Config, hist *history.Aggregator, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	filePath := fs.String("file", "", "path to an image file")
	rawURL := fs.String("url", "", "absolute http(s) image URL")
	encoded := fs.String("base64", "", "data:image base64 string")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pipe := pipeline.New(cfg.ClassifyEndpoint, http.DefaultClient, cfg.URLExtensionFix, logger)
	view := &consoleView{}
	ctrl := controller.New(view, pipe, hist, cfg.ErrorBannerDelay, logger)

	var done <-chan struct{}
	switch {
	case *filePath != "":
		data, err := os.ReadFile(*filePath)
		if err != nil {
			return err
		}
		done = ctrl.SubmitFile(ctx, filepath.Base(*filePath), detectMIME(*filePath, data), data)
	case *rawURL != "":
		done = ctrl.SubmitURL(ctx, *rawURL)
	case *encoded != "":
		done = ctrl.SubmitBase64(ctx, *encoded)
	default:
		return fmt.Errorf("one of -file, -url, or -base64 is required")
	}

	<-done
	if ctrl.State() == controller.StateErrorShown {
		os.Exit(1)
	}
	return nil
}

func reset(ctx context.Context, cfg *config.Config, hist *history.Aggregator, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	confirmed := fs.Bool("yes", false, "confirm clearing history and stats")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*confirmed {
		return fmt.Errorf("refusing to reset without -yes")
	}

	pipe := pipeline.New(cfg.ClassifyEndpoint, http.DefaultClient, cfg.URLExtensionFix, logger)
	ctrl := controller.New(&consoleView{}, pipe, hist, cfg.ErrorBannerDelay, logger)
	if err := ctrl.ResetHistory(ctx, true); err != nil {
		return err
	}
	fmt.Println("history and stats cleared")
	return nil
}

func printHistory(hist *history.Aggregator) error {
	entries := hist.Entries()
	if len(entries) == 0 {
		fmt.Println("no classifications yet")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  %s\n", e.Timestamp, e.Label, truncate(e.ImageSource, 60))
	}
	return nil
}

func printStats(hist *history.Aggregator) error {
	stats := hist.Stats()
	fmt.Printf("total: %d  hotdogs: %d\n", stats.Total, stats.PositiveCount)
	return nil
}

func detectMIME(path string, data []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// consoleView renders controller output as plain terminal lines.
type consoleView struct{}

func (consoleView) ShowPreview(source string) {
	fmt.Println("submitting:", truncate(source, 60))
}

func (consoleView) HidePreview() {}

func (consoleView) ShowLoading() {
	fmt.Println("classifying...")
}

func (consoleView) HideLoading() {}

func (consoleView) ShowResult(verdict *classifier.Verdict) {
	fmt.Println(verdict.Label)
	if verdict.Description != "" {
		fmt.Println(verdict.Description)
	}
}

func (consoleView) HideResult() {}

func (consoleView) ShowError(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
}

func (consoleView) HideError() {}

func (consoleView) RenderHistory(entries []history.Entry, stats history.Stats) {
	fmt.Printf("(%d classified, %d hotdogs)\n", stats.Total, stats.PositiveCount)
}
