package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/raine/itemcheck/config"
	"github.com/raine/itemcheck/internal/app"
	"github.com/raine/itemcheck/internal/flows"
	"github.com/raine/itemcheck/internal/llm"
	"github.com/raine/itemcheck/internal/router"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var listingURL, imagePath, owner, flow string
	var verbose bool

	flag.StringVar(&flow, "flow", "route", "route, listing, search, damage, bias or ocr")
	flag.StringVar(&listingURL, "url", "", "Listing URL")
	flag.StringVar(&imagePath, "image", "", "Path to an image file")
	flag.StringVar(&owner, "owner", "", "Save the result to this owner's history (route only)")
	flag.BoolVar(&verbose, "v", false, "Log to stderr")
	flag.Parse()

	query := strings.Join(flag.Args(), " ")
	if query == "" && imagePath == "" && listingURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: analyze [-flow name] [-url listing-url] [-image file] [-owner id] <text>\n")
		os.Exit(1)
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var image string
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading image: %v\n", err)
			os.Exit(1)
		}
		image = llm.Media{MIMEType: http.DetectContentType(data), Data: data}.DataURI()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	go a.Recorder.Run(context.WithoutCancel(ctx))

	result, err := run(ctx, a, flow, query, listingURL, image, owner)
	// flushes a pending history save
	if cerr := a.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "Error closing history: %v\n", cerr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, flow, query, listingURL, image, owner string) (any, error) {
	switch flow {
	case "route":
		return a.Router.AnalyzeOrSearch(ctx, router.AnalysisRequest{
			Query:      query,
			ListingURL: listingURL,
			Image:      image,
		}, owner)
	case "listing":
		return a.Flows.AnalyzeListing(ctx, flows.ListingInput{
			Description: query,
			ListingURL:  listingURL,
			Image:       image,
		})
	case "search":
		return a.Flows.ProductSearchAndAnalysis(ctx, flows.ProductSearchInput{Query: query})
	case "damage":
		return a.Flows.AnalyzeImageForDamage(ctx, flows.ImageInput{Image: image})
	case "bias":
		return a.Flows.AnalyzeTextForBias(ctx, flows.TextInput{Text: query})
	case "ocr":
		return a.Flows.ExtractAndAnalyzeImage(ctx, flows.ImageInput{Image: image})
	default:
		return nil, fmt.Errorf("unknown flow %q", flow)
	}
}
