// Command estimate runs the crowd estimation pipeline for one location from the
// terminal and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"crowdcount/internal/adapters/llm"
	"crowdcount/internal/adapters/observability"
	"crowdcount/internal/app"
	"crowdcount/internal/domain"
	"crowdcount/internal/estimation"
	"crowdcount/internal/shared"
)

type options struct {
	address, crowd, feature, radius, localTime, lang string
	offline                                          bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o options
	root := &cobra.Command{
		Use:          "estimate",
		Short:        "Estimate how many people are around a location",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService(cmd.Context(), o.offline)
			if err != nil {
				return err
			}
			return runOne(cmd.Context(), svc, o, localeFromEnv(os.Getenv("LANG")), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	rf := root.Flags()
	rf.BoolVar(&o.offline, "offline", false, "skip the language model and use the heuristic estimate")
	rf.StringVar(&o.address, "address", "", "address or place name")
	rf.StringVar(&o.crowd, "crowd", "normal", "crowd level (empty|normal|crowded, or 空いている|普通|混雑)")
	rf.StringVar(&o.feature, "feature", "people", "who is being counted")
	rf.StringVar(&o.radius, "radius", "500", "radius, e.g. 500, 1.5km")
	rf.StringVar(&o.localTime, "time", "", "local time, RFC3339 or 2006-01-02 15:04")
	rf.StringVar(&o.lang, "lang", "", "output language (ja|en)")

	return root
}

func newService(ctx context.Context, offline bool) (*app.EstimateService, error) {
	cfg := shared.Load()
	// stdout carries the JSON result
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel).Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	tuning, err := estimation.LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, err
	}
	tuning = tuning.WithBandMode(cfg.BandMode)

	var gw domain.LLMGateway
	if !offline {
		if gw, err = llm.FromConfig(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return app.NewEstimateService(gw, tuning, cfg.LLMTimeout), nil
}

// localeFromEnv turns a POSIX locale such as ja_JP.UTF-8 into a language tag.
func localeFromEnv(v string) string {
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "C" || v == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(v, "_", "-")
}

// runOne treats locale like an Accept-Language header for both the stderr
// label and the result notes.
func runOne(ctx context.Context, svc *app.EstimateService, o options, locale string, stdout, stderr io.Writer) error {
	payload, err := json.Marshal(map[string]string{
		"address":        o.address,
		"crowd":          o.crowd,
		"feature":        o.feature,
		"radius_m":       o.radius,
		"local_time_iso": o.localTime,
		"lang":           o.lang,
	})
	if err != nil {
		return err
	}
	in, issues := app.Normalize(payload)
	for _, is := range issues {
		fmt.Fprintf(stderr, "warning: %s\n", is)
	}
	lang := in.Lang
	if lang == "" {
		lang = estimation.DetectTargetLang(in, locale)
	}
	fmt.Fprintf(stderr, "%s / %s / %d m\n", in.Address, app.CrowdLabel(in.Crowd, lang), in.RadiusM)

	res := svc.Estimate(ctx, in, locale)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}
