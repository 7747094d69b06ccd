package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lnkbike/crashes/internal/cache"
	"github.com/lnkbike/crashes/internal/geocode"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/source"
)

var (
	geocodeForce    bool
	geocodeLimit    int
	geocodeAutoOnly bool
	geocodeQuery    string
	geocodeLat      float64
	geocodeLon      float64
)

// geocodeCmd represents the geocode command
var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Place bicycle-involved crashes on the map",
	Long: `Geocode resolves the location of every bicycle-involved report that has
no coordinates yet. Intersections and street addresses are looked up
automatically; single-street locations, lookups outside the municipality
and ambiguous answers are then presented for manual input.

Afterwards one GeoJSON layer per category (plus all.json) is written.

Example:
  crashes geocode
  crashes geocode --auto-only
  crashes geocode --force
  crashes geocode set B3-063805 --query "27TH & VINE"
  crashes geocode set B3-063805 --lat 40.8276 --lon -96.6743
  crashes geocode skip B3-063805`,
	Args: cobra.NoArgs,
	RunE: runGeocode,
}

var geocodeSetCmd = &cobra.Command{
	Use:   "set <case>",
	Short: "Resolve one report from an address or coordinates",
	Args:  cobra.ExactArgs(1),
	RunE:  runGeocodeSet,
}

var geocodeSkipCmd = &cobra.Command{
	Use:   "skip <case>...",
	Short: "Defer reports until the next --force run",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGeocodeSkip,
}

var geocodeLayersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Write the GeoJSON map layers without geocoding",
	Args:  cobra.NoArgs,
	RunE:  runGeocodeLayers,
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
	geocodeCmd.AddCommand(geocodeSetCmd, geocodeSkipCmd, geocodeLayersCmd)

	geocodeCmd.Flags().BoolVar(&geocodeForce, "force", false, "revisit skipped and automatically resolved reports")
	geocodeCmd.Flags().IntVar(&geocodeLimit, "limit", 0, "review at most this many reports by hand (0 = all)")
	geocodeCmd.Flags().BoolVar(&geocodeAutoOnly, "auto-only", false, "skip the interactive review")

	geocodeSetCmd.Flags().StringVar(&geocodeQuery, "query", "", "address or intersection to look up")
	geocodeSetCmd.Flags().Float64Var(&geocodeLat, "lat", 0, "latitude")
	geocodeSetCmd.Flags().Float64Var(&geocodeLon, "lon", 0, "longitude")
	geocodeSetCmd.MarkFlagsMutuallyExclusive("query", "lat")
	geocodeSetCmd.MarkFlagsMutuallyExclusive("query", "lon")
	geocodeSetCmd.MarkFlagsRequiredTogether("lat", "lon")
	geocodeSetCmd.MarkFlagsOneRequired("query", "lat")
}

func (a *app) resolver() *geocode.Resolver {
	c := cache.FromConfig(a.cfg.Cache, a.log)
	g := geocode.NewNominatim(a.cfg.Geocode, a.cfg.HTTP, c, a.cfg.Cache.TTL, a.log)
	return geocode.NewResolver(a.store, g, a.cfg.Geocode, a.log)
}

func runGeocode(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	r := a.resolver()

	fmt.Fprintf(os.Stderr, "⚙️  Geocoding with %s...\n", a.cfg.Geocode.BaseURL)

	// The automatic pass can be interrupted; everything resolved so far is kept
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	summary, autoErr := r.ResolveAuto(ctx, geocodeForce)
	interrupted := ctx.Err() != nil
	stop()

	if err := a.store.Save(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Resolved %d automatically\n", len(summary.Resolved))
	printManual(summary.Manual)

	switch {
	case errors.Is(autoErr, geocode.ErrDisallowed):
		return fmt.Errorf("%w; use a self-hosted geocoder or set geocode.respect_robots to false if its usage policy allows it", autoErr)
	case interrupted:
		return context.Canceled
	case autoErr != nil:
		return autoErr
	}

	if !geocodeAutoOnly {
		rv := geocode.NewReviewer(r, a.store.Save, os.Stdin, os.Stdout)
		rv.Color = isTerminal(os.Stdout)
		// With --force automatic results come up again for confirmation
		res, err := rv.Review(context.Background(), geocodeForce, geocodeLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Resolved %d by hand, skipped %d\n", res.Resolved, res.Skipped)
	}

	return writeLayers(a)
}

func printManual(manual map[string]string) {
	if len(manual) == 0 {
		return
	}
	caseNos := make([]string, 0, len(manual))
	for caseNo := range manual {
		caseNos = append(caseNos, caseNo)
	}
	sort.Strings(caseNos)
	fmt.Fprintf(os.Stderr, "✗ %d need manual input:\n", len(caseNos))
	for _, caseNo := range caseNos {
		fmt.Fprintf(os.Stderr, "    %s: %s\n", caseNo, manual[caseNo])
	}
}

func runGeocodeSet(cmd *cobra.Command, args []string) error {
	caseNo, err := source.NormalizeCaseNo(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	r := a.resolver()

	var loc *model.Location
	if geocodeQuery != "" {
		loc, err = r.ResolveManual(cmd.Context(), caseNo, geocodeQuery)
	} else {
		loc, err = r.SetCoordinates(caseNo, geocodeLat, geocodeLon)
	}
	if err != nil {
		return err
	}
	if err := a.store.Save(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %.6f,%.6f %s\n", caseNo, loc.Latitude, loc.Longitude, loc.Address)
	if loc.OutOfBounds {
		fmt.Fprintln(cmd.OutOrStdout(), "  (outside the municipality)")
	}
	return nil
}

func runGeocodeSkip(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	r := geocode.NewResolver(a.store, nil, a.cfg.Geocode, a.log)
	for _, arg := range args {
		caseNo, err := source.NormalizeCaseNo(arg)
		if err != nil {
			return err
		}
		if err := r.Skip(caseNo); err != nil {
			return err
		}
	}
	return a.store.Save()
}

func runGeocodeLayers(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return writeLayers(a)
}

func writeLayers(a *app) error {
	layers := geocode.BuildLayers(a.store)
	if err := geocode.WriteLayers(context.Background(), a.cfg.Paths.Layers, layers); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %d layers (%d crashes) to %s\n",
		len(layers), len(layers[geocode.AllLayer].Features), a.cfg.Paths.Layers)
	return nil
}
