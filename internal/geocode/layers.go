package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

// AllLayer is the layer holding every located crash
const AllLayer = "all"

// Markers at the same rounded position are spread on a circle of this
// radius (degrees) so each one stays clickable
const fanRadius = 0.00008

// BuildLayers groups located, bicycle-involved reports by category. Every
// bicycle-involved category gets a layer, empty or not, plus the "all"
// layer. Features are in case-number order.
func BuildLayers(s *store.Store) map[string]model.FeatureCollection {
	layers := map[string]model.FeatureCollection{AllLayer: model.NewFeatureCollection()}
	for _, cat := range model.Categories {
		if cat.BicycleInvolved() {
			layers[string(cat)] = model.NewFeatureCollection()
		}
	}

	var located []model.Location
	cats := make(map[string]model.Category)
	for _, loc := range s.Locations() {
		cat, ok := s.Category(loc.CaseNo)
		if !ok || !cat.BicycleInvolved() {
			continue
		}
		located = append(located, *loc)
		cats[loc.CaseNo] = cat
	}
	fanOut(located)

	for _, loc := range located {
		rec, _ := s.Report(loc.CaseNo)
		props := model.FeatureProperties{
			CaseNo:           loc.CaseNo,
			Category:         cats[loc.CaseNo],
			Address:          loc.Address,
			SourceText:       loc.SourceText,
			ResolutionMethod: loc.ResolutionMethod,
		}
		if rec != nil {
			props.Date = rec.Date
			props.InjurySeverity = rec.InjurySeverity
		}
		feature := model.NewPointFeature(loc, props)

		name := string(cats[loc.CaseNo])
		layer := layers[name]
		layer.Features = append(layer.Features, feature)
		layers[name] = layer

		all := layers[AllLayer]
		all.Features = append(all.Features, feature)
		layers[AllLayer] = all
	}
	return layers
}

// fanOut spreads locations that share a position around it. Locations must
// be in case-number order; the offsets depend only on that order.
func fanOut(locs []model.Location) {
	type spot struct{ lat, lon float64 }
	groups := make(map[spot][]int)
	var order []spot
	for i, l := range locs {
		k := spot{round6(l.Latitude), round6(l.Longitude)}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	for _, k := range order {
		idx := groups[k]
		if len(idx) < 2 {
			continue
		}
		for n, i := range idx {
			angle := 2 * math.Pi * float64(n) / float64(len(idx))
			locs[i].Latitude = k.lat + fanRadius*math.Sin(angle)
			locs[i].Longitude = k.lon + fanRadius*math.Cos(angle)
		}
	}
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

// WriteLayers writes each layer to dir as <name>.json, concurrently
func WriteLayers(ctx context.Context, dir string, layers map[string]model.FeatureCollection) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create layers dir: %w", err)
	}

	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range names {
		layer := layers[name]
		path := filepath.Join(dir, name+".json")
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := json.MarshalIndent(layer, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal layer %s: %w", name, err)
			}
			if err := store.WriteFileAtomic(path, append(data, '\n')); err != nil {
				return fmt.Errorf("write layer %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
