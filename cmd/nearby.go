package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/license-map/internal/config"
	"github.com/sells-group/license-map/internal/model"
	"github.com/sells-group/license-map/internal/spatial"
)

var (
	nearbyLat    float64
	nearbyLon    float64
	nearbyRadius float64
	nearbyLimit  int
	nearbyJSON   bool
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "List establishments within a radius of a point, closest first",
	Long: "Filters the checkpointed dataset to establishments within --radius km of --lat/--lon. " +
		"Without --lat/--lon the configured fallback point (Gastown, Vancouver) is used.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		ref, err := referenceFromFlags(cfg.Query, flags.Changed("lat"), flags.Changed("lon"), nearbyLat, nearbyLon)
		if err != nil {
			return err
		}
		radius := cfg.Query.DefaultRadiusKm
		if flags.Changed("radius") {
			radius = nearbyRadius
		}

		ds, err := loadCheckpoint(cmd.Context(), cfg.Checkpoint.Path)
		if err != nil {
			return err
		}

		results, err := spatial.Filter(ds.Records, ref, radius)
		if err != nil {
			return eris.Wrap(err, "nearby")
		}
		if nearbyLimit > 0 && len(results) > nearbyLimit {
			results = results[:nearbyLimit]
		}
		return printNearby(cmd.OutOrStdout(), ref, radius, results, nearbyJSON)
	},
}

// referenceFromFlags picks the query origin: both flags set means a manual
// point, neither means the configured fallback.
func referenceFromFlags(q config.QueryConfig, latSet, lonSet bool, lat, lon float64) (model.ReferencePoint, error) {
	switch {
	case latSet && lonSet:
		return model.ReferencePoint{Lat: lat, Lon: lon, Source: model.ReferenceManual}, nil
	case latSet || lonSet:
		return model.ReferencePoint{}, eris.New("--lat and --lon must be given together")
	default:
		return model.ReferencePoint{Lat: q.FallbackLat, Lon: q.FallbackLon, Source: model.ReferenceFallback}, nil
	}
}

func printNearby(w io.Writer, ref model.ReferencePoint, radius float64, results []model.ProximityResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"reference": ref,
			"radius_km": radius,
			"count":     len(results),
			"results":   results,
		})
	}

	fmt.Fprintf(w, "%d within %.2f km of (%.5f, %.5f) [%s]\n", len(results), radius, ref.Lat, ref.Lon, ref.Source)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KM\tLICENCE\tNAME\tADDRESS\tTYPE")
	for _, r := range results {
		fmt.Fprintf(tw, "%.2f\t%s\t%s\t%s, %s\t%s\n",
			r.DistanceKm, r.Record.LicenseNumber, r.Record.Name, r.Record.Street, r.Record.City, r.Record.LicenseType)
	}
	return tw.Flush()
}

func init() {
	nearbyCmd.Flags().Float64Var(&nearbyLat, "lat", 0, "reference latitude")
	nearbyCmd.Flags().Float64Var(&nearbyLon, "lon", 0, "reference longitude")
	nearbyCmd.Flags().Float64Var(&nearbyRadius, "radius", 0, "radius in km (default from config)")
	nearbyCmd.Flags().IntVar(&nearbyLimit, "limit", 0, "max results (0 = all)")
	nearbyCmd.Flags().BoolVar(&nearbyJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(nearbyCmd)
}
