package model

// ResolutionMethod records how a location's coordinates were obtained
type ResolutionMethod string

const (
	ResolutionAutomatic ResolutionMethod = "automatic" // Normalized location text resolved by the geocoder
	ResolutionManual    ResolutionMethod = "manual"    // Operator supplied the address or coordinates
)

// Location is a resolved geographic position for a curated report
type Location struct {
	CaseNo           string           `json:"case_no"`
	Latitude         float64          `json:"latitude"`
	Longitude        float64          `json:"longitude"`
	SourceText       string           `json:"source_text"`       // Query text that produced the coordinates
	Address          string           `json:"address,omitempty"` // Display address returned by the geocoder
	ResolutionMethod ResolutionMethod `json:"resolution_method"`
	OutOfBounds      bool             `json:"out_of_bounds,omitempty"` // Outside the configured municipality box
}

// Bounds is a latitude/longitude bounding box
type Bounds struct {
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat" json:"min_lat"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat" json:"max_lat" validate:"gtfield=MinLat"`
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon" json:"min_lon"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon" json:"max_lon" validate:"gtfield=MinLon"`
}

// Contains reports whether the point lies inside the box
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// FeatureCollection is a GeoJSON feature collection
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection returns an empty collection
func NewFeatureCollection() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// Feature is a GeoJSON point feature describing one crash
type Feature struct {
	Type       string            `json:"type"`
	Geometry   Geometry          `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// Geometry is a GeoJSON point; coordinates are [longitude, latitude]
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// FeatureProperties carries the crash attributes shown on the map
type FeatureProperties struct {
	CaseNo           string           `json:"case_no"`
	Category         Category         `json:"category"`
	Date             *Date            `json:"date"`
	InjurySeverity   *Severity        `json:"injury_severity"`
	Address          string           `json:"address,omitempty"`
	SourceText       string           `json:"source_text"`
	ResolutionMethod ResolutionMethod `json:"resolution_method"`
}

// NewPointFeature builds a feature for a location
func NewPointFeature(loc Location, props FeatureProperties) Feature {
	return Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: [2]float64{loc.Longitude, loc.Latitude},
		},
		Properties: props,
	}
}
