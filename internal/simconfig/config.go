// Package simconfig parses and validates the INI-style configuration
// surface the simulation engine is driven by, using gopkg.in/ini.v1 — the
// idiomatic choice for genuinely section-and-key configuration, the way the
// rest of this codebase's pack reaches for structured config libraries.
package simconfig

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// AnimationStyle enumerates the recognized [ANIMATION] animation_style
// values. Out-of-scope rendering styles are still parsed and validated —
// the engine does not implement them, but a bad value is still a
// configuration error.
type AnimationStyle string

const (
	AnimationNone     AnimationStyle = "none"
	AnimationMap      AnimationStyle = "map"
	AnimationStats    AnimationStyle = "stats"
	AnimationConsole  AnimationStyle = "console"
	AnimationAll      AnimationStyle = "all"
	AnimationBar      AnimationStyle = "bar"
	AnimationText     AnimationStyle = "text"
	AnimationSequence AnimationStyle = "sequence"
)

var validAnimationStyles = map[AnimationStyle]bool{
	AnimationNone: true, AnimationMap: true, AnimationStats: true,
	AnimationConsole: true, AnimationAll: true, AnimationBar: true,
	AnimationText: true, AnimationSequence: true,
}

// EquilibrationMode enumerates [EQUILIBRATION] equilibration values.
type EquilibrationMode string

const (
	EquilibrationModeNone  EquilibrationMode = "none"
	EquilibrationModePrice EquilibrationMode = "price"
)

// Default holds [DEFAULT] section keys.
type Default struct {
	Title                          string
	CitySize                       int
	VehicleCount                   int
	BaseDemand                     float64
	TripInhomogeneity              float64
	TripInhomogeneousDestinations  bool
	MinTripDistance                int
	MaxTripDistance                int
	TimeBlocks                     int
	IdleVehiclesMoving             bool
	RandomNumberSeed               int64
	ResultsWindow                  int
	LogFile                        string
	Verbosity                      string
	Animate                        bool
	Equilibrate                    bool
	RunSequence                    bool
	UseCityScale                   bool
}

// Animation holds [ANIMATION] section keys.
type Animation struct {
	AnimationStyle       AnimationStyle
	AnimateUpdatePeriod  int
	SmoothingWindow      int
	Annotation           string
	Interpolate          bool
	AnimationOutputFile  string
	ImagemagickDir       string
}

// Equilibration holds [EQUILIBRATION] section keys.
type Equilibration struct {
	Equilibration         EquilibrationMode
	Price                 float64
	PlatformCommission    float64
	ReservationWage       float64
	DemandElasticity      float64
	EquilibrationInterval int
}

// Sequence holds [SEQUENCE] section keys.
type Sequence struct {
	RequestRateIncrement  float64
	RequestRateMax        float64
	VehicleCountIncrement int
	VehicleCountMax       int
	RequestRateRepeat     int
}

// CityScale holds [CITY_SCALE] section keys.
type CityScale struct {
	MeanVehicleSpeed       float64
	MinutesPerBlock        float64
	PerKmOpsCost           float64
	PerHourOpportunityCost float64
	PerKmPrice             float64
	PerMinutePrice         float64
}

// Impulse is one record from the [IMPULSES] impulse_list: at block Block,
// every key in Fields overwrites the corresponding live configuration field.
type Impulse struct {
	Block  int
	Fields map[string]string
}

// Config is the full, typed configuration surface.
type Config struct {
	Default       Default
	Animation     Animation
	Equilibration Equilibration
	Sequence      Sequence
	CityScale     CityScale
	Impulses      []Impulse
}

// Defaults returns a Config with the engine's baseline values, the way a
// fresh [DEFAULT] section would read with nothing overridden.
func Defaults() Config {
	return Config{
		Default: Default{
			CitySize:           16,
			VehicleCount:       1,
			BaseDemand:         0,
			MinTripDistance:    0,
			MaxTripDistance:    0,
			TimeBlocks:         1000,
			IdleVehiclesMoving: true,
			ResultsWindow:      100,
			Verbosity:          "info",
		},
		Animation: Animation{
			AnimationStyle:      AnimationNone,
			AnimateUpdatePeriod: 1,
			SmoothingWindow:     20,
		},
		Equilibration: Equilibration{
			Equilibration:         EquilibrationModeNone,
			Price:                 1.0,
			EquilibrationInterval: 10,
		},
	}
}

// Load reads and validates a configuration file at path.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	// Inline comments are not stripped: impulse_list separates its records
	// with ';', which ini would otherwise treat as the start of a comment.
	file, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true, IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, fmt.Errorf("simconfig: reading %s: %w", path, err)
	}

	warnUnknown := func(section *ini.Section, known map[string]bool) {
		for _, key := range section.Keys() {
			if !known[key.Name()] {
				slog.Warn("simconfig: ignoring unknown configuration key",
					"section", section.Name(), "key", key.Name())
			}
		}
	}

	if err := bindDefault(file, &cfg.Default); err != nil {
		return nil, err
	}
	if err := bindAnimation(file, &cfg.Animation); err != nil {
		return nil, err
	}
	if err := bindEquilibration(file, &cfg.Equilibration); err != nil {
		return nil, err
	}
	if err := bindSequence(file, &cfg.Sequence); err != nil {
		return nil, err
	}
	if err := bindCityScale(file, &cfg.CityScale); err != nil {
		return nil, err
	}
	cfg.Impulses = parseImpulses(file)

	warnUnknown(file.Section("DEFAULT"), defaultKnownKeys)
	warnUnknown(file.Section("ANIMATION"), animationKnownKeys)
	warnUnknown(file.Section("EQUILIBRATION"), equilibrationKnownKeys)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var defaultKnownKeys = map[string]bool{
	"title": true, "city_size": true, "vehicle_count": true, "base_demand": true,
	"trip_inhomogeneity": true, "trip_inhomogeneous_destinations": true,
	"min_trip_distance": true, "max_trip_distance": true, "time_blocks": true,
	"idle_vehicles_moving": true, "random_number_seed": true, "results_window": true,
	"log_file": true, "verbosity": true, "animate": true, "equilibrate": true,
	"run_sequence": true, "use_city_scale": true,
}

var animationKnownKeys = map[string]bool{
	"animation_style": true, "animate_update_period": true, "smoothing_window": true,
	"annotation": true, "interpolate": true, "animation_output_file": true,
	"imagemagick_dir": true,
}

var equilibrationKnownKeys = map[string]bool{
	"equilibration": true, "price": true, "platform_commission": true,
	"reservation_wage": true, "demand_elasticity": true, "equilibration_interval": true,
}

func bindDefault(file *ini.File, d *Default) error {
	s := file.Section("DEFAULT")
	d.Title = s.Key("title").MustString(d.Title)
	d.CitySize = s.Key("city_size").MustInt(d.CitySize)
	d.VehicleCount = s.Key("vehicle_count").MustInt(d.VehicleCount)
	d.BaseDemand = s.Key("base_demand").MustFloat64(d.BaseDemand)
	d.TripInhomogeneity = s.Key("trip_inhomogeneity").MustFloat64(d.TripInhomogeneity)
	d.TripInhomogeneousDestinations = s.Key("trip_inhomogeneous_destinations").MustBool(d.TripInhomogeneousDestinations)
	d.MinTripDistance = s.Key("min_trip_distance").MustInt(d.MinTripDistance)
	d.MaxTripDistance = s.Key("max_trip_distance").MustInt(d.MaxTripDistance)
	d.TimeBlocks = s.Key("time_blocks").MustInt(d.TimeBlocks)
	d.IdleVehiclesMoving = s.Key("idle_vehicles_moving").MustBool(d.IdleVehiclesMoving)
	d.RandomNumberSeed = s.Key("random_number_seed").MustInt64(d.RandomNumberSeed)
	d.ResultsWindow = s.Key("results_window").MustInt(d.ResultsWindow)
	d.LogFile = s.Key("log_file").MustString(d.LogFile)
	d.Verbosity = s.Key("verbosity").MustString(d.Verbosity)
	d.Animate = s.Key("animate").MustBool(d.Animate)
	d.Equilibrate = s.Key("equilibrate").MustBool(d.Equilibrate)
	d.RunSequence = s.Key("run_sequence").MustBool(d.RunSequence)
	d.UseCityScale = s.Key("use_city_scale").MustBool(d.UseCityScale)
	return nil
}

func bindAnimation(file *ini.File, a *Animation) error {
	s := file.Section("ANIMATION")
	style := s.Key("animation_style").MustString(string(a.AnimationStyle))
	a.AnimationStyle = AnimationStyle(style)
	if a.AnimationStyle != "" && !validAnimationStyles[a.AnimationStyle] {
		return fmt.Errorf("simconfig: unknown animation_style %q", style)
	}
	a.AnimateUpdatePeriod = s.Key("animate_update_period").MustInt(a.AnimateUpdatePeriod)
	a.SmoothingWindow = s.Key("smoothing_window").MustInt(a.SmoothingWindow)
	a.Annotation = s.Key("annotation").MustString(a.Annotation)
	a.Interpolate = s.Key("interpolate").MustBool(a.Interpolate)
	a.AnimationOutputFile = s.Key("animation_output_file").MustString(a.AnimationOutputFile)
	a.ImagemagickDir = s.Key("imagemagick_dir").MustString(a.ImagemagickDir)
	return nil
}

func bindEquilibration(file *ini.File, e *Equilibration) error {
	s := file.Section("EQUILIBRATION")
	mode := s.Key("equilibration").MustString(string(e.Equilibration))
	e.Equilibration = EquilibrationMode(mode)
	if e.Equilibration != EquilibrationModeNone && e.Equilibration != EquilibrationModePrice {
		return fmt.Errorf("simconfig: unknown equilibration mode %q", mode)
	}
	e.Price = s.Key("price").MustFloat64(e.Price)
	e.PlatformCommission = s.Key("platform_commission").MustFloat64(e.PlatformCommission)
	e.ReservationWage = s.Key("reservation_wage").MustFloat64(e.ReservationWage)
	e.DemandElasticity = s.Key("demand_elasticity").MustFloat64(e.DemandElasticity)
	e.EquilibrationInterval = s.Key("equilibration_interval").MustInt(e.EquilibrationInterval)
	return nil
}

func bindSequence(file *ini.File, seq *Sequence) error {
	s := file.Section("SEQUENCE")
	seq.RequestRateIncrement = s.Key("request_rate_increment").MustFloat64(seq.RequestRateIncrement)
	seq.RequestRateMax = s.Key("request_rate_max").MustFloat64(seq.RequestRateMax)
	seq.VehicleCountIncrement = s.Key("vehicle_count_increment").MustInt(seq.VehicleCountIncrement)
	seq.VehicleCountMax = s.Key("vehicle_count_max").MustInt(seq.VehicleCountMax)
	seq.RequestRateRepeat = s.Key("request_rate_repeat").MustInt(seq.RequestRateRepeat)
	if seq.RequestRateRepeat == 0 {
		seq.RequestRateRepeat = 1
	}
	return nil
}

func bindCityScale(file *ini.File, cs *CityScale) error {
	s := file.Section("CITY_SCALE")
	cs.MeanVehicleSpeed = s.Key("mean_vehicle_speed").MustFloat64(cs.MeanVehicleSpeed)
	cs.MinutesPerBlock = s.Key("minutes_per_block").MustFloat64(cs.MinutesPerBlock)
	cs.PerKmOpsCost = s.Key("per_km_ops_cost").MustFloat64(cs.PerKmOpsCost)
	cs.PerHourOpportunityCost = s.Key("per_hour_opportunity_cost").MustFloat64(cs.PerHourOpportunityCost)
	cs.PerKmPrice = s.Key("per_km_price").MustFloat64(cs.PerKmPrice)
	cs.PerMinutePrice = s.Key("per_minute_price").MustFloat64(cs.PerMinutePrice)
	return nil
}

// parseImpulses reads [IMPULSES] impulse_list, a semicolon-separated list of
// records, each a comma-separated list of key:value pairs, one of which must
// be "block" (records without a valid block are dropped). Example:
//
//	impulse_list = block:100,base_demand:0.5; block:200,price:1.2
func parseImpulses(file *ini.File) []Impulse {
	raw := file.Section("IMPULSES").Key("impulse_list").String()
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var impulses []Impulse
	for _, record := range strings.Split(raw, ";") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		fields := make(map[string]string)
		block := -1
		for _, pair := range strings.Split(record, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			kv := strings.SplitN(pair, ":", 2)
			if len(kv) != 2 {
				continue
			}
			key := strings.TrimSpace(kv[0])
			val := strings.TrimSpace(kv[1])
			if key == "block" {
				if b, err := strconv.Atoi(val); err == nil {
					block = b
				}
				continue
			}
			fields[key] = val
		}
		if block >= 0 {
			impulses = append(impulses, Impulse{Block: block, Fields: fields})
		}
	}
	return impulses
}

// Validate applies the fatal configuration-error checks of the error
// taxonomy: these must all pass before an engine is created.
func (c Config) Validate() error {
	if c.Default.CitySize <= 0 {
		return fmt.Errorf("simconfig: city_size must be positive, got %d", c.Default.CitySize)
	}
	if c.Default.CitySize%2 != 0 {
		return fmt.Errorf("simconfig: city_size must be even, got %d", c.Default.CitySize)
	}
	if c.Default.MaxTripDistance != 0 && c.Default.MinTripDistance > c.Default.MaxTripDistance {
		return fmt.Errorf("simconfig: min_trip_distance %d exceeds max_trip_distance %d",
			c.Default.MinTripDistance, c.Default.MaxTripDistance)
	}
	if c.Animation.AnimationStyle != "" && !validAnimationStyles[c.Animation.AnimationStyle] {
		return fmt.Errorf("simconfig: unknown animation_style %q", c.Animation.AnimationStyle)
	}
	if c.Equilibration.Equilibration != EquilibrationModeNone &&
		c.Equilibration.Equilibration != EquilibrationModePrice {
		return fmt.Errorf("simconfig: unknown equilibration mode %q", c.Equilibration.Equilibration)
	}
	if c.Default.Equilibrate && c.Equilibration.Equilibration == EquilibrationModePrice && c.Equilibration.Price <= 0 {
		return fmt.Errorf("simconfig: price must be > 0 when equilibrating, got %f", c.Equilibration.Price)
	}
	return nil
}

// ApplyOverride sets a single override given by its bare key name (for
// example "vehicle_count" or "price", whichever section the key lives in),
// as used by CLI overrides (§6.4) and impulses (§6.1 [IMPULSES]). Keys are
// not section-qualified: a "section.key" name is not recognized. Unknown
// keys are a no-op, matching the "others ignored" contract for
// unrecognized keys.
func (c *Config) ApplyOverride(key, value string) error {
	switch key {
	case "title":
		c.Default.Title = value
	case "city_size":
		return setInt(&c.Default.CitySize, value)
	case "vehicle_count":
		return setInt(&c.Default.VehicleCount, value)
	case "base_demand":
		return setFloat(&c.Default.BaseDemand, value)
	case "trip_inhomogeneity":
		return setFloat(&c.Default.TripInhomogeneity, value)
	case "trip_inhomogeneous_destinations":
		return setBool(&c.Default.TripInhomogeneousDestinations, value)
	case "min_trip_distance":
		return setInt(&c.Default.MinTripDistance, value)
	case "max_trip_distance":
		return setInt(&c.Default.MaxTripDistance, value)
	case "time_blocks":
		return setInt(&c.Default.TimeBlocks, value)
	case "idle_vehicles_moving":
		return setBool(&c.Default.IdleVehiclesMoving, value)
	case "results_window":
		return setInt(&c.Default.ResultsWindow, value)
	case "equilibrate":
		return setBool(&c.Default.Equilibrate, value)
	case "price":
		return setFloat(&c.Equilibration.Price, value)
	case "platform_commission":
		return setFloat(&c.Equilibration.PlatformCommission, value)
	case "reservation_wage":
		return setFloat(&c.Equilibration.ReservationWage, value)
	case "demand_elasticity":
		return setFloat(&c.Equilibration.DemandElasticity, value)
	case "equilibration_interval":
		return setInt(&c.Equilibration.EquilibrationInterval, value)
	case "smoothing_window":
		return setInt(&c.Animation.SmoothingWindow, value)
	case "animate_update_period":
		return setInt(&c.Animation.AnimateUpdatePeriod, value)
	}
	return nil
}

func setInt(dst *int, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("simconfig: invalid integer %q: %w", value, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("simconfig: invalid float %q: %w", value, err)
	}
	*dst = v
	return nil
}

func setBool(dst *bool, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("simconfig: invalid bool %q: %w", value, err)
	}
	*dst = v
	return nil
}

// ResolveCityScale derives price and reservation wage from [CITY_SCALE] when
// use_city_scale is set, overriding [EQUILIBRATION]'s values per §6.1.
func (c *Config) ResolveCityScale() {
	if !c.Default.UseCityScale {
		return
	}
	cs := c.CityScale
	perBlockKm := cs.MeanVehicleSpeed * cs.MinutesPerBlock / 60.0
	c.Equilibration.Price = cs.PerKmPrice*perBlockKm + cs.PerMinutePrice*cs.MinutesPerBlock
	opportunityPerBlock := cs.PerHourOpportunityCost * cs.MinutesPerBlock / 60.0
	opsCostPerBlock := cs.PerKmOpsCost * perBlockKm
	c.Equilibration.ReservationWage = opportunityPerBlock + opsCostPerBlock
}
