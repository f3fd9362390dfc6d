// Package main provides a synthetic benchmark for the robust position
// estimators. It generates simulated scenes of located sources and noisy
// readings, runs the selected estimation methods over many trials and
// compares their accuracy.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	randv2 "math/rand/v2"
	"os"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/position.report/geom"
	"github.com/banshee-data/position.report/locate"
	"github.com/banshee-data/position.report/propagation"
	"github.com/banshee-data/position.report/radio"
	"github.com/banshee-data/position.report/sac"
	"github.com/banshee-data/position.report/units"
)

// Config holds configuration for the simulation.
type Config struct {
	Dimension       int     `json:"dimension"`
	Sources         int     `json:"sources"`
	Mix             string  `json:"mix"`
	ArenaSize       float64 `json:"arena_size_m"`
	NoiseSigma      float64 `json:"noise_sigma_m"`
	RSSISigma       float64 `json:"rssi_sigma_db"`
	OutlierFraction float64 `json:"outlier_fraction"`
	OutlierOffset   float64 `json:"outlier_offset_m"`
	Method          string  `json:"method"`
	Threshold       float64 `json:"threshold_m"`
	Trials          int     `json:"trials"`
	Seed            int64   `json:"seed"`
	Verbose         bool    `json:"-"`
	OutputJSON      string  `json:"-"`
}

// MethodResult holds per-method accuracy statistics over all trials.
type MethodResult struct {
	Method         string  `json:"method"`
	Trials         int     `json:"trials"`
	Failures       int     `json:"failures"`
	MeanErrorM     float64 `json:"mean_error_m"`
	MedianErrorM   float64 `json:"median_error_m"`
	P95ErrorM      float64 `json:"p95_error_m"`
	MaxErrorM      float64 `json:"max_error_m"`
	MeanIterations float64 `json:"mean_iterations"`
	MeanAccuracyM  float64 `json:"mean_accuracy_m"`
}

// SimulationResult is the full benchmark output.
type SimulationResult struct {
	Config    Config         `json:"config"`
	PerMethod []MethodResult `json:"per_method"`
}

const transmitPowerDBm = 17.0

func main() {
	cfg := parseFlags()

	if cfg.Dimension != 2 && cfg.Dimension != 3 {
		log.Fatalf("dimension must be 2 or 3, got %d", cfg.Dimension)
	}
	if cfg.Sources < cfg.Dimension+1 {
		log.Fatalf("need at least %d sources for %dD, got %d", cfg.Dimension+1, cfg.Dimension, cfg.Sources)
	}
	if cfg.Mix != "ranging" && cfg.Mix != "rssi" && cfg.Mix != "mixed" {
		log.Fatalf("mix must be ranging, rssi or mixed, got %q", cfg.Mix)
	}
	if cfg.OutlierFraction < 0 || cfg.OutlierFraction >= 1 {
		log.Fatalf("outlier fraction must be in [0, 1), got %g", cfg.OutlierFraction)
	}
	if cfg.Trials < 1 {
		log.Fatalf("trials must be positive, got %d", cfg.Trials)
	}

	methods, err := selectMethods(cfg.Method)
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("Simulating %d trials: %dD, %d sources, mix=%s, noise=%gm, outliers=%.0f%%",
		cfg.Trials, cfg.Dimension, cfg.Sources, cfg.Mix, cfg.NoiseSigma, cfg.OutlierFraction*100)

	scenes := generateScenes(cfg)

	result := &SimulationResult{Config: cfg}
	for _, method := range methods {
		result.PerMethod = append(result.PerMethod, runMethod(cfg, method, scenes))
	}

	printResults(result)

	if cfg.OutputJSON != "" {
		if err := exportJSON(result, cfg.OutputJSON); err != nil {
			log.Printf("Warning: failed to export JSON: %v", err)
		} else {
			log.Printf("Results exported to: %s", cfg.OutputJSON)
		}
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.IntVar(&cfg.Dimension, "dim", 2, "Dimensionality of the scene (2 or 3)")
	flag.IntVar(&cfg.Sources, "sources", 8, "Number of located sources per scene")
	flag.StringVar(&cfg.Mix, "mix", "ranging", "Reading mix: ranging, rssi, mixed")
	flag.Float64Var(&cfg.ArenaSize, "arena", 40, "Arena edge length in meters")
	flag.Float64Var(&cfg.NoiseSigma, "noise", 0.1, "Distance noise standard deviation in meters")
	flag.Float64Var(&cfg.RSSISigma, "rssi-noise", 1.0, "RSSI noise standard deviation in dB")
	flag.Float64Var(&cfg.OutlierFraction, "outliers", 0.2, "Fraction of readings turned into outliers")
	flag.Float64Var(&cfg.OutlierOffset, "outlier-offset", 15, "Distance offset applied to outlier readings in meters")
	flag.StringVar(&cfg.Method, "method", "all", "Robust method: ransac, lmeds, msac, prosac, promeds or all")
	flag.Float64Var(&cfg.Threshold, "threshold", sac.DefaultThreshold, "Inlier residual threshold in meters")
	flag.IntVar(&cfg.Trials, "trials", 100, "Number of simulated scenes")
	flag.Int64Var(&cfg.Seed, "seed", 1, "Random seed")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable per-trial logging")
	flag.StringVar(&cfg.OutputJSON, "json", "", "Output JSON filename (e.g., results.json)")

	flag.Parse()

	return cfg
}

func selectMethods(name string) ([]sac.Method, error) {
	if name == "all" {
		return []sac.Method{sac.RANSAC, sac.LMedS, sac.MSAC, sac.PROSAC, sac.PROMedS}, nil
	}
	method, err := sac.ParseMethod(name)
	if err != nil {
		return nil, err
	}
	return []sac.Method{method}, nil
}

// scene is one simulated trial: the true position, the sources around it
// and the readings taken at the true position.
type scene struct {
	truth         geom.Point
	sources       []*radio.LocatedSource
	fingerprint   *radio.Fingerprint
	sourceScores  []float64
	readingScores []float64
}

func generateScenes(cfg Config) []scene {
	rng := randv2.New(randv2.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)+1))
	arena := distuv.Uniform{Min: -cfg.ArenaSize / 2, Max: cfg.ArenaSize / 2, Src: rng}
	noise := distuv.Normal{Mu: 0, Sigma: cfg.NoiseSigma, Src: rng}
	rssiNoise := distuv.Normal{Mu: 0, Sigma: cfg.RSSISigma, Src: rng}

	scenes := make([]scene, cfg.Trials)
	for ti := range scenes {
		scenes[ti] = generateScene(cfg, ti, rng, arena, noise, rssiNoise)
	}
	return scenes
}

func generateScene(cfg Config, trial int, rng *randv2.Rand, arena distuv.Uniform, noise, rssiNoise distuv.Normal) scene {
	dim := cfg.Dimension

	truth := geom.Zero(dim)
	for j := range truth {
		// Keep the truth away from the arena edges.
		truth[j] = arena.Rand() / 2
	}

	numOutliers := int(math.Round(cfg.OutlierFraction * float64(cfg.Sources)))
	outlier := make(map[int]bool, numOutliers)
	for _, idx := range rng.Perm(cfg.Sources)[:numOutliers] {
		outlier[idx] = true
	}

	sources := make([]*radio.LocatedSource, cfg.Sources)
	readings := make([]*radio.Reading, cfg.Sources)
	sourceScores := make([]float64, cfg.Sources)
	readingScores := make([]float64, cfg.Sources)

	for i := range sources {
		pos := geom.Zero(dim)
		for j := range pos {
			pos[j] = arena.Rand()
		}
		src, err := radio.NewLocatedSource(radio.LocatedSourceParams{
			ID:               fmt.Sprintf("ap-%02d-%s", i, uuid.NewString()[:8]),
			FrequencyHz:      units.Band24GHz,
			Position:         pos,
			HasTransmitPower: true,
			TransmitPowerDBm: transmitPowerDBm,
		})
		must(err)
		sources[i] = src

		d := truth.DistanceTo(pos)
		perturbation := 0.0

		measured := d
		if cfg.NoiseSigma > 0 {
			measured += noise.Rand()
		}
		if outlier[i] {
			measured += cfg.OutlierOffset
		}
		if measured < 0.01 {
			measured = 0.01
		}
		perturbation = math.Abs(measured - d)

		var r *radio.Reading
		switch readingKind(cfg.Mix, i) {
		case "ranging":
			r, err = radio.NewRangingReadingWithStdDev(src, measured, sigmaOrAbsent(cfg.NoiseSigma))
		case "rssi":
			rssi, rerr := propagation.ReceivedPowerDBm(transmitPowerDBm, d, src.Frequency(), src.PathLossExponent())
			must(rerr)
			dbError := 0.0
			if cfg.RSSISigma > 0 {
				dbError += rssiNoise.Rand()
			}
			if outlier[i] {
				// An attenuated outlier reads as a much larger range.
				dbError -= 20
			}
			perturbation = math.Abs(dbError)
			r, err = radio.NewRSSIReadingWithStdDev(src, rssi+dbError, sigmaOrAbsent(cfg.RSSISigma))
		case "combined":
			rssi, rerr := propagation.ReceivedPowerDBm(transmitPowerDBm, d, src.Frequency(), src.PathLossExponent())
			must(rerr)
			r, err = radio.NewRangingRSSIReadingWithStdDevs(
				src, measured, rssi, sigmaOrAbsent(cfg.NoiseSigma), sigmaOrAbsent(cfg.RSSISigma))
		}
		must(err)
		readings[i] = r

		sourceScores[i] = 1
		readingScores[i] = 1 / (1 + perturbation)
	}

	fp, err := radio.NewFingerprint(readings)
	must(err)

	if trial == 0 {
		log.Printf("Scene 0: truth=%v, %d sources, %d outliers", truth, len(sources), numOutliers)
	}

	return scene{
		truth:         truth,
		sources:       sources,
		fingerprint:   fp,
		sourceScores:  sourceScores,
		readingScores: readingScores,
	}
}

// readingKind maps a trial's reading index onto its channel mix.
func readingKind(mix string, i int) string {
	switch mix {
	case "rssi":
		return "rssi"
	case "mixed":
		switch i % 3 {
		case 0:
			return "ranging"
		case 1:
			return "combined"
		default:
			return "rssi"
		}
	default:
		return "ranging"
	}
}

// sigmaOrAbsent maps a zero sigma onto the absent-value convention so the
// extraction falls back to its default uncertainty.
func sigmaOrAbsent(sigma float64) float64 {
	if sigma > 0 {
		return sigma
	}
	return math.NaN()
}

func runMethod(cfg Config, method sac.Method, scenes []scene) MethodResult {
	errs := make([]float64, 0, len(scenes))
	accuracies := make([]float64, 0, len(scenes))
	totalIterations := 0
	failures := 0

	for ti, sc := range scenes {
		e, err := locate.NewWithReadings(method, sc.sources, sc.fingerprint)
		must(err)
		must(e.SetRand(rand.New(rand.NewSource(cfg.Seed + int64(ti)))))
		must(e.SetThreshold(cfg.Threshold))
		if method.Progressive() {
			must(e.SetSourceQualityScores(sc.sourceScores))
			must(e.SetReadingQualityScores(sc.readingScores))
		}

		got, err := e.Estimate()
		if err != nil {
			failures++
			if cfg.Verbose {
				log.Printf("trial %d %s: %v", ti, method, err)
			}
			continue
		}

		errM := got.DistanceTo(sc.truth)
		errs = append(errs, errM)
		totalIterations += e.Iterations()
		if acc := e.Accuracy(); !math.IsNaN(acc) {
			accuracies = append(accuracies, acc)
		}
		if cfg.Verbose {
			log.Printf("trial %d %s: error=%.3fm iterations=%d", ti, method, errM, e.Iterations())
		}
	}

	result := MethodResult{
		Method:   method.String(),
		Trials:   len(scenes),
		Failures: failures,
	}
	if len(errs) > 0 {
		sort.Float64s(errs)
		result.MeanErrorM = stat.Mean(errs, nil)
		result.MedianErrorM = stat.Quantile(0.5, stat.Empirical, errs, nil)
		result.P95ErrorM = stat.Quantile(0.95, stat.Empirical, errs, nil)
		result.MaxErrorM = errs[len(errs)-1]
		result.MeanIterations = float64(totalIterations) / float64(len(errs))
	}
	if len(accuracies) > 0 {
		result.MeanAccuracyM = stat.Mean(accuracies, nil)
	}
	return result
}

func printResults(result *SimulationResult) {
	cfg := result.Config
	fmt.Println("\n=== Robust Method Comparison ===")
	fmt.Printf("Dimension: %dD, Sources: %d, Mix: %s\n", cfg.Dimension, cfg.Sources, cfg.Mix)
	fmt.Printf("Noise: %gm distance, %gdB rssi\n", cfg.NoiseSigma, cfg.RSSISigma)
	fmt.Printf("Outliers: %.0f%% (+%gm)\n", cfg.OutlierFraction*100, cfg.OutlierOffset)
	fmt.Printf("Trials: %d, Seed: %d\n", cfg.Trials, cfg.Seed)

	for _, m := range result.PerMethod {
		fmt.Printf("\n--- %s ---\n", m.Method)
		fmt.Printf("  Failures:        %d/%d\n", m.Failures, m.Trials)
		fmt.Printf("  Mean Error:      %.3f m\n", m.MeanErrorM)
		fmt.Printf("  Median Error:    %.3f m\n", m.MedianErrorM)
		fmt.Printf("  P95 Error:       %.3f m\n", m.P95ErrorM)
		fmt.Printf("  Max Error:       %.3f m\n", m.MaxErrorM)
		fmt.Printf("  Mean Iterations: %.1f\n", m.MeanIterations)
		fmt.Printf("  Mean Accuracy:   %.3f m\n", m.MeanAccuracyM)
	}
}

func exportJSON(result *SimulationResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func must(err error) {
	if err != nil {
		log.Fatalf("simulation setup: %v", err)
	}
}
