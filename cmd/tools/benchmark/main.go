package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/climidx/climidx/internal/compression"
	"github.com/climidx/climidx/internal/engine"
	"github.com/climidx/climidx/internal/logging"
	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/reduce"
	"github.com/climidx/climidx/internal/store"
)

// BenchmarkConfig holds benchmark configuration
type BenchmarkConfig struct {
	Years       int
	Lat         int
	Lon         int
	Workers     []int
	Chunks      models.ChunkShape
	Repeats     int
	Compression string
	Kinds       []reduce.Kind
	Seed        int64
	Output      string
}

// Result holds the timings of one reducer at one worker count
type Result struct {
	Kind       reduce.Kind
	Workers    int
	Runs       int
	Errors     int
	Pixels     int
	Duration   time.Duration
	Throughput float64 // pixels per second, from the mean run
	MinLatency float64 // ms
	AvgLatency float64
	P50Latency float64
	P95Latency float64
	MaxLatency float64
	ErrorMsg   string
}

func main() {
	config := BenchmarkConfig{}
	var workers, kinds, chunks string

	flag.IntVar(&config.Years, "years", 10, "Years of daily layers in the synthetic cube")
	flag.IntVar(&config.Lat, "lat", 180, "Latitude points")
	flag.IntVar(&config.Lon, "lon", 360, "Longitude points")
	flag.StringVar(&workers, "workers", "1,2,4,8", "Comma-separated worker counts")
	flag.StringVar(&chunks, "chunks", "lat=64,lon=64", "Chunk shape hint")
	flag.IntVar(&config.Repeats, "repeats", 3, "Runs per reducer and worker count")
	flag.StringVar(&config.Compression, "compression", "snappy", "Layer compression (none, snappy)")
	flag.StringVar(&kinds, "kinds", "max,count_above,run_events,percentile_exceedance,trend", "Comma-separated reducer kinds")
	flag.Int64Var(&config.Seed, "seed", 1, "Random seed")
	flag.StringVar(&config.Output, "output", "", "Also write results to this file")
	flag.Parse()

	var err error
	if config.Workers, err = parseInts(workers); err != nil {
		fatalf("invalid -workers: %v", err)
	}
	if config.Chunks, err = models.ParseChunkShape(chunks, "time"); err != nil {
		fatalf("invalid -chunks: %v", err)
	}
	for _, k := range strings.Split(kinds, ",") {
		config.Kinds = append(config.Kinds, reduce.Kind(strings.TrimSpace(k)))
	}

	fmt.Println("=== climidx Reduction Benchmark ===")
	fmt.Printf("Cube: %d years x %d x %d (%s layers)\n", config.Years, config.Lat, config.Lon, config.Compression)
	fmt.Printf("Chunks: %s, Repeats: %d\n\n", config.Chunks, config.Repeats)

	buildStart := time.Now()
	cube, err := syntheticCube(config)
	if err != nil {
		fatalf("build cube: %v", err)
	}
	defer func() { _ = cube.Close() }()
	fmt.Printf("Built cube in %s: %v\n\n", time.Since(buildStart).Round(time.Millisecond), cube.Stats())

	ctx := context.Background()
	var results []Result
	for _, kind := range config.Kinds {
		r, err := newReducer(kind)
		if err != nil {
			fatalf("%v", err)
		}
		for _, w := range config.Workers {
			res := runReducer(ctx, cube, r, w, config)
			displayResult(os.Stdout, res)
			results = append(results, res)
		}
	}

	fmt.Println()
	displayTable(os.Stdout, results)

	if config.Output != "" {
		if err := saveResults(config, results); err != nil {
			fatalf("save results: %v", err)
		}
		fmt.Printf("\nResults saved to: %s\n", config.Output)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, fmt.Errorf("%d is not positive", n)
		}
		out = append(out, n)
	}
	return out, nil
}

// syntheticCube builds a daily temperature cube in tenths of a degree with a
// seasonal cycle, a latitude gradient, a slow warming trend and some gaps
func syntheticCube(config BenchmarkConfig) (*store.LayerCube, error) {
	algo, err := compression.ParseAlgorithm(config.Compression)
	if err != nil {
		return nil, err
	}

	lat := make([]float64, config.Lat)
	for y := range lat {
		lat[y] = 90 - (float64(y)+0.5)*180/float64(config.Lat)
	}
	lon := make([]float64, config.Lon)
	for x := range lon {
		lon[x] = -180 + (float64(x)+0.5)*360/float64(config.Lon)
	}

	b, err := store.NewLayerCubeBuilder("t2m", lat, lon, algo)
	if err != nil {
		return nil, err
	}
	b.SetUnits("0.1°C")

	rng := rand.New(rand.NewSource(config.Seed))
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(config.Years, 0, 0)
	layer := make([]float32, config.Lat*config.Lon)

	for day, t := 0, start; t.Before(end); day, t = day+1, t.AddDate(0, 0, 1) {
		season := math.Cos(2 * math.Pi * float64(t.YearDay()-200) / 365.25)
		warming := 0.02 * float64(day) / 365.25
		for y := 0; y < config.Lat; y++ {
			base := 300 - 3*math.Abs(lat[y])
			amp := 150 * math.Abs(lat[y]) / 90
			for x := 0; x < config.Lon; x++ {
				i := y*config.Lon + x
				if rng.Float64() < 0.001 {
					layer[i] = float32(math.NaN())
					continue
				}
				layer[i] = float32(base + amp*season + 10*warming + 30*rng.NormFloat64())
			}
		}
		if err := b.Append(t, layer); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func newReducer(kind reduce.Kind) (reduce.Reducer, error) {
	p := reduce.Params{
		Threshold:    250,
		Percentile:   90,
		MinRunLength: 6,
		Trusted:      1.96,
	}
	return reduce.New(kind, p)
}

func runReducer(ctx context.Context, cube engine.BlockReader, r reduce.Reducer, workers int, config BenchmarkConfig) Result {
	planner := engine.NewPlanner(engine.PlannerConfig{
		Workers:       workers,
		MaxChunkBytes: 512 << 20,
		Chunks:        config.Chunks,
	}, logging.NewNop())

	var latencies []float64
	var errorMsg string
	errors := 0
	start := time.Now()

	for i := 0; i < config.Repeats; i++ {
		runStart := time.Now()
		if _, err := planner.Execute(ctx, cube, r, config.Chunks); err != nil {
			errors++
			if errorMsg == "" {
				errorMsg = err.Error()
			}
			continue
		}
		latencies = append(latencies, float64(time.Since(runStart).Microseconds())/1000.0)
	}

	return calculateResult(r.Kind(), workers, cube.Meta().Pixels(), latencies, errors, time.Since(start), errorMsg)
}

func calculateResult(kind reduce.Kind, workers, pixels int, latencies []float64, errors int, duration time.Duration, errorMsg string) Result {
	result := Result{
		Kind:     kind,
		Workers:  workers,
		Runs:     len(latencies) + errors,
		Errors:   errors,
		Pixels:   pixels,
		Duration: duration,
		ErrorMsg: errorMsg,
	}
	if len(latencies) == 0 {
		return result
	}

	data := stats.Float64Data(latencies)
	result.MinLatency, _ = data.Min()
	result.MaxLatency, _ = data.Max()
	result.AvgLatency, _ = data.Mean()
	result.P50Latency, _ = data.Percentile(50)
	result.P95Latency, _ = data.Percentile(95)
	if result.AvgLatency > 0 {
		result.Throughput = float64(pixels) / (result.AvgLatency / 1000.0)
	}
	return result
}

func displayResult(w io.Writer, r Result) {
	_, _ = fmt.Fprintf(w, "=== %s, %d workers ===\n", r.Kind, r.Workers)
	_, _ = fmt.Fprintf(w, "Runs:       %d (%d errors)\n", r.Runs, r.Errors)
	_, _ = fmt.Fprintf(w, "Duration:   %s\n", r.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "Throughput: %.0f pixels/sec\n", r.Throughput)
	if r.Errors > 0 {
		_, _ = fmt.Fprintf(w, "First Error: %s\n", r.ErrorMsg)
	}
	_, _ = fmt.Fprintf(w, "Latency (ms): min %.2f avg %.2f p50 %.2f p95 %.2f max %.2f\n\n",
		r.MinLatency, r.AvgLatency, r.P50Latency, r.P95Latency, r.MaxLatency)
}

func displayTable(w io.Writer, results []Result) {
	table := tablewriter.NewWriter(w)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	table.Header([]string{"Reducer", "Workers", "Runs", "Errors", "Avg ms", "P95 ms", "Pixels/s"})
	data := make([][]string, 0, len(results))
	for _, r := range results {
		data = append(data, []string{
			string(r.Kind),
			strconv.Itoa(r.Workers),
			strconv.Itoa(r.Runs),
			strconv.Itoa(r.Errors),
			fmt.Sprintf("%.2f", r.AvgLatency),
			fmt.Sprintf("%.2f", r.P95Latency),
			fmt.Sprintf("%.0f", r.Throughput),
		})
	}
	_ = table.Bulk(data)
	_ = table.Render()
}

func saveResults(config BenchmarkConfig, results []Result) error {
	f, err := os.Create(config.Output)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, _ = fmt.Fprintf(f, "=== climidx Reduction Benchmark Results ===\n")
	_, _ = fmt.Fprintf(f, "Date: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(f, "Configuration:\n")
	_, _ = fmt.Fprintf(f, "  Years: %d\n", config.Years)
	_, _ = fmt.Fprintf(f, "  Grid: %d x %d\n", config.Lat, config.Lon)
	_, _ = fmt.Fprintf(f, "  Chunks: %s\n", config.Chunks)
	_, _ = fmt.Fprintf(f, "  Compression: %s\n", config.Compression)
	_, _ = fmt.Fprintf(f, "  Repeats: %d\n\n", config.Repeats)

	for _, r := range results {
		displayResult(f, r)
	}
	displayTable(f, results)
	return nil
}
