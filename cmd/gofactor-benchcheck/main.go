// Command gofactor-benchcheck compares two `go test -bench` outputs and
// fails when a tracked benchmark regressed beyond a threshold.
//
//	go test -run '^$' -bench . -count 5 ./... > new.txt
//	gofactor-benchcheck -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const defaultThreshold = 0.30

var defaultTracked = map[string][]string{
	"BenchmarkIssueVerifyMemory":  {"ns/op", "allocs/op"},
	"BenchmarkMetricsIncParallel": {"ns/op"},
	"BenchmarkEqual":              {"ns/op"},
}

type sampleSet map[string]map[string][]float64

type row struct {
	benchmark string
	metric    string
	baseline  float64
	candidate float64
	delta     float64
}

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
		track         string
	)

	flag.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flag.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flag.StringVar(&track, "track", "", "comma-separated Benchmark:unit pairs overriding the default set")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}
	tracked := defaultTracked
	if track != "" {
		var err error
		if tracked, err = parseTrack(track); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	baseline, err := parseBenchmarkFile(baselinePath, tracked)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseBenchmarkFile(candidatePath, tracked)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	rows, failures := compare(baseline, candidate, tracked, threshold)
	fmt.Println("benchmark metric baseline candidate delta")
	for _, r := range rows {
		fmt.Printf("%s %s %.3f %.3f %+0.2f%%\n", r.benchmark, r.metric, r.baseline, r.candidate, r.delta*100)
	}

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, failure := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", failure)
		}
		os.Exit(1)
	}
}

// compare reports rows in benchmark/metric order so output is stable.
func compare(baseline, candidate sampleSet, tracked map[string][]string, threshold float64) ([]row, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		rows     []row
		failures []string
	)
	for _, benchmark := range names {
		for _, metric := range tracked[benchmark] {
			baseSamples := baseline[benchmark][metric]
			candidateSamples := candidate[benchmark][metric]
			if len(baseSamples) == 0 || len(candidateSamples) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", benchmark, metric))
				continue
			}

			baseMedian := median(baseSamples)
			candidateMedian := median(candidateSamples)
			if baseMedian <= 0 {
				// 0 allocs/op baselines regress on any allocation
				if candidateMedian > 0 {
					failures = append(failures, fmt.Sprintf("%s %s went from 0 to %.3f", benchmark, metric, candidateMedian))
				}
				rows = append(rows, row{benchmark, metric, baseMedian, candidateMedian, 0})
				continue
			}

			delta := (candidateMedian - baseMedian) / baseMedian
			rows = append(rows, row{benchmark, metric, baseMedian, candidateMedian, delta})
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", benchmark, metric, delta*100, threshold*100))
			}
		}
	}
	return rows, failures
}

func parseTrack(s string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, pair := range strings.Split(s, ",") {
		name, unit, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || !strings.HasPrefix(name, "Benchmark") || unit == "" {
			return nil, fmt.Errorf("invalid -track entry %q", pair)
		}
		out[name] = append(out[name], unit)
	}
	return out, nil
}

func parseBenchmarkFile(path string, tracked map[string][]string) (sampleSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseBenchmarks(file, tracked)
}

func parseBenchmarks(r io.Reader, tracked map[string][]string) (sampleSet, error) {
	samples := sampleSet{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := normalizeBenchmarkName(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}

		if _, ok := samples[name]; !ok {
			samples[name] = map[string][]float64{}
		}

		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			unit := fields[i+1]
			samples[name][unit] = append(samples[name][unit], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// normalizeBenchmarkName strips the -GOMAXPROCS suffix.
func normalizeBenchmarkName(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	copied := make([]float64, len(values))
	copy(copied, values)
	sort.Float64s(copied)

	mid := len(copied) / 2
	if len(copied)%2 == 1 {
		return copied[mid]
	}
	return (copied[mid-1] + copied[mid]) / 2
}
