package main

import (
	"strings"
	"testing"
)

const baselineOut = `goos: linux
goarch: amd64
pkg: github.com/MrEthical07/goFactor
BenchmarkIssueVerifyMemory-8   	  300000	      4000 ns/op	    1200 B/op	      20 allocs/op
BenchmarkIssueVerifyMemory-8   	  300000	      4200 ns/op	    1200 B/op	      20 allocs/op
BenchmarkIssueVerifyMemory-8   	  300000	      4100 ns/op	    1200 B/op	      20 allocs/op
BenchmarkMetricsIncParallel-8  	100000000	        10.0 ns/op
BenchmarkUntracked-8           	100000000	         1.0 ns/op
PASS
`

func tracked() map[string][]string {
	return map[string][]string{
		"BenchmarkIssueVerifyMemory":  {"ns/op", "allocs/op"},
		"BenchmarkMetricsIncParallel": {"ns/op"},
	}
}

func TestParseBenchmarksKeepsTrackedSamples(t *testing.T) {
	s, err := parseBenchmarks(strings.NewReader(baselineOut), tracked())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := len(s["BenchmarkIssueVerifyMemory"]["ns/op"]); got != 3 {
		t.Fatalf("expected 3 ns/op samples, got %d", got)
	}
	if _, ok := s["BenchmarkUntracked"]; ok {
		t.Fatal("untracked benchmark should be ignored")
	}
	if m := median(s["BenchmarkIssueVerifyMemory"]["ns/op"]); m != 4100 {
		t.Fatalf("median: got %v", m)
	}
}

func TestCompareFlagsRegression(t *testing.T) {
	base, _ := parseBenchmarks(strings.NewReader(baselineOut), tracked())
	slower := strings.ReplaceAll(baselineOut, "10.0 ns/op", "20.0 ns/op")
	cand, _ := parseBenchmarks(strings.NewReader(slower), tracked())

	rows, failures := compare(base, cand, tracked(), 0.30)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if len(failures) != 1 || !strings.Contains(failures[0], "BenchmarkMetricsIncParallel") {
		t.Fatalf("expected one metrics regression, got %v", failures)
	}

	_, failures = compare(base, base, tracked(), 0.30)
	if len(failures) != 0 {
		t.Fatalf("identical runs should pass, got %v", failures)
	}
}

func TestCompareReportsMissingSamples(t *testing.T) {
	base, _ := parseBenchmarks(strings.NewReader(baselineOut), tracked())
	_, failures := compare(base, sampleSet{}, tracked(), 0.30)
	if len(failures) != 3 {
		t.Fatalf("expected a failure per tracked metric, got %v", failures)
	}
}

func TestParseTrack(t *testing.T) {
	m, err := parseTrack("BenchmarkEqual:ns/op, BenchmarkEqual:allocs/op")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(m["BenchmarkEqual"]) != 2 {
		t.Fatalf("unexpected %v", m)
	}
	if _, err := parseTrack("Equal:ns/op"); err == nil {
		t.Fatal("expected error for missing Benchmark prefix")
	}
}

func TestNormalizeBenchmarkName(t *testing.T) {
	if got := normalizeBenchmarkName("BenchmarkEqual/len=6-16"); got != "BenchmarkEqual/len=6" {
		t.Fatalf("got %q", got)
	}
	if got := normalizeBenchmarkName("BenchmarkEqual"); got != "BenchmarkEqual" {
		t.Fatalf("got %q", got)
	}
}
