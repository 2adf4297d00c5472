package perf

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/serdata/cmd/util"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"github.com/ValentinKolb/serdata/lib/ddsi/codec"
	"github.com/ValentinKolb/serdata/lib/deliver"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"math"
	"strings"
	"testing"
	"time"
)

var plog = logger.GetLogger("cli")

var (
	// PerfCmd runs the lifecycle benchmarks
	PerfCmd = &cobra.Command{
		Use:     "perf [type]",
		Short:   "Performance testing tool for the serdata lifecycle",
		Args:    cobra.MaximumNArgs(1),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfNumThreads = 10
	perfReaders    = 4
	perfStressOps  = 100000
	perfSkip       = make([]string, 0)
)

func init() {
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. from-ser,fanout)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the parallel benchmarks and the stress test"))
	key = "readers"
	PerfCmd.Flags().Int(key, 4, util.WrapString("Number of readers attached to the writer in the fanout benchmark"))
	key = "stress-ops"
	PerfCmd.Flags().Int(key, 100000, util.WrapString("AddRef/RemoveRef pairs per thread in the stress test"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfNumThreads = viper.GetInt("threads")
	perfReaders = viper.GetInt("readers")
	perfStressOps = viper.GetInt("stress-ops")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfNumThreads < 1 || perfReaders < 0 || perfStressOps < 1 {
		return fmt.Errorf("threads and stress-ops must be positive, readers must not be negative")
	}
	return nil
}

func run(_ *cobra.Command, args []string) error {
	reg, sertypes, err := util.GetRegistry()
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range sertypes {
			t.Release()
		}
	}()

	if len(sertypes) == 0 {
		return fmt.Errorf("no types defined")
	}
	t := sertypes[0]
	if len(args) == 1 {
		if t, err = util.FindType(sertypes, args[0]); err != nil {
			return err
		}
	}
	layout := t.Ops().(codec.Ops).Layout()

	fmt.Println("Performance testing tool for the serdata lifecycle")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Type: %s, Codec: %s, Threads: %d, Readers: %d\n", t, viper.GetString("codec"), perfNumThreads, perfReaders)
	fmt.Println()

	samples := make([]codec.Sample, 64)
	for i := range samples {
		samples[i] = sampleFor(layout, i)
	}

	// raw payload for the receive path
	first, err := ddsi.FromSample(t, ddsi.KindData, samples[0])
	if err != nil {
		return fmt.Errorf("cannot serialize test sample: %w", err)
	}
	raw := append([]byte(nil), first.Payload()...)
	first.RemoveRef()

	latency := gometrics.NewTimer()

	bench("from-sample", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			start := time.Now()
			d, err := ddsi.FromSample(t, ddsi.KindData, samples[i%len(samples)])
			if err != nil {
				b.Fatal(err)
			}
			d.RemoveRef()
			latency.UpdateSince(start)
		}
	})

	bench("from-ser", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			d, err := ddsi.FromSer(t, ddsi.KindData, raw)
			if err != nil {
				b.Fatal(err)
			}
			d.RemoveRef()
		}
	})

	bench("to-sample", func(b *testing.B) {
		d, err := ddsi.FromSer(t, ddsi.KindData, raw)
		if err != nil {
			b.Fatal(err)
		}
		defer d.RemoveRef()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var s codec.Sample
			if err := d.ToSample(&s); err != nil {
				b.Fatal(err)
			}
		}
	})

	bench("addref", func(b *testing.B) {
		d, err := ddsi.FromSer(t, ddsi.KindData, raw)
		if err != nil {
			b.Fatal(err)
		}
		defer d.RemoveRef()

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				d.AddRef().RemoveRef()
			}
		})
	})

	bench("fanout", func(b *testing.B) {
		w := deliver.NewWriter(t)
		defer w.Close()
		readers := make([]*deliver.Reader, perfReaders)
		for i := range readers {
			readers[i] = deliver.NewReader(&deliver.ReaderOptions{Name: fmt.Sprintf("perf-%d", i)})
			w.Attach(readers[i])
		}
		defer func() {
			for _, r := range readers {
				r.Close()
			}
		}()

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := w.Write(samples[i%len(samples)]); err != nil {
				b.Fatal(err)
			}
		}
	})

	if mean := latency.Mean(); mean > 0 {
		fmt.Printf("\nfrom-sample latency: mean %s, p50 %s, p99 %s (%d samples)\n",
			time.Duration(mean), time.Duration(latency.Percentile(0.5)), time.Duration(latency.Percentile(0.99)), latency.Count())
	}

	if !shouldSkip("stress") {
		if err := stress(reg, t, raw); err != nil {
			return err
		}
	}
	return nil
}

// stress shares one serdata between all threads and checks that it is freed
// exactly once after the last reference is dropped
func stress(reg *ddsi.Registry, t *ddsi.Sertype, raw []byte) error {
	before := reg.LiveSerdata()

	d, err := ddsi.FromSer(t, ddsi.KindData, raw)
	if err != nil {
		return err
	}

	timer := gometrics.NewTimer()
	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < perfNumThreads; i++ {
		// every thread owns one reference for its whole run
		own := d.AddRef()
		g.Go(func() error {
			defer own.RemoveRef()
			start := time.Now()
			for j := 0; j < perfStressOps; j++ {
				own.AddRef()
				own.RemoveRef()
			}
			timer.UpdateSince(start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if n := d.RefCount(); n != 1 {
		return fmt.Errorf("stress: refcount is %d after balanced operations, expected 1", n)
	}
	d.RemoveRef()

	if live := reg.LiveSerdata(); live != before {
		return fmt.Errorf("stress: %d serdata alive after the last release, expected %d", live, before)
	}

	total := perfNumThreads * perfStressOps
	perPair := time.Duration(timer.Mean() / float64(perfStressOps))
	fmt.Printf("\nstress: %d threads x %d addref/removeref pairs (%d total), %s per pair, freed exactly once\n",
		perfNumThreads, perfStressOps, total, perPair)
	plog.Infof("stress test passed (%d threads)", perfNumThreads)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// bench runs and prints a benchmark unless it is skipped
func bench(name string, fn func(b *testing.B)) {
	if shouldSkip(name) {
		printResult(name, testing.BenchmarkResult{})
		return
	}
	printResult(name, testing.Benchmark(fn))
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\t%d B/op\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec, result.AllocedBytesPerOp())
}

// sampleFor generates a valid sample of the layout, i selects the instance
func sampleFor(l *codec.Layout, i int) codec.Sample {
	s := make(codec.Sample, len(l.Fields))
	for _, f := range l.Fields {
		switch f.Type {
		case codec.TypeBool:
			s[f.Name] = i%2 == 0
		case codec.TypeUint8:
			s[f.Name] = uint8(i)
		case codec.TypeInt16, codec.TypeUint16, codec.TypeInt32, codec.TypeUint32, codec.TypeInt64, codec.TypeUint64:
			s[f.Name] = i
		case codec.TypeFloat32, codec.TypeFloat64:
			s[f.Name] = float64(i) / 2
		case codec.TypeEnum:
			s[f.Name] = f.Enumerators[i%len(f.Enumerators)]
		case codec.TypeString:
			v := fmt.Sprintf("sample-%d", i)
			if f.Bound > 0 && len(v) > f.Bound {
				v = v[:f.Bound]
			}
			s[f.Name] = v
		case codec.TypeBytes:
			n := 8
			if f.Fixed > 0 {
				n = f.Fixed
			} else if f.Bound > 0 && f.Bound < n {
				n = f.Bound
			}
			b := make([]byte, n)
			for j := range b {
				b[j] = byte(i + j)
			}
			s[f.Name] = b
		}
	}
	return s
}
