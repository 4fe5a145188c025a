// Command tpcreco reconstructs TPC events from CSV charge maps or from
// synthetic events and optionally stores the results in SQLite.
//
// Schema maintenance of the results database runs as a subcommand:
//
//	tpcreco -db results.db migrate status
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tpcreco/internal/config"
	"github.com/banshee-data/tpcreco/internal/db"
	"github.com/banshee-data/tpcreco/internal/fsutil"
	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/ions"
	"github.com/banshee-data/tpcreco/internal/tpc/l1charge"
	"github.com/banshee-data/tpcreco/internal/tpc/l6pid"
	"github.com/banshee-data/tpcreco/internal/tpc/pipeline"
	"github.com/banshee-data/tpcreco/internal/tpc/synthetic"
	"github.com/banshee-data/tpcreco/internal/version"
)

var (
	configPath  = flag.String("config", "", "Reconstruction config (.json, .yaml or .yml); built-in defaults when empty")
	dbPath      = flag.String("db", "", "SQLite file to store results in; results are not stored when empty")
	inputGlob   = flag.String("input", "", "Glob of event CSV files (projection,strip,sample,charge)")
	syntheticTy = flag.String("synthetic", "", "Generate synthetic events: ALPHA, C12_ALPHA or mixed")
	seed        = flag.Uint64("seed", 1, "Seed for synthetic events and noise")
	numEvents   = flag.Int("events", 10, "Number of synthetic events")
	dumpDir     = flag.String("dump", "", "Directory to write synthetic events to as CSV")
	quiet       = flag.Bool("quiet", false, "Mute stage logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// Synthetic event energies.
const (
	syntheticAlphaMeV  = 5.0
	syntheticCarbonMeV = 1.5
	// maxDipCosine bounds |dz| of synthetic directions so every projection
	// sees an extended track.
	maxDipCosine = 0.4
	// vertexJitterMM is the half-width of the vertex box around the centred
	// position.
	vertexJitterMM = 5.0
)

type options struct {
	configPath string
	dbPath     string
	inputGlob  string
	synthetic  string
	seed       uint64
	events     int
	dumpDir    string
}

func (o options) validate() error {
	if (o.inputGlob == "") == (o.synthetic == "") {
		return fmt.Errorf("exactly one of -input and -synthetic is required")
	}
	if o.synthetic != "" && o.events < 1 {
		return fmt.Errorf("-events must be at least 1, got %d", o.events)
	}
	if o.dumpDir != "" && o.synthetic == "" {
		return fmt.Errorf("-dump requires -synthetic")
	}
	return nil
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}
	if flag.NArg() > 0 {
		if err := subcommand(flag.Args(), *dbPath, os.Stdout); err != nil {
			log.Fatalf("tpcreco: %v", err)
		}
		return
	}
	opts := options{
		configPath: *configPath,
		dbPath:     *dbPath,
		inputGlob:  *inputGlob,
		synthetic:  *syntheticTy,
		seed:       *seed,
		events:     *numEvents,
		dumpDir:    *dumpDir,
	}
	if err := opts.validate(); err != nil {
		flag.Usage()
		log.Fatalf("%v", err)
	}
	if err := run(opts, fsutil.OSFileSystem{}, os.Stdout); err != nil {
		log.Fatalf("tpcreco: %v", err)
	}
}

// subcommand dispatches the positional arguments left after flag parsing.
func subcommand(args []string, dbPath string, out io.Writer) error {
	switch args[0] {
	case "migrate":
		return db.RunMigrateCommand(args[1:], dbPath, out)
	}
	return fmt.Errorf("unknown command %q (valid: migrate)", args[0])
}

// event is a named charge map.
type event struct {
	name string
	m    *l1charge.ChargeMap
}

func run(opts options, fsys fsutil.FileSystem, out io.Writer) error {
	cfg := config.EmptyRecoConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadRecoConfig(opts.configPath); err != nil {
			return err
		}
	}
	params, err := cfg.PipelineParams()
	if err != nil {
		return err
	}
	geom := cfg.Geometry()
	calc, err := cfg.RangeCalculator(fsys)
	if err != nil {
		return fmt.Errorf("range calculator: %w", err)
	}
	reco, err := pipeline.NewReconstructor(geom, calc, params)
	if err != nil {
		return err
	}

	var events []event
	source := opts.inputGlob
	if opts.synthetic != "" {
		source = "synthetic:" + opts.synthetic
		events, err = syntheticEvents(geom, calc, opts)
		if err == nil && opts.dumpDir != "" {
			err = dumpEvents(fsys, opts.dumpDir, events)
		}
	} else {
		events, err = readEvents(fsys, opts.inputGlob)
	}
	if err != nil {
		return err
	}

	var store *db.DB
	var stored *db.Run
	if opts.dbPath != "" {
		if store, err = db.NewDB(opts.dbPath); err != nil {
			return err
		}
		defer store.Close()
		cfgJSON, err := cfg.JSON()
		if err != nil {
			return err
		}
		if stored, err = store.StartRun(source, cfgJSON); err != nil {
			return err
		}
	}

	counts := make(map[string]int)
	for i, e := range events {
		ev, err := reco.Reconstruct(e.m)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		fmt.Fprintln(out, summarize(i, e.name, ev))
		counts[ev.EventType().String()]++
		if store != nil {
			if err := store.SaveEvent(db.RecordFromEvent(stored.ID, i, ev)); err != nil {
				return err
			}
		}
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", t, counts[t]))
	}
	fmt.Fprintf(out, "%d events: %s\n", len(events), strings.Join(parts, " "))
	if stored != nil {
		fmt.Fprintf(out, "stored as run %s in %s\n", stored.ID, opts.dbPath)
	}
	return nil
}

func summarize(i int, name string, ev *pipeline.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "event %d (%s): %s", i, name, ev.EventType())
	if ev.Track != nil {
		fmt.Fprintf(&b, " length=%.1fmm segments=%d", ev.Track.Length(), ev.Track.NumSegments())
	}
	if ev.PID != nil && ev.PID.Best.Type != l6pid.EventUnknown {
		best := ev.PID.Best
		fmt.Fprintf(&b, " E=%.2fMeV", best.TotalEnergy())
		if best.Hypothesis.TwoBody() {
			fmt.Fprintf(&b, " (%.2f + %.2f)", best.PrimaryEnergy, best.SecondaryEnergy)
		}
	}
	return b.String()
}

func readEvents(fsys fsutil.FileSystem, pattern string) ([]event, error) {
	names, err := fsys.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad -input pattern: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no files match %q", pattern)
	}
	sort.Strings(names)
	events := make([]event, 0, len(names))
	for _, name := range names {
		f, err := fsys.Open(name)
		if err != nil {
			return nil, err
		}
		m, err := l1charge.ReadCSV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		events = append(events, event{name: name, m: m})
	}
	return events, nil
}

// syntheticEvents draws tracks centred in the chamber with random
// direction and a small vertex jitter. "mixed" alternates the two event
// types.
func syntheticEvents(geom *geometry.UVW, calc *l6pid.RangeCalculator, opts options) ([]event, error) {
	if calc == nil {
		return nil, fmt.Errorf("synthetic events need particle identification enabled for the range curves")
	}
	var kinds []l6pid.EventType
	if strings.EqualFold(opts.synthetic, "mixed") {
		kinds = []l6pid.EventType{l6pid.EventAlpha, l6pid.EventC12Alpha}
	} else {
		t, err := l6pid.ParseEventType(opts.synthetic)
		if err != nil {
			return nil, err
		}
		kinds = []l6pid.EventType{t}
	}

	p := synthetic.DefaultParams()
	p.Seed = opts.seed
	gen := synthetic.NewGenerator(geom, calc, p)
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed+1))

	events := make([]event, 0, opts.events)
	for i := 0; i < opts.events; i++ {
		kind := kinds[i%len(kinds)]
		tracks, err := drawTracks(rng, calc, kind)
		if err != nil {
			return nil, err
		}
		m, err := gen.Event(tracks...)
		if err != nil {
			return nil, err
		}
		events = append(events, event{name: fmt.Sprintf("synthetic-%s-%03d", strings.ToLower(kind.String()), i), m: m})
	}
	monitoring.Logf("[synthetic] generated %d events, seed %d", len(events), opts.seed)
	return events, nil
}

func drawTracks(rng *rand.Rand, calc *l6pid.RangeCalculator, kind l6pid.EventType) ([]synthetic.TrackSpec, error) {
	phi := 2 * math.Pi * rng.Float64()
	cosTheta := maxDipCosine * (2*rng.Float64() - 1)
	sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
	dir := r3.Vec{X: sinTheta * math.Cos(phi), Y: sinTheta * math.Sin(phi), Z: cosTheta}

	alphaRange, err := calc.GetIonRangeMM(ions.Alpha, syntheticAlphaMeV)
	if err != nil {
		return nil, err
	}
	var carbonRange float64
	if kind == l6pid.EventC12Alpha {
		if carbonRange, err = calc.GetIonRangeMM(ions.C12, syntheticCarbonMeV); err != nil {
			return nil, err
		}
	}
	jitter := r3.Vec{
		X: vertexJitterMM * (2*rng.Float64() - 1),
		Y: vertexJitterMM * (2*rng.Float64() - 1),
		Z: vertexJitterMM * (2*rng.Float64() - 1),
	}
	vertex := r3.Add(jitter, r3.Scale(-(alphaRange-carbonRange)/2, dir))

	tracks := []synthetic.TrackSpec{{Ion: ions.Alpha, Vertex: vertex, Direction: dir, EnergyMeV: syntheticAlphaMeV}}
	if kind == l6pid.EventC12Alpha {
		tracks = append(tracks, synthetic.TrackSpec{Ion: ions.C12, Vertex: vertex, Direction: r3.Scale(-1, dir), EnergyMeV: syntheticCarbonMeV})
	}
	return tracks, nil
}

func dumpEvents(fsys fsutil.FileSystem, dir string, events []event) error {
	for _, e := range events {
		path := filepath.Join(dir, e.name+".csv")
		w, err := fsys.Create(path)
		if err != nil {
			return err
		}
		if err := l1charge.WriteCSV(w, e.m); err != nil {
			w.Close()
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	monitoring.Logf("[synthetic] wrote %d events to %s", len(events), dir)
	return nil
}
