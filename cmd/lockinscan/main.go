package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/banshee-data/lockin.scan/internal/config"
	"github.com/banshee-data/lockin.scan/internal/instrument"
	"github.com/banshee-data/lockin.scan/internal/monitor"
	"github.com/banshee-data/lockin.scan/internal/scan"
	"github.com/banshee-data/lockin.scan/internal/serialmux"
	"github.com/banshee-data/lockin.scan/internal/spectrum"
	"github.com/banshee-data/lockin.scan/internal/timeutil"
	"github.com/banshee-data/lockin.scan/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON run configuration (optional)")
	planPath    = flag.String("plan", "", "Path to JSON batch plan")
	out         = flag.String("out", "", "Destination .lwa file (overrides the plan)")
	dbPath      = flag.String("db", "", "Spectrum archive sqlite path (overrides the config)")
	plotDir     = flag.String("plots", "", "Directory for PNG plots of finished windows (overrides the config)")
	lockinPort  = flag.String("lockin", "", "Lock-in serial port (overrides the config)")
	synthPort   = flag.String("synth", "", "Synthesizer serial port (overrides the config)")
	band        = flag.Int("band", -1, "Synthesizer band index (overrides the config)")
	listen      = flag.String("listen", "", "Monitor listen address (overrides the config)")
	devMode     = flag.Bool("dev", false, "Use simulated instruments")
	stay        = flag.Bool("stay", false, "Keep the monitor running after the batch ends")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *planPath == "" {
		log.Fatal("-plan is required")
	}

	cfg := &config.ScanConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	plan, err := config.LoadBatchPlan(*planPath, *out)
	if err != nil {
		log.Fatalf("failed to load batch plan: %v", err)
	}

	multiplier, err := instrument.Multiplier(cfg.GetBand())
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	mux := http.NewServeMux()

	port, closePorts, err := openInstruments(ctx, &wg, cfg, multiplier, mux)
	if err != nil {
		log.Fatalf("failed to open instruments: %v", err)
	}
	defer closePorts()

	var secondary []scan.SpectrumStore
	var archive monitor.Archive
	if path := cfg.GetDBPath(); path != "" {
		db, err := spectrum.NewDB(path)
		if err != nil {
			log.Fatalf("failed to open spectrum archive: %v", err)
		}
		defer db.Close()
		if err := db.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach archive routes: %v", err)
		}
		secondary = append(secondary, db)
		archive = db
	}
	plotsServed := ""
	if dir, ok := cfg.GetPlotDir(); ok {
		secondary = append(secondary, spectrum.NewPlotRenderer(nil, dir))
		plotsServed = dir
		if plotsServed == "" {
			plotsServed = filepath.Dir(plan.Destination)
		}
	}
	store := spectrum.NewMulti(spectrum.NewLWAFile(nil), secondary...)

	loop := scan.NewLoop(0)
	engine := scan.NewEngine(port, store, scan.NewClockScheduler(timeutil.RealClock{}, loop), scan.EngineConfig{
		Multiplier:     multiplier,
		SampleRateCode: cfg.GetSampleRateCode(),
		Calibration:    cfg.GetCalibration(),
	})

	var server *monitor.Server
	ctl := scan.NewController(engine, scan.Listeners(
		func(ev scan.Event) { server.Observe(ev) },
		logEvent,
		func(ev scan.Event) {
			if !*stay && (ev.Kind == scan.EventBatchFinished || ev.Kind == scan.EventBatchAborted) {
				stop()
			}
		},
	))
	server = monitor.NewServer(loop, ctl, archive)
	if plotsServed != "" {
		server.ServePlots(nil, plotsServed)
	}
	server.Register(mux)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scan loop stopped: %v", err)
		}
		log.Print("scan loop terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := cfg.GetListen()
		log.Printf("monitor listening on http://%s/chart", addr)
		if err := monitor.ListenAndServe(ctx, addr, mux); err != nil {
			log.Printf("monitor server error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	var runErr error
	if !loop.Do(func() { runErr = ctl.RunBatch(plan) }) {
		runErr = errors.New("scan loop stopped before the batch started")
	}
	if runErr != nil {
		log.Printf("failed to start batch: %v", runErr)
		stop()
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func applyFlags(cfg *config.ScanConfig) {
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *plotDir != "" {
		cfg.PlotDir = plotDir
	}
	if *lockinPort != "" {
		cfg.LockinPort = lockinPort
	}
	if *synthPort != "" {
		cfg.SynthPort = synthPort
	}
	if *band >= 0 {
		cfg.Band = band
	}
	if *listen != "" {
		cfg.Listen = listen
	}
}

// openInstruments returns the instrument pair. Real ports are monitored on
// wg until ctx is done and expose their debug routes on mux.
func openInstruments(ctx context.Context, wg *sync.WaitGroup, cfg *config.ScanConfig, multiplier float64, mux *http.ServeMux) (scan.InstrumentPort, func(), error) {
	if *devMode {
		log.Printf("dev mode: using simulated instruments")
		sim := instrument.NewSimulator(timeutil.RealClock{}, multiplier, cfg.GetSimNoise(), 1, cfg.GetSimLines()...)
		return sim, func() {}, nil
	}

	if cfg.GetLockinPort() == "" || cfg.GetSynthPort() == "" {
		return nil, nil, errors.New("lock-in and synthesizer ports are required outside dev mode")
	}

	lockinMux, err := serialmux.NewRealSerialMux("lockin", cfg.GetLockinPort(), cfg.GetLockinSerial())
	if err != nil {
		return nil, nil, err
	}
	synthMux, err := serialmux.NewRealSerialMux("synth", cfg.GetSynthPort(), cfg.GetSynthSerial())
	if err != nil {
		lockinMux.Close()
		return nil, nil, err
	}
	closeAll := func() {
		lockinMux.Close()
		synthMux.Close()
	}

	for _, m := range []serialmux.SerialMuxInterface{lockinMux, synthMux} {
		m.AttachAdminRoutes(mux)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
		}()
	}

	lockin := instrument.NewLockin(lockinMux, cfg.GetQueryTimeout())
	lockin.SetBaudRate(cfg.GetLockinSerial().BaudRate)
	synth := instrument.NewSynthesizer(synthMux, cfg.GetQueryTimeout())
	if err := lockin.Initialize(); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("initialize lock-in: %w", err)
	}
	for name, identify := range map[string]func() (string, error){"lock-in": lockin.Identify, "synthesizer": synth.Identify} {
		id, err := identify()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("identify %s: %w", name, err)
		}
		log.Printf("connected %s: %s", name, id)
	}

	return instrument.NewPort(lockin, synth), closeAll, nil
}

func logEvent(ev scan.Event) {
	switch ev.Kind {
	case scan.EventWindowStarted, scan.EventWindowComplete, scan.EventWindowAborted,
		scan.EventBatchFinished, scan.EventBatchAborted:
		log.Printf("%s: window %d", ev.Kind, ev.Window)
	case scan.EventBatchHalted:
		log.Printf("%s: %v (retry via POST /api/retry)", ev.Kind, ev.Err)
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\nUsage: lockinscan -plan plan.json [flags]\n\n", version.String())
		flag.PrintDefaults()
	}
}
