package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/dennisdiepolder/ghosttrack/internal/besteffort"
	"github.com/dennisdiepolder/ghosttrack/internal/bridge"
	"github.com/dennisdiepolder/ghosttrack/internal/checkin"
	"github.com/dennisdiepolder/ghosttrack/internal/commands"
	"github.com/dennisdiepolder/ghosttrack/internal/config"
	"github.com/dennisdiepolder/ghosttrack/internal/control"
	"github.com/dennisdiepolder/ghosttrack/internal/enroll"
	"github.com/dennisdiepolder/ghosttrack/internal/executor"
	"github.com/dennisdiepolder/ghosttrack/internal/fingerprint"
	"github.com/dennisdiepolder/ghosttrack/internal/geo"
	"github.com/dennisdiepolder/ghosttrack/internal/localstore"
	"github.com/dennisdiepolder/ghosttrack/internal/platform"
	"github.com/dennisdiepolder/ghosttrack/internal/remote"
	"github.com/dennisdiepolder/ghosttrack/internal/stealth"
	"github.com/dennisdiepolder/ghosttrack/internal/status"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

// App wires the agent's components over one data directory
type App struct {
	cfg    *config.Agent
	logger zerolog.Logger

	db    *sql.DB
	prefs *localstore.SQLiteStore
	vault *localstore.SQLiteStore
	jar   *localstore.CookieJar
	cache *localstore.CacheDir

	client      *remote.Client
	policy      *besteffort.Policy
	fingerprint *fingerprint.Fingerprinter
	bridge      *bridge.Bridge
	probe       *geo.Probe
	telemetry   *platform.SysTelemetry
	oracle      *status.Oracle
	reporter    *checkin.Reporter
	channel     *commands.Channel
	geoOpts     geo.Options
}

func newApp(ctx context.Context, cfg *config.Agent, logger zerolog.Logger) (*App, error) {
	db, err := localstore.OpenDatabase(cfg.StorePath())
	if err != nil {
		return nil, err
	}

	prefs, err := localstore.NewSQLiteStore(ctx, db, "prefs")
	if err != nil {
		db.Close()
		return nil, err
	}
	vault, err := localstore.NewSQLiteStore(ctx, db, "vault")
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		db:     db,
		prefs:  prefs,
		vault:  vault,
		jar:    localstore.NewCookieJar(),
		cache:  localstore.NewCacheDir(cfg.CacheDir()),
		policy: besteffort.New(logger, cfg.SurfaceErrors),
		geoOpts: geo.Options{
			EnableHighAccuracy: true,
			Timeout:            cfg.GeoTimeout,
			Retries:            cfg.GeoRetries,
			RetryDelay:         cfg.GeoRetryDelay,
		},
	}

	a.client = remote.NewClient(cfg.APIURL, remote.WithCookieJar(a.jar), remote.WithUserAgent(agentName+"/"+version))
	// The identity must survive upgrades, so the host sees no version
	a.fingerprint = fingerprint.New(fingerprint.NewHost(agentName), prefs, logger)
	a.bridge = bridge.New(vault, logger)
	a.probe = geo.NewProbe(geo.NewIPLocator(cfg.GeoLookupURL, cfg.GeoEnabled), logger)
	a.telemetry = platform.NewSysTelemetry("")
	a.oracle = status.NewOracle(a.client, a.policy, logger)
	a.reporter = checkin.NewReporter(a.client, a.policy, a.telemetry, logger)
	a.reporter.SetOvertTimeout(cfg.OvertTimeout)
	a.channel = commands.NewChannel(a.client, a.policy, logger)

	return a, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// identity returns the device identity and mirrors it for the wake path
func (a *App) identity(ctx context.Context) (fingerprint.Identity, error) {
	ident, err := a.fingerprint.Identity(ctx)
	if err != nil {
		return ident, err
	}
	if ident.Degraded {
		a.logger.Warn().Str("hardware_id", ident.ID).Msg("using random device identifier")
	}
	if err := a.bridge.MirrorIdentity(ctx, ident.ID); err != nil {
		a.logger.Debug().Err(err).Msg("failed to mirror identity")
	}
	return ident, nil
}

func (a *App) tracker() *checkin.Tracker {
	token := func(ctx context.Context) (string, error) { return enroll.Token(ctx, a.prefs) }
	return checkin.NewTracker(a.probe, a.reporter, token, a.geoOpts)
}

// enroller registers the device. checker may be nil outside "run".
func (a *App) enroller(checker enroll.Checker) *enroll.Enroller {
	return enroll.New(a.client, a.fingerprint, a.prefs, a.bridge, checker, a.logger)
}

func (a *App) waker() *bridge.Waker {
	return bridge.NewWaker(a.bridge, a.oracle, a.probe, a.reporter, a.telemetry, a.geoOpts, a.logger)
}

// dispatcher installs every executor on the host's capabilities. terminate
// ends the agent after a wipe. The returned func stops background work of
// the executors.
func (a *App) dispatcher(terminate func()) (*commands.Dispatcher, func()) {
	terminal := platform.NewTerminal(os.Stdout, os.Stdin)

	var speaker executor.Speaker
	if s, err := platform.LookupSpeaker(); err == nil {
		speaker = s
	} else {
		a.logger.Debug().Err(err).Msg("no audio output")
	}

	var camera executor.Camera
	if c := platform.NewCommandCamera(a.cfg.CameraCommand, a.cache); c != nil {
		camera = c
	}

	alarm := executor.NewAlarm(speaker, terminal, a.logger)
	message := executor.NewMessage(terminal, platform.NewBell(terminal), a.cfg.MessageReappear, a.logger)
	stores := []localstore.Clearable{a.prefs, a.vault, a.jar, a.cache}
	navigator := platform.NewExitNavigator(terminal, platform.DefaultGrace, terminate, a.logger)

	d := commands.NewDispatcher(a.channel, a.logger)
	d.Register(types.CommandAlarm, alarm)
	d.Register(types.CommandMessage, message)
	d.Register(types.CommandPhoto, executor.NewPhoto(camera, a.channel, a.logger))
	d.Register(types.CommandWipe, executor.NewWipe(stores, terminal, navigator, a.cfg.WipedURL, a.logger))

	return d, func() {
		alarm.Close()
		message.Close()
	}
}

// run hosts the agent until ctx is cancelled or a wipe terminates it
func (a *App) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ident, err := a.identity(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute identity: %w", err)
	}

	dispatcher, closeExecutors := a.dispatcher(cancel)
	defer closeExecutors()

	controller := stealth.NewController(ident.ID, stealth.Config{
		StartupDelay:   a.cfg.StartupDelay,
		ReportInterval: a.cfg.ReportInterval,
		PollInterval:   a.cfg.PollInterval,
		Geo:            a.geoOpts,
	}, stealth.Deps{
		Status:   a.oracle,
		Position: a.probe,
		Reporter: a.reporter,
		Commands: dispatcher,
		Mirror:   a.bridge,
	}, a.logger)

	api := control.NewAPI(a.logger)
	api.SetHandlers(controller, a.fingerprint, a.tracker(), a.enroller(controller))

	a.logger.Info().
		Str("hardware_id", ident.ID).
		Str("api", a.cfg.APIURL).
		Str("control", a.cfg.ControlAddr).
		Msg("agent started")

	controller.Start(ctx)

	apiDone := make(chan struct{})
	go func() {
		defer close(apiDone)
		if err := api.Start(ctx, a.cfg.ControlAddr); err != nil {
			// The agent keeps running without its control surface
			a.logger.Error().Err(err).Msg("control API stopped")
		}
	}()

	<-ctx.Done()
	a.logger.Info().Msg("shutting down agent...")

	controller.Wait()
	<-apiDone

	a.logger.Info().Msg("agent stopped")
	return nil
}
