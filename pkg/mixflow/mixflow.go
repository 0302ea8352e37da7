// Package mixflow assigns running applications to logical audio streams
// (Game, Voice, Music) and controls volume and output-device routing per
// stream instead of per application.
package mixflow

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MixyLabs/mixflow/pkg/mixflow/util"
)

const instanceMutexName = "mixflow"

// Mixflow is the main entity managing all subcomponents
type Mixflow struct {
	logger    *zap.SugaredLogger
	notifier  Notifier
	configMan *ConfigManager

	sessions SessionFinder
	devices  DeviceCatalog
	engine   *Engine

	runningWithTray bool
	stopChannel     chan bool
	version         string
	verbose         bool

	flyoutLock      sync.Mutex
	lastFlyoutShown time.Time
}

func NewMixflow(logger *zap.SugaredLogger, verbose bool) (*Mixflow, error) {
	logger = logger.Named("mixflow")

	if err := util.CreateMutex(instanceMutexName); err != nil {
		logger.Errorw("Another instance is already running", "error", err)
		return nil, fmt.Errorf("acquire instance mutex: %w", err)
	}

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	sessionFinder, err := newSessionFinder(logger)
	if err != nil {
		logger.Errorw("Failed to create SessionFinder", "error", err)
		return nil, fmt.Errorf("create new SessionFinder: %w", err)
	}

	deviceCatalog, err := newDeviceCatalog(logger)
	if err != nil {
		logger.Errorw("Failed to create DeviceCatalog", "error", err)
		return nil, fmt.Errorf("create new DeviceCatalog: %w", err)
	}

	d := &Mixflow{
		logger:      logger,
		notifier:    notifier,
		configMan:   config,
		sessions:    sessionFinder,
		devices:     deviceCatalog,
		stopChannel: make(chan bool),
		verbose:     verbose,
	}

	logger.Debug("Created mixflow instance")

	return d, nil
}

func (d *Mixflow) currConf() *Config {
	return &d.configMan.current
}

// Engine exposes the command surface for UI shells.
func (d *Mixflow) Engine() *Engine {
	return d.engine
}

// Initialize sets up components and starts to run in the background
func (d *Mixflow) Initialize() error {
	d.logger.Debug("Initializing")
	defer d.recoverFromPanic()

	// load the config for the first time; a missing file is fine
	if err := d.configMan.Load(); err != nil {
		d.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	store := newStateStore(d.logger, d.currConf().StateDir)

	router := newRouter(
		d.logger,
		d.devices,
		d.sessions,
		newPolicyConfigurator(d.logger),
		func() time.Duration {
			return time.Duration(d.currConf().RouterParams.NudgeToggleMillis) * time.Millisecond
		},
	)

	d.engine = NewEngine(d.logger, store, d.sessions, d.devices, router)
	d.engine.onStreamVolume = d.maybeTriggerAudioFlyout

	// reconcile whatever sessions are live with the restored logical state
	d.engine.ReapplyRoutes()

	d.setupInterruptHandler()

	if d.currConf().DisableTray {
		d.logger.Debugw("Running without tray icon", "reason", "disabled in config")

		// run in main thread while waiting on ctrl+C
		d.run()
	} else {
		d.runningWithTray = true
		d.initializeTray(d.run)
	}

	return nil
}

// SetVersion causes mixflow to add a version string to its tray menu if called before Initialize
func (d *Mixflow) SetVersion(version string) {
	d.version = version
}

// Verbose returns a boolean indicating whether mixflow is running in verbose mode
func (d *Mixflow) Verbose() bool {
	return d.verbose
}

func (d *Mixflow) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		d.logger.Debugw("Interrupted", "signal", signal)
		d.signalStop()
	}()
}

func (d *Mixflow) run() {
	d.logger.Info("Run loop starting")

	go d.configMan.WatchConfigFileChanges()

	// wait until gracefully stopped
	<-d.stopChannel
	d.logger.Debug("Stop channel signaled, terminating")

	if err := d.stop(); err != nil {
		d.logger.Warnw("Failed to stop mixflow", "error", err)
		os.Exit(1)
	} else {
		os.Exit(0)
	}
}

func (d *Mixflow) signalStop() {
	d.logger.Debug("Signalling stop channel")
	d.stopChannel <- true
}

func (d *Mixflow) stop() error {
	d.logger.Info("Stopping")

	d.configMan.StopWatchingConfigFile()

	if err := d.sessions.Release(); err != nil {
		d.logger.Errorw("Failed to release session finder", "error", err)
		return fmt.Errorf("release session finder: %w", err)
	}

	if err := d.devices.Release(); err != nil {
		d.logger.Errorw("Failed to release device catalog", "error", err)
		return fmt.Errorf("release device catalog: %w", err)
	}

	if d.runningWithTray {
		d.stopTray()
	}

	// attempt to sync on exit - this won't necessarily work but can't harm
	_ = d.logger.Sync()

	return nil
}

func (d *Mixflow) maybeTriggerAudioFlyout() {
	if !d.currConf().AudioFlyout {
		return
	}

	d.flyoutLock.Lock()
	defer d.flyoutLock.Unlock()

	now := time.Now()
	if d.lastFlyoutShown.Add(time.Second).Before(now) {
		d.logger.Debug("Showing audio flyout for stream volume change")

		if err := showAudioFlyout(); err != nil {
			d.logger.Warnw("Cannot display audio flyout", "error", err)
		}

		d.lastFlyoutShown = now
	}
}
