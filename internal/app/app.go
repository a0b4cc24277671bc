package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/soundboard/internal/audio"
	"github.com/petems/soundboard/internal/config"
	"github.com/petems/soundboard/internal/keys"
	"github.com/petems/soundboard/internal/registry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetError(msg string)
	SetMessage(msg string)
	SoundsChanged()
}

// Notifier shows a message to the user
type Notifier interface {
	Notify(title, message string) error
}

// Confirmer asks the user a yes/no question
type Confirmer interface {
	Confirm(title, message string) (bool, error)
}

// Hotkeys arms global hotkeys. hotkey.Manager satisfies it.
type Hotkeys interface {
	Register(accel string, callback func()) error
	Unregister(accel string) error
}

// Capturer reads a single key combination from the user
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

type Recorder interface {
	Start(dev audio.Device) (string, error)
	Stop() (audio.Recording, error)
	State() audio.State
}

type Player interface {
	Play(ctx context.Context, path string, dev *audio.Device) error
}

type Devices interface {
	Devices() ([]audio.Device, error)
	DefaultInput() (audio.Device, error)
}

type Config struct {
	Registry      *registry.Registry
	Recorder      Recorder
	Player        Player
	Devices       Devices
	Hotkeys       Hotkeys   // Optional
	Capturer      Capturer  // Optional - no key capture when nil
	Notifier      Notifier  // Optional
	Confirmer     Confirmer // Optional - deletes are declined when nil
	Config        *config.Config
	WatchPath     string // registry file to watch for external edits, "" = off
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

const (
	queueSize     = 64
	watchDebounce = 200 * time.Millisecond
)

// ErrCaptureBusy is returned when a key capture is already running
var ErrCaptureBusy = errors.New("already waiting for a key")

// App owns the registry. Every mutation runs on the dispatch goroutine
// started by Run; other goroutines submit commands with Do or Post.
type App struct {
	reg      *registry.Registry
	rec      Recorder
	player   Player
	devices  Devices
	hotkeys  Hotkeys
	capturer Capturer
	notifier Notifier
	confirm  Confirmer
	cfg      *config.Config
	watch    string
	log      zerolog.Logger
	status   StatusUpdater

	cmds chan Command
	done chan struct{}
	ctx  context.Context

	// dispatch goroutine only
	armed    map[string]bool
	limiters map[string]*rate.Limiter

	capturing atomic.Bool
	workers   sync.WaitGroup

	// guards the device fields of cfg, which the dispatcher writes
	settingsMu sync.RWMutex
}

func New(cfg Config) *App {
	return &App{
		reg:      cfg.Registry,
		rec:      cfg.Recorder,
		player:   cfg.Player,
		devices:  cfg.Devices,
		hotkeys:  cfg.Hotkeys,
		capturer: cfg.Capturer,
		notifier: cfg.Notifier,
		confirm:  cfg.Confirmer,
		cfg:      cfg.Config,
		watch:    cfg.WatchPath,
		log:      cfg.Logger,
		status:   cfg.StatusUpdater,
		cmds:     make(chan Command, queueSize),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		armed:    make(map[string]bool),
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetStatusUpdater replaces the status sink. It must be called before Run.
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.status = s
}

// Run arms the hotkeys and processes commands until ctx is done. A recording
// in progress at shutdown is saved.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	a.ctx = gctx

	g.Go(func() error {
		return a.dispatch(gctx)
	})

	if a.watch != "" {
		g.Go(func() error {
			err := registry.Watch(gctx, a.watch, watchDebounce, a.log, func() {
				a.Post(Command{Kind: Reload})
			})
			if err != nil {
				a.log.Warn().Err(err).Msg("Registry watcher stopped, external edits will not be picked up")
			}
			return nil
		})
	}

	err := g.Wait()
	a.workers.Wait()
	return err
}

// Do submits cmd and waits for its result
func (a *App) Do(ctx context.Context, cmd Command) error {
	cmd.result = make(chan error, 1)

	select {
	case a.cmds <- cmd:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.result:
		return err
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post submits cmd without waiting. It never blocks; commands are dropped
// when the queue is full.
func (a *App) Post(cmd Command) {
	select {
	case a.cmds <- cmd:
	default:
		a.log.Warn().Str("command", cmd.Kind.String()).Msg("Command queue full, dropping")
	}
}

// RecordingFault is the recorder's fault handler; it saves what was captured
func (a *App) RecordingFault(err error) {
	a.Post(Command{Kind: StopRecording})
}

func (a *App) dispatch(ctx context.Context) error {
	defer close(a.done)

	a.syncHotkeys()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case cmd := <-a.cmds:
			err := a.handle(cmd)
			if err != nil && !errors.Is(err, registry.ErrDeleteDeclined) {
				a.report(cmd.Kind.title(), err)
			}
			if cmd.result != nil {
				cmd.result <- err
			}
		}
	}
}

func (a *App) handle(cmd Command) error {
	a.log.Debug().Str("command", cmd.Kind.String()).Str("file", cmd.File).Msg("Dispatch")

	switch cmd.Kind {
	case StartRecording:
		return a.startRecording()
	case StopRecording:
		return a.stopRecording(true)
	case ToggleRecording:
		if a.rec.State() == audio.StateRecording {
			return a.stopRecording(true)
		}
		return a.startRecording()
	case Play:
		return a.play(cmd.File)
	case Trigger:
		return a.trigger(cmd.Hotkey)
	case Bind:
		return a.bind(cmd.File, cmd.Hotkey)
	case CaptureBind:
		if _, ok := a.reg.Lookup(cmd.File); !ok {
			return fmt.Errorf("%w: %s", registry.ErrEntryNotFound, cmd.File)
		}
		return a.beginCapture(cmd.File)
	case SetOutput:
		return a.setOutput(cmd.File, cmd.Device)
	case Delete:
		return a.delete(cmd.File)
	case SetInput:
		return a.setInput(cmd.Device)
	case SetDefaultOutput:
		return a.setDefaultOutput(cmd.Device)
	case Reload:
		return a.reload()
	}
	return fmt.Errorf("unknown command %d", cmd.Kind)
}

func (a *App) shutdown() {
	if a.rec.State() == audio.StateRecording {
		if err := a.stopRecording(false); err != nil {
			a.log.Error().Err(err).Msg("Failed to save recording on shutdown")
		}
	}

	if a.hotkeys != nil {
		for hk := range a.armed {
			if err := a.hotkeys.Unregister(hk); err != nil {
				a.log.Warn().Err(err).Str("hotkey", hk).Msg("Failed to unregister hotkey")
			}
		}
	}
	clear(a.armed)
}

// Recording

func (a *App) startRecording() error {
	if a.rec.State() == audio.StateRecording {
		return audio.ErrRecording
	}

	dev, err := a.inputDevice()
	if err != nil {
		return err
	}

	path, err := a.rec.Start(dev)
	if err != nil {
		return err
	}

	a.log.Info().Str("file", path).Str("device", dev.Name).Msg("Recording")
	if a.status != nil {
		a.status.SetRecording()
	}
	return nil
}

func (a *App) inputDevice() (audio.Device, error) {
	if a.cfg.InputDevice == "" {
		dev, err := a.devices.DefaultInput()
		if err != nil {
			return audio.Device{}, fmt.Errorf("%w: %v", audio.ErrNoDevice, err)
		}
		return dev, nil
	}

	devs, err := a.devices.Devices()
	if err != nil {
		return audio.Device{}, err
	}
	dev, ok := audio.Resolve(audio.Inputs(devs), a.cfg.InputDevice, -1)
	if !ok {
		return audio.Device{}, fmt.Errorf("%w: input %q", audio.ErrNoDevice, a.cfg.InputDevice)
	}
	return dev, nil
}

func (a *App) stopRecording(capture bool) error {
	rec, err := a.rec.Stop()
	if errors.Is(err, audio.ErrNotRecording) {
		// a fault and a user stop can race; the first one wins
		return nil
	}
	if a.status != nil {
		a.status.SetIdle()
	}
	if rec.Path == "" {
		return err
	}

	if addErr := a.reg.Add(rec.Path, ""); addErr != nil {
		return errors.Join(err, addErr)
	}
	if a.status != nil {
		a.status.SoundsChanged()
	}

	if capture && a.capturer != nil {
		if capErr := a.beginCapture(rec.Path); capErr != nil {
			a.log.Warn().Err(capErr).Msg("Key capture not started")
		}
	}

	// a read fault still produced a usable partial file
	return err
}

// Key capture

func (a *App) beginCapture(file string) error {
	if a.capturer == nil {
		return fmt.Errorf("key capture is not supported here")
	}
	if !a.capturing.CompareAndSwap(false, true) {
		return ErrCaptureBusy
	}

	if a.status != nil {
		a.status.SetMessage(fmt.Sprintf("Press a key for %s (Escape to skip)", filepath.Base(file)))
	}

	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		defer a.capturing.Store(false)
		a.captureLoop(file)
	}()
	return nil
}

// captureLoop reads keys until one is accepted. Rejected keys are reported
// and capture continues.
func (a *App) captureLoop(file string) {
	ctx := a.ctx
	for {
		accel, err := a.capturer.Capture(ctx)
		if err != nil {
			if ctx.Err() == nil {
				a.log.Info().Err(err).Str("file", file).Msg("Key capture ended")
			}
			if a.status != nil {
				a.status.SetMessage(fmt.Sprintf("%s left unbound", filepath.Base(file)))
			}
			return
		}

		err = a.Do(ctx, Command{Kind: Bind, File: file, Hotkey: accel})
		if err == nil {
			if a.status != nil {
				a.status.SetMessage(fmt.Sprintf("%s bound to %s", filepath.Base(file), accel))
			}
			return
		}
		if errors.Is(err, ErrStopped) || errors.Is(err, registry.ErrEntryNotFound) || ctx.Err() != nil {
			return
		}
		// otherwise the dispatcher already reported it; wait for another key
	}
}

// Playback

func (a *App) trigger(hotkey string) error {
	file, ok := a.reg.Owner(hotkey)
	if !ok {
		a.log.Debug().Str("hotkey", hotkey).Msg("Hotkey has no owner")
		return nil
	}

	if !a.allow(hotkey) {
		a.log.Debug().Str("hotkey", hotkey).Msg("Retrigger dropped")
		return nil
	}

	return a.play(file)
}

func (a *App) allow(hotkey string) bool {
	every := a.cfg.Retrigger()
	if every <= 0 {
		return true
	}

	lim, ok := a.limiters[hotkey]
	if !ok {
		lim = rate.NewLimiter(rate.Every(every), 1)
		a.limiters[hotkey] = lim
	}
	return lim.Allow()
}

func (a *App) play(file string) error {
	entry, ok := a.reg.Lookup(file)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrEntryNotFound, file)
	}

	dev := a.outputDevice(entry)
	name := "default"
	if dev != nil {
		name = dev.Name
	}
	a.log.Info().Str("file", file).Str("device", name).Msg("Playing")

	ctx := a.ctx
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		if err := a.player.Play(ctx, file, dev); err != nil && ctx.Err() == nil {
			a.report("Playback failed", err)
		}
	}()
	return nil
}

// outputDevice picks the entry's device, then the configured default, then
// the system default (nil). A device that has gone away falls through.
func (a *App) outputDevice(entry registry.Entry) *audio.Device {
	if entry.Output == nil && a.cfg.OutputDevice == "" {
		return nil
	}

	devs, err := a.devices.Devices()
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to list devices, using default output")
		return nil
	}
	outs := audio.Outputs(devs)

	if entry.Output != nil {
		if d, ok := audio.Resolve(outs, entry.Output.Name, entry.Output.Index); ok {
			return &d
		}
		a.log.Warn().Str("file", entry.File).Str("device", entry.Output.Name).Msg("Output device missing, using default")
	}
	if a.cfg.OutputDevice != "" {
		if d, ok := audio.Resolve(outs, a.cfg.OutputDevice, -1); ok {
			return &d
		}
		a.log.Warn().Str("device", a.cfg.OutputDevice).Msg("Default output device missing, using system default")
	}
	return nil
}

// Bindings

func (a *App) bind(file, hotkey string) error {
	entry, ok := a.reg.Lookup(file)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrEntryNotFound, file)
	}
	hk, err := keys.Normalize(hotkey)
	if err != nil {
		return err
	}
	if hk == entry.Hotkey {
		return nil
	}

	if err := a.reg.Rebind(file, hk); err != nil {
		return err
	}

	if entry.Hotkey != "" {
		a.disarm(entry.Hotkey)
	}
	if hk != "" {
		if err := a.arm(hk); err != nil {
			// x11/carbon refused the key: keep the old binding
			if rbErr := a.reg.Rebind(file, entry.Hotkey); rbErr != nil {
				a.log.Error().Err(rbErr).Str("file", file).Msg("Failed to restore binding")
			}
			if entry.Hotkey != "" {
				if armErr := a.arm(entry.Hotkey); armErr != nil {
					a.log.Warn().Err(armErr).Str("hotkey", entry.Hotkey).Msg("Failed to re-arm hotkey")
				}
			}
			return err
		}
	}

	if a.status != nil {
		a.status.SoundsChanged()
	}
	return nil
}

func (a *App) arm(hk string) error {
	if a.hotkeys == nil || a.armed[hk] {
		return nil
	}
	if err := a.hotkeys.Register(hk, func() {
		a.Post(Command{Kind: Trigger, Hotkey: hk})
	}); err != nil {
		return fmt.Errorf("failed to register %s: %w", hk, err)
	}
	a.armed[hk] = true
	return nil
}

func (a *App) disarm(hk string) {
	if a.hotkeys == nil || !a.armed[hk] {
		return
	}
	if err := a.hotkeys.Unregister(hk); err != nil {
		a.log.Warn().Err(err).Str("hotkey", hk).Msg("Failed to unregister hotkey")
	}
	delete(a.armed, hk)
	delete(a.limiters, hk)
}

// syncHotkeys makes the armed set match the registry's bound hotkeys
func (a *App) syncHotkeys() {
	want := make(map[string]bool)
	for _, e := range a.reg.Entries() {
		if e.Hotkey != "" {
			want[e.Hotkey] = true
		}
	}

	for hk := range a.armed {
		if !want[hk] {
			a.disarm(hk)
		}
	}

	var failed []error
	for hk := range want {
		if err := a.arm(hk); err != nil {
			a.log.Warn().Err(err).Msg("Hotkey not armed")
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		a.notify("Hotkeys", errors.Join(failed...).Error())
	}
}

// Entries

func (a *App) setOutput(file, device string) error {
	if device == "" {
		if err := a.reg.SetOutput(file, nil); err != nil {
			return err
		}
	} else {
		d, err := a.findOutput(device)
		if err != nil {
			return err
		}
		if err := a.reg.SetOutput(file, &registry.Output{Name: d.Name, Index: d.Index}); err != nil {
			return err
		}
	}

	if a.status != nil {
		a.status.SoundsChanged()
	}
	return nil
}

func (a *App) findOutput(name string) (audio.Device, error) {
	devs, err := a.devices.Devices()
	if err != nil {
		return audio.Device{}, err
	}
	d, ok := audio.Resolve(audio.Outputs(devs), name, -1)
	if !ok {
		return audio.Device{}, fmt.Errorf("%w: output %q", audio.ErrNoDevice, name)
	}
	return d, nil
}

func (a *App) delete(file string) error {
	entry, ok := a.reg.Lookup(file)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrEntryNotFound, file)
	}

	err := a.reg.Delete(file, func(f string) bool {
		if a.confirm == nil {
			return false
		}
		yes, err := a.confirm.Confirm("Delete sound",
			fmt.Sprintf("Delete %s? The recording will be removed from disk.", filepath.Base(f)))
		if err != nil {
			a.log.Warn().Err(err).Msg("Confirmation failed")
			return false
		}
		return yes
	})
	if err != nil {
		return err
	}

	if entry.Hotkey != "" {
		a.disarm(entry.Hotkey)
	}
	if a.status != nil {
		a.status.SoundsChanged()
	}
	return nil
}

func (a *App) reload() error {
	changed, err := a.reg.Reload()
	if err != nil || !changed {
		return err
	}

	a.syncHotkeys()
	if a.status != nil {
		a.status.SoundsChanged()
	}
	return nil
}

// Settings

func (a *App) setInput(device string) error {
	if a.rec.State() == audio.StateRecording {
		return fmt.Errorf("cannot change input while recording")
	}

	if device != "" {
		devs, err := a.devices.Devices()
		if err != nil {
			return err
		}
		if _, ok := audio.Resolve(audio.Inputs(devs), device, -1); !ok {
			return fmt.Errorf("%w: input %q", audio.ErrNoDevice, device)
		}
	}

	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()
	a.cfg.InputDevice = device
	return a.cfg.Save()
}

func (a *App) setDefaultOutput(device string) error {
	if device != "" {
		if _, err := a.findOutput(device); err != nil {
			return err
		}
	}

	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()
	a.cfg.OutputDevice = device
	return a.cfg.Save()
}

// Reporting

func (a *App) report(title string, err error) {
	a.log.Error().Err(err).Msg(title)
	if a.status != nil {
		a.status.SetError(err.Error())
	}
	a.notify(title, err.Error())
}

func (a *App) notify(title, msg string) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(title, msg); err != nil {
		a.log.Warn().Err(err).Msg("Notification failed")
	}
}

// Read access for the tray; safe from any goroutine

func (a *App) Entries() []registry.Entry {
	return a.reg.Entries()
}

func (a *App) IsRecording() bool {
	return a.rec.State() == audio.StateRecording
}

func (a *App) CanCapture() bool {
	return a.capturer != nil
}

func (a *App) InputDevice() string {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.cfg.InputDevice
}

func (a *App) OutputDevice() string {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.cfg.OutputDevice
}

func (a *App) ListDevices() ([]audio.Device, error) {
	return a.devices.Devices()
}
