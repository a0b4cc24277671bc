package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/petems/soundboard/internal/app"
	"github.com/petems/soundboard/internal/audio"
	"github.com/petems/soundboard/internal/config"
	"github.com/petems/soundboard/internal/device"
	"github.com/petems/soundboard/internal/hotkey"
	"github.com/petems/soundboard/internal/logging"
	"github.com/petems/soundboard/internal/notify"
	"github.com/petems/soundboard/internal/permissions"
	"github.com/petems/soundboard/internal/registry"
	"github.com/petems/soundboard/internal/tray"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "run",
			Usage:  "Start the tray app and arm all hotkeys (default)",
			Action: runTray,
		},
		{
			Name:   "devices",
			Usage:  "List audio devices",
			Action: listDevices,
		},
		{
			Name:   "list",
			Usage:  "List recorded sounds and their hotkeys",
			Action: listSounds,
		},
		{
			Name:   "record",
			Usage:  "Record a new sound until Enter, Ctrl-C or --duration",
			Flags:  recordFlags(),
			Action: recordSound,
		},
		{
			Name:      "play",
			Usage:     "Play a sound",
			ArgsUsage: "FILE",
			Flags:     playFlags(),
			Action:    playSound,
		},
		{
			Name:      "bind",
			Usage:     "Bind a hotkey to a sound",
			ArgsUsage: "FILE KEY",
			Action:    bindSound,
		},
		{
			Name:      "unbind",
			Usage:     "Remove the hotkey of a sound",
			ArgsUsage: "FILE",
			Action:    unbindSound,
		},
		{
			Name:      "output",
			Usage:     "Set the playback device of a sound; \"default\" clears it",
			ArgsUsage: "FILE DEVICE",
			Action:    setOutput,
		},
		{
			Name:      "delete",
			Usage:     "Delete a sound and its file",
			ArgsUsage: "FILE",
			Flags:     deleteFlags(),
			Action:    deleteSound,
		},
	}
}

// env is what every command needs: settings, a logger and the registry
type env struct {
	cfg *config.Config
	log zerolog.Logger
	reg *registry.Registry
}

func setup(cmd *cli.Command) (*env, error) {
	cfg, err := config.Load(cmd.String(FlagConfig))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet(FlagAudioDir) {
		cfg.AudioDir = cmd.String(FlagAudioDir)
	}
	if cmd.IsSet(FlagRegistry) {
		cfg.RegistryFile = cmd.String(FlagRegistry)
	}
	if cmd.IsSet(FlagLogLevel) {
		cfg.LogLevel = cmd.String(FlagLogLevel)
	}

	log := logging.NewWithLevel(cfg.LogLevel)

	reg, err := registry.Open(registry.NewFileStore(cfg.RegistryFile), log)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cfg.RegistryFile, err)
	}

	return &env{cfg: cfg, log: log, reg: reg}, nil
}

func runTray(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	log := e.log

	if err := permissions.EnsureMicrophone(log); err != nil {
		log.Warn().Err(err).Msg("Recording will fail until microphone access is granted")
	}

	pa, err := device.New()
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer pa.Close()

	var application *app.App

	recorder := audio.NewRecorder(pa, e.cfg.AudioDir, log,
		audio.WithFaultHandler(func(err error) {
			application.RecordingFault(err)
		}))
	player := audio.NewPlayer(pa, device.NewSpeaker(log), log)
	desktop := notify.NewDesktop("Soundboard", e.cfg.Notifications, log)

	cfg := app.Config{
		Registry:  e.reg,
		Recorder:  recorder,
		Player:    player,
		Devices:   pa,
		Notifier:  desktop,
		Confirmer: desktop,
		Config:    e.cfg,
		WatchPath: e.cfg.RegistryFile,
		Logger:    log,
	}

	// Sounds still play from the tray when global hotkeys are unavailable
	hk, err := hotkey.New()
	if err != nil {
		log.Warn().Err(err).Msg("Global hotkeys unavailable")
	} else {
		defer hk.Close()
		cfg.Hotkeys = hk
		if c, ok := hk.(hotkey.Capturer); ok {
			cfg.Capturer = c
		}
	}

	application = app.New(cfg)

	ui := tray.New(application, e.cfg, Version, Commit, log)
	application.SetStatusUpdater(ui)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- application.Run(ctx)
		cancel()
	}()

	log.Info().Int("sounds", e.reg.Len()).Msg("Soundboard starting...")

	// Start tray UI - MUST run on main thread
	if err := ui.Run(ctx, cancel); err != nil {
		log.Error().Err(err).Msg("Tray error")
	}
	cancel()

	if err := <-done; err != nil && !errors.Is(err, app.ErrStopped) && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("Shut down")
	return nil
}

func listDevices(ctx context.Context, cmd *cli.Command) error {
	pa, err := device.New()
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer pa.Close()

	devices, err := pa.Devices()
	if err != nil {
		return err
	}

	printDevices := func(title string, list []audio.Device, isDefault func(audio.Device) bool) {
		color.New(color.Bold).Println(title)
		if len(list) == 0 {
			fmt.Println("  (none)")
		}
		for _, d := range list {
			marker := "  "
			name := d.Name
			if isDefault(d) {
				marker = color.GreenString("* ")
				name = color.GreenString(d.Name)
			}
			fmt.Printf("%s%s %s\n", marker, color.CyanString("[%d]", d.Index), name)
		}
	}

	printDevices("Input devices", audio.Inputs(devices), func(d audio.Device) bool { return d.IsDefaultInput })
	fmt.Println()
	printDevices("Output devices", audio.Outputs(devices), func(d audio.Device) bool { return d.IsDefaultOutput })

	return nil
}

func listSounds(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	entries := e.reg.Entries()
	if len(entries) == 0 {
		fmt.Println("No sounds recorded yet.")
		return nil
	}

	for _, entry := range entries {
		key := color.HiBlackString("unbound")
		if entry.Hotkey != "" {
			key = color.CyanString(entry.Hotkey)
		}
		line := fmt.Sprintf("%-24s %s", key, entry.File)
		if entry.Output != nil {
			line += color.YellowString("  → %s", entry.Output.Name)
		}
		if _, err := os.Stat(entry.File); err != nil {
			line += color.RedString("  (missing)")
		}
		fmt.Println(line)
	}

	return nil
}

func recordSound(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	if err := permissions.EnsureMicrophone(e.log); err != nil {
		return err
	}

	pa, err := device.New()
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer pa.Close()

	name := e.cfg.InputDevice
	if cmd.IsSet(FlagDevice) {
		name = cmd.String(FlagDevice)
	}
	dev, err := findDevice(pa, name, true)
	if err != nil {
		return err
	}

	fault := make(chan error, 1)
	rec := audio.NewRecorder(pa, e.cfg.AudioDir, e.log, audio.WithFaultHandler(func(err error) {
		fault <- err
	}))

	path, err := rec.Start(dev)
	if err != nil {
		return err
	}

	var timeout <-chan time.Time
	if d := cmd.Duration(FlagDuration); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
		fmt.Fprintf(os.Stderr, "Recording from %s for %s...\n", dev.Name, d)
	} else {
		fmt.Fprintf(os.Stderr, "Recording from %s, press Enter to stop...\n", dev.Name)
	}

	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	select {
	case <-enter:
	case <-timeout:
	case <-ctx.Done():
	case <-fault:
	}

	result, stopErr := rec.Stop()
	if stopErr != nil && result.Path == "" {
		return stopErr
	}

	if err := e.reg.Add(result.Path, ""); err != nil {
		return err
	}

	fmt.Printf("%s %s (%s)\n", color.GreenString("Saved"), path, result.Duration.Round(time.Millisecond))
	if stopErr != nil {
		fmt.Fprintln(os.Stderr, color.YellowString("Recording ended early: %v", stopErr))
	}
	return nil
}

func playSound(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return errors.New("usage: soundboard play FILE")
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	pa, err := device.New()
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer pa.Close()

	path := resolveFile(e, cmd.Args().First())

	var out *audio.Device
	name := e.cfg.OutputDevice
	if entry, ok := e.reg.Lookup(path); ok && entry.Output != nil {
		devices, err := pa.Devices()
		if err != nil {
			return err
		}
		if d, ok := audio.Resolve(audio.Outputs(devices), entry.Output.Name, entry.Output.Index); ok {
			out = &d
		} else {
			e.log.Warn().Str("device", entry.Output.Name).Msg("Output device not found, using default")
		}
	}
	if cmd.IsSet(FlagDevice) {
		name, out = cmd.String(FlagDevice), nil
	}
	if out == nil && name != "" {
		d, err := findDevice(pa, name, false)
		if err != nil {
			return err
		}
		out = &d
	}

	player := audio.NewPlayer(pa, device.NewSpeaker(e.log), e.log)
	return player.Play(ctx, path, out)
}

func bindSound(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return errors.New("usage: soundboard bind FILE KEY")
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	path := resolveFile(e, cmd.Args().Get(0))
	if err := e.reg.Rebind(path, cmd.Args().Get(1)); err != nil {
		var conflict *registry.HotkeyConflictError
		if errors.As(err, &conflict) {
			return fmt.Errorf("%s is already bound to %s", conflict.Hotkey, filepath.Base(conflict.Owner))
		}
		return err
	}

	entry, _ := e.reg.Lookup(path)
	fmt.Printf("%s %s → %s\n", color.GreenString("Bound"), filepath.Base(path), color.CyanString(entry.Hotkey))
	return nil
}

func unbindSound(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return errors.New("usage: soundboard unbind FILE")
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	path := resolveFile(e, cmd.Args().First())
	if err := e.reg.Rebind(path, ""); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", color.GreenString("Unbound"), filepath.Base(path))
	return nil
}

func setOutput(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return errors.New("usage: soundboard output FILE DEVICE")
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	path := resolveFile(e, cmd.Args().Get(0))
	name := cmd.Args().Get(1)

	if strings.EqualFold(name, "default") {
		if err := e.reg.SetOutput(path, nil); err != nil {
			return err
		}
		fmt.Printf("%s %s → default output\n", color.GreenString("Set"), filepath.Base(path))
		return nil
	}

	pa, err := device.New()
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer pa.Close()

	dev, err := findDevice(pa, name, false)
	if err != nil {
		return err
	}

	if err := e.reg.SetOutput(path, &registry.Output{Name: dev.Name, Index: dev.Index}); err != nil {
		return err
	}

	fmt.Printf("%s %s → %s\n", color.GreenString("Set"), filepath.Base(path), dev.Name)
	return nil
}

func deleteSound(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return errors.New("usage: soundboard delete FILE")
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	console := notify.NewConsole(os.Stdin, os.Stderr)
	confirm := func(file string) bool {
		if cmd.Bool(FlagYes) {
			return true
		}
		ok, err := console.Confirm("Delete sound", fmt.Sprintf("Delete %s?", file))
		if err != nil {
			e.log.Error().Err(err).Msg("Failed to read answer")
		}
		return ok
	}

	path := resolveFile(e, cmd.Args().First())
	if err := e.reg.Delete(path, confirm); err != nil {
		if errors.Is(err, registry.ErrDeleteDeclined) {
			fmt.Println("Kept", filepath.Base(path))
			return nil
		}
		return err
	}

	fmt.Printf("%s %s\n", color.GreenString("Deleted"), filepath.Base(path))
	return nil
}

// resolveFile maps a command line argument to a registered file. A bare name
// is looked up in the audio dir; unknown arguments are returned as given.
func resolveFile(e *env, arg string) string {
	candidates := []string{arg, filepath.Join(e.cfg.AudioDir, arg)}
	if abs, err := filepath.Abs(arg); err == nil {
		candidates = append(candidates, abs)
	}

	for _, c := range candidates {
		if _, ok := e.reg.Lookup(c); ok {
			return c
		}
	}
	return arg
}

// findDevice resolves name to an input or output device. "" is the default.
func findDevice(pa *device.PortAudio, name string, input bool) (audio.Device, error) {
	if name == "" {
		if input {
			return pa.DefaultInput()
		}
		return pa.DefaultOutput()
	}

	devices, err := pa.Devices()
	if err != nil {
		return audio.Device{}, err
	}
	if input {
		devices = audio.Inputs(devices)
	} else {
		devices = audio.Outputs(devices)
	}

	if d, ok := audio.Resolve(devices, name, -1); ok {
		return d, nil
	}
	return audio.Device{}, fmt.Errorf("%w: %s", audio.ErrNoDevice, name)
}
