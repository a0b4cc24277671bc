package tray

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/ncruces/zenity"
	"github.com/petems/soundboard/internal/app"
	"github.com/petems/soundboard/internal/audio"
	"github.com/petems/soundboard/internal/config"
	"github.com/petems/soundboard/internal/keys"
	"github.com/petems/soundboard/internal/logging"
	"github.com/petems/soundboard/internal/registry"
	"github.com/rs/zerolog"
)

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger
	ctx     context.Context
	quit    context.CancelFunc

	mu      sync.Mutex
	ready   bool
	status  string
	sounds  map[string]*soundItem
	outputs []audio.Device

	// Menu items
	mStatus  *systray.MenuItem
	mMessage *systray.MenuItem
	mRecord  *systray.MenuItem
	mInputs  *systray.MenuItem
	mOutputs *systray.MenuItem
	mSounds  *systray.MenuItem
	mEmpty   *systray.MenuItem
}

// soundItem is the submenu of one registry entry. systray cannot remove
// items, so deleted sounds are hidden and reused if the file comes back.
type soundItem struct {
	file    string
	parent  *systray.MenuItem
	play    *systray.MenuItem
	capture *systray.MenuItem
	keys    *systray.MenuItem
	unbind  *systray.MenuItem
	output  *systray.MenuItem
	copy    *systray.MenuItem
	delete  *systray.MenuItem

	presets map[string]*systray.MenuItem
	devices map[string]*systray.MenuItem // "" = default
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
	u.refreshRecord(false)
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
	u.refreshRecord(true)
}

func (u *UI) SetError(msg string) {
	u.updateStatus("error")
	u.SetMessage(msg)
}

func (u *UI) SetMessage(msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ready {
		u.mMessage.SetTitle(truncate(msg, 60))
		u.mMessage.Show()
	}
}

func (u *UI) SoundsChanged() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ready {
		u.syncSoundsLocked(u.app.Entries())
	}
}

func New(application *app.App, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log.With().Str("component", "tray").Logger(),
		status:  "idle",
		sounds:  make(map[string]*soundItem),
	}
}

// Run blocks on the systray loop, which must own the main thread. quit is
// called when the user picks Quit; Run returns once ctx is done.
func (u *UI) Run(ctx context.Context, quit context.CancelFunc) error {
	u.ctx = ctx
	u.quit = quit

	go func() {
		<-ctx.Done()
		systray.Quit()
	}()

	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.mu.Lock()
	defer u.mu.Unlock()

	systray.SetTitle(titleForStatus(u.status))
	systray.SetTooltip("Hotkey soundboard")

	u.mStatus = systray.AddMenuItem(statusLine(u.status), "")
	u.mStatus.Disable()
	u.mMessage = systray.AddMenuItem("", "")
	u.mMessage.Disable()
	u.mMessage.Hide()
	systray.AddSeparator()

	u.mRecord = systray.AddMenuItem(recordLabel(false), "Record a new sound")
	systray.AddSeparator()

	u.mInputs = systray.AddMenuItem("Input Device", "Device to record from")
	u.mOutputs = systray.AddMenuItem("Output Device", "Default playback device")
	u.buildDeviceMenus()

	u.mSounds = systray.AddMenuItem("Sounds", "Recorded sounds")
	u.mEmpty = u.mSounds.AddSubMenuItem("No sounds yet", "")
	u.mEmpty.Disable()
	systray.AddSeparator()

	mFolder := systray.AddMenuItem("Open Sound Folder", "Show recordings")
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About Soundboard")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.ready = true
	u.syncSoundsLocked(u.app.Entries())

	// Event loop
	go u.handleEvents(mFolder, mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mFolder, mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mRecord.ClickedCh:
			u.do(app.Command{Kind: app.ToggleRecording})
		case <-mFolder.ClickedCh:
			u.open(u.cfg.AudioDir)
		case <-mLogs.ClickedCh:
			u.open(logging.Path())
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			if u.quit != nil {
				u.quit()
			}
			return
		case <-u.ctx.Done():
			return
		}
	}
}

func (u *UI) do(cmd app.Command) {
	go func() {
		// failures are reported by the app itself
		if err := u.app.Do(u.ctx, cmd); err != nil {
			u.log.Debug().Err(err).Str("command", cmd.Kind.String()).Msg("Menu command failed")
		}
	}()
}

func (u *UI) buildDeviceMenus() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	u.buildChoiceMenu(u.mInputs, audio.Inputs(devices), u.app.InputDevice, func(name string) app.Command {
		return app.Command{Kind: app.SetInput, Device: name}
	})

	u.outputs = audio.Outputs(devices)
	u.buildChoiceMenu(u.mOutputs, u.outputs, u.app.OutputDevice, func(name string) app.Command {
		return app.Command{Kind: app.SetDefaultOutput, Device: name}
	})
}

// checkable is the part of a menu item used by radio lists
type checkable interface {
	Check()
	Uncheck()
}

// checkOnly ticks the item named selected and clears the rest
func checkOnly[T checkable](items map[string]T, selected string) {
	for name, item := range items {
		if name == selected {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

// buildChoiceMenu adds a radio-style list of "System Default" plus devices.
// The ticks follow current() once the app has accepted or refused a change.
func (u *UI) buildChoiceMenu(parent *systray.MenuItem, devices []audio.Device, current func() string, cmd func(string) app.Command) {
	items := make(map[string]*systray.MenuItem, len(devices)+1)
	selected := current()

	items[""] = parent.AddSubMenuItemCheckbox("System Default", "", selected == "")
	for _, dev := range devices {
		items[dev.Name] = parent.AddSubMenuItemCheckbox(dev.Name, "", dev.Name == selected)
	}

	var mu sync.Mutex
	for name, item := range items {
		u.onClick(item, func() {
			u.log.Info().Str("device", deviceLabel(name)).Msg("Changing audio device")
			go func() {
				if err := u.app.Do(u.ctx, cmd(name)); err != nil {
					u.log.Debug().Err(err).Str("device", deviceLabel(name)).Msg("Device change refused")
				}
				mu.Lock()
				defer mu.Unlock()
				checkOnly(items, current())
			}()
		})
	}
}

// syncSoundsLocked adds, updates and hides sound submenus to match entries
func (u *UI) syncSoundsLocked(entries []registry.Entry) {
	present := make(map[string]bool, len(entries))

	for _, e := range entries {
		present[e.File] = true
		item, ok := u.sounds[e.File]
		if !ok {
			item = u.addSoundLocked(e.File)
			u.sounds[e.File] = item
		}
		item.update(e, u.app.CanCapture())
		item.parent.Show()
	}

	for file, item := range u.sounds {
		if !present[file] {
			item.parent.Hide()
		}
	}

	if len(entries) == 0 {
		u.mEmpty.Show()
	} else {
		u.mEmpty.Hide()
	}
}

func (u *UI) addSoundLocked(file string) *soundItem {
	parent := u.mSounds.AddSubMenuItem(filepath.Base(file), file)
	item := &soundItem{
		file:    file,
		parent:  parent,
		play:    parent.AddSubMenuItem("Play", "Play on the assigned device"),
		capture: parent.AddSubMenuItem("Bind Key…", "Press the key to bind"),
		keys:    parent.AddSubMenuItem("Bind Preset", "Pick a key"),
		unbind:  parent.AddSubMenuItem("Unbind", "Remove the hotkey"),
		output:  parent.AddSubMenuItem("Output", "Playback device for this sound"),
		copy:    parent.AddSubMenuItem("Copy Path", "Copy the file path"),
		delete:  parent.AddSubMenuItem("Delete…", "Delete the recording"),
		presets: make(map[string]*systray.MenuItem),
		devices: make(map[string]*systray.MenuItem),
	}

	for _, k := range keys.Presets {
		key := k
		mi := item.keys.AddSubMenuItemCheckbox(key, "", false)
		item.presets[key] = mi
		u.onClick(mi, func() {
			u.do(app.Command{Kind: app.Bind, File: file, Hotkey: key})
		})
	}

	item.devices[""] = item.output.AddSubMenuItemCheckbox("Default", "", false)
	for _, dev := range u.outputs {
		item.devices[dev.Name] = item.output.AddSubMenuItemCheckbox(dev.Name, "", false)
	}
	for name, mi := range item.devices {
		device := name
		u.onClick(mi, func() {
			u.do(app.Command{Kind: app.SetOutput, File: file, Device: device})
		})
	}

	u.onClick(item.play, func() {
		u.do(app.Command{Kind: app.Play, File: file})
	})
	u.onClick(item.capture, func() {
		u.do(app.Command{Kind: app.CaptureBind, File: file})
	})
	u.onClick(item.unbind, func() {
		u.do(app.Command{Kind: app.Bind, File: file, Hotkey: ""})
	})
	u.onClick(item.copy, func() {
		if err := clipboard.WriteAll(file); err != nil {
			u.log.Error().Err(err).Msg("Failed to copy path")
		}
	})
	u.onClick(item.delete, func() {
		u.do(app.Command{Kind: app.Delete, File: file})
	})

	return item
}

func (u *UI) onClick(item *systray.MenuItem, fn func()) {
	go func() {
		for {
			select {
			case <-item.ClickedCh:
				fn()
			case <-u.ctx.Done():
				return
			}
		}
	}()
}

func (s *soundItem) update(e registry.Entry, canCapture bool) {
	s.parent.SetTitle(soundLabel(e))

	checkOnly(s.presets, e.Hotkey)

	current := ""
	if e.Output != nil {
		current = e.Output.Name
	}
	checkOnly(s.devices, current)

	if e.Hotkey == "" {
		s.unbind.Disable()
	} else {
		s.unbind.Enable()
	}
	if canCapture {
		s.capture.Show()
	} else {
		s.capture.Hide()
	}
}

func (u *UI) refreshRecord(recording bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ready {
		u.mRecord.SetTitle(recordLabel(recording))
	}
}

func (u *UI) showAbout() {
	msg := fmt.Sprintf("Soundboard %s (%s)\nRecord sounds and play them with hotkeys.\n\nSounds: %s",
		u.version, u.commit, u.cfg.AudioDir)
	if err := zenity.Info(msg, zenity.Title("About Soundboard")); err != nil {
		u.log.Debug().Err(err).Msg("About dialog closed")
	}
}

// open shows path in the platform file browser
func (u *UI) open(path string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open")
		return
	}
	go cmd.Wait()
}

func (u *UI) onExit() {
	if u.quit != nil {
		u.quit()
	}
}

// updateStatus sets the tray title and status line
func (u *UI) updateStatus(status string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = status
	if !u.ready {
		return
	}
	systray.SetTitle(titleForStatus(status))
	u.mStatus.SetTitle(statusLine(status))
	if status != "error" {
		u.mMessage.Hide()
	}
}

func titleForStatus(status string) string {
	return fmt.Sprintf("🔊 %s", emojiForStatus(status))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}

func statusLine(status string) string {
	switch status {
	case "recording":
		return "Status: Recording"
	case "error":
		return "Status: Error"
	default:
		return "Status: Ready"
	}
}

func recordLabel(recording bool) string {
	if recording {
		return "Stop Recording"
	}
	return "Start Recording"
}

func deviceLabel(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

// soundLabel renders an entry as "name.wav  [F1]  → Device"
func soundLabel(e registry.Entry) string {
	label := filepath.Base(e.File)
	if e.Hotkey != "" {
		label += "  [" + e.Hotkey + "]"
	}
	if e.Output != nil {
		label += "  → " + e.Output.Name
	}
	return label
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
