//go:build windows

package hotkey

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/petems/soundboard/internal/keys"
	"golang.org/x/sys/windows"
)

const (
	modAlt      = 0x0001
	modControl  = 0x0002
	modShift    = 0x0004
	modWin      = 0x0008
	modNoRepeat = 0x4000

	wmHotkey     = 0x0312
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105
	pmRemove     = 0x0001

	whKeyboardLL  = 13
	llkhfInjected = 0x10

	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkEscape  = 0x1B
	vkLWin    = 0x5B
	vkRWin    = 0x5C
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procRegisterHotKey      = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey    = user32.NewProc("UnregisterHotKey")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
)

// Keys that never end a capture on their own
var modifierKeys = map[uint32]bool{
	vkShift: true, vkControl: true, vkMenu: true, vkLWin: true, vkRWin: true,
	0xA0: true, 0xA1: true, 0xA2: true, 0xA3: true, 0xA4: true, 0xA5: true,
	0x14: true, 0x90: true, 0x91: true, // caps, num and scroll lock
}

type kbdllHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

// The hook callback has no user data, so the capturing manager is global.
// Low-level hooks run on the installing thread, which is the manager loop.
var (
	hookOwner atomic.Pointer[windowsManager]
	hookProc  = windows.NewCallback(lowLevelKeyboard)
)

// Virtual key codes for canonical names that are not plain ASCII letters
// or digits
var virtualKeys = map[string]uint32{
	"Space": 0x20, "Enter": 0x0D, "Tab": 0x09, "Escape": 0x1B,
	"Backspace": 0x08, "Delete": 0x2E, "Insert": 0x2D, "Home": 0x24,
	"End": 0x23, "PageUp": 0x21, "PageDown": 0x22, "Left": 0x25,
	"Up": 0x26, "Right": 0x27, "Down": 0x28, "Pause": 0x13, "Print": 0x2C,

	"Minus": 0xBD, "Equal": 0xBB, "Comma": 0xBC, "Period": 0xBE,
	"Slash": 0xBF, "Semicolon": 0xBA, "Quote": 0xDE, "Grave": 0xC0,
	"BracketLeft": 0xDB, "Backslash": 0xDC, "BracketRight": 0xDD,
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	PtX     int32
	PtY     int32
}

type winHotkey struct {
	id       int
	callback func()
}

// windowsManager services RegisterHotKey on one locked OS thread, since
// WM_HOTKEY is posted to the queue of the registering thread.
type windowsManager struct {
	mu     sync.Mutex
	nextID int
	byName map[string]winHotkey
	byID   map[int]winHotkey

	// loop thread only
	hook      uintptr
	capture   *captureReq
	swallowUp uint32    // key release that belongs to the captured press
	releaseBy time.Time // give up waiting for that release

	reqs chan func()
	stop chan struct{}
	done chan struct{}
}

// New creates a new Windows hotkey manager
func New() (Manager, error) {
	m := &windowsManager{
		byName: make(map[string]winHotkey),
		byID:   make(map[int]winHotkey),
		reqs:   make(chan func()),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.loop()
	return m, nil
}

func (m *windowsManager) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(m.done)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var message msg
	for {
		select {
		case <-m.stop:
			if m.capture != nil {
				m.capture.result <- captureResult{err: ErrCaptureCanceled}
				m.capture = nil
			}
			m.unhook()
			m.mu.Lock()
			for _, hk := range m.byID {
				procUnregisterHotKey.Call(0, uintptr(hk.id))
			}
			m.mu.Unlock()
			return
		case fn := <-m.reqs:
			fn()
		case <-ticker.C:
			for {
				r, _, _ := procPeekMessageW.Call(uintptr(unsafe.Pointer(&message)), 0, 0, 0, pmRemove)
				if r == 0 {
					break
				}
				if message.Message == wmHotkey {
					m.fire(int(message.WParam))
				}
			}
			if m.hook != 0 && m.capture == nil && (m.swallowUp == 0 || time.Now().After(m.releaseBy)) {
				m.unhook()
			}
		}
	}
}

func (m *windowsManager) fire(id int) {
	m.mu.Lock()
	hk, ok := m.byID[id]
	m.mu.Unlock()
	if ok && hk.callback != nil {
		hk.callback()
	}
}

func (m *windowsManager) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case m.reqs <- func() { fn(); close(finished) }:
	case <-m.done:
		return fmt.Errorf("hotkey manager closed")
	}
	<-finished
	return nil
}

func (m *windowsManager) Register(accel string, callback func()) error {
	a, err := keys.Parse(accel)
	if err != nil {
		return err
	}
	name := a.String()

	vk, ok := virtualKey(a.Key)
	if !ok {
		return fmt.Errorf("no virtual key for %s", name)
	}

	mods := uint32(modNoRepeat)
	if a.Has(keys.ModAlt) {
		mods |= modAlt
	}
	if a.Has(keys.ModCtrl) {
		mods |= modControl
	}
	if a.Has(keys.ModShift) {
		mods |= modShift
	}
	if a.Has(keys.ModSuper) {
		mods |= modWin
	}

	var regErr error
	err = m.do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if _, exists := m.byName[name]; exists {
			regErr = fmt.Errorf("%w: %s", ErrRegistered, name)
			return
		}

		m.nextID++
		id := m.nextID
		r, _, _ := procRegisterHotKey.Call(0, uintptr(id), uintptr(mods), uintptr(vk))
		if r == 0 {
			regErr = fmt.Errorf("%w: %s", ErrGrabFailed, name)
			return
		}

		hk := winHotkey{id: id, callback: callback}
		m.byName[name] = hk
		m.byID[id] = hk
	})
	if err != nil {
		return err
	}
	return regErr
}

func (m *windowsManager) Unregister(accel string) error {
	name, err := keys.Normalize(accel)
	if err != nil {
		return err
	}

	return m.do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		hk, ok := m.byName[name]
		if !ok {
			return
		}
		procUnregisterHotKey.Call(0, uintptr(hk.id))
		delete(m.byName, name)
		delete(m.byID, hk.id)
	})
}

// Capture installs a low-level keyboard hook until a non-modifier key is
// pressed. The captured press and its release are swallowed.
func (m *windowsManager) Capture(ctx context.Context) (string, error) {
	req := &captureReq{result: make(chan captureResult, 1)}

	var startErr error
	err := m.do(func() {
		if m.capture != nil {
			startErr = ErrCaptureActive
			return
		}
		if m.hook == 0 {
			if !hookOwner.CompareAndSwap(nil, m) {
				startErr = ErrCaptureActive
				return
			}
			h, _, callErr := procSetWindowsHookExW.Call(whKeyboardLL, hookProc, 0, 0)
			if h == 0 {
				hookOwner.Store(nil)
				startErr = fmt.Errorf("failed to install keyboard hook: %v", callErr)
				return
			}
			m.hook = h
		}
		m.swallowUp = 0
		m.capture = req
	})
	if err != nil {
		return "", err
	}
	if startErr != nil {
		return "", startErr
	}

	select {
	case res := <-req.result:
		return res.accel, res.err
	case <-ctx.Done():
		m.do(func() {
			if m.capture == req {
				m.capture = nil
				m.unhook()
			}
		})
		return "", ctx.Err()
	}
}

func (m *windowsManager) unhook() {
	if m.hook == 0 {
		return
	}
	procUnhookWindowsHookEx.Call(m.hook)
	m.hook = 0
	m.swallowUp = 0
	hookOwner.CompareAndSwap(m, nil)
}

func lowLevelKeyboard(nCode, wParam, lParam uintptr) uintptr {
	if m := hookOwner.Load(); m != nil && int32(nCode) >= 0 {
		k := (*kbdllHookStruct)(unsafe.Pointer(lParam))
		if k.flags&llkhfInjected == 0 && m.hooked(uint32(wParam), k.vkCode) {
			return 1
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

// hooked handles one key event during capture and reports whether to
// swallow it
func (m *windowsManager) hooked(message, vk uint32) bool {
	switch message {
	case wmKeyUp, wmSysKeyUp:
		if m.swallowUp != 0 && vk == m.swallowUp {
			m.swallowUp = 0
			return true
		}
		return false
	case wmKeyDown, wmSysKeyDown:
	default:
		return false
	}

	if m.capture == nil || modifierKeys[vk] {
		return false
	}

	mods := heldMods()
	var res captureResult
	if vk == vkEscape && mods == 0 {
		res.err = ErrCaptureCanceled
	} else if name, ok := keyName(vk); ok {
		res.accel = keys.Accel{Mods: mods, Key: name}.String()
	} else {
		// unknown key, keep waiting
		return false
	}

	m.capture.result <- res
	m.capture = nil
	m.swallowUp = vk
	m.releaseBy = time.Now().Add(2 * time.Second)
	return true
}

func heldMods() keys.Mod {
	down := func(vk uintptr) bool {
		st, _, _ := procGetAsyncKeyState.Call(vk)
		return st&0x8000 != 0
	}

	var mods keys.Mod
	if down(vkControl) {
		mods |= keys.ModCtrl
	}
	if down(vkMenu) {
		mods |= keys.ModAlt
	}
	if down(vkShift) {
		mods |= keys.ModShift
	}
	if down(vkLWin) || down(vkRWin) {
		mods |= keys.ModSuper
	}
	return mods
}

func (m *windowsManager) Close() error {
	select {
	case <-m.done:
	default:
		close(m.stop)
		<-m.done
	}
	return nil
}

func virtualKey(key string) (uint32, bool) {
	if vk, ok := virtualKeys[key]; ok {
		return vk, true
	}
	if len(key) == 1 {
		// A-Z and 0-9 share their ASCII codes
		return uint32(key[0]), true
	}

	var n int
	if _, err := fmt.Sscanf(key, "F%d", &n); err == nil && n >= 1 && n <= 24 {
		return 0x70 + uint32(n-1), true
	}
	if _, err := fmt.Sscanf(key, "Num%d", &n); err == nil && n >= 0 && n <= 9 {
		return 0x60 + uint32(n), true
	}
	return 0, false
}

// keyName is the inverse of virtualKey
func keyName(vk uint32) (string, bool) {
	switch {
	case vk >= 'A' && vk <= 'Z', vk >= '0' && vk <= '9':
		return string(rune(vk)), true
	case vk >= 0x70 && vk <= 0x87:
		return fmt.Sprintf("F%d", vk-0x70+1), true
	case vk >= 0x60 && vk <= 0x69:
		return fmt.Sprintf("Num%d", vk-0x60), true
	}
	for name, code := range virtualKeys {
		if code == vk {
			return name, true
		}
	}
	return "", false
}
