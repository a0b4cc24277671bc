//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework Carbon
#include <Carbon/Carbon.h>

// Forward declaration for Go callback
extern void goHotkeyCallback(int id);

static int handlerInstalled = 0;

// Event handler for hotkeys
static OSStatus hotkeyHandler(EventHandlerCallRef nextHandler, EventRef theEvent, void* userData) {
    EventHotKeyID hkID;
    GetEventParameter(theEvent, kEventParamDirectObject, typeEventHotKeyID, NULL, sizeof(hkID), NULL, &hkID);

    goHotkeyCallback((int)hkID.id);

    return noErr;
}

static int installHandler() {
    if (handlerInstalled) return 1;

    EventTypeSpec eventType;
    eventType.eventClass = kEventClassKeyboard;
    eventType.eventKind = kEventHotKeyPressed;

    EventHandlerUPP handlerUPP = NewEventHandlerUPP(hotkeyHandler);
    OSStatus status = InstallApplicationEventHandler(handlerUPP, 1, &eventType, NULL, NULL);
    if (status != noErr) return 0;

    handlerInstalled = 1;
    return 1;
}

// Register hotkey with Carbon
static EventHotKeyRef registerHotkey(UInt32 keyCode, UInt32 modifiers, UInt32 id) {
    EventHotKeyRef hotKeyRef = NULL;
    EventHotKeyID hotKeyID;
    hotKeyID.signature = 'sndb';
    hotKeyID.id = id;

    OSStatus status = RegisterEventHotKey(keyCode, modifiers, hotKeyID, GetApplicationEventTarget(), 0, &hotKeyRef);
    if (status != noErr) return NULL;

    return hotKeyRef;
}

static void unregisterHotkey(EventHotKeyRef ref) {
    UnregisterEventHotKey(ref);
}
*/
import "C"

import (
	"fmt"
	"sync"

	"github.com/petems/soundboard/internal/keys"
)

// Carbon event modifier flags
const (
	cmdKey     = 0x0100
	shiftKey   = 0x0200
	optionKey  = 0x0800
	controlKey = 0x1000
)

// Virtual key codes from HIToolbox Events.h
var keyCodes = map[string]uint32{
	"A": 0x00, "S": 0x01, "D": 0x02, "F": 0x03, "H": 0x04, "G": 0x05,
	"Z": 0x06, "X": 0x07, "C": 0x08, "V": 0x09, "B": 0x0B, "Q": 0x0C,
	"W": 0x0D, "E": 0x0E, "R": 0x0F, "Y": 0x10, "T": 0x11, "O": 0x1F,
	"U": 0x20, "I": 0x22, "P": 0x23, "L": 0x25, "J": 0x26, "K": 0x28,
	"N": 0x2D, "M": 0x2E,

	"1": 0x12, "2": 0x13, "3": 0x14, "4": 0x15, "6": 0x16, "5": 0x17,
	"9": 0x19, "7": 0x1A, "8": 0x1C, "0": 0x1D,

	"Equal": 0x18, "Minus": 0x1B, "BracketRight": 0x1E, "BracketLeft": 0x21,
	"Quote": 0x27, "Semicolon": 0x29, "Backslash": 0x2A, "Comma": 0x2B,
	"Slash": 0x2C, "Period": 0x2F, "Grave": 0x32,

	"Enter": 0x24, "Tab": 0x30, "Space": 0x31, "Backspace": 0x33,
	"Escape": 0x35, "Insert": 0x72, "Home": 0x73, "PageUp": 0x74,
	"Delete": 0x75, "End": 0x77, "PageDown": 0x79, "Left": 0x7B,
	"Right": 0x7C, "Down": 0x7D, "Up": 0x7E,

	"F1": 0x7A, "F2": 0x78, "F3": 0x63, "F4": 0x76, "F5": 0x60, "F6": 0x61,
	"F7": 0x62, "F8": 0x64, "F9": 0x65, "F10": 0x6D, "F11": 0x67, "F12": 0x6F,
	"F13": 0x69, "F14": 0x6B, "F15": 0x71, "F16": 0x6A, "F17": 0x40,
	"F18": 0x4F, "F19": 0x50, "F20": 0x5A,

	"Num0": 0x52, "Num1": 0x53, "Num2": 0x54, "Num3": 0x55, "Num4": 0x56,
	"Num5": 0x57, "Num6": 0x58, "Num7": 0x59, "Num8": 0x5B, "Num9": 0x5C,
}

type darwinHotkey struct {
	id       uint32
	ref      C.EventHotKeyRef
	callback func()
}

type darwinManager struct {
	mu     sync.Mutex
	nextID uint32
	byName map[string]*darwinHotkey
	byID   map[uint32]*darwinHotkey
}

var (
	globalMu      sync.Mutex
	globalManager *darwinManager
)

// New creates a new macOS hotkey manager using Carbon. Events are delivered
// through the application run loop, which the tray owns.
func New() (Manager, error) {
	if C.installHandler() == 0 {
		return nil, fmt.Errorf("failed to install hotkey event handler")
	}

	mgr := &darwinManager{
		byName: make(map[string]*darwinHotkey),
		byID:   make(map[uint32]*darwinHotkey),
	}

	globalMu.Lock()
	globalManager = mgr
	globalMu.Unlock()

	return mgr, nil
}

//export goHotkeyCallback
func goHotkeyCallback(id C.int) {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m == nil {
		return
	}

	m.mu.Lock()
	hk, ok := m.byID[uint32(id)]
	m.mu.Unlock()

	if ok && hk.callback != nil {
		hk.callback()
	}
}

func (m *darwinManager) Register(accel string, callback func()) error {
	a, err := keys.Parse(accel)
	if err != nil {
		return err
	}
	name := a.String()

	code, ok := keyCodes[a.Key]
	if !ok {
		return fmt.Errorf("no key code for %s", name)
	}

	var mods uint32
	if a.Has(keys.ModCtrl) {
		mods |= controlKey
	}
	if a.Has(keys.ModAlt) {
		mods |= optionKey
	}
	if a.Has(keys.ModShift) {
		mods |= shiftKey
	}
	if a.Has(keys.ModSuper) {
		mods |= cmdKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrRegistered, name)
	}

	m.nextID++
	id := m.nextID

	ref := C.registerHotkey(C.UInt32(code), C.UInt32(mods), C.UInt32(id))
	if ref == nil {
		return fmt.Errorf("%w: %s", ErrGrabFailed, name)
	}

	hk := &darwinHotkey{id: id, ref: ref, callback: callback}
	m.byName[name] = hk
	m.byID[id] = hk
	return nil
}

func (m *darwinManager) Unregister(accel string) error {
	name, err := keys.Normalize(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hk, ok := m.byName[name]
	if !ok {
		return nil
	}
	C.unregisterHotkey(hk.ref)
	delete(m.byName, name)
	delete(m.byID, hk.id)
	return nil
}

func (m *darwinManager) Close() error {
	m.mu.Lock()
	for name, hk := range m.byName {
		C.unregisterHotkey(hk.ref)
		delete(m.byName, name)
		delete(m.byID, hk.id)
	}
	m.mu.Unlock()

	globalMu.Lock()
	if globalManager == m {
		globalManager = nil
	}
	globalMu.Unlock()
	return nil
}
