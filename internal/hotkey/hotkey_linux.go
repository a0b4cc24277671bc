//go:build linux

package hotkey

/*
#cgo pkg-config: x11
#include <X11/Xlib.h>
#include <X11/XKBlib.h>
#include <X11/keysym.h>
#include <stdlib.h>

Display* displayPtr = NULL;
static int grabFailed = 0;

static int onXError(Display* d, XErrorEvent* e) {
    if (e->error_code == BadAccess) grabFailed = 1;
    return 0;
}

int openDisplay() {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
        if (displayPtr == NULL) return 0;
        XSetErrorHandler(onXError);
        XSelectInput(displayPtr, DefaultRootWindow(displayPtr), KeyPressMask);
    }
    return 1;
}

void closeDisplay() {
    if (displayPtr != NULL) {
        XCloseDisplay(displayPtr);
        displayPtr = NULL;
    }
}

int keycodeFor(const char* name) {
    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

// Grab with every combination of CapsLock and NumLock so the hotkey fires
// regardless of lock state.
int grabKey(int keycode, unsigned int modifiers) {
    Window root = DefaultRootWindow(displayPtr);
    unsigned int locks[4] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};
    grabFailed = 0;
    for (int i = 0; i < 4; i++) {
        XGrabKey(displayPtr, keycode, modifiers | locks[i], root, False, GrabModeAsync, GrabModeAsync);
    }
    XSync(displayPtr, False);
    return grabFailed ? 0 : 1;
}

void ungrabKey(int keycode, unsigned int modifiers) {
    Window root = DefaultRootWindow(displayPtr);
    unsigned int locks[4] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};
    for (int i = 0; i < 4; i++) {
        XUngrabKey(displayPtr, keycode, modifiers | locks[i], root);
    }
    XSync(displayPtr, False);
}

int grabKeyboard() {
    int r = XGrabKeyboard(displayPtr, DefaultRootWindow(displayPtr), False, GrabModeAsync, GrabModeAsync, CurrentTime);
    XSync(displayPtr, False);
    return r == GrabSuccess;
}

void ungrabKeyboard() {
    XUngrabKeyboard(displayPtr, CurrentTime);
    XSync(displayPtr, False);
}

int checkEvent(int* keycode, unsigned int* state) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    while (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress) {
            *keycode = event.xkey.keycode;
            *state = event.xkey.state;
            return 1;
        }
    }
    return 0;
}

const char* keysymName(int keycode) {
    KeySym sym = XkbKeycodeToKeysym(displayPtr, keycode, 0, 0);
    if (sym == NoSymbol) return NULL;
    return XKeysymToString(sym);
}
*/
import "C"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/petems/soundboard/internal/keys"
)

const (
	shiftMask = 1 << 0
	ctrlMask  = 1 << 2
	mod1Mask  = 1 << 3 // Alt
	mod4Mask  = 1 << 6 // Super
	modMask   = shiftMask | ctrlMask | mod1Mask | mod4Mask
)

// X keysym names for canonical key names that differ
var keysyms = map[string]string{
	"Space":        "space",
	"Enter":        "Return",
	"Backspace":    "BackSpace",
	"PageUp":       "Prior",
	"PageDown":     "Next",
	"Minus":        "minus",
	"Equal":        "equal",
	"Comma":        "comma",
	"Period":       "period",
	"Slash":        "slash",
	"Backslash":    "backslash",
	"Semicolon":    "semicolon",
	"Quote":        "apostrophe",
	"Grave":        "grave",
	"BracketLeft":  "bracketleft",
	"BracketRight": "bracketright",
}

// level 0 keypad symbols, NumLock off
var keypad = map[string]string{
	"KP_Insert": "Num0",
	"KP_End":    "Num1",
	"KP_Down":   "Num2",
	"KP_Next":   "Num3",
	"KP_Left":   "Num4",
	"KP_Begin":  "Num5",
	"KP_Right":  "Num6",
	"KP_Home":   "Num7",
	"KP_Up":     "Num8",
	"KP_Prior":  "Num9",
}

var modifierSyms = map[string]bool{
	"Shift_L": true, "Shift_R": true, "Control_L": true, "Control_R": true,
	"Alt_L": true, "Alt_R": true, "Super_L": true, "Super_R": true,
	"Meta_L": true, "Meta_R": true, "ISO_Level3_Shift": true,
	"Caps_Lock": true, "Num_Lock": true,
}

type grab struct {
	keycode  int
	mods     uint
	callback func()
}

type linuxManager struct {
	mu      sync.Mutex
	grabs   map[string]grab
	reqs    chan func()
	capture *captureReq
	stop    chan struct{}
	done    chan struct{}
}

// New creates a new Linux hotkey manager using X11. Every X call runs on the
// event loop goroutine.
func New() (Manager, error) {
	mgr := &linuxManager{
		grabs: make(map[string]grab),
		reqs:  make(chan func()),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	opened := make(chan bool, 1)
	go mgr.eventLoop(opened)
	if !<-opened {
		return nil, fmt.Errorf("failed to open X display")
	}

	return mgr, nil
}

func (m *linuxManager) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case m.reqs <- func() { fn(); close(finished) }:
	case <-m.done:
		return fmt.Errorf("hotkey manager closed")
	}
	<-finished
	return nil
}

func (m *linuxManager) Register(accel string, callback func()) error {
	a, err := keys.Parse(accel)
	if err != nil {
		return err
	}
	name := a.String()

	sym := a.Key
	if s, ok := keysyms[sym]; ok {
		sym = s
	} else if n, ok := strings.CutPrefix(sym, "Num"); ok {
		sym = "KP_" + n
	}
	mods := x11Mods(a)

	var regErr error
	err = m.do(func() {
		m.mu.Lock()
		_, exists := m.grabs[name]
		m.mu.Unlock()
		if exists {
			regErr = fmt.Errorf("%w: %s", ErrRegistered, name)
			return
		}

		cs := C.CString(sym)
		defer C.free(unsafe.Pointer(cs))

		keycode := int(C.keycodeFor(cs))
		if keycode == 0 {
			regErr = fmt.Errorf("no keycode for %s", name)
			return
		}
		if C.grabKey(C.int(keycode), C.uint(mods)) == 0 {
			C.ungrabKey(C.int(keycode), C.uint(mods))
			regErr = fmt.Errorf("%w: %s", ErrGrabFailed, name)
			return
		}

		m.mu.Lock()
		m.grabs[name] = grab{keycode: keycode, mods: mods, callback: callback}
		m.mu.Unlock()
	})
	if err != nil {
		return err
	}
	return regErr
}

func (m *linuxManager) Unregister(accel string) error {
	name, err := keys.Normalize(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	g, ok := m.grabs[name]
	delete(m.grabs, name)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	return m.do(func() {
		C.ungrabKey(C.int(g.keycode), C.uint(g.mods))
	})
}

// Capture grabs the whole keyboard until a non-modifier key is pressed
func (m *linuxManager) Capture(ctx context.Context) (string, error) {
	req := &captureReq{result: make(chan captureResult, 1)}

	var startErr error
	err := m.do(func() {
		if m.capture != nil {
			startErr = ErrCaptureActive
			return
		}
		if C.grabKeyboard() == 0 {
			startErr = fmt.Errorf("failed to grab keyboard")
			return
		}
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
				C.ungrabKeyboard()
			}
		})
		return "", ctx.Err()
	}
}

func (m *linuxManager) eventLoop(opened chan<- bool) {
	defer close(m.done)

	if C.openDisplay() == 0 {
		opened <- false
		return
	}
	defer C.closeDisplay()
	opened <- true

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case fn := <-m.reqs:
			fn()
		case <-ticker.C:
			var keycode C.int
			var state C.uint
			for C.checkEvent(&keycode, &state) != 0 {
				m.dispatch(int(keycode), uint(state)&modMask)
			}
		}
	}
}

func (m *linuxManager) dispatch(keycode int, mods uint) {
	if m.capture != nil {
		m.captured(keycode, mods)
		return
	}

	m.mu.Lock()
	var cb func()
	for _, g := range m.grabs {
		if g.keycode == keycode && g.mods == mods {
			cb = g.callback
			break
		}
	}
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (m *linuxManager) captured(keycode int, mods uint) {
	cname := C.keysymName(C.int(keycode))
	if cname == nil {
		return
	}
	sym := C.GoString(cname)
	if modifierSyms[sym] {
		return
	}

	var res captureResult
	if sym == "Escape" && mods == 0 {
		res.err = ErrCaptureCanceled
	} else if name, ok := canonicalFromKeysym(sym); ok {
		res.accel = keys.Accel{Mods: accelMods(mods), Key: name}.String()
	} else {
		// unknown key, keep waiting
		return
	}

	C.ungrabKeyboard()
	m.capture.result <- res
	m.capture = nil
}

func canonicalFromKeysym(sym string) (string, bool) {
	if name, ok := keypad[sym]; ok {
		return name, true
	}
	for name, s := range keysyms {
		if s == sym {
			return name, true
		}
	}
	if n, ok := strings.CutPrefix(sym, "KP_"); ok {
		sym = "Num" + n
	}
	a, err := keys.Parse(sym)
	if err != nil {
		return "", false
	}
	return a.Key, true
}

func x11Mods(a keys.Accel) uint {
	var mods uint
	if a.Has(keys.ModShift) {
		mods |= shiftMask
	}
	if a.Has(keys.ModCtrl) {
		mods |= ctrlMask
	}
	if a.Has(keys.ModAlt) {
		mods |= mod1Mask
	}
	if a.Has(keys.ModSuper) {
		mods |= mod4Mask
	}
	return mods
}

func accelMods(mods uint) keys.Mod {
	var m keys.Mod
	if mods&shiftMask != 0 {
		m |= keys.ModShift
	}
	if mods&ctrlMask != 0 {
		m |= keys.ModCtrl
	}
	if mods&mod1Mask != 0 {
		m |= keys.ModAlt
	}
	if mods&mod4Mask != 0 {
		m |= keys.ModSuper
	}
	return m
}

func (m *linuxManager) Close() error {
	select {
	case <-m.done:
	default:
		close(m.stop)
		<-m.done
	}
	return nil
}
