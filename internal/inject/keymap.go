// Package inject replays decoded input commands on the source display.
package inject

// Key codes on the wire are Windows virtual-key codes. Keysym maps them to
// X11 keysyms; 0 means the key has no mapping and is dropped.

const (
	xkBackSpace = 0xff08
	xkTab       = 0xff09
	xkReturn    = 0xff0d
	xkEscape    = 0xff1b
	xkDelete    = 0xffff
	xkHome      = 0xff50
	xkLeft      = 0xff51
	xkUp        = 0xff52
	xkRight     = 0xff53
	xkDown      = 0xff54
	xkPageUp    = 0xff55
	xkPageDown  = 0xff56
	xkEnd       = 0xff57
	xkShiftL    = 0xffe1
	xkShiftR    = 0xffe2
	xkControlL  = 0xffe3
	xkControlR  = 0xffe4
	xkCapsLock  = 0xffe5
	xkAltL      = 0xffe9
	xkAltR      = 0xffea
	xkF1        = 0xffbe
)

var vkTable = map[uint8]uint32{
	8:   xkBackSpace,
	9:   xkTab,
	13:  xkReturn,
	16:  xkShiftL,
	17:  xkControlL,
	18:  xkAltL,
	20:  xkCapsLock,
	27:  xkEscape,
	32:  ' ',
	33:  xkPageUp,
	34:  xkPageDown,
	35:  xkEnd,
	36:  xkHome,
	37:  xkLeft,
	38:  xkUp,
	39:  xkRight,
	40:  xkDown,
	46:  xkDelete,
	161: xkShiftR,
	163: xkControlR,
	165: xkAltR,
	186: ';',
	187: '=',
	188: ',',
	189: '-',
	190: '.',
	191: '/',
	192: '`',
	219: '[',
	220: '\\',
	221: ']',
	222: '\'',
}

// Keysym returns the X11 keysym for a virtual-key code.
func Keysym(vk uint8) uint32 {
	switch {
	case vk >= '0' && vk <= '9':
		return uint32(vk)
	case vk >= 'A' && vk <= 'Z':
		return uint32(vk - 'A' + 'a')
	case vk >= 112 && vk <= 123:
		return xkF1 + uint32(vk-112)
	}
	return vkTable[vk]
}

// Button numbers the X server uses for left, middle and right.
func x11Button(b uint8) (int, bool) {
	switch b {
	case 0:
		return 1, true
	case 1:
		return 2, true
	case 2:
		return 3, true
	}
	return 0, false
}
