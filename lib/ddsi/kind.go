package ddsi

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Serdata kinds
// --------------------------------------------------------------------------

// Kind tells which part of a sample a Serdata carries.
type Kind uint8

const (
	KindKey         Kind = iota + 1 // only the key fields (dispose, unregister, untyped)
	KindData                        // the full sample
	KindDataWithKey                 // the full sample, key extraction is mandatory
)

// Valid reports whether k is one of the defined kinds
func (k Kind) Valid() bool {
	return k >= KindKey && k <= KindDataWithKey
}

// HasData reports whether the payload carries the full sample
func (k Kind) HasData() bool {
	return k == KindData || k == KindDataWithKey
}

func (k Kind) String() string {
	switch k {
	case KindKey:
		return "Key"
	case KindData:
		return "Data"
	case KindDataWithKey:
		return "DataWithKey"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind converts the textual form (key, data, data-with-key) into a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "key":
		return KindKey, nil
	case "data":
		return KindData, nil
	case "data-with-key", "datawithkey":
		return KindDataWithKey, nil
	default:
		return 0, newErrorf(RetCBadParameter, "invalid kind %q (expected key, data or data-with-key)", s)
	}
}

// --------------------------------------------------------------------------
// Status info
// --------------------------------------------------------------------------

// StatusInfo carries the instance state changes attached to a sample.
type StatusInfo uint8

const (
	StatusDispose    StatusInfo = 1 << 0
	StatusUnregister StatusInfo = 1 << 1
)

// Disposed reports whether the dispose flag is set
func (s StatusInfo) Disposed() bool { return s&StatusDispose != 0 }

// Unregistered reports whether the unregister flag is set
func (s StatusInfo) Unregistered() bool { return s&StatusUnregister != 0 }

func (s StatusInfo) String() string {
	switch {
	case s.Disposed() && s.Unregistered():
		return "disposed|unregistered"
	case s.Disposed():
		return "disposed"
	case s.Unregistered():
		return "unregistered"
	default:
		return "alive"
	}
}
