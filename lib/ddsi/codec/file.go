package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"os"
	"strings"
)

// Ops is implemented by all operation tables of this package
type Ops interface {
	ddsi.SerdataOps
	ddsi.Printer
	// Layout returns the layout the ops encode
	Layout() *Layout
	// Descriptor returns the registry descriptor for these ops
	Descriptor() ddsi.Descriptor
}

var (
	_ Ops = (*CDROps)(nil)
	_ Ops = (*FormatOps)(nil)
)

// Codecs lists the codec names accepted by NewOps
var Codecs = []string{"cdr", "json", "msgpack", "gob"}

// NewOps creates the operations for a layout by codec name (see Codecs)
func NewOps(layout *Layout, codec string) (Ops, error) {
	switch strings.ToLower(codec) {
	case "cdr", "xcdr", "xcdr1":
		return NewCDR(layout)
	case "json":
		return NewFormatOps(layout, NewJSONFormat())
	case "msgpack":
		return NewFormatOps(layout, NewMsgpackFormat())
	case "gob":
		return NewFormatOps(layout, NewGOBFormat())
	default:
		return nil, fmt.Errorf("invalid codec %s (must be one of %s)", codec, strings.Join(Codecs, ", "))
	}
}

// ParseLayouts decodes one layout or a list of layouts from json and validates them
func ParseLayouts(data []byte) ([]*Layout, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty layout definition")
	}

	var layouts []*Layout
	if data[0] == '[' {
		if err := json.Unmarshal(data, &layouts); err != nil {
			return nil, fmt.Errorf("parse layouts: %w", err)
		}
	} else {
		l := &Layout{}
		if err := json.Unmarshal(data, l); err != nil {
			return nil, fmt.Errorf("parse layout: %w", err)
		}
		layouts = append(layouts, l)
	}

	if len(layouts) == 0 {
		return nil, fmt.Errorf("no layouts defined")
	}
	for _, l := range layouts {
		if l == nil {
			return nil, fmt.Errorf("null layout in list")
		}
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	return layouts, nil
}

// LoadLayouts reads a json layout file (see ParseLayouts)
func LoadLayouts(path string) ([]*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	layouts, err := ParseLayouts(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return layouts, nil
}

// RegisterLayouts creates ops for every layout and registers them. On error
// the types registered so far are released again.
// The caller owns one reference on every returned Sertype.
func RegisterLayouts(reg *ddsi.Registry, layouts []*Layout, codec string) ([]*ddsi.Sertype, error) {
	types := make([]*ddsi.Sertype, 0, len(layouts))
	for _, l := range layouts {
		ops, err := NewOps(l, codec)
		if err == nil {
			var t *ddsi.Sertype
			if t, err = reg.Register(ops.Descriptor()); err == nil {
				types = append(types, t)
				continue
			}
		}
		for _, t := range types {
			t.Release()
		}
		return nil, err
	}
	return types, nil
}
