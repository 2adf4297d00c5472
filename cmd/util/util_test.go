package util

import (
	"errors"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"github.com/ValentinKolb/serdata/lib/ddsi/codec"
	"github.com/lni/dragonboat/v4/logger"
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("Line exceeds %d characters: %q", Wrap, line)
		}
	}
	if WrapString("  short   text ") != "short text" {
		t.Errorf("Unexpected result %q", WrapString("  short   text "))
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logger.LogLevel
		wantErr bool
	}{
		{"debug", logger.DEBUG, false},
		{"INFO", logger.INFO, false},
		{"warn", logger.WARNING, false},
		{"warning", logger.WARNING, false},
		{"error", logger.ERROR, false},
		{"verbose", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unexpected error %v", err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFindType(t *testing.T) {
	reg := ddsi.NewRegistry(nil)
	v1 := DemoLayout()
	v2 := DemoLayout()
	v2.Version = 2

	types, err := codec.RegisterLayouts(reg, []*codec.Layout{v1, v2}, "cdr")
	if err != nil {
		t.Fatalf("RegisterLayouts failed: %v", err)
	}
	defer func() {
		for _, st := range types {
			st.Release()
		}
	}()

	tests := []struct {
		name    string
		version uint32
		found   bool
	}{
		{"Position", 2, true},
		{"Position@1", 1, true},
		{"Position@2", 2, true},
		{"Position@3", 0, false},
		{"Velocity", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := FindType(types, tt.name)
			if !tt.found {
				if !errors.Is(err, ddsi.ErrNotFound) {
					t.Errorf("Expected ErrNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindType failed: %v", err)
			}
			if st.Version() != tt.version {
				t.Errorf("Expected version %d, got %d", tt.version, st.Version())
			}
		})
	}
}

func TestDemoLayout(t *testing.T) {
	l := DemoLayout()
	if err := l.Validate(); err != nil {
		t.Fatalf("Demo layout is invalid: %v", err)
	}
	if l.KeyLess() {
		t.Error("Demo layout must be keyed")
	}
}
