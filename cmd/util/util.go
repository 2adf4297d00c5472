package util

import (
	"fmt"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"github.com/ValentinKolb/serdata/lib/ddsi/codec"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupTypeFlags adds the flags selecting the type layouts and the codec to a command
func SetupTypeFlags(cmd *cobra.Command) {
	key := "types"
	cmd.PersistentFlags().String(key, "", WrapString("Path to a json file with one or more type layouts. If empty, the built-in demo type 'Position' is used"))

	key = "codec"
	cmd.PersistentFlags().String(key, "cdr", WrapString("Payload codec of the registered types ("+strings.Join(codec.Codecs, ", ")+")"))

	key = "seed"
	cmd.PersistentFlags().Uint64(key, 0, WrapString("Seed of the instance hash"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("serdata")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetLayouts returns the layouts configured with --types (or the demo layout)
func GetLayouts() ([]*codec.Layout, error) {
	path := viper.GetString("types")
	if path == "" {
		return []*codec.Layout{DemoLayout()}, nil
	}
	return codec.LoadLayouts(path)
}

// GetRegistry creates a registry and registers all configured layouts with the
// configured codec. The returned types carry one reference each.
func GetRegistry() (*ddsi.Registry, []*ddsi.Sertype, error) {
	layouts, err := GetLayouts()
	if err != nil {
		return nil, nil, err
	}

	opts := ddsi.DefaultOptions()
	opts.Seed = viper.GetUint64("seed")
	reg := ddsi.NewRegistry(opts)

	types, err := codec.RegisterLayouts(reg, layouts, viper.GetString("codec"))
	if err != nil {
		return nil, nil, err
	}
	return reg, types, nil
}

// FindType selects a type by name ("name" or "name@version") from types
func FindType(types []*ddsi.Sertype, name string) (*ddsi.Sertype, error) {
	version := ""
	if i := strings.LastIndex(name, "@"); i >= 0 {
		name, version = name[:i], name[i+1:]
	}

	var found *ddsi.Sertype
	for _, t := range types {
		if t.Name() != name {
			continue
		}
		if version != "" && fmt.Sprint(t.Version()) != version {
			continue
		}
		if found == nil || t.Version() > found.Version() {
			found = t
		}
	}
	if found == nil {
		return nil, ddsi.NewError(ddsi.RetCNotFound, fmt.Sprintf("type %s is not defined", name))
	}
	return found, nil
}

// DemoLayout is the type used when no layout file is given
func DemoLayout() *codec.Layout {
	return &codec.Layout{
		Name:    "Position",
		Version: 1,
		Fields: []codec.Field{
			{Name: "id", Type: codec.TypeUint32, Key: true},
			{Name: "x", Type: codec.TypeFloat64},
			{Name: "y", Type: codec.TypeFloat64},
			{Name: "label", Type: codec.TypeString, Bound: 64},
		},
	}
}
