package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/serdata/cmd/util"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"github.com/ValentinKolb/serdata/lib/ddsi/codec"
	"github.com/spf13/cobra"
	"os"
	"text/tabwriter"
)

var (
	// TypeCommands represents the types command group
	TypeCommands = &cobra.Command{
		Use:   "types",
		Short: "Inspect type layouts",
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists all types of the layout file",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	showCmd = &cobra.Command{
		Use:   "show [name]",
		Short: "Prints the layout of a type (name or name@version) as json",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Registers all types and prints the registry metrics",
		Args:  cobra.NoArgs,
		RunE:  runMetrics,
	}
)

func init() {
	TypeCommands.AddCommand(listCmd)
	TypeCommands.AddCommand(showCmd)
	TypeCommands.AddCommand(metricsCmd)
}

func runList(_ *cobra.Command, _ []string) error {
	_, sertypes, err := util.GetRegistry()
	if err != nil {
		return err
	}
	defer release(sertypes)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tFIELDS\tKEYLESS\tMAX KEY SIZE\tFINGERPRINT")
	for _, t := range sertypes {
		fields := len(layoutOf(t).Fields)
		maxKey := "unbounded"
		if t.MaxKeySize() > 0 {
			maxKey = fmt.Sprint(t.MaxKeySize())
		}
		fp := t.Fingerprint()
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%t\t%s\t%s\n",
			t.ID(), t.Name(), t.Version(), fields, t.KeyLess(), maxKey, hex.EncodeToString(fp[:]))
	}
	return w.Flush()
}

func runShow(_ *cobra.Command, args []string) error {
	_, sertypes, err := util.GetRegistry()
	if err != nil {
		return err
	}
	defer release(sertypes)

	t, err := util.FindType(sertypes, args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(layoutOf(t), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runMetrics(_ *cobra.Command, _ []string) error {
	reg, sertypes, err := util.GetRegistry()
	if err != nil {
		return err
	}
	defer release(sertypes)

	reg.WritePrometheus(os.Stdout)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// layoutOf returns the layout behind the ops of a type registered by util.GetRegistry
func layoutOf(t *ddsi.Sertype) *codec.Layout {
	return t.Ops().(codec.Ops).Layout()
}

// release drops the references returned by util.GetRegistry
func release(sertypes []*ddsi.Sertype) {
	for _, t := range sertypes {
		t.Release()
	}
}
