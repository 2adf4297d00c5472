package sample

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/serdata/cmd/util"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"github.com/ValentinKolb/serdata/lib/ddsi/codec"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strings"
	"text/tabwriter"
)

var (
	// SampleCommands represents the sample command group
	SampleCommands = &cobra.Command{
		Use:   "sample",
		Short: "Encode and decode samples",
	}
	encodeCmd = &cobra.Command{
		Use:   "encode [type] [json]",
		Short: "Serializes a json sample and prints the resulting serdata",
		Long:  util.WrapString("Serializes a sample given as json object (e.g. '{\"id\": 1, \"x\": 0.5}') with the codec of the type and prints the payload, key, key hash and instance hash."),
		Args:  cobra.ExactArgs(2),
		RunE:  runEncode,
	}
	decodeCmd = &cobra.Command{
		Use:   "decode [type] [hex]",
		Short: "Decodes a hex payload and prints the sample as json",
		Args:  cobra.ExactArgs(2),
		RunE:  runDecode,
	}
)

func init() {
	key := "kind"
	SampleCommands.PersistentFlags().String(key, "data", util.WrapString("Serdata kind (key, data, data-with-key)"))

	SampleCommands.AddCommand(encodeCmd)
	SampleCommands.AddCommand(decodeCmd)
}

func runEncode(_ *cobra.Command, args []string) error {
	_, sertypes, err := util.GetRegistry()
	if err != nil {
		return err
	}
	defer release(sertypes)

	t, kind, err := typeAndKind(sertypes, args[0])
	if err != nil {
		return err
	}

	dec := json.NewDecoder(strings.NewReader(args[1]))
	dec.UseNumber()
	s := codec.Sample{}
	if err := dec.Decode(&s); err != nil {
		return fmt.Errorf("invalid json sample: %w", err)
	}

	d, err := ddsi.FromSample(t, kind, s)
	if err != nil {
		return err
	}
	defer d.RemoveRef()

	return printSerdata(t, d)
}

func runDecode(_ *cobra.Command, args []string) error {
	_, sertypes, err := util.GetRegistry()
	if err != nil {
		return err
	}
	defer release(sertypes)

	t, kind, err := typeAndKind(sertypes, args[0])
	if err != nil {
		return err
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ReplaceAll(args[1], " ", ""), "0x"))
	if err != nil {
		return fmt.Errorf("invalid hex payload: %w", err)
	}

	d, err := ddsi.FromSer(t, kind, raw)
	if err != nil {
		return err
	}
	defer d.RemoveRef()

	var s codec.Sample
	if err := d.ToSample(&s); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return err
	}
	fmt.Print(buf.String())
	fmt.Fprintf(os.Stderr, "keyhash: %s, hash: %08x\n", d.Key().Hash(), d.Hash())
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// typeAndKind resolves the type argument and the --kind flag
func typeAndKind(sertypes []*ddsi.Sertype, name string) (*ddsi.Sertype, ddsi.Kind, error) {
	t, err := util.FindType(sertypes, name)
	if err != nil {
		return nil, 0, err
	}
	kind, err := ddsi.ParseKind(viper.GetString("kind"))
	if err != nil {
		return nil, 0, err
	}
	return t, kind, nil
}

// printSerdata prints all attributes of a serdata
func printSerdata(t *ddsi.Sertype, d *ddsi.Serdata) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "type:\t%s (id %d)\n", t, t.ID())
	fmt.Fprintf(w, "kind:\t%s\n", d.Kind())
	fmt.Fprintf(w, "size:\t%d\n", d.Size())
	fmt.Fprintf(w, "key:\t%s\n", hex.EncodeToString(d.Key().Bytes()))
	fmt.Fprintf(w, "keyhash:\t%s\n", d.Key().Hash())
	fmt.Fprintf(w, "hash:\t%08x\n", d.Hash())
	fmt.Fprintf(w, "payload:\t%s\n", hex.EncodeToString(d.Payload()))
	fmt.Fprintf(w, "sample:\t%s\n", d)
	return w.Flush()
}

// release drops the references returned by util.GetRegistry
func release(sertypes []*ddsi.Sertype) {
	for _, t := range sertypes {
		t.Release()
	}
}
