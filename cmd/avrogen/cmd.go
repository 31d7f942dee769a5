package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reoring/avrogen"
	"github.com/reoring/avrogen/source"
	"github.com/reoring/avrogen/source/dir"
)

type app struct {
	fs     afero.Fs
	roots  []string
	id     string
	hexOut bool

	verbose bool
	tagged  bool

	log *zap.Logger
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}
	root := &cobra.Command{
		Use:           "avrogen",
		Short:         "compile Avro schemas into binary codecs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}
	pf := root.PersistentFlags()
	pf.StringArrayVar(&a.roots, "root", nil, "schema root directory (repeatable)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log compilation details")
	pf.BoolVar(&a.tagged, "tagged-unions", false, "decode unions as {Index, Value}")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list compiled schemas with their fingerprints",
		Args:  cobra.NoArgs,
		RunE:  a.runList,
	}
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "compile every schema and report failures",
		Args:  cobra.NoArgs,
		RunE:  a.runCheck,
	}
	roundtripCmd := &cobra.Command{
		Use:   "roundtrip",
		Short: "serialize, deserialize and re-serialize every example value",
		Args:  cobra.NoArgs,
		RunE:  a.runRoundtrip,
	}
	encodeCmd := &cobra.Command{
		Use:   "encode [file]",
		Short: "encode a JSON or YAML value (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runEncode,
	}
	encodeCmd.Flags().BoolVar(&a.hexOut, "hex", false, "write hex instead of raw bytes")
	decodeCmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "decode one binary value and print it as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runDecode,
	}
	decodeCmd.Flags().BoolVar(&a.hexOut, "hex", false, "read hex instead of raw bytes")
	for _, c := range []*cobra.Command{encodeCmd, decodeCmd} {
		c.Flags().StringVar(&a.id, "id", "", "schema identifier namespace.name.version")
		_ = c.MarkFlagRequired("id")
	}

	root.AddCommand(listCmd, checkCmd, roundtripCmd, encodeCmd, decodeCmd)
	return root
}

func (a *app) initLogger() error {
	var (
		log *zap.Logger
		err error
	)
	if a.verbose {
		log, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
		log, err = cfg.Build()
	}
	if err != nil {
		return errors.Wrap(err, "building logger")
	}
	a.log = log
	return nil
}

func (a *app) load(cmd *cobra.Command) (*avrogen.Registry, []avrogen.Document, error) {
	if len(a.roots) == 0 {
		return nil, nil, errors.New("at least one --root is required")
	}
	reg, err := avrogen.New(avrogen.Options{Logger: a.log, TaggedUnions: a.tagged})
	if err != nil {
		return nil, nil, err
	}
	src := dir.New(dir.Options{Fs: a.fs, Roots: a.roots, Logger: a.log})
	docs, err := reg.Discover(cmd.Context(), src)
	if err != nil {
		return nil, nil, err
	}
	return reg, docs, nil
}

func (a *app) runList(cmd *cobra.Command, _ []string) error {
	reg, _, err := a.load(cmd)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFINGERPRINT\tTYPES")
	for _, id := range reg.IDs() {
		c, err := reg.Get(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, c.FingerprintHex(), strings.Join(c.Types(), ","))
	}
	return tw.Flush()
}

func (a *app) runCheck(cmd *cobra.Command, _ []string) error {
	reg, docs, err := a.load(cmd)
	if err != nil {
		return err
	}
	failures := reg.Failures()
	ids := make([]avrogen.ID, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(x, y avrogen.ID) int { return strings.Compare(x.String(), y.String()) })
	out := cmd.OutOrStdout()
	for _, id := range ids {
		fmt.Fprintf(out, "FAIL %s: %v\n", id, failures[id])
	}
	fmt.Fprintf(out, "%d schemas, %d failed\n", len(docs), len(ids))
	if len(ids) > 0 {
		return errors.Newf("%d schemas failed to compile", len(ids))
	}
	return nil
}

func (a *app) runRoundtrip(cmd *cobra.Command, _ []string) error {
	reg, docs, err := a.load(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	failed := 0
	for _, d := range docs {
		if len(d.Examples) == 0 {
			continue
		}
		if _, err := reg.Get(d.ID); err != nil {
			continue
		}
		ok := true
		for i, ex := range d.Examples {
			if err := roundtrip(reg, d.ID, ex); err != nil {
				fmt.Fprintf(out, "FAIL %s example %d: %v\n", d.ID, i, err)
				ok = false
			}
		}
		if ok {
			fmt.Fprintf(out, "ok   %s (%d examples)\n", d.ID, len(d.Examples))
		} else {
			failed++
		}
	}
	if failed > 0 {
		return errors.Newf("%d schemas failed the round trip", failed)
	}
	return nil
}

// roundtrip checks that v survives serialize/deserialize and that the
// decoded value encodes to the same bytes.
func roundtrip(reg *avrogen.Registry, id avrogen.ID, v any) error {
	first, err := reg.Marshal(id, v)
	if err != nil {
		return errors.Wrap(err, "serialize")
	}
	decoded, err := reg.Unmarshal(id, first)
	if err != nil {
		return errors.Wrap(err, "deserialize")
	}
	second, err := reg.Marshal(id, decoded)
	if err != nil {
		return errors.Wrap(err, "re-serialize")
	}
	if !bytes.Equal(first, second) {
		return errors.Newf("re-encoding differs: %x != %x", first, second)
	}
	return nil
}

func (a *app) input(cmd *cobra.Command, args []string) (data []byte, name string, err error) {
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		return data, "", err
	}
	data, err = afero.ReadFile(a.fs, args[0])
	return data, args[0], err
}

func (a *app) runEncode(cmd *cobra.Command, args []string) error {
	id, err := avrogen.ParseID(a.id)
	if err != nil {
		return err
	}
	reg, _, err := a.load(cmd)
	if err != nil {
		return err
	}
	data, name, err := a.input(cmd, args)
	if err != nil {
		return errors.Wrap(err, "reading value")
	}
	v, err := source.Decode(source.FormatOf(name), data)
	if err != nil {
		return err
	}
	b, err := reg.Marshal(id, v)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if a.hexOut {
		_, err = fmt.Fprintln(out, hex.EncodeToString(b))
		return err
	}
	_, err = out.Write(b)
	return err
}

func (a *app) runDecode(cmd *cobra.Command, args []string) error {
	id, err := avrogen.ParseID(a.id)
	if err != nil {
		return err
	}
	reg, _, err := a.load(cmd)
	if err != nil {
		return err
	}
	data, _, err := a.input(cmd, args)
	if err != nil {
		return errors.Wrap(err, "reading value")
	}
	if a.hexOut {
		if data, err = hex.DecodeString(strings.TrimSpace(string(data))); err != nil {
			return errors.Wrap(err, "decoding hex")
		}
	}
	v, err := reg.Unmarshal(id, data)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
