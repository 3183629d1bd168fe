// Command aggbagcat dumps an aggregate-bag file's entries as
// tab-separated text, one row per (key, counter) pair, in the
// conventional SiLK *cat tool style.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/movsoftware/silk-sub015/pkg/aggbag"
	"github.com/movsoftware/silk-sub015/pkg/fieldtype"
	"github.com/movsoftware/silk-sub015/pkg/layout"
	"github.com/movsoftware/silk-sub015/pkg/recstream"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <aggbag-file> [<aggbag-file>...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	for _, path := range flag.Args() {
		if err := dumpFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "aggbagcat: %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func dumpFile(path string) error {
	r, err := recstream.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	registry := layout.NewRegistry()
	bag := aggbag.New(registry)
	if err := bag.ReadFrom(r); err != nil {
		return err
	}

	keyL := bag.KeyLayout()
	counterL := bag.CounterLayout()
	printHeaderRow(keyL, counterL)

	for key, counter := range bag.Iterate() {
		printEntry(keyL, counterL, key, counter)
	}
	return nil
}

func printHeaderRow(keyL, counterL *layout.Layout) {
	var cols []string
	for _, f := range keyL.Fields() {
		cols = append(cols, fieldName(f.Type))
	}
	for _, f := range counterL.Fields() {
		cols = append(cols, fieldName(f.Type))
	}
	for i, c := range cols {
		if i > 0 {
			fmt.Print("\t")
		}
		fmt.Print(c)
	}
	fmt.Println()
}

func fieldName(t fieldtype.Type) string {
	d, ok := fieldtype.Describe(t)
	if !ok {
		return fmt.Sprintf("type(%d)", t)
	}
	return d.Name
}

func printEntry(keyL, counterL *layout.Layout, key aggbag.KeyView, counter aggbag.CounterView) {
	var cells []string
	for _, f := range keyL.Fields() {
		cells = append(cells, formatField([]byte(key), f))
	}
	for _, f := range counterL.Fields() {
		cells = append(cells, formatField([]byte(counter), f))
	}
	for i, c := range cells {
		if i > 0 {
			fmt.Print("\t")
		}
		fmt.Print(c)
	}
	fmt.Println()
}

func formatField(raw []byte, f layout.Field) string {
	b := raw[f.Offset : f.Offset+f.Length]
	d, ok := fieldtype.Describe(f.Type)
	if !ok {
		return hex.EncodeToString(b)
	}
	switch d.Kind {
	case fieldtype.KindIPv4, fieldtype.KindIPv6:
		return net.IP(b).String()
	case fieldtype.KindSigned:
		return fmt.Sprintf("%d", int64(bigEndianUint(b)))
	default:
		return fmt.Sprintf("%d", bigEndianUint(b))
	}
}

func bigEndianUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
