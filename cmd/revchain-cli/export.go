package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"revchain/crypto"
	"revchain/services/archive"
)

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var driver, dsn, out, holder, eventType string
	var verify bool
	fs.StringVar(&driver, "driver", "sqlite", "archive driver (sqlite or postgres)")
	fs.StringVar(&dsn, "dsn", "", "archive DSN")
	fs.StringVar(&out, "out", "", "parquet file to write")
	fs.StringVar(&holder, "holder", "", "only events touching this address")
	fs.StringVar(&eventType, "type", "", "only events of this type")
	fs.BoolVar(&verify, "verify", true, "verify the archive digest chain before exporting")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(dsn) == "" || strings.TrimSpace(out) == "" {
		fmt.Fprintln(stderr, "Error: --dsn and --out are required")
		return 1
	}
	filter := archive.Filter{Type: strings.TrimSpace(eventType)}
	if h := strings.TrimSpace(holder); h != "" {
		id, err := crypto.ParseIdentity(h)
		if err != nil {
			fmt.Fprintf(stderr, "Error: --holder: %v\n", err)
			return 1
		}
		filter.Holder = crypto.FromIdentity(id).String()
	}

	store, err := archive.Open(driver, dsn)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx := context.Background()
	if verify {
		if err := store.Verify(ctx); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	written, err := store.ExportParquet(ctx, out, filter)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSONResult(stdout, map[string]interface{}{"rows": written, "out": out})
	return 0
}
