package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// bulkFile is the YAML batch accepted by `bulk`. Each entry carries either a
// ready signature or a keystore to sign with locally.
type bulkFile struct {
	Op         string      `yaml:"op"`
	PeriodDate uint64      `yaml:"periodDate,omitempty"`
	Domain     bulkDomain  `yaml:"domain,omitempty"`
	Entries    []bulkEntry `yaml:"entries"`
}

type bulkDomain struct {
	Genesis  string `yaml:"genesis,omitempty"`
	Name     string `yaml:"name,omitempty"`
	ChainID  uint64 `yaml:"chainId,omitempty"`
	Instance string `yaml:"instance,omitempty"`
}

type bulkEntry struct {
	PeriodDate uint64 `yaml:"periodDate,omitempty"`
	Signature  string `yaml:"signature,omitempty"`
	Keystore   string `yaml:"keystore,omitempty"`
}

func parseBulkFile(raw []byte) (*bulkFile, error) {
	var file bulkFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode bulk file: %w", err)
	}
	file.Op = strings.ToLower(strings.TrimSpace(file.Op))
	if file.Op != "redeem" && file.Op != "withdraw" {
		return nil, fmt.Errorf("op must be redeem or withdraw, got %q", file.Op)
	}
	if len(file.Entries) == 0 {
		return nil, fmt.Errorf("bulk file has no entries")
	}
	for i, entry := range file.Entries {
		hasSig := strings.TrimSpace(entry.Signature) != ""
		hasKey := strings.TrimSpace(entry.Keystore) != ""
		if hasSig == hasKey {
			return nil, fmt.Errorf("entry %d: exactly one of signature or keystore is required", i)
		}
	}
	return &file, nil
}

// requestBody resolves dates and signs keystore entries, producing the
// parallel arrays the bulk endpoint expects.
func (f *bulkFile) requestBody(defaultDate func() (uint64, error)) (map[string]interface{}, error) {
	domain := &domainFlags{genesis: f.Domain.Genesis, name: f.Domain.Name, chainID: f.Domain.ChainID, instance: f.Domain.Instance}
	dates := make([]uint64, len(f.Entries))
	sigs := make([]string, len(f.Entries))
	fallback := f.PeriodDate
	for i, entry := range f.Entries {
		date := entry.PeriodDate
		if date == 0 {
			if fallback == 0 {
				var err error
				if fallback, err = defaultDate(); err != nil {
					return nil, err
				}
			}
			date = fallback
		}
		dates[i] = date
		if sig := strings.TrimSpace(entry.Signature); sig != "" {
			sigs[i] = sig
			continue
		}
		sig, _, err := signDate(entry.Keystore, domain, date)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		sigs[i] = sig
	}
	return map[string]interface{}{"periodDates": dates, "signatures": sigs}, nil
}

func runBulk(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bulk", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	fs.StringVar(&path, "file", "", "YAML batch file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(path) == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		return 1
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	file, err := parseBulkFile(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	body, err := file.requestBody(lastClosedDate)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var result struct {
		Results []map[string]interface{} `json:"results"`
	}
	if err := callAPI(http.MethodPost, "/v1/"+file.Op+"/bulk", body, &result); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSONResult(stdout, result)
	failed := 0
	for _, item := range result.Results {
		if ok, _ := item["ok"].(bool); !ok {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(stderr, "%d of %d entries failed\n", failed, len(result.Results))
		return 2
	}
	return 0
}
