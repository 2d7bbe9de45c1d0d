package main

import (
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"revchain/core/genesis"
	"revchain/crypto"
	"revchain/native/revenue"
)

type domainFlags struct {
	genesis  string
	name     string
	chainID  uint64
	instance string
}

func (d *domainFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&d.genesis, "genesis", "", "genesis YAML holding the signing domain")
	fs.StringVar(&d.name, "domain-name", "", "signing domain name")
	fs.Uint64Var(&d.chainID, "chain-id", 0, "signing domain chain id")
	fs.StringVar(&d.instance, "instance", "", "signing domain instance address")
}

func (d *domainFlags) authorizer() (*revenue.Authorizer, error) {
	if path := strings.TrimSpace(d.genesis); path != "" {
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return nil, err
		}
		return revenue.NewAuthorizer(spec.SigningDomain())
	}
	domain := revenue.Domain{Name: strings.TrimSpace(d.name), ChainID: new(big.Int).SetUint64(d.chainID)}
	if domain.Name == "" {
		return nil, fmt.Errorf("--genesis or --domain-name is required")
	}
	if inst := strings.TrimSpace(d.instance); inst != "" {
		id, err := crypto.ParseIdentity(inst)
		if err != nil {
			return nil, fmt.Errorf("--instance: %w", err)
		}
		domain.Instance = id
	}
	return revenue.NewAuthorizer(domain)
}

func signDate(keyFile string, domain *domainFlags, date uint64) (string, [20]byte, error) {
	var zero [20]byte
	auth, err := domain.authorizer()
	if err != nil {
		return "", zero, err
	}
	key, err := loadKey(keyFile)
	if err != nil {
		return "", zero, err
	}
	sig, err := auth.Sign(key.PrivateKey, date)
	if err != nil {
		return "", zero, err
	}
	return hexutil.Encode(sig), key.Identity(), nil
}

func lastClosedDate() (uint64, error) {
	var last struct {
		Date uint64 `json:"date"`
	}
	if err := callAPI(http.MethodGet, "/v1/periods/last", nil, &last); err != nil {
		return 0, fmt.Errorf("fetch last closed period: %w", err)
	}
	return last.Date, nil
}

func runSign(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyFile string
	var date uint64
	var domain domainFlags
	fs.StringVar(&keyFile, "key", "", "keystore file")
	fs.Uint64Var(&date, "date", 0, "last closed period date to sign")
	domain.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if date == 0 {
		fmt.Fprintln(stderr, "Error: --date is required")
		return 1
	}
	sig, holder, err := signDate(keyFile, &domain, date)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSONResult(stdout, map[string]interface{}{
		"holder":     crypto.FromIdentity(holder).String(),
		"periodDate": date,
		"signature":  sig,
	})
	return 0
}

func runSigned(op string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(op+"-signed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyFile string
	var date uint64
	var domain domainFlags
	fs.StringVar(&keyFile, "key", "", "keystore file")
	fs.Uint64Var(&date, "date", 0, "last closed period date; fetched from the node when omitted")
	domain.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if date == 0 {
		var err error
		if date, err = lastClosedDate(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	sig, _, err := signDate(keyFile, &domain, date)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var result map[string]interface{}
	body := map[string]interface{}{"periodDate": date, "signature": sig}
	if err := callAPI(http.MethodPost, "/v1/"+op+"/signed", body, &result); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSONResult(stdout, result)
	return 0
}
