// core/genesis/spec.go
package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"revchain/crypto"
	"revchain/native/revenue"
)

// GenesisSpec is the YAML document that bootstraps a ledger.
type GenesisSpec struct {
	GenesisTime      string            `yaml:"genesisTime,omitempty"`
	Owner            string            `yaml:"owner"`
	SupplyCap        string            `yaml:"supplyCap"`
	PeriodDuration   string            `yaml:"periodDuration,omitempty"`
	BlackoutDuration string            `yaml:"blackoutDuration,omitempty"`
	Custody          string            `yaml:"custody,omitempty"`
	Domain           DomainSpec        `yaml:"domain"`
	Alloc            map[string]string `yaml:"alloc,omitempty"` // addr -> units

	genesisTimestamp time.Time
	params           revenue.Params
	supplyCap        *big.Int
	custody          [20]byte
	domain           revenue.Domain
	allocations      []Allocation
}

// DomainSpec names the signing domain delegated requests are bound to.
type DomainSpec struct {
	Name     string `yaml:"name"`
	ChainID  uint64 `yaml:"chainId"`
	Instance string `yaml:"instance,omitempty"`
}

// Allocation is a bootstrap deposit minted before the first period closes.
type Allocation struct {
	Holder [20]byte
	Amount *big.Int
}

// LoadGenesisSpec reads and validates the genesis document at path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a YAML genesis document. Unknown
// fields are rejected.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// GenesisTimestamp is zero when the document leaves the start to the node clock.
func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }
func (s *GenesisSpec) Params() revenue.Params { return s.params }
func (s *GenesisSpec) CustodyAddress() [20]byte { return s.custody }

// SigningDomain is the domain delegated signatures must be bound to.
func (s *GenesisSpec) SigningDomain() revenue.Domain {
	d := s.domain
	d.ChainID = new(big.Int).Set(s.domain.ChainID)
	return d
}
func (s *GenesisSpec) SupplyCapValue() *big.Int { return new(big.Int).Set(s.supplyCap) }

// Allocations returns the bootstrap deposits sorted by holder.
func (s *GenesisSpec) Allocations() []Allocation {
	out := make([]Allocation, len(s.allocations))
	for i, a := range s.allocations {
		out[i] = Allocation{Holder: a.Holder, Amount: new(big.Int).Set(a.Amount)}
	}
	return out
}

func (s *GenesisSpec) validate() error {
	if strings.TrimSpace(s.GenesisTime) != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s.GenesisTime))
		if err != nil {
			return fmt.Errorf("genesisTime: %w", err)
		}
		if ts.Unix() < 0 {
			return fmt.Errorf("genesisTime must not precede the unix epoch")
		}
		s.genesisTimestamp = ts.UTC()
	}

	owner, err := crypto.ParseIdentity(s.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	params := revenue.DefaultParams()
	params.Owner = owner
	if params.PeriodDuration, err = parseSeconds(s.PeriodDuration, params.PeriodDuration); err != nil {
		return fmt.Errorf("periodDuration: %w", err)
	}
	if params.BlackoutDuration, err = parseSeconds(s.BlackoutDuration, params.BlackoutDuration); err != nil {
		return fmt.Errorf("blackoutDuration: %w", err)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	s.params = params

	if s.supplyCap, err = revenue.ParseAmount(strings.TrimSpace(s.SupplyCap)); err != nil {
		return fmt.Errorf("supplyCap: %w", err)
	}

	if strings.TrimSpace(s.Custody) != "" {
		if s.custody, err = crypto.ParseIdentity(s.Custody); err != nil {
			return fmt.Errorf("custody: %w", err)
		}
	}

	name := strings.TrimSpace(s.Domain.Name)
	if name == "" {
		return fmt.Errorf("domain.name required")
	}
	s.domain = revenue.Domain{Name: name, ChainID: new(big.Int).SetUint64(s.Domain.ChainID)}
	if strings.TrimSpace(s.Domain.Instance) != "" {
		if s.domain.Instance, err = crypto.ParseIdentity(s.Domain.Instance); err != nil {
			return fmt.Errorf("domain.instance: %w", err)
		}
	}

	total := big.NewInt(0)
	s.allocations = s.allocations[:0]
	for addr, raw := range s.Alloc {
		holder, err := crypto.ParseIdentity(addr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addr, err)
		}
		amount, err := revenue.ParseAmount(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addr, err)
		}
		if amount.Sign() == 0 {
			return fmt.Errorf("alloc %q: amount must be positive", addr)
		}
		total.Add(total, amount)
		s.allocations = append(s.allocations, Allocation{Holder: holder, Amount: amount})
	}
	if total.Cmp(s.supplyCap) > 0 {
		return fmt.Errorf("allocations total %s exceeds supplyCap %s", total, s.supplyCap)
	}
	sort.Slice(s.allocations, func(i, j int) bool {
		return bytes.Compare(s.allocations[i].Holder[:], s.allocations[j].Holder[:]) < 0
	})
	return nil
}

func parseSeconds(raw string, fallback uint64) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, err
	}
	if d < time.Second {
		return 0, fmt.Errorf("must be at least one second")
	}
	return uint64(d / time.Second), nil
}
