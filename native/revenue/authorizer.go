package revenue

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/unicode/norm"
)

const (
	domainTypeSignature     = "RevenueLedger(string name,uint256 chainId,address instance)"
	lastPeriodTypeSignature = "LastPeriodDate(uint256 date)"
	signatureLength         = 65
)

var (
	domainTypeHash     = ethcrypto.Keccak256([]byte(domainTypeSignature))
	lastPeriodTypeHash = ethcrypto.Keccak256([]byte(lastPeriodTypeSignature))
)

// Domain binds delegated signatures to one ledger deployment.
type Domain struct {
	Name     string
	ChainID  *big.Int
	Instance [20]byte
}

// Authorizer verifies delegated requests: a holder signs the date of the last
// closed period under the ledger's domain, and anyone may submit the request
// on the holder's behalf.
type Authorizer struct {
	domain    Domain
	separator []byte
}

// NewAuthorizer precomputes the domain separator. The domain name is NFKC
// normalised before hashing.
func NewAuthorizer(domain Domain) (*Authorizer, error) {
	domain.Name = norm.NFKC.String(strings.TrimSpace(domain.Name))
	if domain.Name == "" {
		return nil, fmt.Errorf("revenue: signing domain name required")
	}
	chainID := domain.ChainID
	if chainID == nil {
		chainID = big.NewInt(0)
	}
	if chainID.Sign() < 0 || chainID.BitLen() > 256 {
		return nil, fmt.Errorf("revenue: invalid chain id %s", chainID)
	}
	separator := ethcrypto.Keccak256(
		domainTypeHash,
		ethcrypto.Keccak256([]byte(domain.Name)),
		common.LeftPadBytes(chainID.Bytes(), 32),
		common.LeftPadBytes(domain.Instance[:], 32),
	)
	domain.ChainID = new(big.Int).Set(chainID)
	return &Authorizer{domain: domain, separator: separator}, nil
}

// Domain returns the configured signing domain.
func (a *Authorizer) Domain() Domain {
	d := a.domain
	d.ChainID = new(big.Int).Set(a.domain.ChainID)
	return d
}

// Digest returns the 32-byte message a holder signs for periodDate.
func (a *Authorizer) Digest(periodDate uint64) []byte {
	var date [32]byte
	binary.BigEndian.PutUint64(date[24:], periodDate)
	structHash := ethcrypto.Keccak256(lastPeriodTypeHash, date[:])
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, a.separator, structHash)
}

// Sign produces a 65-byte [R || S || V] signature with V in {27, 28}.
func (a *Authorizer) Sign(key *ecdsa.PrivateKey, periodDate uint64) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("revenue: signing key required")
	}
	sig, err := ethcrypto.Sign(a.Digest(periodDate), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Recover returns the identity that signed periodDate.
func (a *Authorizer) Recover(periodDate uint64, signature []byte) ([20]byte, error) {
	var signer [20]byte
	if len(signature) != signatureLength {
		return signer, ErrInvalidSignature
	}
	sig := make([]byte, signatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return signer, ErrInvalidSignature
	}
	pub, err := ethcrypto.SigToPub(a.Digest(periodDate), sig)
	if err != nil {
		return signer, ErrInvalidSignature
	}
	signer = ethcrypto.PubkeyToAddress(*pub)
	if isZeroAddress(signer) {
		return signer, ErrInvalidSignature
	}
	return signer, nil
}
