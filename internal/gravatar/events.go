package gravatar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

// Contract and event kinds as registered.
const (
	ContractName        = "Gravatar"
	KindNewGravatar     = "NewGravatar"
	KindUpdatedGravatar = "UpdatedGravatar"
)

// Signatures of the indexed events, as written in indexer configs.
const (
	SignatureNewGravatar     = "NewGravatar(uint256 id, address owner, string displayName, string imageUrl)"
	SignatureUpdatedGravatar = "UpdatedGravatar(uint256 id, address owner, string displayName, string imageUrl)"
)

// Uint256 is a decoded uint256 event parameter. In JSON it accepts a
// number, a decimal string, or a 0x-prefixed hex string.
type Uint256 struct {
	big.Int
}

// NewUint256 returns n as a Uint256.
func NewUint256(n int64) Uint256 {
	var u Uint256
	u.SetInt64(n)
	return u
}

func (u *Uint256) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if _, ok := u.SetString(s, 0); !ok {
		return fmt.Errorf("invalid uint256 %s", data)
	}
	if u.Sign() < 0 {
		return fmt.Errorf("invalid uint256 %s: negative", data)
	}
	return nil
}

func (u Uint256) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Int.String())
}

// NewGravatarParams are the params of NewGravatar.
type NewGravatarParams struct {
	ID          Uint256 `json:"id"`
	Owner       string  `json:"owner"`
	DisplayName string  `json:"displayName"`
	ImageURL    string  `json:"imageUrl"`
}

// UpdatedGravatarParams are the params of UpdatedGravatar.
type UpdatedGravatarParams struct {
	ID          Uint256 `json:"id"`
	Owner       string  `json:"owner"`
	DisplayName string  `json:"displayName"`
	ImageURL    string  `json:"imageUrl"`
}
