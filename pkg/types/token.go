package types

import "math/big"

// TokenId identifies a token type. A newly issued token's id equals the
// id of the contract that issued it.
type TokenId Hash

func (t TokenId) IsZero() bool                     { return Hash(t).IsZero() }
func (t TokenId) String() string                   { return Hash(t).String() }
func (t TokenId) MarshalJSON() ([]byte, error)     { return Hash(t).MarshalJSON() }
func (t *TokenId) UnmarshalJSON(data []byte) error { return (*Hash)(t).UnmarshalJSON(data) }

// TokenAmount pairs a token id with a balance. Outputs carry a sorted
// (by TokenId, ascending) list of TokenAmount with strictly nonzero
// Amount values.
type TokenAmount struct {
	Id     TokenId  `json:"id"`
	Amount *big.Int `json:"amount"`
}

// SortedTokensValid reports whether tokens is sorted strictly ascending
// by TokenId with no duplicate ids and every amount nonzero.
func SortedTokensValid(tokens []TokenAmount) bool {
	for i, t := range tokens {
		if t.Amount == nil || t.Amount.Sign() <= 0 {
			return false
		}
		if i > 0 {
			prev := tokens[i-1].Id
			if compareHash(Hash(prev), Hash(t.Id)) >= 0 {
				return false
			}
		}
	}
	return true
}

func compareHash(a, b Hash) int {
	for i := 0; i < HashSize; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
