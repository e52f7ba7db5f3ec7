// Copyright 2025 Ember Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

import (
	"fmt"
	"math/big"
)

// Amount represents a payment or token amount. Token amounts can exceed the
// range of uint64, so the value is carried as an arbitrary-precision integer
// and serialized as a decimal string. Amounts are never negative
type Amount struct {
	n big.Int
}

func NewAmount(v uint64) Amount {
	var a Amount
	a.n.SetUint64(v)
	return a
}

func NewAmountFromString(s string) (Amount, error) {
	var a Amount
	if _, ok := a.n.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	if a.n.Sign() < 0 {
		return Amount{}, fmt.Errorf("negative amount %q", s)
	}
	return a, nil
}

func (a Amount) String() string {
	return a.n.String()
}

func (a Amount) Uint64() uint64 {
	return a.n.Uint64()
}

func (a Amount) Cmp(b Amount) int {
	return a.n.Cmp(&b.n)
}

func (a Amount) IsZero() bool {
	return a.n.Sign() == 0
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.n.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if _, ok := a.n.SetString(s, 10); !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	if a.n.Sign() < 0 {
		return fmt.Errorf("negative amount %q", s)
	}
	return nil
}
