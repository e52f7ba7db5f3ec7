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

// DepositInfo describes an on-chain deposit that has not been claimed into
// the wallet yet. ClaimError and refund fields are mutually exclusive:
// recording one clears the other
type DepositInfo struct {
	Txid       string             `json:"txid"`
	Vout       uint32             `json:"vout"`
	AmountSats uint64             `json:"amountSats"`
	RefundTx   *string            `json:"refundTx,omitempty"`
	RefundTxID *string            `json:"refundTxId,omitempty"`
	ClaimError *DepositClaimError `json:"claimError,omitempty"`
}

type DepositClaimErrorKind string

const (
	DepositClaimErrorFeeExceeded DepositClaimErrorKind = "max_claim_fee_exceeded"
	DepositClaimErrorMissingUtxo DepositClaimErrorKind = "missing_utxo"
	DepositClaimErrorGeneric     DepositClaimErrorKind = "generic"
)

// DepositClaimError records why an automatic claim attempt failed
type DepositClaimError struct {
	Kind DepositClaimErrorKind `json:"kind"`
	// Generic failure message
	Message string `json:"message,omitempty"`
	// Fee details, populated for fee-exceeded failures
	MaxFee                  *Fee   `json:"maxFee,omitempty"`
	RequiredFeeSats         uint64 `json:"requiredFeeSats,omitempty"`
	RequiredFeeRatePerVbyte uint64 `json:"requiredFeeRatePerVbyte,omitempty"`
}

// Fee is either a fixed satoshi amount or a sat/vbyte rate
type Fee struct {
	FixedAmount *uint64 `json:"fixedAmount,omitempty"`
	SatPerVbyte *uint64 `json:"satPerVbyte,omitempty"`
}

func (f Fee) ToSats(vbytes uint64) uint64 {
	if f.FixedAmount != nil {
		return *f.FixedAmount
	}
	if f.SatPerVbyte != nil {
		return *f.SatPerVbyte * vbytes
	}
	return 0
}

// DepositUpdate is the tagged outcome of a claim attempt: exactly one of
// ClaimError or Refund must be set
type DepositUpdate struct {
	ClaimError *DepositClaimError
	Refund     *DepositRefund
}

type DepositRefund struct {
	RefundTxid string
	RefundTx   string
}
