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
)

type PaymentType string

const (
	PaymentTypeSend    PaymentType = "send"
	PaymentTypeReceive PaymentType = "receive"
)

func ParsePaymentType(s string) (PaymentType, error) {
	switch PaymentType(s) {
	case PaymentTypeSend, PaymentTypeReceive:
		return PaymentType(s), nil
	}
	return "", fmt.Errorf("invalid payment type %q", s)
}

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFailed    PaymentStatus = "failed"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentStatusCompleted, PaymentStatusPending, PaymentStatusFailed:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("invalid payment status %q", s)
}

// IsFinal returns true when the status can no longer change
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

type PaymentMethod string

const (
	PaymentMethodLightning PaymentMethod = "lightning"
	PaymentMethodSpark     PaymentMethod = "spark"
	PaymentMethodToken     PaymentMethod = "token"
	PaymentMethodDeposit   PaymentMethod = "deposit"
	PaymentMethodWithdraw  PaymentMethod = "withdraw"
	PaymentMethodUnknown   PaymentMethod = "unknown"
)

// Payment represents a sent or received payment
type Payment struct {
	ID     string        `json:"id"`
	Type   PaymentType   `json:"paymentType"`
	Status PaymentStatus `json:"status"`
	Amount Amount        `json:"amount"`
	Fees   Amount        `json:"fees"`
	// Unix seconds
	Timestamp uint64 `json:"timestamp"`
	// Method is kept separately from Details since details may be absent
	Method  PaymentMethod   `json:"method"`
	Details *PaymentDetails `json:"details,omitempty"`
}

// PaymentDetails holds exactly one populated variant, matching the payment
// method. It round-trips through JSON without a separate type tag since the
// variants are distinguished by field name
type PaymentDetails struct {
	Spark     *SparkPaymentDetails     `json:"spark,omitempty"`
	Token     *TokenPaymentDetails     `json:"token,omitempty"`
	Lightning *LightningPaymentDetails `json:"lightning,omitempty"`
	Withdraw  *WithdrawPaymentDetails  `json:"withdraw,omitempty"`
	Deposit   *DepositPaymentDetails   `json:"deposit,omitempty"`
}

type SparkPaymentDetails struct {
	Invoice        *SparkInvoiceDetails `json:"invoice,omitempty"`
	Htlc           *SparkHtlcDetails    `json:"htlc,omitempty"`
	ConversionInfo *ConversionInfo      `json:"conversionInfo,omitempty"`
}

type TokenPaymentDetails struct {
	Metadata       TokenMetadata        `json:"metadata"`
	TxHash         string               `json:"txHash"`
	TxType         TokenTransactionType `json:"txType"`
	Invoice        *SparkInvoiceDetails `json:"invoice,omitempty"`
	ConversionInfo *ConversionInfo      `json:"conversionInfo,omitempty"`
}

type LightningPaymentDetails struct {
	// Bolt11/Bolt12 invoice paid by or to the user
	Invoice              string                `json:"invoice"`
	PaymentHash          string                `json:"paymentHash"`
	DestinationPubkey    string                `json:"destinationPubkey"`
	Description          *string               `json:"description,omitempty"`
	Preimage             *string               `json:"preimage,omitempty"`
	LnurlPayInfo         *LnurlPayInfo         `json:"lnurlPayInfo,omitempty"`
	LnurlWithdrawInfo    *LnurlWithdrawInfo    `json:"lnurlWithdrawInfo,omitempty"`
	LnurlReceiveMetadata *LnurlReceiveMetadata `json:"lnurlReceiveMetadata,omitempty"`
}

type WithdrawPaymentDetails struct {
	TxID string `json:"txId"`
}

type DepositPaymentDetails struct {
	TxID string `json:"txId"`
}

type SparkInvoiceDetails struct {
	Invoice     string  `json:"invoice"`
	Description *string `json:"description,omitempty"`
}

type SparkHtlcStatus string

const (
	SparkHtlcStatusWaitingForPreimage SparkHtlcStatus = "waiting_for_preimage"
	SparkHtlcStatusPreimageShared     SparkHtlcStatus = "preimage_shared"
	SparkHtlcStatusReturned           SparkHtlcStatus = "returned"
)

type SparkHtlcDetails struct {
	PaymentHash string          `json:"paymentHash"`
	Preimage    *string         `json:"preimage,omitempty"`
	ExpiryTime  uint64          `json:"expiryTime"`
	Status      SparkHtlcStatus `json:"status"`
}

type TokenTransactionType string

const (
	TokenTransactionTypeTransfer TokenTransactionType = "transfer"
	TokenTransactionTypeMint     TokenTransactionType = "mint"
	TokenTransactionTypeBurn     TokenTransactionType = "burn"
)

type TokenMetadata struct {
	Identifier string `json:"identifier"`
	// Hex-encoded issuer public key
	IssuerPublicKey string `json:"issuerPublicKey"`
	Name            string `json:"name"`
	Ticker          string `json:"ticker"`
	Decimals        uint32 `json:"decimals"`
	MaxSupply       Amount `json:"maxSupply"`
	IsFreezable     bool   `json:"isFreezable"`
}

type ConversionStatus string

const (
	ConversionStatusCompleted    ConversionStatus = "completed"
	ConversionStatusRefundNeeded ConversionStatus = "refund_needed"
	ConversionStatusRefunded     ConversionStatus = "refunded"
)

type ConversionInfo struct {
	PoolID       string           `json:"poolId"`
	ConversionID string           `json:"conversionId"`
	Status       ConversionStatus `json:"status"`
	Fee          *Amount          `json:"fee,omitempty"`
}

// Invoice returns the payment request associated with the payment, if any
func (p *Payment) Invoice() string {
	if p.Details == nil {
		return ""
	}
	switch {
	case p.Details.Lightning != nil:
		return p.Details.Lightning.Invoice
	case p.Details.Spark != nil && p.Details.Spark.Invoice != nil:
		return p.Details.Spark.Invoice.Invoice
	case p.Details.Token != nil && p.Details.Token.Invoice != nil:
		return p.Details.Token.Invoice.Invoice
	}
	return ""
}

// ConversionInfo returns conversion details attached to spark or token
// payments, if any
func (p *Payment) ConversionInfo() *ConversionInfo {
	if p.Details == nil {
		return nil
	}
	switch {
	case p.Details.Spark != nil:
		return p.Details.Spark.ConversionInfo
	case p.Details.Token != nil:
		return p.Details.Token.ConversionInfo
	}
	return nil
}
