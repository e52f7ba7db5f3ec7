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

import "encoding/json"

// PaymentMetadata is auxiliary payment information gathered outside the
// payment itself, merged into payments at read time. All fields are
// optional; a nil field in an update leaves the stored value untouched
type PaymentMetadata struct {
	ParentPaymentID   *string            `json:"parentPaymentId,omitempty"`
	LnurlPayInfo      *LnurlPayInfo      `json:"lnurlPayInfo,omitempty"`
	LnurlWithdrawInfo *LnurlWithdrawInfo `json:"lnurlWithdrawInfo,omitempty"`
	LnurlDescription  *string            `json:"lnurlDescription,omitempty"`
	ConversionInfo    *ConversionInfo    `json:"conversionInfo,omitempty"`
}

// Merge applies non-nil fields of other on top of m
func (m *PaymentMetadata) Merge(other PaymentMetadata) {
	if other.ParentPaymentID != nil {
		m.ParentPaymentID = other.ParentPaymentID
	}
	if other.LnurlPayInfo != nil {
		m.LnurlPayInfo = other.LnurlPayInfo
	}
	if other.LnurlWithdrawInfo != nil {
		m.LnurlWithdrawInfo = other.LnurlWithdrawInfo
	}
	if other.LnurlDescription != nil {
		m.LnurlDescription = other.LnurlDescription
	}
	if other.ConversionInfo != nil {
		m.ConversionInfo = other.ConversionInfo
	}
}

type LnurlPayInfo struct {
	LnAddress              *string         `json:"lnAddress,omitempty"`
	Comment                *string         `json:"comment,omitempty"`
	Domain                 *string         `json:"domain,omitempty"`
	Metadata               *string         `json:"metadata,omitempty"`
	ProcessedSuccessAction json.RawMessage `json:"processedSuccessAction,omitempty"`
	RawSuccessAction       json.RawMessage `json:"rawSuccessAction,omitempty"`
}

// ExtractDescription pulls the text/plain entry out of the LNURL-pay
// metadata array, if present
func (i *LnurlPayInfo) ExtractDescription() *string {
	if i.Metadata == nil {
		return nil
	}
	var entries [][]any
	if err := json.Unmarshal([]byte(*i.Metadata), &entries); err != nil {
		return nil
	}
	for _, entry := range entries {
		if len(entry) != 2 {
			continue
		}
		key, keyOk := entry[0].(string)
		value, valueOk := entry[1].(string)
		if keyOk && valueOk && key == "text/plain" {
			return &value
		}
	}
	return nil
}

type LnurlWithdrawInfo struct {
	WithdrawURL string `json:"withdrawUrl"`
}

// LnurlReceiveMetadata is receive-side LNURL information keyed by payment
// hash, recorded before the corresponding payment exists
type LnurlReceiveMetadata struct {
	SenderComment   *string `json:"senderComment,omitempty"`
	NostrZapRequest *string `json:"nostrZapRequest,omitempty"`
	NostrZapReceipt *string `json:"nostrZapReceipt,omitempty"`
}

// SetLnurlMetadataItem is one entry of a batch LNURL receive-metadata upsert
type SetLnurlMetadataItem struct {
	PaymentHash     string  `json:"paymentHash"`
	SenderComment   *string `json:"senderComment,omitempty"`
	NostrZapRequest *string `json:"nostrZapRequest,omitempty"`
	NostrZapReceipt *string `json:"nostrZapReceipt,omitempty"`
}
