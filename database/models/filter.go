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
	"strings"
)

// ListPaymentsRequest selects and pages payments. Filter classes combine
// with AND; values within a class combine with OR. Nil means "no filter"
type ListPaymentsRequest struct {
	TypeFilter    []PaymentType
	StatusFilter  []PaymentStatus
	AssetFilter   *AssetFilter
	DetailsFilter []PaymentDetailsFilter
	// Timestamp window [From, To)
	FromTimestamp *uint64
	ToTimestamp   *uint64
	Offset        *uint32
	Limit         *uint32
	SortAscending bool
}

// AssetFilter restricts payments to bitcoin payments or token payments,
// optionally a single token
type AssetFilter struct {
	Bitcoin bool
	// Token filter with optional identifier; nil identifier matches any token
	Token           bool
	TokenIdentifier *string
}

func ParseAssetFilter(s string) (*AssetFilter, error) {
	switch {
	case strings.EqualFold(s, "bitcoin"):
		return &AssetFilter{Bitcoin: true}, nil
	case strings.EqualFold(s, "token"):
		return &AssetFilter{Token: true}, nil
	case strings.HasPrefix(strings.ToLower(s), "token:"):
		ident := s[len("token:"):]
		return &AssetFilter{Token: true, TokenIdentifier: &ident}, nil
	}
	return nil, fmt.Errorf("invalid asset filter %q", s)
}

// PaymentDetailsFilter matches against variant-specific payment details.
// Exactly one of Spark or Token is set per filter entry
type PaymentDetailsFilter struct {
	Spark *SparkDetailsFilter
	Token *TokenDetailsFilter
}

type SparkDetailsFilter struct {
	HtlcStatus             []SparkHtlcStatus
	ConversionRefundNeeded *bool
}

type TokenDetailsFilter struct {
	ConversionRefundNeeded *bool
	TxHash                 *string
	TxType                 *TokenTransactionType
}
