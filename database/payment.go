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

package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/emberlabs-io/walletdb/database/plugin/kv"
)

// InsertPayment upserts the full payment record with replace semantics
// and maintains the timestamp and invoice index collections
func (d *Database) InsertPayment(payment *models.Payment) error {
	if payment == nil || payment.ID == "" {
		return fmt.Errorf("%w: payment id is required", ErrInvalidArgument)
	}
	return d.transact(true, func(txn *Txn) error {
		// Drop index entries of any previous version of this payment
		existing, err := d.getPaymentTxn(txn, payment.ID)
		if err != nil {
			var notFound NotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
		}
		if existing != nil {
			err := d.store.Delete(
				txn.Kv(),
				collectionPaymentsByTime,
				PaymentTimeKey(existing.Timestamp, existing.ID),
			)
			if err != nil {
				return err
			}
			if invoice := existing.Invoice(); invoice != "" {
				err := d.store.Delete(
					txn.Kv(),
					collectionPaymentsByInvoice,
					[]byte(invoice),
				)
				if err != nil {
					return err
				}
			}
		}
		encoded, err := json.Marshal(payment)
		if err != nil {
			return fmt.Errorf("encode payment %q: %w", payment.ID, err)
		}
		err = d.store.Set(
			txn.Kv(),
			collectionPayments,
			[]byte(payment.ID),
			encoded,
		)
		if err != nil {
			return fmt.Errorf("insert payment %q: %w", payment.ID, err)
		}
		err = d.store.Set(
			txn.Kv(),
			collectionPaymentsByTime,
			PaymentTimeKey(payment.Timestamp, payment.ID),
			[]byte(payment.ID),
		)
		if err != nil {
			return err
		}
		if invoice := payment.Invoice(); invoice != "" {
			err := d.store.Set(
				txn.Kv(),
				collectionPaymentsByInvoice,
				[]byte(invoice),
				[]byte(payment.ID),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPayment returns the payment with metadata merged in, or
// NotFoundError if absent
func (d *Database) GetPayment(id string) (*models.Payment, error) {
	var payment *models.Payment
	err := d.transact(false, func(txn *Txn) error {
		var err error
		payment, err = d.getPaymentTxn(txn, id)
		if err != nil {
			return err
		}
		d.enrichPayment(txn, payment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// GetPaymentByInvoice looks a payment up by its payment request. A miss
// returns nil without an error
func (d *Database) GetPaymentByInvoice(
	invoice string,
) (*models.Payment, error) {
	var payment *models.Payment
	err := d.transact(false, func(txn *Txn) error {
		id, err := d.paymentIDByInvoiceTxn(txn, invoice)
		if err != nil || id == "" {
			return err
		}
		payment, err = d.getPaymentTxn(txn, id)
		if err != nil {
			return err
		}
		d.enrichPayment(txn, payment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (d *Database) paymentIDByInvoiceTxn(
	txn *Txn,
	invoice string,
) (string, error) {
	if d.store.Capabilities().IndexScans {
		id, err := d.store.Get(
			txn.Kv(),
			collectionPaymentsByInvoice,
			[]byte(invoice),
		)
		if err != nil {
			if errors.Is(err, kv.ErrKeyNotFound) {
				return "", nil
			}
			return "", fmt.Errorf("lookup invoice %q: %w", invoice, err)
		}
		return string(id), nil
	}
	// Conservative path: scan payments directly
	var found string
	err := d.scanCollection(
		txn,
		kv.IteratorOptions{Collection: collectionPayments},
		func(key, value []byte) error {
			var payment models.Payment
			if err := json.Unmarshal(value, &payment); err != nil {
				return CorruptRecordError{
					Collection: collectionPayments,
					Key:        string(key),
					Err:        err,
				}
			}
			if payment.Invoice() == invoice {
				found = payment.ID
			}
			return nil
		},
	)
	return found, err
}

// ListPayments returns payments ordered by timestamp, descending unless
// ascending is requested, after applying the request's filters and
// offset/limit pagination. Payments whose metadata references a parent
// payment are excluded; see GetPaymentsByParentIDs
func (d *Database) ListPayments(
	req models.ListPaymentsRequest,
) ([]models.Payment, error) {
	offset := uint32(0)
	if req.Offset != nil {
		offset = *req.Offset
	}
	limit := uint32(math.MaxUint32)
	if req.Limit != nil {
		limit = *req.Limit
	}
	var payments []models.Payment
	err := d.transact(false, func(txn *Txn) error {
		payments = nil
		var skipped uint32
		visit := func(payment *models.Payment) (bool, error) {
			if uint32(len(payments)) >= limit {
				return false, nil
			}
			meta, err := d.getMetadataTxn(txn, payment.ID)
			if err != nil {
				// Enrichment data never fails a listing; the page
				// carries the bare payment instead
				d.logger.Warn(
					"payment metadata lookup failed",
					"component", "database",
					"payment_id", payment.ID,
					"error", err,
				)
				meta = nil
			}
			if meta != nil && meta.ParentPaymentID != nil {
				// Related payment, excluded from top-level listings
				return true, nil
			}
			if !paymentMatchesRequest(payment, &req) {
				return true, nil
			}
			if skipped < offset {
				skipped++
				return true, nil
			}
			d.enrichPaymentWithMetadata(txn, payment, meta)
			payments = append(payments, *payment)
			return uint32(len(payments)) < limit, nil
		}
		if d.store.Capabilities().IndexScans {
			return d.walkPaymentsByTime(txn, req.SortAscending, visit)
		}
		return d.walkPaymentsByScan(txn, req.SortAscending, visit)
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// walkPaymentsByTime visits payments in timestamp order via the time
// index collection
func (d *Database) walkPaymentsByTime(
	txn *Txn,
	ascending bool,
	visit func(*models.Payment) (bool, error),
) error {
	iter := d.store.NewIterator(txn.Kv(), kv.IteratorOptions{
		Collection: collectionPaymentsByTime,
		Reverse:    !ascending,
	})
	defer iter.Close()
	for iter.Rewind(); iter.Valid(); iter.Next() {
		id, err := iter.Value()
		if err != nil {
			return err
		}
		payment, err := d.getPaymentTxn(txn, string(id))
		if err != nil {
			return err
		}
		more, err := visit(payment)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return iter.Err()
}

// walkPaymentsByScan visits payments in timestamp order by scanning and
// sorting the primary collection. Used when index scans are unavailable
func (d *Database) walkPaymentsByScan(
	txn *Txn,
	ascending bool,
	visit func(*models.Payment) (bool, error),
) error {
	var all []models.Payment
	err := d.scanCollection(
		txn,
		kv.IteratorOptions{Collection: collectionPayments},
		func(key, value []byte) error {
			var payment models.Payment
			if err := json.Unmarshal(value, &payment); err != nil {
				return CorruptRecordError{
					Collection: collectionPayments,
					Key:        string(key),
					Err:        err,
				}
			}
			all = append(all, payment)
			return nil
		},
	)
	if err != nil {
		return err
	}
	slices.SortFunc(all, func(a, b models.Payment) int {
		cmp := int(0)
		switch {
		case a.Timestamp < b.Timestamp:
			cmp = -1
		case a.Timestamp > b.Timestamp:
			cmp = 1
		default:
			switch {
			case a.ID < b.ID:
				cmp = -1
			case a.ID > b.ID:
				cmp = 1
			}
		}
		if !ascending {
			cmp = -cmp
		}
		return cmp
	})
	for i := range all {
		more, err := visit(&all[i])
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// GetPaymentsByParentIDs returns related payments grouped by parent id,
// sorted by timestamp ascending. It short-circuits to an empty result
// when no metadata row anywhere carries a parent id
func (d *Database) GetPaymentsByParentIDs(
	parentIDs []string,
) (map[string][]models.Payment, error) {
	result := make(map[string][]models.Payment)
	err := d.transact(false, func(txn *Txn) error {
		clear(result)
		indexed := d.store.Capabilities().IndexScans
		if indexed {
			any, err := d.anyParentIndexEntry(txn)
			if err != nil {
				return err
			}
			if !any {
				return nil
			}
		}
		// Without index scans the existence answer is a conservative
		// "might exist", so fall through to the lookup
		for _, parentID := range parentIDs {
			ids, err := d.childPaymentIDs(txn, parentID, indexed)
			if err != nil {
				return err
			}
			for _, id := range ids {
				payment, err := d.getPaymentTxn(txn, id)
				if err != nil {
					var notFound NotFoundError
					if errors.As(err, &notFound) {
						// Metadata without a matching payment yet
						continue
					}
					return err
				}
				d.enrichPayment(txn, payment)
				result[parentID] = append(result[parentID], *payment)
			}
		}
		for parentID := range result {
			slices.SortFunc(
				result[parentID],
				func(a, b models.Payment) int {
					switch {
					case a.Timestamp < b.Timestamp:
						return -1
					case a.Timestamp > b.Timestamp:
						return 1
					}
					return 0
				},
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Database) anyParentIndexEntry(txn *Txn) (bool, error) {
	iter := d.store.NewIterator(txn.Kv(), kv.IteratorOptions{
		Collection: collectionPaymentMetadataByParent,
	})
	defer iter.Close()
	iter.Rewind()
	return iter.Valid(), iter.Err()
}

func (d *Database) childPaymentIDs(
	txn *Txn,
	parentID string,
	indexed bool,
) ([]string, error) {
	var ids []string
	if indexed {
		err := d.scanCollection(
			txn,
			kv.IteratorOptions{
				Collection: collectionPaymentMetadataByParent,
				Prefix:     MetadataParentPrefix(parentID),
			},
			func(key, value []byte) error {
				ids = append(ids, string(value))
				return nil
			},
		)
		return ids, err
	}
	err := d.scanCollection(
		txn,
		kv.IteratorOptions{Collection: collectionPaymentMetadata},
		func(key, value []byte) error {
			var meta models.PaymentMetadata
			if err := json.Unmarshal(value, &meta); err != nil {
				return CorruptRecordError{
					Collection: collectionPaymentMetadata,
					Key:        string(key),
					Err:        err,
				}
			}
			if meta.ParentPaymentID != nil &&
				*meta.ParentPaymentID == parentID {
				ids = append(ids, string(key))
			}
			return nil
		},
	)
	return ids, err
}

// SetPaymentMetadata merges the given metadata into any existing row for
// the payment. A nil field never clobbers an existing value
func (d *Database) SetPaymentMetadata(
	paymentID string,
	metadata models.PaymentMetadata,
) error {
	if paymentID == "" {
		return fmt.Errorf("%w: payment id is required", ErrInvalidArgument)
	}
	return d.transact(true, func(txn *Txn) error {
		merged := models.PaymentMetadata{}
		existing, err := d.getMetadataTxn(txn, paymentID)
		if err != nil {
			return err
		}
		if existing != nil {
			merged = *existing
		}
		merged.Merge(metadata)
		encoded, err := json.Marshal(&merged)
		if err != nil {
			return fmt.Errorf(
				"encode payment metadata %q: %w",
				paymentID,
				err,
			)
		}
		err = d.store.Set(
			txn.Kv(),
			collectionPaymentMetadata,
			[]byte(paymentID),
			encoded,
		)
		if err != nil {
			return fmt.Errorf("set payment metadata %q: %w", paymentID, err)
		}
		// Maintain the parent-id index
		var oldParent *string
		if existing != nil {
			oldParent = existing.ParentPaymentID
		}
		if oldParent != nil &&
			(merged.ParentPaymentID == nil ||
				*merged.ParentPaymentID != *oldParent) {
			err := d.store.Delete(
				txn.Kv(),
				collectionPaymentMetadataByParent,
				MetadataParentKey(*oldParent, paymentID),
			)
			if err != nil {
				return err
			}
		}
		if merged.ParentPaymentID != nil {
			err := d.store.Set(
				txn.Kv(),
				collectionPaymentMetadataByParent,
				MetadataParentKey(*merged.ParentPaymentID, paymentID),
				[]byte(paymentID),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SetLnurlReceiveMetadata upserts receive-side LNURL metadata in bulk,
// keyed by payment hash
func (d *Database) SetLnurlReceiveMetadata(
	items []models.SetLnurlMetadataItem,
) error {
	if len(items) == 0 {
		return nil
	}
	return d.transact(true, func(txn *Txn) error {
		for _, item := range items {
			if item.PaymentHash == "" {
				return fmt.Errorf(
					"%w: payment hash is required",
					ErrInvalidArgument,
				)
			}
			encoded, err := json.Marshal(&models.LnurlReceiveMetadata{
				SenderComment:   item.SenderComment,
				NostrZapRequest: item.NostrZapRequest,
				NostrZapReceipt: item.NostrZapReceipt,
			})
			if err != nil {
				return err
			}
			err = d.store.Set(
				txn.Kv(),
				collectionLnurlReceiveMetadata,
				[]byte(item.PaymentHash),
				encoded,
			)
			if err != nil {
				return fmt.Errorf(
					"set lnurl receive metadata %q: %w",
					item.PaymentHash,
					err,
				)
			}
		}
		return nil
	})
}

// getPaymentTxn reads and decodes a payment without enrichment
func (d *Database) getPaymentTxn(
	txn *Txn,
	id string,
) (*models.Payment, error) {
	val, err := d.store.Get(txn.Kv(), collectionPayments, []byte(id))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, NotFoundError{
				Collection: collectionPayments,
				Key:        id,
			}
		}
		return nil, fmt.Errorf("get payment %q: %w", id, err)
	}
	var payment models.Payment
	if err := json.Unmarshal(val, &payment); err != nil {
		return nil, CorruptRecordError{
			Collection: collectionPayments,
			Key:        id,
			Err:        err,
		}
	}
	return &payment, nil
}

// getMetadataTxn reads a metadata row, or nil if absent
func (d *Database) getMetadataTxn(
	txn *Txn,
	paymentID string,
) (*models.PaymentMetadata, error) {
	val, err := d.store.Get(
		txn.Kv(),
		collectionPaymentMetadata,
		[]byte(paymentID),
	)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf(
			"get payment metadata %q: %w",
			paymentID,
			err,
		)
	}
	var meta models.PaymentMetadata
	if err := json.Unmarshal(val, &meta); err != nil {
		return nil, CorruptRecordError{
			Collection: collectionPaymentMetadata,
			Key:        paymentID,
			Err:        err,
		}
	}
	return &meta, nil
}

// enrichPayment folds auxiliary metadata into the payment's details.
// Enrichment is best-effort: a failed lookup leaves the base record
// intact rather than failing the read
func (d *Database) enrichPayment(txn *Txn, payment *models.Payment) {
	meta, err := d.getMetadataTxn(txn, payment.ID)
	if err != nil {
		d.logger.Warn(
			"payment metadata lookup failed",
			"component", "database",
			"payment_id", payment.ID,
			"error", err,
		)
		meta = nil
	}
	d.enrichPaymentWithMetadata(txn, payment, meta)
}

func (d *Database) enrichPaymentWithMetadata(
	txn *Txn,
	payment *models.Payment,
	meta *models.PaymentMetadata,
) {
	if payment.Details == nil {
		return
	}
	switch {
	case payment.Details.Lightning != nil:
		lightning := payment.Details.Lightning
		if meta != nil {
			if meta.LnurlPayInfo != nil {
				lightning.LnurlPayInfo = meta.LnurlPayInfo
			}
			if meta.LnurlWithdrawInfo != nil {
				lightning.LnurlWithdrawInfo = meta.LnurlWithdrawInfo
			}
			if lightning.Description == nil &&
				meta.LnurlDescription != nil {
				lightning.Description = meta.LnurlDescription
			}
		}
		if lightning.PaymentHash != "" {
			receiveMeta, err := d.getLnurlReceiveMetadataTxn(
				txn,
				lightning.PaymentHash,
			)
			if err != nil {
				d.logger.Warn(
					"lnurl receive metadata lookup failed",
					"component", "database",
					"payment_id", payment.ID,
					"error", err,
				)
			} else if receiveMeta != nil {
				lightning.LnurlReceiveMetadata = receiveMeta
			}
		}
	case payment.Details.Spark != nil:
		if meta != nil && meta.ConversionInfo != nil {
			payment.Details.Spark.ConversionInfo = meta.ConversionInfo
		}
	case payment.Details.Token != nil:
		if meta != nil && meta.ConversionInfo != nil {
			payment.Details.Token.ConversionInfo = meta.ConversionInfo
		}
	}
}

func (d *Database) getLnurlReceiveMetadataTxn(
	txn *Txn,
	paymentHash string,
) (*models.LnurlReceiveMetadata, error) {
	val, err := d.store.Get(
		txn.Kv(),
		collectionLnurlReceiveMetadata,
		[]byte(paymentHash),
	)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var meta models.LnurlReceiveMetadata
	if err := json.Unmarshal(val, &meta); err != nil {
		return nil, CorruptRecordError{
			Collection: collectionLnurlReceiveMetadata,
			Key:        paymentHash,
			Err:        err,
		}
	}
	return &meta, nil
}

// paymentMatchesRequest applies the request's filter classes. Classes
// combine with AND; values within a class combine with OR
func paymentMatchesRequest(
	payment *models.Payment,
	req *models.ListPaymentsRequest,
) bool {
	if req.TypeFilter != nil &&
		!slices.Contains(req.TypeFilter, payment.Type) {
		return false
	}
	if req.StatusFilter != nil &&
		!slices.Contains(req.StatusFilter, payment.Status) {
		return false
	}
	if req.FromTimestamp != nil && payment.Timestamp < *req.FromTimestamp {
		return false
	}
	if req.ToTimestamp != nil && payment.Timestamp >= *req.ToTimestamp {
		return false
	}
	if req.AssetFilter != nil &&
		!paymentMatchesAsset(payment, req.AssetFilter) {
		return false
	}
	if len(req.DetailsFilter) > 0 {
		matched := false
		for i := range req.DetailsFilter {
			if paymentMatchesDetailsFilter(payment, &req.DetailsFilter[i]) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func paymentMatchesAsset(
	payment *models.Payment,
	filter *models.AssetFilter,
) bool {
	token := payment.Details != nil && payment.Details.Token != nil
	if filter.Bitcoin {
		return !token && payment.Method != models.PaymentMethodToken
	}
	if filter.Token {
		if !token {
			return false
		}
		if filter.TokenIdentifier != nil {
			return payment.Details.Token.Metadata.Identifier ==
				*filter.TokenIdentifier
		}
		return true
	}
	return true
}

func paymentMatchesDetailsFilter(
	payment *models.Payment,
	filter *models.PaymentDetailsFilter,
) bool {
	switch {
	case filter.Spark != nil:
		if payment.Details == nil || payment.Details.Spark == nil {
			return false
		}
		spark := payment.Details.Spark
		if len(filter.Spark.HtlcStatus) > 0 {
			if spark.Htlc == nil ||
				!slices.Contains(
					filter.Spark.HtlcStatus,
					spark.Htlc.Status,
				) {
				return false
			}
		}
		if filter.Spark.ConversionRefundNeeded != nil {
			refundNeeded := spark.ConversionInfo != nil &&
				spark.ConversionInfo.Status ==
					models.ConversionStatusRefundNeeded
			if refundNeeded != *filter.Spark.ConversionRefundNeeded {
				return false
			}
		}
		return true
	case filter.Token != nil:
		if payment.Details == nil || payment.Details.Token == nil {
			return false
		}
		token := payment.Details.Token
		if filter.Token.ConversionRefundNeeded != nil {
			refundNeeded := token.ConversionInfo != nil &&
				token.ConversionInfo.Status ==
					models.ConversionStatusRefundNeeded
			if refundNeeded != *filter.Token.ConversionRefundNeeded {
				return false
			}
		}
		if filter.Token.TxHash != nil &&
			token.TxHash != *filter.Token.TxHash {
			return false
		}
		if filter.Token.TxType != nil &&
			token.TxType != *filter.Token.TxType {
			return false
		}
		return true
	}
	return false
}
