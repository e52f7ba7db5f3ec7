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

package database_test

import (
	"errors"
	"testing"

	"github.com/emberlabs-io/walletdb/database"
	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGetPayment(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			payment := testPayment("pmt-1", 1000)
			require.NoError(t, db.InsertPayment(payment))

			got, err := db.GetPayment("pmt-1")
			require.NoError(t, err)
			assert.Equal(t, payment.ID, got.ID)
			assert.Equal(t, payment.Type, got.Type)
			assert.Equal(t, payment.Status, got.Status)
			assert.Equal(t, uint64(21000), got.Amount.Uint64())
			assert.Equal(t, "lnbc1pmt-1", got.Invoice())

			// Unknown payment
			_, err = db.GetPayment("missing")
			var notFound database.NotFoundError
			require.ErrorAs(t, err, &notFound)
		})
	}
}

func TestInsertPaymentReplace(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			payment := testPayment("pmt-1", 1000)
			payment.Status = models.PaymentStatusPending
			require.NoError(t, db.InsertPayment(payment))

			// Replace with a new status and timestamp
			payment.Status = models.PaymentStatusCompleted
			payment.Timestamp = 2000
			require.NoError(t, db.InsertPayment(payment))

			got, err := db.GetPayment("pmt-1")
			require.NoError(t, err)
			assert.Equal(t, models.PaymentStatusCompleted, got.Status)
			assert.Equal(t, uint64(2000), got.Timestamp)

			// The list must show exactly one entry despite the moved
			// timestamp index key
			payments, err := db.ListPayments(models.ListPaymentsRequest{})
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, uint64(2000), payments[0].Timestamp)
		})
	}
}

func TestGetPaymentByInvoice(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			require.NoError(t, db.InsertPayment(testPayment("pmt-1", 1000)))

			got, err := db.GetPaymentByInvoice("lnbc1pmt-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "pmt-1", got.ID)

			// A miss is not an error
			got, err = db.GetPaymentByInvoice("lnbc1unknown")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestListPaymentsOrderAndPaging(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			for i := uint64(1); i <= 5; i++ {
				payment := testPayment(
					string(rune('a'+i-1))+"-pmt",
					i*100,
				)
				require.NoError(t, db.InsertPayment(payment))
			}

			// Default order is newest first
			limit := uint32(3)
			payments, err := db.ListPayments(models.ListPaymentsRequest{
				Limit: &limit,
			})
			require.NoError(t, err)
			require.Len(t, payments, 3)
			assert.Equal(t, uint64(500), payments[0].Timestamp)
			assert.Equal(t, uint64(400), payments[1].Timestamp)
			assert.Equal(t, uint64(300), payments[2].Timestamp)

			// Ascending with offset
			offset := uint32(1)
			payments, err = db.ListPayments(models.ListPaymentsRequest{
				Offset:        &offset,
				Limit:         &limit,
				SortAscending: true,
			})
			require.NoError(t, err)
			require.Len(t, payments, 3)
			assert.Equal(t, uint64(200), payments[0].Timestamp)
			assert.Equal(t, uint64(400), payments[2].Timestamp)

			// No limit returns everything
			payments, err = db.ListPayments(models.ListPaymentsRequest{})
			require.NoError(t, err)
			assert.Len(t, payments, 5)
		})
	}
}

func TestListPaymentsFilters(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			send := testPayment("send-1", 100)
			receive := testPayment("recv-1", 200)
			receive.Type = models.PaymentTypeReceive
			pending := testPayment("send-2", 300)
			pending.Status = models.PaymentStatusPending
			token := &models.Payment{
				ID:        "tok-1",
				Type:      models.PaymentTypeSend,
				Status:    models.PaymentStatusCompleted,
				Amount:    models.NewAmount(5),
				Timestamp: 400,
				Method:    models.PaymentMethodToken,
				Details: &models.PaymentDetails{
					Token: &models.TokenPaymentDetails{
						Metadata: models.TokenMetadata{
							Identifier: "usdt",
						},
						TxHash: "txhash-1",
						TxType: models.TokenTransactionTypeTransfer,
					},
				},
			}
			for _, p := range []*models.Payment{send, receive, pending, token} {
				require.NoError(t, db.InsertPayment(p))
			}

			// Type filter
			payments, err := db.ListPayments(models.ListPaymentsRequest{
				TypeFilter: []models.PaymentType{models.PaymentTypeReceive},
			})
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, "recv-1", payments[0].ID)

			// Status filter
			payments, err = db.ListPayments(models.ListPaymentsRequest{
				StatusFilter: []models.PaymentStatus{
					models.PaymentStatusPending,
				},
			})
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, "send-2", payments[0].ID)

			// Timestamp range is inclusive-exclusive
			from := uint64(200)
			to := uint64(400)
			payments, err = db.ListPayments(models.ListPaymentsRequest{
				FromTimestamp: &from,
				ToTimestamp:   &to,
			})
			require.NoError(t, err)
			require.Len(t, payments, 2)

			// Asset filter
			payments, err = db.ListPayments(models.ListPaymentsRequest{
				AssetFilter: &models.AssetFilter{Bitcoin: true},
			})
			require.NoError(t, err)
			assert.Len(t, payments, 3)
			ident := "usdt"
			payments, err = db.ListPayments(models.ListPaymentsRequest{
				AssetFilter: &models.AssetFilter{
					Token:           true,
					TokenIdentifier: &ident,
				},
			})
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, "tok-1", payments[0].ID)

			// Details filter on token tx hash
			txHash := "txhash-1"
			payments, err = db.ListPayments(models.ListPaymentsRequest{
				DetailsFilter: []models.PaymentDetailsFilter{
					{Token: &models.TokenDetailsFilter{TxHash: &txHash}},
				},
			})
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, "tok-1", payments[0].ID)
		})
	}
}

func TestRelatedPaymentsExcludedFromList(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			parent := testPayment("parent-1", 100)
			child := testPayment("child-1", 200)
			require.NoError(t, db.InsertPayment(parent))
			require.NoError(t, db.InsertPayment(child))

			parentID := "parent-1"
			require.NoError(t, db.SetPaymentMetadata(
				"child-1",
				models.PaymentMetadata{ParentPaymentID: &parentID},
			))

			payments, err := db.ListPayments(models.ListPaymentsRequest{})
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, "parent-1", payments[0].ID)

			// The child is reachable through its parent instead
			related, err := db.GetPaymentsByParentIDs([]string{"parent-1"})
			require.NoError(t, err)
			require.Len(t, related["parent-1"], 1)
			assert.Equal(t, "child-1", related["parent-1"][0].ID)
		})
	}
}

func TestGetPaymentsByParentIDs(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			// No metadata anywhere: short-circuit to empty
			related, err := db.GetPaymentsByParentIDs([]string{"parent-1"})
			require.NoError(t, err)
			assert.Empty(t, related)

			parentID := "parent-1"
			for _, id := range []string{"child-b", "child-a"} {
				ts := uint64(100)
				if id == "child-b" {
					ts = 200
				}
				require.NoError(t, db.InsertPayment(testPayment(id, ts)))
				require.NoError(t, db.SetPaymentMetadata(
					id,
					models.PaymentMetadata{ParentPaymentID: &parentID},
				))
			}

			related, err = db.GetPaymentsByParentIDs(
				[]string{"parent-1", "parent-2"},
			)
			require.NoError(t, err)
			require.Len(t, related["parent-1"], 2)
			// Sorted oldest first
			assert.Equal(t, "child-a", related["parent-1"][0].ID)
			assert.Equal(t, "child-b", related["parent-1"][1].ID)
			assert.Empty(t, related["parent-2"])
		})
	}
}

func TestSetPaymentMetadataMerge(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			require.NoError(t, db.InsertPayment(testPayment("pmt-1", 100)))

			lnAddress := "user@example.com"
			require.NoError(t, db.SetPaymentMetadata(
				"pmt-1",
				models.PaymentMetadata{
					LnurlPayInfo: &models.LnurlPayInfo{
						LnAddress: &lnAddress,
					},
				},
			))

			// A second write with different fields must not clobber the
			// first
			description := "coffee"
			require.NoError(t, db.SetPaymentMetadata(
				"pmt-1",
				models.PaymentMetadata{
					LnurlDescription: &description,
				},
			))

			got, err := db.GetPayment("pmt-1")
			require.NoError(t, err)
			require.NotNil(t, got.Details.Lightning.LnurlPayInfo)
			assert.Equal(
				t,
				lnAddress,
				*got.Details.Lightning.LnurlPayInfo.LnAddress,
			)
			require.NotNil(t, got.Details.Lightning.Description)
			assert.Equal(t, description, *got.Details.Lightning.Description)
		})
	}
}

func TestListPaymentsCorruptMetadata(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			require.NoError(t, db.InsertPayment(testPayment("pmt-1", 100)))

			// Clobber the metadata row underneath the repository. The
			// listing must degrade to the bare payment, not fail the page
			txn := db.Transaction(true)
			require.NoError(t, txn.Do(func(txn *database.Txn) error {
				return db.Store().Set(
					txn.Kv(),
					"payment_metadata",
					[]byte("pmt-1"),
					[]byte("{not json"),
				)
			}))

			payments, err := db.ListPayments(models.ListPaymentsRequest{})
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, "pmt-1", payments[0].ID)

			// The point lookup degrades the same way
			payment, err := db.GetPayment("pmt-1")
			require.NoError(t, err)
			assert.Equal(t, "pmt-1", payment.ID)
		})
	}
}

func TestSetLnurlReceiveMetadata(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			require.NoError(t, db.InsertPayment(testPayment("pmt-1", 100)))

			comment := "thanks!"
			require.NoError(t, db.SetLnurlReceiveMetadata(
				[]models.SetLnurlMetadataItem{
					{
						PaymentHash:   "hash-pmt-1",
						SenderComment: &comment,
					},
				},
			))

			got, err := db.GetPayment("pmt-1")
			require.NoError(t, err)
			require.NotNil(t, got.Details.Lightning.LnurlReceiveMetadata)
			assert.Equal(
				t,
				comment,
				*got.Details.Lightning.LnurlReceiveMetadata.SenderComment,
			)
		})
	}
}

func TestInsertPaymentInvalid(t *testing.T) {
	db := openTestDatabase(t, "badger")
	err := db.InsertPayment(&models.Payment{})
	require.True(t, errors.Is(err, database.ErrInvalidArgument))
	err = db.InsertPayment(nil)
	require.True(t, errors.Is(err, database.ErrInvalidArgument))
}
