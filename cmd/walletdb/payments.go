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

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/emberlabs-io/walletdb/internal/config"
	"github.com/spf13/cobra"
)

func paymentsCommand() *cobra.Command {
	var (
		limit     uint32
		offset    uint32
		ascending bool
		typeName  string
		status    string
	)
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "List payments",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			logger := commonRun()
			db, err := openDatabase(cfg, logger)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			defer db.Close()
			req := models.ListPaymentsRequest{
				Offset:        &offset,
				Limit:         &limit,
				SortAscending: ascending,
			}
			if typeName != "" {
				paymentType, err := models.ParsePaymentType(typeName)
				if err != nil {
					slog.Error(err.Error())
					os.Exit(1)
				}
				req.TypeFilter = []models.PaymentType{paymentType}
			}
			if status != "" {
				paymentStatus, err := models.ParsePaymentStatus(status)
				if err != nil {
					slog.Error(err.Error())
					os.Exit(1)
				}
				req.StatusFilter = []models.PaymentStatus{paymentStatus}
			}
			payments, err := db.ListPayments(req)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			for _, payment := range payments {
				out, err := json.Marshal(&payment)
				if err != nil {
					slog.Error(err.Error())
					os.Exit(1)
				}
				fmt.Println(string(out))
			}
		},
	}
	cmd.Flags().
		Uint32Var(&limit, "limit", 50, "maximum number of payments to list")
	cmd.Flags().
		Uint32Var(&offset, "offset", 0, "number of payments to skip")
	cmd.Flags().
		BoolVar(&ascending, "ascending", false, "list oldest payments first")
	cmd.Flags().
		StringVar(&typeName, "type", "", "filter by payment type (send, receive)")
	cmd.Flags().
		StringVar(&status, "status", "", "filter by payment status (pending, completed, failed)")
	return cmd
}
