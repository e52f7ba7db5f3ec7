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

	"github.com/emberlabs-io/walletdb/internal/config"
	"github.com/spf13/cobra"
)

func depositsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposits",
		Short: "List unclaimed deposits",
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
			deposits, err := db.ListDeposits()
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			for _, deposit := range deposits {
				out, err := json.Marshal(&deposit)
				if err != nil {
					slog.Error(err.Error())
					os.Exit(1)
				}
				fmt.Println(string(out))
			}
		},
	}
	return cmd
}
