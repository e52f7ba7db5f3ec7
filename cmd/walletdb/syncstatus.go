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
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/emberlabs-io/walletdb/database"
	"github.com/emberlabs-io/walletdb/internal/config"
	"github.com/spf13/cobra"
)

func syncStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-status",
		Short: "Show sync engine status",
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
			lastRevision, err := db.LastRevision()
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			pending, err := db.PendingOutgoingChanges(math.MaxUint32)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			incoming, err := db.IncomingChanges(math.MaxUint32)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			_, initialComplete, err := db.GetCachedItem(
				database.SettingSyncInitialComplete,
			)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf("last revision:     %d\n", lastRevision)
			fmt.Printf("pending outgoing:  %d\n", len(pending))
			fmt.Printf("buffered incoming: %d\n", len(incoming))
			fmt.Printf("initial complete:  %t\n", initialComplete)
		},
	}
	return cmd
}
