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

package walletdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emberlabs-io/walletdb/database"
	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// PushResult is the server's acknowledgement of one pushed change: the
// authoritative record that resulted from applying it
type PushResult struct {
	LocalRevision uint64
	Record        models.Record
}

// Transport moves sync records between this device and the remote sync
// server
type Transport interface {
	Push(ctx context.Context, changes []models.OutgoingChange) ([]PushResult, error)
	Pull(ctx context.Context, sinceRevision uint64) ([]models.Record, error)
}

// SyncService runs the periodic sync cycle: pull remote records into the
// incoming buffer, apply them, then push pending local changes. A failed
// cycle leaves everything queued for the next one
type SyncService struct {
	logger    *slog.Logger
	db        *database.Database
	transport Transport
	interval  time.Duration
	batch     uint32
	clientID  string

	startMutex sync.Mutex
	started    bool
	cancel     context.CancelFunc
	triggerCh  chan struct{}
	wg         sync.WaitGroup

	metricPulled     prometheus.Counter
	metricApplied    prometheus.Counter
	metricPushed     prometheus.Counter
	metricCycleError prometheus.Counter
}

func NewSyncService(
	db *database.Database,
	transport Transport,
	cfg Config,
) *SyncService {
	s := &SyncService{
		logger:    cfg.logger,
		db:        db,
		transport: transport,
		interval:  cfg.syncInterval,
		batch:     cfg.syncBatch,
		triggerCh: make(chan struct{}, 1),
	}
	if s.logger == nil {
		s.logger = db.Logger()
	}
	s.registerMetrics(cfg.promRegistry)
	return s
}

func (s *SyncService) registerMetrics(registry prometheus.Registerer) {
	s.metricPulled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "walletdb_sync_pulled_records_total",
		Help: "total records pulled from the sync server",
	})
	s.metricApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "walletdb_sync_applied_records_total",
		Help: "total incoming records applied locally",
	})
	s.metricPushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "walletdb_sync_pushed_changes_total",
		Help: "total local changes acknowledged by the sync server",
	})
	s.metricCycleError = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "walletdb_sync_cycle_errors_total",
		Help: "total sync cycles that ended in an error",
	})
	if registry != nil {
		registry.MustRegister(
			s.metricPulled,
			s.metricApplied,
			s.metricPushed,
			s.metricCycleError,
		)
	}
}

// Start launches the sync loop. An immediate cycle runs before the
// periodic schedule begins
func (s *SyncService) Start() error {
	s.startMutex.Lock()
	defer s.startMutex.Unlock()
	if s.started {
		return nil
	}
	clientID, err := s.ensureClientID()
	if err != nil {
		return err
	}
	s.clientID = clientID
	s.logger.Info(
		"starting sync service",
		"component", "sync",
		"client_id", clientID,
		"interval", s.interval.String(),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// ClientID returns the identifier this device presents to the sync
// server, or empty before the first Start
func (s *SyncService) ClientID() string {
	s.startMutex.Lock()
	defer s.startMutex.Unlock()
	return s.clientID
}

// ensureClientID loads the stable per-device identifier, generating and
// persisting one on first use
func (s *SyncService) ensureClientID() (string, error) {
	id, found, err := s.db.GetCachedItem(database.SettingSyncClientID)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.db.SetCachedItem(database.SettingSyncClientID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Stop halts the sync loop and waits for any in-flight cycle to finish
func (s *SyncService) Stop() error {
	s.startMutex.Lock()
	defer s.startMutex.Unlock()
	if !s.started {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	s.started = false
	return nil
}

// Trigger requests an immediate sync cycle. It never blocks; a trigger
// while a cycle is already queued is folded into it
func (s *SyncService) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.triggerCh:
			s.cycle(ctx)
		}
	}
}

func (s *SyncService) cycle(ctx context.Context) {
	if err := s.syncOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metricCycleError.Inc()
		s.logger.Warn(
			"sync cycle failed",
			"component", "sync",
			"error", err,
		)
	}
}

func (s *SyncService) syncOnce(ctx context.Context) error {
	if err := s.pullRemote(ctx); err != nil {
		return err
	}
	if err := s.applyIncoming(); err != nil {
		return err
	}
	if err := s.pushPending(ctx); err != nil {
		return err
	}
	return s.markInitialComplete()
}

// pullRemote fetches remote records past our high-water mark into the
// incoming buffer and applies them, repeating until the server has
// nothing newer
func (s *SyncService) pullRemote(ctx context.Context) error {
	for {
		since, err := s.db.LastRevision()
		if err != nil {
			return err
		}
		records, err := s.transport.Pull(ctx, since)
		if err != nil {
			return fmt.Errorf("pull since revision %d: %w", since, err)
		}
		if len(records) == 0 {
			return nil
		}
		s.metricPulled.Add(float64(len(records)))
		if err := s.db.InsertIncomingRecords(records); err != nil {
			return err
		}
		if err := s.applyIncoming(); err != nil {
			return err
		}
	}
}

// applyIncoming drains the incoming buffer. Each record is folded into
// its local table first; only then is the buffer entry removed and the
// synced state advanced, so a crash replays rather than drops
func (s *SyncService) applyIncoming() error {
	for {
		changes, err := s.db.IncomingChanges(s.batch)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		for _, change := range changes {
			record := change.NewState
			if err := s.applyRecord(record); err != nil {
				return err
			}
			if err := s.db.DeleteIncomingRecord(record); err != nil {
				return err
			}
			if err := s.db.UpdateRecordFromIncoming(record); err != nil {
				return err
			}
			s.metricApplied.Inc()
		}
	}
}

func (s *SyncService) applyRecord(record models.Record) error {
	switch record.ID.Type {
	case models.RecordTypePaymentMetadata:
		metadata, err := metadataFromRecordData(record.Data)
		if err != nil {
			return fmt.Errorf(
				"decode metadata record %q: %w",
				record.ID.DataID,
				err,
			)
		}
		return s.db.SetPaymentMetadata(record.ID.DataID, metadata)
	case models.RecordTypeSettings:
		return s.db.SetCachedItem(record.ID.DataID, record.Data["value"])
	case models.RecordTypeDeposit:
		return s.applyDepositRecord(record)
	default:
		// Record written by a newer client; keep the synced state so
		// the revision still advances
		s.logger.Warn(
			"skipping record of unknown type",
			"component", "sync",
			"type", string(record.ID.Type),
			"data_id", record.ID.DataID,
		)
		return nil
	}
}

func (s *SyncService) applyDepositRecord(record models.Record) error {
	txid, vout, err := splitDepositDataID(record.ID.DataID)
	if err != nil {
		return err
	}
	update := models.DepositUpdate{}
	if raw, ok := record.Data["claimError"]; ok && raw != "" {
		var claimErr models.DepositClaimError
		if err := json.Unmarshal([]byte(raw), &claimErr); err != nil {
			return fmt.Errorf(
				"decode deposit record %q: %w",
				record.ID.DataID,
				err,
			)
		}
		update.ClaimError = &claimErr
	} else if tx, ok := record.Data["refundTx"]; ok && tx != "" {
		update.Refund = &models.DepositRefund{
			RefundTx:   tx,
			RefundTxid: record.Data["refundTxid"],
		}
	} else {
		// Bare deposit record with no outcome yet
		return nil
	}
	return s.db.UpdateDeposit(txid, vout, update)
}

func splitDepositDataID(dataID string) (string, uint32, error) {
	txid, voutStr, found := strings.Cut(dataID, ":")
	if !found {
		return "", 0, fmt.Errorf("malformed deposit id %q", dataID)
	}
	vout, err := strconv.ParseUint(voutStr, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("malformed deposit id %q: %w", dataID, err)
	}
	return txid, uint32(vout), nil
}

// metadataFromRecordData rebuilds payment metadata from a sync record's
// field map. JSON-valued fields decode into their structured forms
func metadataFromRecordData(
	data map[string]string,
) (models.PaymentMetadata, error) {
	var metadata models.PaymentMetadata
	if v, ok := data["parentPaymentId"]; ok && v != "" {
		metadata.ParentPaymentID = &v
	}
	if v, ok := data["lnurlDescription"]; ok && v != "" {
		metadata.LnurlDescription = &v
	}
	if v, ok := data["lnurlPayInfo"]; ok && v != "" {
		var info models.LnurlPayInfo
		if err := json.Unmarshal([]byte(v), &info); err != nil {
			return metadata, err
		}
		metadata.LnurlPayInfo = &info
	}
	if v, ok := data["lnurlWithdrawInfo"]; ok && v != "" {
		var info models.LnurlWithdrawInfo
		if err := json.Unmarshal([]byte(v), &info); err != nil {
			return metadata, err
		}
		metadata.LnurlWithdrawInfo = &info
	}
	if v, ok := data["conversionInfo"]; ok && v != "" {
		var info models.ConversionInfo
		if err := json.Unmarshal([]byte(v), &info); err != nil {
			return metadata, err
		}
		metadata.ConversionInfo = &info
	}
	return metadata, nil
}

// pushPending rebases the outgoing queue above the authoritative
// high-water mark, then pushes batches until the queue is drained or the
// server stops acknowledging
func (s *SyncService) pushPending(ctx context.Context) error {
	lastRevision, err := s.db.LastRevision()
	if err != nil {
		return err
	}
	if err := s.db.RebasePendingOutgoing(lastRevision); err != nil {
		return err
	}
	for {
		changes, err := s.db.PendingOutgoingChanges(s.batch)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		results, err := s.transport.Push(ctx, changes)
		if err != nil {
			return fmt.Errorf("push %d changes: %w", len(changes), err)
		}
		for _, result := range results {
			err := s.db.CompleteOutgoingSync(
				result.Record,
				result.LocalRevision,
			)
			if err != nil {
				return err
			}
		}
		s.metricPushed.Add(float64(len(results)))
		if len(results) < len(changes) {
			// Server deferred the rest; retry next cycle
			return nil
		}
	}
}

func (s *SyncService) markInitialComplete() error {
	_, exists, err := s.db.GetCachedItem(
		database.SettingSyncInitialComplete,
	)
	if err != nil || exists {
		return err
	}
	return s.db.SetCachedItem(database.SettingSyncInitialComplete, "true")
}
