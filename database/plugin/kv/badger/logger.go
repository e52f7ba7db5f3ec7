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

package badger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// badgerLogger adapts slog to the badger.Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &badgerLogger{logger: logger}
}

func (b *badgerLogger) log(
	logFunc func(string, ...any),
	format string,
	args ...any,
) {
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	logFunc(msg, "component", "database")
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.log(b.logger.Error, format, args...)
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.log(b.logger.Warn, format, args...)
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.log(b.logger.Info, format, args...)
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.log(b.logger.Debug, format, args...)
}
