/*
Copyright 2018 Heptio Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package journal implements the append-only resource-creation log consumed
// by cleanup: every resource a provisioning run creates is recorded here
// before the next step proceeds, so a failed run can still be torn down.
package journal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Entry is one journal record: a resource type tag and its provider id.
type Entry struct {
	Type string
	ID   string
}

// Deleter dispatches a LIFO journal entry to the provider driver; the
// journal package doesn't know about driver.Driver to avoid a dependency
// cycle (provision owns both and wires them together).
type Deleter interface {
	Delete(ctx context.Context, entryType, id string) error
}

// Journal is an append-only "type: id" log file.
type Journal struct {
	path string
	f    *os.File
}

// Open opens (creating if necessary) the journal file at path for
// append-only writing.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening journal %s", path)
	}
	return &Journal{path: path, f: f}, nil
}

// Record appends one entry and flushes immediately, so a crash right after
// resource creation never loses the record.
func (j *Journal) Record(entryType, id string) error {
	line := fmt.Sprintf("%s: %s\n", entryType, id)
	if _, err := j.f.WriteString(line); err != nil {
		return errors.Wrapf(err, "recording journal entry %s", line)
	}
	return j.f.Sync()
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	return j.f.Close()
}

// ReadEntries reads every entry from the journal at path, in file order.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening journal %s", path)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 {
			logrus.WithField("line", line).Warn("skipping malformed journal line")
			continue
		}
		entries = append(entries, Entry{Type: parts[0], ID: parts[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading journal %s", path)
	}
	return entries, nil
}

// Cleanup replays the journal at path in LIFO order, dispatching each
// deletion through d. Per spec.md §4.I, a failing deletion is logged and
// skipped so one broken entry never blocks the rest of the rollback.
func Cleanup(ctx context.Context, path string, d Deleter) error {
	entries, err := ReadEntries(path)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := d.Delete(ctx, e.Type, e.ID); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"type": e.Type,
				"id":   e.ID,
			}).Error("cleanup entry failed, continuing")
		}
	}
	return nil
}
