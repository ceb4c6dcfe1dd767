// Copyright 2026 depscan authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vishu-2s/depscan/log"
)

// Write writes the report to dir/FileName atomically: temp file, fsync,
// rename. A reader never observes a partially written report.
func Write(r *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".tmp*")
	if err != nil {
		return "", fmt.Errorf("creating temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing report: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publishing report: %w", err)
	}
	log.Infof("report: wrote %s (%d bytes)", path, len(data))
	return path, nil
}
