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

// The depscan command analyzes a project's dependencies for security
// issues and writes a JSON report. The target is a local directory or a
// remote git repository URL; remote targets are shallow-cloned to a
// temp directory for the duration of the run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vishu-2s/depscan"
	"github.com/vishu-2s/depscan/cache"
	"github.com/vishu-2s/depscan/log"
	"github.com/vishu-2s/depscan/report"
)

const cloneTimeout = 60 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("depscan", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "enable debug logging")
	outputDir := fs.String("output", "", "output directory (default $OUTPUT_DIRECTORY or outputs/)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: depscan [flags] <directory or repository URL>")
		return 2
	}
	log.SetLogger(&log.DefaultLogger{Verbose: *verbose})

	target := fs.Arg(0)
	cfg := depscan.DefaultConfig()
	cfg.Target = target
	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.EnableOSV = envBool("ENABLE_OSV_QUERIES", true)

	out := *outputDir
	if out == "" {
		out = os.Getenv("OUTPUT_DIRECTORY")
	}
	if out == "" {
		out = "outputs"
	}

	if envBool("CACHE_ENABLED", true) {
		cacheDir := filepath.Join(os.TempDir(), "depscan-cache")
		store, err := cache.NewDisk(cacheDir, cache.DefaultMaxSizeBytes)
		if err != nil {
			log.Warnf("cache unavailable, continuing without: %v", err)
		} else {
			cfg.Cache = store
		}
	}

	ctx := context.Background()
	dir := target
	if isRemote(target) {
		cloned, cleanup, err := cloneRemote(ctx, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "depscan: cannot clone %s: %v\n", target, err)
			fmt.Fprintln(os.Stderr, "check the URL, your network connection and GITHUB_TOKEN for private repositories")
			return 1
		}
		defer cleanup()
		dir = cloned
		cfg.InputMode = "github"
	} else if err := validateLocal(target); err != nil {
		fmt.Fprintf(os.Stderr, "depscan: %v\n", err)
		return 1
	}
	cfg.Dir = dir

	r, err := depscan.Analyze(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscan: %v\n", err)
		if errors.Is(err, depscan.ErrNoManifest) {
			fmt.Fprintln(os.Stderr, "the target needs a package.json, requirements.txt, setup.py or pyproject.toml")
		}
		return 1
	}

	path, err := report.Write(r, out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscan: cannot write report: %v\n", err)
		return 1
	}
	fmt.Printf("report written to %s (status: %s, %d findings)\n",
		path, r.Metadata.AnalysisStatus, r.Summary.TotalFindings)
	return 0
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// isRemote detects repository URLs: http(s) schemes and git SSH forms.
func isRemote(target string) bool {
	if strings.HasPrefix(target, "git@") {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "ssh"
}

func validateLocal(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// cloneRemote shallow-clones the repository into a temp directory.
// GITHUB_TOKEN, when set, authenticates https GitHub clones.
func cloneRemote(ctx context.Context, target string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "depscan-clone-*")
	if err != nil {
		return "", nil, err
	}
	cleanup = func() { os.RemoveAll(dir) }

	cloneURL := target
	if token := os.Getenv("GITHUB_TOKEN"); token != "" && strings.HasPrefix(target, "https://github.com/") {
		cloneURL = strings.Replace(target, "https://", "https://x-access-token:"+token+"@", 1)
	}

	ctx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--quiet", cloneURL, dir)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("git clone failed: %w", err)
	}
	log.Infof("cloned %s", target)
	return dir, cleanup, nil
}
