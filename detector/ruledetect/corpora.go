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

package ruledetect

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vishu-2s/depscan/inventory"
)

// Bundled corpora. The block-list snapshot covers historically confirmed
// registry attacks; Detector.LoadBlocklist merges in a fresher feed.

var bundledMalicious = map[inventory.Ecosystem][]string{
	inventory.EcosystemNPM: {
		"flatmap-stream",
		"eslint-scope-2",
		"getcookies",
		"crossenv",
		"cross-env.js",
		"d3.js",
		"fabric-js",
		"ffmepg",
		"gruntcli",
		"http-proxy.js",
		"jquery.js",
		"mariadb",
		"mssql.js",
		"mssql-node",
		"mysqljs",
		"node-fabric",
		"node-opencv",
		"node-opensl",
		"node-openssl",
		"node-sqlite",
		"node-tkinter",
		"nodecaffe",
		"nodefabric",
		"nodeffmpeg",
		"nodemailer-js",
		"nodemssql",
		"noderequest",
		"nodesass",
		"nodesqlite",
		"opencv.js",
		"openssl.js",
		"proxy.js",
		"shadowsock",
		"smb",
		"sqlite.js",
		"sqliter",
		"sqlserver",
		"tkinter",
		"web3-eth-personal",
	},
	inventory.EcosystemPyPI: {
		"acqusition",
		"apidev-coop",
		"bzip",
		"crypt",
		"django-server",
		"jeIlyfish",
		"mybiubiubiu",
		"openvc",
		"pptest",
		"pwd",
		"pwdhash-cli",
		"python-mongo",
		"python-mysql",
		"python-openssl",
		"python-sqlite",
		"python3-dateutil",
		"pythonkafka",
		"req-tools",
		"setup-tools",
		"smb",
		"smplejson",
		"telnet",
		"urlib3",
		"virtualnv",
	},
}

// bundledPopular lists widely used names per ecosystem, the typosquat
// comparison baseline.
var bundledPopular = map[inventory.Ecosystem][]string{
	inventory.EcosystemNPM: {
		"react", "react-dom", "lodash", "express", "axios", "chalk",
		"commander", "debug", "moment", "webpack", "typescript", "jest",
		"mocha", "eslint", "prettier", "request", "async", "bluebird",
		"underscore", "uuid", "classnames", "prop-types", "vue", "jquery",
		"rxjs", "redux", "next", "dotenv", "minimist", "glob", "rimraf",
		"yargs", "inquirer", "semver", "fs-extra", "body-parser", "cors",
		"mongoose", "socket.io", "winston", "nodemon", "babel-core",
		"core-js", "tslib", "zod", "esbuild", "vite", "pg", "mysql2",
	},
	inventory.EcosystemPyPI: {
		"requests", "urllib3", "numpy", "pandas", "scipy", "django",
		"flask", "pytest", "setuptools", "pip", "wheel", "six",
		"python-dateutil", "pyyaml", "certifi", "idna", "charset-normalizer",
		"boto3", "botocore", "sqlalchemy", "click", "jinja2", "cryptography",
		"pillow", "matplotlib", "packaging", "attrs", "pydantic", "fastapi",
		"uvicorn", "httpx", "aiohttp", "redis", "celery", "psycopg2",
		"lxml", "beautifulsoup4", "scikit-learn", "tensorflow", "torch",
		"rich", "typer", "tqdm", "colorama", "jsonschema", "pytz",
	},
}

// blocklistEntry is one line of an external block-list feed.
type blocklistEntry struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
}

// LoadBlocklist merges a JSON block-list feed (an array of
// {ecosystem, name} objects) into the detector's bundled snapshot.
func (d *Detector) LoadBlocklist(r io.Reader) error {
	var entries []blocklistEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("decoding blocklist: %w", err)
	}
	for _, e := range entries {
		eco, err := inventory.ParseEcosystem(e.Ecosystem)
		if err != nil {
			return err
		}
		d.malicious[maliciousKey(eco, e.Name)] = true
	}
	return nil
}

func maliciousKey(eco inventory.Ecosystem, name string) string {
	return string(eco) + "/" + name
}
