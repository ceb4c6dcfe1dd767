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

package scriptpattern

import (
	"regexp"

	"github.com/vishu-2s/depscan/inventory"
)

// category is one attack class in the corpus. A command matches the
// category when any of its regexes match.
type category struct {
	name        string
	description string
	severity    inventory.Severity
	confidence  float64
	patterns    []*regexp.Regexp
}

func (c *category) matches(command string) bool {
	for _, p := range c.patterns {
		if p.MatchString(command) {
			return true
		}
	}
	return false
}

func re(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// corpus is the fixed attack-pattern taxonomy. Base severities assume a
// manual hook; dangerous hooks escalate one level at match time.
var corpus = []*category{
	{
		name:        "remote_code_execution",
		description: "downloads a remote script and pipes it into a shell",
		severity:    inventory.SeverityHigh,
		confidence:  0.9,
		patterns: re(
			`(curl|wget)\b[^|;&]*\|\s*(sudo\s+)?(ba|z|da)?sh\b`,
			`(curl|wget)\b[^|;&]*\|\s*python\d?\b`,
		),
	},
	{
		name:        "base64_decode_shell",
		description: "decodes base64 content and executes it",
		severity:    inventory.SeverityHigh,
		confidence:  0.85,
		patterns: re(
			`base64\s+(-d|-D|--decode)\b[^|;&]*\|\s*(ba|z)?sh\b`,
			`echo\s+["']?[A-Za-z0-9+/]{40,}={0,2}["']?\s*\|\s*base64`,
			`atob\s*\(`,
		),
	},
	{
		name:        "credential_theft",
		description: "reads SSH keys, cloud credentials or registry tokens",
		severity:    inventory.SeverityHigh,
		confidence:  0.85,
		patterns: re(
			`~/\.ssh\b|id_rsa|id_ed25519`,
			`\.aws/credentials|\.config/gcloud`,
			`\.npmrc|\.pypirc|_authToken`,
		),
	},
	{
		name:        "reverse_shell",
		description: "opens a reverse shell to a remote host",
		severity:    inventory.SeverityCritical,
		confidence:  0.95,
		patterns: re(
			`(ba)?sh\s+-i\s+>?&\s*/dev/tcp/`,
			`\bnc(\.traditional)?\s+(-[a-zA-Z]*e|\S+\s+\d+\s+-e)\b`,
			`socket\.socket\(.*connect\(`,
			`pty\.spawn\(`,
		),
	},
	{
		name:        "crypto_miner",
		description: "runs or installs a cryptocurrency miner",
		severity:    inventory.SeverityHigh,
		confidence:  0.9,
		patterns: re(
			`xmrig|minerd|cgminer|cryptonight`,
			`stratum\+tcp://`,
			`coinhive|coin-hive`,
		),
	},
	{
		name:        "data_exfiltration",
		description: "archives local files and uploads them to a remote host",
		severity:    inventory.SeverityHigh,
		confidence:  0.8,
		patterns: re(
			`tar\s+[^|;&]*\|\s*curl\b`,
			`curl\b[^|;&]*(-d|--data|--data-binary|-F)\s*@`,
			`zip\s+-r\b[^|;&]*&&\s*curl\b`,
		),
	},
	{
		name:        "eval_execution",
		description: "evaluates dynamically constructed code",
		severity:    inventory.SeverityMedium,
		confidence:  0.7,
		patterns: re(
			`\beval\s*\(`,
			`new\s+Function\s*\(`,
			`\bexec\s*\(\s*compile\s*\(`,
		),
	},
	{
		name:        "child_process_exec",
		description: "spawns shell commands from node script code",
		severity:    inventory.SeverityMedium,
		confidence:  0.7,
		patterns: re(
			`require\s*\(\s*['"]child_process['"]\s*\)`,
			`child_process\.(exec|execSync|spawn)`,
		),
	},
	{
		name:        "destructive_command",
		description: "recursively deletes system or home directories",
		severity:    inventory.SeverityHigh,
		confidence:  0.85,
		patterns: re(
			`rm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\s+(/|~|\$HOME)(\s|$|/\*)`,
			`mkfs\.\w+\s+/dev/`,
			`dd\s+if=/dev/(zero|random)\s+of=/dev/`,
		),
	},
	{
		name:        "privilege_escalation",
		description: "sets setuid bits or edits sudoers",
		severity:    inventory.SeverityHigh,
		confidence:  0.8,
		patterns: re(
			`sudo\s+chmod\s+(u\+s|[42]755\b|4777\b)`,
			`chmod\s+\+s\b`,
			`/etc/sudoers`,
		),
	},
	{
		name:        "persistence",
		description: "installs itself into cron, rc scripts or systemd units",
		severity:    inventory.SeverityHigh,
		confidence:  0.75,
		patterns: re(
			`crontab\s+-`,
			`/etc/(cron\.(d|daily|hourly)|rc\.local)`,
			`systemctl\s+enable\b`,
			`~/(\.bashrc|\.profile|\.zshrc).*(curl|wget|nc)\b`,
		),
	},
	{
		name:        "env_harvesting",
		description: "collects environment variables for transmission",
		severity:    inventory.SeverityMedium,
		confidence:  0.65,
		patterns: re(
			`(printenv|env)\s*(\||>)\s*\S*\s*(curl|nc|wget)?`,
			`JSON\.stringify\s*\(\s*process\.env\s*\)`,
			`os\.environ\b.*\b(post|send|request)`,
		),
	},
	{
		name:        "suspicious_ip_url",
		description: "contacts a raw IP address instead of a hostname",
		severity:    inventory.SeverityMedium,
		confidence:  0.7,
		patterns: re(
			`https?://\d{1,3}(\.\d{1,3}){3}(:\d+)?`,
		),
	},
	{
		name:        "prototype_pollution",
		description: "writes to object prototype chains",
		severity:    inventory.SeverityMedium,
		confidence:  0.7,
		patterns: re(
			`__proto__`,
			`constructor\s*\[\s*['"]prototype['"]\s*\]`,
			`Object\.prototype\s*\[`,
		),
	},
	{
		name:        "obfuscated_code",
		description: "hides payloads behind hex or char-code encoding",
		severity:    inventory.SeverityMedium,
		confidence:  0.75,
		patterns: re(
			`(\\x[0-9a-fA-F]{2}){4,}`,
			`String\.fromCharCode\s*\(`,
			`chr\s*\(\s*\d+\s*\)\s*\+\s*chr\s*\(`,
		),
	},
	{
		name:        "dns_exfiltration",
		description: "encodes data into DNS lookups",
		severity:    inventory.SeverityMedium,
		confidence:  0.65,
		patterns: re(
			`(nslookup|dig|host)\s+[^\s]*\$(\(|\{)`,
		),
	},
	{
		name:        "hosts_file_tampering",
		description: "rewrites the system hosts file",
		severity:    inventory.SeverityMedium,
		confidence:  0.7,
		patterns: re(
			`>>?\s*/etc/hosts`,
		),
	},
	{
		name:        "install_hook_override",
		description: "overrides a setuptools install-stage command class",
		severity:    inventory.SeverityMedium,
		confidence:  0.7,
		patterns: re(
			`cmdclass\s*=\s*{[^}]*['"](install|develop|egg_info|build_py)['"]`,
		),
	},
}

// Categories returns the corpus category names, for prompt construction
// and reporting.
func Categories() []string {
	names := make([]string, len(corpus))
	for i, c := range corpus {
		names[i] = c.name
	}
	return names
}
