package scanner

import (
	"regexp"

	"codeaudit/internal/catalog"
)

// Pattern matches a single line. Exclude, when set, vetoes a match on the same line.
type Pattern struct {
	Match   *regexp.Regexp
	Exclude *regexp.Regexp
}

// Rule binds line patterns to one catalog category.
// Requires must match somewhere in the unit for the rule to apply; Unless must not.
type Rule struct {
	Category string
	Patterns []Pattern
	Requires *regexp.Regexp
	Unless   *regexp.Regexp
}

func line(match string) Pattern {
	return Pattern{Match: regexp.MustCompile(match)}
}

func lineExcept(match, exclude string) Pattern {
	return Pattern{Match: regexp.MustCompile(match), Exclude: regexp.MustCompile(exclude)}
}

const authMarkers = `(?i)auth|login_required|current_user|authorize|permission|required_role|jwt_required|is_admin`

// DefaultRules returns the built-in rule set in catalog order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: catalog.SQLInjection,
			Patterns: []Pattern{
				line(`(?i)execute\s*\(\s*f["'].*\b(SELECT|INSERT|UPDATE|DELETE)\b`),
				line(`(?i)execute\s*\(\s*["'][^"'\n]*\b(SELECT|INSERT|UPDATE|DELETE)\b[^"'\n]*["']\s*(\+|%\s*[\w(]|\.format\s*\()`),
				line(`(?i)["'][^"'\n]*\b(SELECT\s.+\sFROM|INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM)\b[^"'\n]*["']\s*\+\s*\w`),
				line(`(?i)f["'][^"'\n]*\b(SELECT\s.+\sFROM|INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM)\b[^"'\n]*\{[^}]+\}`),
				line(`(?i)Sprintf\s*\(\s*"[^"\n]*\b(SELECT\s.+\sFROM|INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM)\b[^"\n]*%[sv]`),
				line("(?i)`[^`\\n]*\\b(SELECT\\s.+\\sFROM|INSERT\\s+INTO|UPDATE\\s+\\w+\\s+SET|DELETE\\s+FROM)\\b[^`\\n]*\\$\\{"),
			},
		},
		{
			Category: catalog.CommandInjection,
			Patterns: []Pattern{
				line(`\bos\.system\s*\(`),
				line(`\bos\.popen\s*\(`),
				line(`\bsubprocess\.\w+\s*\(.*\bshell\s*=\s*True`),
				line(`\bchild_process\.exec(Sync)?\s*\(`),
				line(`(^|[^.\w])execSync\s*\(`),
				line(`\bexec\.Command\s*\(\s*"(sh|bash|cmd|cmd\.exe|powershell)"`),
				line(`\bRuntime\.getRuntime\s*\(\s*\)\s*\.exec\s*\(`),
				line(`(^|[^.\w])(shell_exec|passthru)\s*\(`),
			},
		},
		{
			Category: catalog.CodeInjection,
			Patterns: []Pattern{
				line(`(^|[^.\w])eval\s*\(`),
				line(`(^|[^.\w])exec\s*\(\s*[^)\s]`),
				line(`\bnew\s+Function\s*\(`),
				line(`(^|[^.\w])setTimeout\s*\(\s*["']`),
			},
		},
		{
			Category: catalog.HardcodedSecret,
			Patterns: []Pattern{
				lineExcept(
					`(?i)\b\w*(api[_-]?key|secret|token|passw(?:or)?d|pwd|credential|private[_-]?key)\w*["']?\s*(:=|=|:)\s*["'][^"'\n]{10,}["']`,
					`(?i)(your[_-]|example|placeholder|changeme|<[^>]*>|\$\{|xxxx|\*\*\*\*|getenv|environ)`,
				),
				line(`-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`),
				line(`\bAKIA[0-9A-Z]{16}\b`),
			},
		},
		{
			Category: catalog.InsecureDeserialization,
			Patterns: []Pattern{
				line(`\b(c?Pickle|pickle)\.loads?\s*\(`),
				lineExcept(`\byaml\.load\s*\(`, `(?i)safe_?loader|CSafeLoader`),
				line(`\byaml\.unsafe_load\s*\(`),
				line(`\bmarshal\.loads?\s*\(`),
				line(`\bjsonpickle\.decode\s*\(`),
				line(`\bObjectInputStream\s*\(`),
				line(`(^|[^.\w])unserialize\s*\(`),
			},
		},
		{
			Category: catalog.PathTraversal,
			Patterns: []Pattern{
				line(`\bopen\s*\(\s*f["'][^"'\n]*\{[^}]+\}`),
				line(`\bopen\s*\(\s*["'][^"'\n]*["']\s*\+\s*\w+`),
				line(`\bsend_file\s*\(.*\brequest\.(args|form|values|json)`),
				line(`\bos\.path\.join\s*\(.*\brequest\.(args|form|values|files|json)`),
				line(`\b(readFile|readFileSync|createReadStream|sendFile)\s*\(.*\breq\.(params|query|body)`),
				line(`\b(os\.Open|os\.ReadFile|filepath\.Join|http\.ServeFile)\s*\(.*\br\.(URL\.Query|FormValue|PathValue)`),
			},
		},
		{
			Category: catalog.XSS,
			Patterns: []Pattern{
				line(`\.(innerHTML|outerHTML)\s*\+?=`),
				line(`\bdocument\.write(ln)?\s*\(`),
				line(`dangerouslySetInnerHTML`),
				line(`\{\{[^}]*\|\s*safe\s*\}\}`),
				line(`\bmark_safe\s*\(`),
				line(`\btemplate\.HTML\s*\(`),
				line(`\.html\s*\(\s*[A-Za-z_$][\w$.]*\s*\)`),
			},
		},
		{
			Category: catalog.IDOR,
			Patterns: []Pattern{
				line(`@\w+\.route\s*\(\s*["'][^"'\n]*<[\w:]+>`),
				line(`\b(app|router)\.(get|put|patch|delete)\s*\(\s*["'][^"'\n]*/:\w+`),
			},
			Unless: regexp.MustCompile(authMarkers),
		},
		{
			Category: catalog.SSRF,
			Patterns: []Pattern{
				line(`\brequests\.(get|post|put|patch|delete|head|request)\s*\(\s*[A-Za-z_]`),
				line(`\b(urllib\.request\.)?urlopen\s*\(\s*[A-Za-z_]`),
				line(`\bhttp\.(Get|Post|Head)\s*\(\s*[A-Za-z_]`),
				line(`(^|[^.\w])fetch\s*\(\s*[A-Za-z_]`),
				line(`\baxios\.(get|post|put|delete|request)\s*\(\s*[A-Za-z_]`),
			},
			Requires: regexp.MustCompile(`(?i)url`),
		},
		{
			Category: catalog.WeakCrypto,
			Patterns: []Pattern{
				line(`(?i)\bhashlib\.(md5|sha1)\s*\(`),
				line(`(?i)\bcreateHash\s*\(\s*["'](md5|sha1)["']`),
				line(`\b(md5|sha1)\.(New|Sum)\s*\(`),
				line(`(?i)\bMessageDigest\.getInstance\s*\(\s*"(MD5|SHA-?1)"`),
				line(`\bDES\.new\s*\(`),
				line(`\bAES\.MODE_ECB\b`),
				line(`(^|[^.\w])(md5|sha1)\s*\(`),
			},
		},
		{
			Category: catalog.DebugEnabled,
			Patterns: []Pattern{
				line(`\bDEBUG\s*=\s*True\b`),
				line(`\bapp\.run\s*\(.*\bdebug\s*=\s*True`),
				line(`(?i)\bapp\.debug\s*=\s*true\b`),
			},
		},
		{
			Category: catalog.CSRF,
			Patterns: []Pattern{
				line(`@\w+\.route\s*\(.*\bmethods\s*=\s*\[[^\]]*["']POST["']`),
				line(`\b(app|router)\.post\s*\(\s*["']`),
			},
			Unless: regexp.MustCompile(`(?i)csrf|xsrf`),
		},
		{
			Category: catalog.SensitiveLogging,
			Patterns: []Pattern{
				line(`(?i)\b(logging|logger|log|console)\.(debug|info|warn|warning|error|critical|log|print|printf|println|infof|debugf)\s*\(.*(password|passwd|secret|api[_ ]?key|api[_ ]?token|access[_ ]?token|credit[_ ]?card)`),
			},
		},
		{
			Category: catalog.MissingAuthorization,
			Patterns: []Pattern{
				line(`@\w+\.route\s*\(\s*["'][^"'\n]*/(admin|delete|remove|manage|internal)\b`),
				line(`\b(app|router)\.(get|post|put|patch|delete)\s*\(\s*["'][^"'\n]*/(admin|internal)\b`),
			},
			Unless: regexp.MustCompile(authMarkers),
		},
	}
}
