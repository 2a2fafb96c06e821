package knowledge

import (
	"codeaudit/internal/catalog"
	"codeaudit/types"
)

// DefaultEntries is the built-in knowledge base.
func DefaultEntries() []types.KnowledgeEntry {
	return []types.KnowledgeEntry{
		{ID: "kb-sql-parameterize", Category: catalog.SQLInjection,
			Text: "SQL injection occurs when user input is concatenated or interpolated into SQL queries. Fix by using parameterized queries, ORM bindings, or prepared statements."},
		{ID: "kb-sql-orm-raw", Category: catalog.SQLInjection,
			Text: "Raw SQL in ORMs (raw(), text(), execute with f-strings or format) bypasses escaping. Pass values as bound parameters and never build WHERE clauses from request data."},
		{ID: "kb-command-exec", Category: catalog.CommandInjection,
			Text: "Command injection: os.system, subprocess with shell=True, child_process.exec and Runtime.exec hand strings to a shell. Pass an argument list without a shell and validate inputs against an allowlist."},
		{ID: "kb-code-eval", Category: catalog.CodeInjection,
			Text: "Dangerous dynamic execution: eval(), exec(), new Function() and setTimeout with strings run attacker-supplied code. Replace with JSON.parse, ast.literal_eval, or explicit dispatch tables."},
		{ID: "kb-secret-env", Category: catalog.HardcodedSecret,
			Text: "Never hardcode secrets, API keys, tokens or passwords in source code. Load them from environment variables or a secret manager and rotate any key that reached version control."},
		{ID: "kb-secret-scanning", Category: catalog.HardcodedSecret,
			Text: "Hardcoded credentials and private keys in repositories are harvested by automated scanners. Enable secret scanning, use short-lived credentials and keep .env files out of git."},
		{ID: "kb-deserialize-pickle", Category: catalog.InsecureDeserialization,
			Text: "Insecure deserialization: pickle.loads, yaml.load without SafeLoader, marshal and Java ObjectInputStream can execute code from untrusted data. Use JSON with schema validation or yaml.safe_load."},
		{ID: "kb-path-traversal", Category: catalog.PathTraversal,
			Text: "Path traversal (../) lets attackers read or write files outside the intended directory. Normalize paths, resolve them against a fixed base directory, reject '..' segments and use secure file APIs."},
		{ID: "kb-xss-escape", Category: catalog.XSS,
			Text: "Cross site scripting (XSS) appears when unescaped user input is rendered in HTML. Fix by escaping output, using textContent instead of innerHTML, and adding a Content Security Policy."},
		{ID: "kb-xss-templates", Category: catalog.XSS,
			Text: "Template engines autoescape by default; the safe filter, mark_safe, dangerouslySetInnerHTML and template.HTML disable it. Only mark trusted, sanitized HTML as safe."},
		{ID: "kb-idor-ownership", Category: catalog.IDOR,
			Text: "Insecure direct object reference (IDOR): endpoints that take an id from the URL must verify the current user owns or may access that object before returning or modifying it."},
		{ID: "kb-ssrf-allowlist", Category: catalog.SSRF,
			Text: "Server-side request forgery (SSRF): fetching user-controlled URLs with requests.get, urlopen or http.Get can reach internal services and cloud metadata. Allowlist hosts and block private address ranges."},
		{ID: "kb-crypto-passwords", Category: catalog.WeakCrypto,
			Text: "Weak cryptography includes MD5, SHA1, DES, ECB mode, hardcoded salts and insecure random generators. Use bcrypt or argon2 for passwords and SHA-256 or stronger for integrity checks."},
		{ID: "kb-crypto-random", Category: catalog.WeakCrypto,
			Text: "Use a cryptographically secure random source (secrets, crypto/rand, SecureRandom) for tokens and keys; math random generators are predictable."},
		{ID: "kb-debug-production", Category: catalog.DebugEnabled,
			Text: "Debug mode (DEBUG = True, app.run(debug=True)) exposes stack traces, configuration and sometimes an interactive console. Disable debug mode in production deployments."},
		{ID: "kb-csrf-tokens", Category: catalog.CSRF,
			Text: "Cross-site request forgery (CSRF): state-changing POST endpoints need CSRF tokens (Flask-WTF CSRFProtect, csurf) or SameSite cookies so other origins cannot submit requests on a user's behalf."},
		{ID: "kb-logging-secrets", Category: catalog.SensitiveLogging,
			Text: "Sensitive data logging: never write passwords, tokens, API keys or card numbers to logs. Mask or drop sensitive fields and treat log storage as sensitive."},
		{ID: "kb-authz-admin", Category: catalog.MissingAuthorization,
			Text: "Missing authorization: admin, delete and internal routes must require authentication and role checks (login_required, permission decorators, middleware) on every request."},
		{ID: "kb-authz-deny-default", Category: catalog.MissingAuthorization,
			Text: "Broken access control: deny by default, enforce authorization on the server side for every endpoint, and never rely on hidden URLs or client-side checks."},
		{ID: "kb-input-validation", Category: catalog.SQLInjection,
			Text: "Validate untrusted input by type, length and format at the boundary. Validation complements but never replaces parameterized queries and output encoding against injection."},
	}
}
