package catalog

import "codeaudit/types"

const (
	SQLInjection            = "sql_injection"
	CommandInjection        = "command_injection"
	CodeInjection           = "code_injection"
	HardcodedSecret         = "hardcoded_secret"
	InsecureDeserialization = "insecure_deserialization"
	PathTraversal           = "path_traversal"
	XSS                     = "xss"
	IDOR                    = "idor"
	SSRF                    = "ssrf"
	WeakCrypto              = "weak_crypto"
	DebugEnabled            = "debug_enabled"
	CSRF                    = "csrf"
	SensitiveLogging        = "sensitive_logging"
	MissingAuthorization    = "missing_authorization"
)

var defaultCategories = []Category{
	{
		ID:          SQLInjection,
		DisplayName: "SQL Injection",
		Severity:    types.SeverityCritical,
		WeaknessID:  "CWE-89",
		OWASP:       "A03:2021-Injection",
		Description: "Dynamic SQL query built with string interpolation or concatenation.",
		Remediation: "Use prepared statements or parameterized queries.",
		Aliases:     []string{"sqli", "sql", "sql injection vulnerability", "blind sql injection"},
	},
	{
		ID:          CommandInjection,
		DisplayName: "Command Injection",
		Severity:    types.SeverityCritical,
		WeaknessID:  "CWE-78",
		OWASP:       "A03:2021-Injection",
		Description: "Shell command executed with data that may be attacker controlled.",
		Remediation: "Invoke programs with an argument list and no shell; validate every argument.",
		Aliases:     []string{"os command injection", "shell injection", "os.system", "subprocess", "child_process.exec"},
	},
	{
		ID:          CodeInjection,
		DisplayName: "Arbitrary Code Execution",
		Severity:    types.SeverityCritical,
		WeaknessID:  "CWE-95",
		OWASP:       "A03:2021-Injection",
		Description: "Dynamic evaluation of strings as code allows arbitrary code execution.",
		Remediation: "Avoid eval and exec; use JSON.parse or a safe parser for data.",
		Aliases:     []string{"eval", "eval injection", "remote code execution", "rce", "code execution"},
	},
	{
		ID:          HardcodedSecret,
		DisplayName: "Hardcoded Secret",
		Severity:    types.SeverityCritical,
		WeaknessID:  "CWE-798",
		OWASP:       "A07:2021-Identification and Authentication Failures",
		Description: "Credentials or keys are embedded in source code.",
		Remediation: "Load secrets from environment variables or a secret manager and rotate the exposed value.",
		Aliases:     []string{"hardcoded credentials", "hardcoded credential", "hardcoded password", "hard coded secret", "exposed api key", "secret in code"},
	},
	{
		ID:          InsecureDeserialization,
		DisplayName: "Insecure Deserialization",
		Severity:    types.SeverityCritical,
		WeaknessID:  "CWE-502",
		OWASP:       "A08:2021-Software and Data Integrity Failures",
		Description: "Deserializing untrusted data can execute arbitrary code.",
		Remediation: "Never deserialize untrusted input with pickle or native object streams; use JSON with schema validation.",
		Aliases:     []string{"deserialization", "unsafe deserialization", "pickle", "unsafe yaml load"},
	},
	{
		ID:          PathTraversal,
		DisplayName: "Path Traversal",
		Severity:    types.SeverityHigh,
		WeaknessID:  "CWE-22",
		OWASP:       "A01:2021-Broken Access Control",
		Description: "File path built from untrusted input may allow access to arbitrary files.",
		Remediation: "Normalize paths, reject '..' segments and resolve against an allowlisted base directory.",
		Aliases:     []string{"directory traversal", "lfi", "local file inclusion", "file path injection"},
	},
	{
		ID:          XSS,
		DisplayName: "Cross-Site Scripting (XSS)",
		Severity:    types.SeverityHigh,
		WeaknessID:  "CWE-79",
		OWASP:       "A03:2021-Injection",
		Description: "Untrusted data is written into HTML without escaping.",
		Remediation: "Use textContent or context-aware output encoding; avoid raw HTML sinks.",
		Aliases:     []string{"cross site scripting", "reflected xss", "stored xss", "dom xss", "html injection"},
	},
	{
		ID:          IDOR,
		DisplayName: "Insecure Direct Object Reference",
		Severity:    types.SeverityHigh,
		WeaknessID:  "CWE-639",
		OWASP:       "A01:2021-Broken Access Control",
		Description: "Endpoint exposes resource identifiers without an ownership check.",
		Remediation: "Enforce authorization checks that the caller owns the referenced resource.",
		Aliases:     []string{"insecure direct object reference", "idor missing authorization", "broken object level authorization", "bola"},
	},
	{
		ID:          SSRF,
		DisplayName: "Server-Side Request Forgery",
		Severity:    types.SeverityHigh,
		WeaknessID:  "CWE-918",
		OWASP:       "A10:2021-Server-Side Request Forgery",
		Description: "Outbound HTTP request to a URL that may be user controlled.",
		Remediation: "Validate remote URLs against an allowlist and block internal address ranges.",
		Aliases:     []string{"server side request forgery"},
	},
	{
		ID:          WeakCrypto,
		DisplayName: "Weak Cryptography",
		Severity:    types.SeverityMedium,
		WeaknessID:  "CWE-327",
		OWASP:       "A02:2021-Cryptographic Failures",
		Description: "Broken or weak hash/cipher primitive in use.",
		Remediation: "Use bcrypt or argon2 for passwords and SHA-256 or stronger for integrity.",
		Aliases:     []string{"weak cryptography", "weak hash", "md5", "sha1", "insecure hash", "broken crypto"},
	},
	{
		ID:          DebugEnabled,
		DisplayName: "Debug Mode Enabled",
		Severity:    types.SeverityHigh,
		WeaknessID:  "CWE-489",
		OWASP:       "A05:2021-Security Misconfiguration",
		Description: "Application runs with debug mode enabled, exposing internals.",
		Remediation: "Disable debug mode in production configuration.",
		Aliases:     []string{"debug mode", "debug mode enabled", "debug enabled in production"},
	},
	{
		ID:          CSRF,
		DisplayName: "Missing CSRF Protection",
		Severity:    types.SeverityMedium,
		WeaknessID:  "CWE-352",
		OWASP:       "A01:2021-Broken Access Control",
		Description: "State-changing endpoint without request forgery protection.",
		Remediation: "Require CSRF tokens or SameSite cookies on state-changing requests.",
		Aliases:     []string{"cross site request forgery", "xsrf", "missing csrf protection"},
	},
	{
		ID:          SensitiveLogging,
		DisplayName: "Sensitive Data Logging",
		Severity:    types.SeverityMedium,
		WeaknessID:  "CWE-532",
		OWASP:       "A09:2021-Security Logging and Monitoring Failures",
		Description: "Passwords, tokens or keys are written to logs.",
		Remediation: "Never log secrets; mask or drop sensitive fields before logging.",
		Aliases:     []string{"sensitive data logging", "logging sensitive data", "information exposure through logs", "password logging"},
	},
	{
		ID:          MissingAuthorization,
		DisplayName: "Missing Authorization",
		Severity:    types.SeverityHigh,
		WeaknessID:  "CWE-862",
		OWASP:       "A01:2021-Broken Access Control",
		Description: "Privileged endpoint reachable without an authorization check.",
		Remediation: "Protect privileged routes with authentication and role checks.",
		Aliases:     []string{"missing authorization check", "broken access control", "missing access control", "unauthenticated admin endpoint"},
	},
}
