package classify

// DefaultPatterns is the built-in baseline. Ordering within each list is
// load-bearing: first match wins.
var DefaultPatterns = Patterns{
	Critical: []Pattern{
		// Root/home recursive delete. A slash followed by 'v' is excluded so
		// scoped deletes under /var stay out of CRITICAL.
		{Match: `rm\s+(-[a-zA-Z]*)?r[a-zA-Z]*f[a-zA-Z]*\s+/\s*$`},
		{Match: `rm\s+(-[a-zA-Z]*)?r[a-zA-Z]*f[a-zA-Z]*\s+~\s*$`},
		{Match: `rm\s+(-[a-zA-Z]*)?r[a-zA-Z]*f[a-zA-Z]*\s+/[^v\s]`},
		// Schema-destructive SQL
		{Match: `\bDROP\s+DATABASE\b`},
		{Match: `\bDROP\s+TABLE\b`},
		// Disk format / raw writes
		{Match: `\bmkfs\b|\bfdisk\b`},
		{Match: `\bdd\s+if=/dev/zero\b`},
		// Remote script piped into a shell
		{Match: `\b(curl|wget)\b.*\|\s*(ba)?sh\b`},
		{Match: `\bchmod\s+.*-R\s+.*777\s+/\s*$`},
	},
	High: []Pattern{
		// Any scoped recursive force delete (root/home caught above)
		{Match: `\brm\s+(-[a-zA-Z]*)?r[a-zA-Z]*f`},
		// Forced VCS history rewrite
		{Match: `\bgit\s+push\s+.*--force\b`},
		{Match: `\bgit\s+reset\s+--hard\b`},
		// Unscoped row deletion
		{Match: `\bDELETE\s+FROM\b`, Unless: `\bWHERE\b`},
		{Match: `\bTRUNCATE\s+TABLE\b`},
		{Match: `\brsync\b.*--delete\b`},
		// Permission widening
		{Match: `\bchmod\s+777\b`},
		{Match: `\bchmod\s+-R\b`},
	},
}
