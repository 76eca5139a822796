package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxDatabaseNameLength is PostgreSQL's NAMEDATALEN - 1
const MaxDatabaseNameLength = 63

var databaseNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// ValidDatabaseName reports whether name is an acceptable tenant database name
func ValidDatabaseName(name string) bool {
	return len(name) <= MaxDatabaseNameLength && databaseNamePattern.MatchString(name)
}

// builtinDatabases exist on every PostgreSQL server
var builtinDatabases = map[string]bool{"postgres": true, "template0": true, "template1": true}

// DatabaseNamePolicy refuses malformed names and names that belong to the
// server or the control plane. The zero value reserves the built-in databases.
type DatabaseNamePolicy struct {
	reserved map[string]bool
}

// NewDatabaseNamePolicy reserves names on top of the built-in databases
func NewDatabaseNamePolicy(reserved ...string) DatabaseNamePolicy {
	p := DatabaseNamePolicy{reserved: make(map[string]bool, len(reserved))}
	for _, name := range reserved {
		if name = strings.TrimSpace(name); name != "" {
			p.reserved[strings.ToLower(name)] = true
		}
	}
	return p
}

// Reserved reports whether name may never be used by a tenant
func (p DatabaseNamePolicy) Reserved(name string) bool {
	return builtinDatabases[name] || p.reserved[name]
}

// Check returns a validation error when name cannot be a tenant database
func (p DatabaseNamePolicy) Check(name string) error {
	if !ValidDatabaseName(name) {
		return InvalidDatabaseName(name)
	}
	if p.Reserved(name) {
		return ReservedDatabaseName(name)
	}
	return nil
}

// DatabaseNameFromNom derives a database name from an organisation name:
// lowercase, accents stripped, every other run of characters collapsed to a
// single underscore. "Acme Freight" gives acme_freight.
func DatabaseNameFromNom(nom string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, strings.ToLower(nom))
	if err != nil {
		stripped = strings.ToLower(nom)
	}

	slug := strings.Trim(nonSlugRun.ReplaceAllString(stripped, "_"), "_")
	if slug == "" || slug[0] < 'a' || slug[0] > 'z' {
		slug = "org_" + slug
		slug = strings.TrimSuffix(slug, "_")
	}

	if len(slug) > MaxDatabaseNameLength {
		slug = strings.TrimRight(slug[:MaxDatabaseNameLength], "_")
	}
	return slug
}
