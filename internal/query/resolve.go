package query

import (
	"strings"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/session"
)

// resolveTableObjectName implements spec §4.6.5's
// resolve_table_object_name: fills missing leading parts from the
// session's current database/schema, then normalizes every part with
// the session's identifier normalizer. parts must have length 1, 2, or
// 3; anything else fails with KindInvalidTableIdentifier.
func resolveTableObjectName(sess *session.UserSession, parts []string) (metastore.TableIdent, error) {
	switch len(parts) {
	case 1:
		return metastore.TableIdent{
			Database: sess.Normalizer.Normalize(sess.CurrentDatabase()),
			Schema:   sess.Normalizer.Normalize(sess.CurrentSchema()),
			Table:    sess.Normalizer.Normalize(parts[0]),
		}, nil
	case 2:
		return metastore.TableIdent{
			Database: sess.Normalizer.Normalize(sess.CurrentDatabase()),
			Schema:   sess.Normalizer.Normalize(parts[0]),
			Table:    sess.Normalizer.Normalize(parts[1]),
		}, nil
	case 3:
		return metastore.TableIdent{
			Database: sess.Normalizer.Normalize(parts[0]),
			Schema:   sess.Normalizer.Normalize(parts[1]),
			Table:    sess.Normalizer.Normalize(parts[2]),
		}, nil
	default:
		return metastore.TableIdent{}, apperror.Newf("query.resolveTableObjectName", apperror.KindInvalidTableIdentifier, "expected 1, 2 or 3 parts, got %d", len(parts))
	}
}

// resolveSchemaObjectName is resolveTableObjectName's schema-identifier
// counterpart: parts has length 1 (schema only) or 2 (database,
// schema).
func resolveSchemaObjectName(sess *session.UserSession, parts []string) (metastore.SchemaIdent, error) {
	switch len(parts) {
	case 1:
		return metastore.SchemaIdent{
			Database: sess.Normalizer.Normalize(sess.CurrentDatabase()),
			Schema:   sess.Normalizer.Normalize(parts[0]),
		}, nil
	case 2:
		return metastore.SchemaIdent{
			Database: sess.Normalizer.Normalize(parts[0]),
			Schema:   sess.Normalizer.Normalize(parts[1]),
		}, nil
	default:
		return metastore.SchemaIdent{}, apperror.Newf("query.resolveSchemaObjectName", apperror.KindInvalidSchemaIdentifier, "expected 1 or 2 parts, got %d", len(parts))
	}
}

// splitIdentParts splits a possibly dotted (and possibly
// double-quoted) object reference into its parts. Quoting is honored
// only to the extent of not splitting on a dot inside a quoted part.
func splitIdentParts(ref string) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case c == '.' && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}
