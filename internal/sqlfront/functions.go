package sqlfront

// SupportedFunctions is the allow-list the unimplemented-function
// checker enforces (spec §4.6.3 step 4). It covers every function name
// internal/functions registers plus the scalar/aggregate builtins a
// generic SELECT commonly reaches for; anything else fails fast with
// KindUnimplementedFunction rather than surfacing a confusing planner
// error later. Kept in sync by hand with internal/functions's registry
// — both are small and change together.
var SupportedFunctions = map[string]bool{
	// generic scalar
	"date_part": true, "dateadd": true, "datediff": true, "to_timestamp": true,
	"to_date": true, "to_char": true, "try_cast": true, "cast": true,
	"sha224": true, "sha256": true, "sha512": true, "md5": true,
	"json_get": true, "parse_json": true, "flatten": true, "result_scan": true,
	"coalesce": true, "nullif": true, "iff": true, "current_database": true,
	"current_schema": true, "current_session": true, "current_warehouse": true,
	"current_account": true, "current_timestamp": true, "current_date": true,
	"object_construct": true, "array_construct": true,

	// aggregate
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"array_agg": true, "listagg": true,

	// geospatial (internal/functions)
	"st_point": true, "st_distance": true, "st_makeline": true,
	"st_area": true, "st_astext": true, "st_geogfromtext": true,
	"st_buffer": true, "h3_latlng_to_cell": true,

	// string
	"upper": true, "lower": true, "trim": true, "ltrim": true, "rtrim": true,
	"concat": true, "substr": true, "substring": true, "split_part": true,
	"replace": true, "length": true, "regexp_like": true, "regexp_replace": true,
}
