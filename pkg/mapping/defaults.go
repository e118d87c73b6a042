package mapping

import "fmt"

// JDBCStrategy marshals a value through one typed JDBC accessor pair,
// e.g. getLong/setLong.
type JDBCStrategy struct {
	Accessor string
	Columns  int
}

// Name implements Strategy.
func (s JDBCStrategy) Name() string { return s.Accessor }

// Width implements Strategy.
func (s JDBCStrategy) Width() int { return s.Columns }

// builtin lists the adapters installed by RegisterDefaults. Each entry is
// registered as an auto adapter for its types and under its name in the
// global scope.
var builtin = []struct {
	name  string
	types []TypeRef
}{
	{"boolean", []TypeRef{"boolean", "java.lang.Boolean"}},
	{"byte", []TypeRef{"byte", "java.lang.Byte"}},
	{"short", []TypeRef{"short", "java.lang.Short"}},
	{"int", []TypeRef{"int", "java.lang.Integer"}},
	{"long", []TypeRef{"long", "java.lang.Long"}},
	{"float", []TypeRef{"float", "java.lang.Float"}},
	{"double", []TypeRef{"double", "java.lang.Double"}},
	{"bigdecimal", []TypeRef{"java.math.BigDecimal"}},
	{"biginteger", []TypeRef{"java.math.BigInteger"}},
	{"string", []TypeRef{"java.lang.String"}},
	{"char", []TypeRef{"char", "java.lang.Character"}},
	{"bytes", []TypeRef{"byte[]"}},
	{"date", []TypeRef{"java.sql.Date", "java.time.LocalDate"}},
	{"time", []TypeRef{"java.sql.Time", "java.time.LocalTime"}},
	{"timestamp", []TypeRef{"java.sql.Timestamp", "java.util.Date", "java.time.LocalDateTime", "java.time.Instant", "java.time.OffsetDateTime"}},
	{"uuid", []TypeRef{"java.util.UUID"}},
}

// RegisterDefaults installs the standard JDBC adapters: auto adapters in
// both directions keyed by host type, and named adapters ("int", "string",
// ...) in the global scope.
func RegisterDefaults(r *Registry) error {
	for _, b := range builtin {
		desc := Descriptor{
			MappableTypes: b.types,
			Strategy:      JDBCStrategy{Accessor: b.name, Columns: 1},
		}
		for _, dir := range []Direction{Parameter, Result} {
			if err := r.RegisterAuto(dir, desc); err != nil {
				return fmt.Errorf("failed to register default %s adapter: %w", b.name, err)
			}
			if err := r.Register(Global, dir, b.name, desc); err != nil {
				return fmt.Errorf("failed to register default %s adapter: %w", b.name, err)
			}
		}
	}
	return nil
}
