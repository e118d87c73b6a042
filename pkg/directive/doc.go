// Package directive parses annotated SQL statements whose bind parameters
// and result columns are described by embedded directives.
//
// A directive is a brace-delimited instruction placed in the SQL text:
//
//	select id {%%.id}, name {%%.name} from users where id = {%1}
//
// Parameter directives start with a single '%' followed by the 1-based
// method argument and an optional field path:
//
//	{%1}          first argument
//	{int%2.field} field "field" of the second argument, adapter "int"
//
// Result directives start with "%%" and are followed by an optional
// constructor ordinal, a map key marker or a field path:
//
//	{%%}          the row value itself, column inferred from the SQL
//	{%%.name}     field "name" of the row value
//	{int%%1}      first constructor argument, adapter "int"
//	{%%*}         key of a map-valued result
//
// Any directive may end with a partial suffix "@part[group]". Parts sharing
// a mapping type and group are combined into one definition spanning
// several columns or bind positions, ordered by part number:
//
//	select a {money%%@1.total}, b {money%%@2.total} from t
//
// Two directives may share one pair of braces, separated by a comma: an
// in/out parameter of a callable statement ({%1,%%.out}) or the value and
// key sides of a map result ({%%,%%*}).
//
//	directive       := "{" (param | result) ["," (param | result)] "}"
//	param           := [typeName] "%" digits ["." fieldPath] [partialSuffix]
//	result          := [typeName] "%%" (digits | "*" | "." fieldPath)? [partialSuffix]
//	partialSuffix   := "@" digits ["[" groupName "]"]
//	typeName        := (letters | digits | "_" | "-")+
package directive
