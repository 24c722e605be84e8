// Package querysql compiles queryir selects to parameterized SQLite.
//
// Every literal becomes a bound parameter, the run filter is always
// present, and every query carries the table's explicit ORDER BY so
// results are stable across runs.
package querysql
