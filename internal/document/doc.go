// Package document loads program documents (YAML or JSON) into the schedule
// model and writes them back.
//
// Loading runs in three passes: the raw document is checked against an
// embedded CUE schema, decoded into typed document structs, then converted
// into a schedule.Program with every step's resources resolved. All
// problems found are reported together as ValidationErrors.
//
// Time values are numbers of seconds or unit strings: 90, "90", "90s",
// "5m", "1h30m10s".
package document
