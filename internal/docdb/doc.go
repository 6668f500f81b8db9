// Package docdb provides an embedded document store persisting tables as JSON
// files.
//
// # Overview
//
// A [Store] manages a directory (the storage root). Each table is one JSON
// object file, <root>/<table>.json, mapping string keys to arbitrary JSON
// values. Files are tab-indented and replaced atomically on every write.
//
// # Strict Mode
//
// A table created with [Rules] is strict: the rules are stored in
// <root>/<table>-rules.json and every object written must have exactly the
// declared fields, each of the declared [Kind].
//
// # Auto-Increment
//
// Writing the [AutoIncrement] placeholder, as a value or as an object field,
// replaces it with the next value of the table counter. Counters of every
// table live in <root>/increment.json; they only ever increase.
//
// # Concurrency
//
// Each operation is a full read-modify-write cycle with no caching. Tables
// and the counter file are guarded by process-wide mutexes and an advisory
// lock on <root>/.docstore.lock shared with other processes.
package docdb
