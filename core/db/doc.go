// Package db is a concurrency and type-safety layer over SQLite's native
// prepare/bind/step interface.
//
// The native engine hands out pointer-based connection and statement
// handles that are not safe to share between goroutines. This package
// makes them safe to use concurrently with three cooperating pieces:
//
//   - Connection owns one native database handle and exposes
//     execute/prepare/transaction/savepoint.
//   - ConnectionQueue wraps exactly one Connection and totally orders
//     all operations on it.
//   - ConnectionPool manages a growable set of read-only connections,
//     each behind its own queue, and drains idle ones after a delay.
//
// Between Go values and the engine's untyped storage sits the Value
// model: a closed sum over the five storage classes (null, integer,
// real, text, blob) with conversion rules that clamp narrowing integer
// conversions and preserve uint64 bit patterns.
package db
