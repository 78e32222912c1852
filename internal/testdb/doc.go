//go:build integration

// Package testdb provides utilities specifically for database testing: locating
// the test database, applying the embedded schema, and running each test in a
// transaction that is rolled back afterwards.
package testdb
