// Package testutil provides test helpers for pushvault tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertEqualSlices, etc.)
//   - store_helpers.go: database test setup (NewTestStore, NewTestEngine)
//   - fs_helpers.go: filesystem operations (WriteFile, ReadFile, MustExist)
//   - builders.go: message builders
package testutil
