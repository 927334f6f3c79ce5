// Package containers provides throwaway backing services for integration
// tests. Everything substantial is behind the integration build tag so plain
// unit test runs never touch Docker.
package containers
