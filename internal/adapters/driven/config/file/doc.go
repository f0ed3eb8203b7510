// Package file provides the TOML configuration store and the loader that
// layers the file, the environment and built-in defaults into a domain.Config.
package file
