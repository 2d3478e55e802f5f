// Package output renders command results as YAML or JSON.
package output
