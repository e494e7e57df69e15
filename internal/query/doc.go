// Package query serves stored measurements back by device and category.
package query
