// Package pricing implements the cost catalog: a pure lookup from
// (category, quantity, mode) to an exact decimal price.
//
// Unit prices default to the values in config.Default and can be overridden
// through the [pricing] section. Mode only affects segment generation.
package pricing
