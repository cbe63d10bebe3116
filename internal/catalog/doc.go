// Package catalog implements the fund catalog REST client used to resolve
// metadata for watched funds. Listing is paginated server-side; AllFunds
// walks the pages.
package catalog
