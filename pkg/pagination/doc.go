// Package pagination implements resilient retrieval of paginated Snyk
// collections.
//
// The Snyk REST API pages collections through a links.next cursor: each
// response carries a data array and, while more pages remain, a link to the
// next one. The fetcher follows that chain sequentially until it is
// exhausted.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(apiClient)
//	items, err := fetcher.FetchAll(ctx, "/groups", params)
//
// The fetcher:
//   - Applies the caller's query parameters to the first request only;
//     follow-up pages use the server's next link verbatim, which already
//     encodes them
//   - Relies on the client's 429 backoff, so a rate-limited page is
//     re-fetched rather than skipped
//   - Aborts with ErrPaginationLoop when a next link repeats, so a
//     misbehaving server cannot trap the tool in an endless walk
//   - Treats an empty page with no next link as a normal empty result
package pagination
