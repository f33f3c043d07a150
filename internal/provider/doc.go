// Package provider adapts the upstream market-data feed to the narrow
// capability interfaces the pipeline and accumulator depend on: historical
// bar fetches, headline requests, story-text lookups, and a live headline
// stream over websocket.
package provider
