// Package core defines the data model shared by every recall subsystem:
// memory items, contexts, queries, and the closed enum types that
// classify them.
//
// The types here are plain data. Behavior lives in the packages that
// operate on them (store, retrieval, predict); core only carries the
// few pure helpers that belong to the data itself, such as content
// fingerprinting, expiry checks, and context similarity.
package core
