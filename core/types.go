package core

import "errors"

// ErrNotFound is returned when an item id does not exist in the store.
var ErrNotFound = errors.New("item not found")

// MemoryType classifies the content of a memory item.
type MemoryType string

const (
	TypeText         MemoryType = "text"
	TypeCode         MemoryType = "code"
	TypeConversation MemoryType = "conversation"
	TypeDocument     MemoryType = "document"
	TypeTask         MemoryType = "task"
	TypeReference    MemoryType = "reference"
	TypeInsight      MemoryType = "insight"
	TypePattern      MemoryType = "pattern"
)

// MemoryTypes lists every valid memory type.
var MemoryTypes = []MemoryType{
	TypeText, TypeCode, TypeConversation, TypeDocument,
	TypeTask, TypeReference, TypeInsight, TypePattern,
}

// Valid reports whether t is one of the defined memory types.
func (t MemoryType) Valid() bool {
	for _, mt := range MemoryTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// AccessLevel controls the visibility of a memory item.
type AccessLevel string

const (
	AccessPublic   AccessLevel = "public"
	AccessPrivate  AccessLevel = "private"
	AccessShared   AccessLevel = "shared"
	AccessArchived AccessLevel = "archived"
)

// Valid reports whether l is one of the defined access levels.
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessPublic, AccessPrivate, AccessShared, AccessArchived:
		return true
	}
	return false
}

// Strategy selects how retrieval candidates are generated.
type Strategy string

const (
	StrategySemantic      Strategy = "semantic"
	StrategyContextual    Strategy = "contextual"
	StrategyTemporal      Strategy = "temporal"
	StrategyHybrid        Strategy = "hybrid"
	StrategyAdaptive      Strategy = "adaptive"
	StrategyFrequency     Strategy = "frequency"
	StrategyImportance    Strategy = "importance"
	StrategyCollaborative Strategy = "collaborative"
)
