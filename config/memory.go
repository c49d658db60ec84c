package config

import (
	"time"
)

type MemoryConfig struct {
	// SqlitePath specifies the file path for the SQLite database backing
	// both stores. ":memory:" keeps everything in-process.
	SqlitePath string `env:"MEMORY_SQLITE_PATH" json:"sqlitePath,omitempty"`

	// VectorDimension is the fixed embedding length of the associative
	// store. Records and queries must agree on it.
	VectorDimension int `env:"MEMORY_VECTOR_DIMENSION" json:"vectorDimension,omitempty"`

	// WorkingMemoryTTLMinutes is the fixed lifetime of a working-memory
	// context. Expiry is set at creation and never extended by access.
	WorkingMemoryTTLMinutes int `env:"MEMORY_WORKING_TTL_MINUTES" json:"workingMemoryTtlMinutes,omitempty"`

	// SimilarityThreshold is the default minimum cosine similarity for
	// associative queries.
	SimilarityThreshold float64 `env:"MEMORY_SIMILARITY_THRESHOLD" json:"similarityThreshold,omitempty"`

	// SearchLimit is the default associative result count.
	SearchLimit int `env:"MEMORY_SEARCH_LIMIT" json:"searchLimit,omitempty"`

	// StructuredResultLimit bounds the structured query issued on a
	// working-memory load.
	StructuredResultLimit int `env:"MEMORY_STRUCTURED_LIMIT" json:"structuredResultLimit,omitempty"`
}

// NewMemoryConfig returns the defaults; environment variables override them
// through ResolveConfig.
func NewMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		SqlitePath:              ":memory:",
		VectorDimension:         256,
		WorkingMemoryTTLMinutes: 30,
		SimilarityThreshold:     0.7,
		SearchLimit:             10,
		StructuredResultLimit:   50,
	}
}

// WorkingMemoryTTL returns the configured TTL as a duration.
func (c *MemoryConfig) WorkingMemoryTTL() time.Duration {
	return time.Duration(c.WorkingMemoryTTLMinutes) * time.Minute
}
