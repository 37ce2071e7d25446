package models

import (
	"time"

	"github.com/guregu/null/v5"
)

// TestType distinguishes the two probing tiers.
type TestType string

const (
	TestSimple   TestType = "simple"
	TestAdvanced TestType = "advanced"
)

// TestTypes lists every tier in a stable order.
var TestTypes = []TestType{TestSimple, TestAdvanced}

// Valid reports whether t is a known tier.
func (t TestType) Valid() bool {
	return t == TestSimple || t == TestAdvanced
}

// SimpleResult represents a single simple-test measurement
type SimpleResult struct {
	Provider  string      `json:"provider_name"`
	Endpoint  string      `json:"endpoint"`
	Method    string      `json:"method"`
	Timestamp time.Time   `json:"timestamp"`
	LatencyMS null.Float  `json:"latency_ms"` // null on failure
	Success   bool        `json:"success"`
	Error     null.String `json:"error"`
}

// AdvancedResult represents a single advanced sub-test measurement.
// Method holds the sub-test name, RPCMethod the JSON-RPC method it called.
type AdvancedResult struct {
	Provider   string      `json:"provider_name"`
	Endpoint   string      `json:"endpoint"`
	Method     string      `json:"method"`
	RPCMethod  string      `json:"rpc_method"`
	Complexity string      `json:"complexity"`
	Timestamp  time.Time   `json:"timestamp"`
	LatencyMS  null.Float  `json:"latency_ms"`
	Success    bool        `json:"success"`
	Error      null.String `json:"error"`
}

// Sample is the part of a raw row the aggregator cares about.
type Sample struct {
	Endpoint  string
	LatencyMS null.Float
	Success   bool
}

func (r SimpleResult) Sample() Sample {
	return Sample{Endpoint: r.Endpoint, LatencyMS: r.LatencyMS, Success: r.Success}
}

func (r AdvancedResult) Sample() Sample {
	return Sample{Endpoint: r.Endpoint, LatencyMS: r.LatencyMS, Success: r.Success}
}

// RawQuery selects raw rows. Empty Provider or Method match everything;
// the time range is half-open [From, To).
type RawQuery struct {
	Provider string
	Method   string
	From     time.Time
	To       time.Time
}
