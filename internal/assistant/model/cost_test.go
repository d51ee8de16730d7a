package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestResolvePricing(t *testing.T) {
	p := ResolvePricing("gemini-2.5-flash")
	assert.Equal(t, 0.30, p.InputPerM)
	assert.Equal(t, 2.50, p.OutputPerM)

	assert.Zero(t, ResolvePricing("unknown-model"))
}

func TestComputeCost(t *testing.T) {
	usage := &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 500_000}
	in, out, total := ComputeCost(usage, Pricing{InputPerM: 0.10, OutputPerM: 0.40})

	assert.InDelta(t, 0.10, in, 1e-9)
	assert.InDelta(t, 0.20, out, 1e-9)
	assert.InDelta(t, 0.30, total, 1e-9)
}

func TestComputeCostNilUsage(t *testing.T) {
	in, out, total := ComputeCost(nil, Pricing{InputPerM: 1, OutputPerM: 1})
	assert.Zero(t, in)
	assert.Zero(t, out)
	assert.Zero(t, total)
}
