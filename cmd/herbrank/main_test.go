package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagWasSetDistinguishesZero(t *testing.T) {
	fs := flag.NewFlagSet("herbrank", flag.ContinueOnError)
	seed := fs.Int64("seed", 0, "")

	require.NoError(t, fs.Parse([]string{"-seed", "0"}))
	assert.True(t, flagWasSet(fs, "seed"))
	assert.Equal(t, int64(0), *seed)
}

func TestFlagWasSetDefaultNotCounted(t *testing.T) {
	fs := flag.NewFlagSet("herbrank", flag.ContinueOnError)
	fs.Int64("seed", 0, "")

	require.NoError(t, fs.Parse(nil))
	assert.False(t, flagWasSet(fs, "seed"))
}

func TestSplitTargets(t *testing.T) {
	assert.Equal(t, []string{"2", "19", "23"}, splitTargets("2,19,23"))
	assert.Equal(t, []string{"2", "19"}, splitTargets(" 2 , ,19,"))
	assert.Nil(t, splitTargets(""))
	assert.Nil(t, splitTargets(" , "))
}
