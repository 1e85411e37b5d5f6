package bitfield

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAndHasPiece(t *testing.T) {
	bf := New(10)
	require.False(t, bf.HasPiece(3))
	bf.SetPiece(3)
	require.True(t, bf.HasPiece(3))
	require.False(t, bf.HasPiece(2))
	require.False(t, bf.HasPiece(4))
}

func TestMSBFirstOrdering(t *testing.T) {
	bf := New(8)
	bf.SetPiece(0)
	require.Equal(t, byte(0x80), bf[0])
}

func TestOutOfRangeIsSafe(t *testing.T) {
	bf := New(4)
	require.False(t, bf.HasPiece(1000))
	bf.SetPiece(1000) // must not panic
	require.False(t, bf.HasPiece(-1))
}

func TestFitsPieceCount(t *testing.T) {
	bf := New(9)
	require.True(t, bf.FitsPieceCount(9))
	require.False(t, bf.FitsPieceCount(8))
}
