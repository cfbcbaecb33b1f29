package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendNoteText(t *testing.T) {
	merged := AppendNoteText("", "A")
	require.Equal(t, "• A", merged)

	merged = AppendNoteText(merged, "B")
	require.Equal(t, "• A\n• B", merged)
}

func TestAppendNoteText_EmptyAdditionNoOp(t *testing.T) {
	require.Equal(t, "• A", AppendNoteText("• A", ""))
	require.Equal(t, "• A", AppendNoteText("• A", "   "))
}

func TestAppendNoteText_TrimsAddition(t *testing.T) {
	require.Equal(t, "• VIP client", AppendNoteText("", "  VIP client  "))
}
