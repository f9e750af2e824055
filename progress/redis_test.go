package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	p, err := summarize("VIRTUAL01", map[string]string{
		"_total": "4",
		"VIRTUAL01-2016-01-01-reading-temperature": StatusDone,
		"VIRTUAL01-2016-01-02-reading-temperature": StatusSkipped,
		"VIRTUAL01-2016-01-03-reading-temperature": StatusFailed,
	})
	require.NoError(t, err)
	require.Equal(t, 4, p.Total)
	require.Equal(t, 1, p.Done)
	require.Equal(t, 1, p.Skipped)
	require.Equal(t, 1, p.Failed)
	require.Len(t, p.Buckets, 3)
	require.False(t, p.Finished())

	_, err = summarize("VIRTUAL01", map[string]string{"_total": "x"})
	require.Error(t, err)
}

func TestKey(t *testing.T) {
	tr := NewTracker(nil, "recompute:", time.Hour)
	require.Equal(t, "recompute:VIRTUAL01", tr.key("VIRTUAL01"))
}
