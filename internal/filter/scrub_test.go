package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guzun-corp/tsight-agent/internal/domain"
)

func TestScrubRows_PassThroughWithoutRowRules(t *testing.T) {
	// Database/table rules alone never trigger scrubbing.
	p := mustPolicy(t, &Config{
		Exclude: []Rules{{DatabaseRegexes: []string{"^test_"}}},
	})

	rows := []domain.Row{{"card_number": "4222 2222 2222 2222"}}
	kept, dropped := p.ScrubRows(rows)

	assert.Zero(t, dropped)
	// Same slice back, not a copy.
	assert.True(t, &rows[0] == &kept[0])
}

func TestScrubRows_ExcludedColumnDropsWholeRow(t *testing.T) {
	p := mustPolicy(t, &Config{
		Exclude: []Rules{{ColumnNameRegexes: []string{"cost", "user_id"}}},
	})

	rows := []domain.Row{
		{"order_name": "a", "order_cost": 10},
		{"order_name": "b"},
		{"user_id": 7, "order_name": "c"},
	}
	kept, dropped := p.ScrubRows(rows)

	require.Len(t, kept, 1)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, domain.Row{"order_name": "b"}, kept[0])
}

func TestScrubRows_ValueMatchAfterSpaceStripping(t *testing.T) {
	p := mustPolicy(t, &Config{
		Exclude: []Rules{{ColumnValueRegexes: []string{`\d{13,16}`}}},
	})

	rows := []domain.Row{
		{"card_number": "4222 2222 2222 2"},
		{"note": "short 1234"},
	}
	kept, dropped := p.ScrubRows(rows)

	require.Len(t, kept, 1)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, domain.Row{"note": "short 1234"}, kept[0])
}

func TestScrubRows_NonStringValuesAreNotValueChecked(t *testing.T) {
	p := mustPolicy(t, &Config{
		Exclude: []Rules{{ColumnValueRegexes: []string{`\d{13,16}`}}},
	})

	rows := []domain.Row{
		{"big": uint64(4222222222222222), "flag": true, "none": nil},
	}
	kept, dropped := p.ScrubRows(rows)

	assert.Len(t, kept, 1)
	assert.Zero(t, dropped)
}

func TestScrubRows_OrderPreservedAndIdempotent(t *testing.T) {
	p := mustPolicy(t, &Config{
		Exclude: []Rules{{ColumnValueRegexes: []string{"forbidden"}}},
	})

	rows := []domain.Row{
		{"id": 1, "v": "ok"},
		{"id": 2, "v": "forbidden"},
		{"id": 3, "v": "fine"},
		{"id": 4, "v": "also forbidden"},
		{"id": 5, "v": "last"},
	}
	kept, dropped := p.ScrubRows(rows)

	require.Len(t, kept, 3)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 1, kept[0]["id"])
	assert.Equal(t, 3, kept[1]["id"])
	assert.Equal(t, 5, kept[2]["id"])

	again, droppedAgain := p.ScrubRows(kept)
	assert.Zero(t, droppedAgain)
	assert.Equal(t, kept, again)
}

func TestScrubRows_AllowValueRulesAreClosedWorld(t *testing.T) {
	p := mustPolicy(t, &Config{
		Allow: []Rules{{ColumnValueRegexes: []string{"^public"}}},
	})

	rows := []domain.Row{
		{"v": "public data"},
		{"v": "internal data"},
		{"n": 42},
	}
	kept, dropped := p.ScrubRows(rows)

	require.Len(t, kept, 2)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, "public data", kept[0]["v"])
	assert.Equal(t, 42, kept[1]["n"])
}
